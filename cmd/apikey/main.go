// Command apikey issues an API key for the host application's event hooks.
// The raw key is printed once; only its bcrypt hash is stored.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/config"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefix = "rb_"

var validScopes = map[string]bool{
	models.ScopeEvents: true,
	models.ScopeAdmin:  true,
}

// KeyCreator persists API keys.
type KeyCreator interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "apikey: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var name string
	var scopes []string

	flagSet := pflag.NewFlagSet("apikey", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "human-readable key name (required)")
	flagSet.StringSliceVar(&scopes, "scope", []string{models.ScopeEvents}, "scopes to grant: events, admin")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	raw, key, err := newKey(name, scopes, time.Now().UTC())
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return issue(ctx, store.NewPostgresStore(pool), raw, key, out)
}

func issue(ctx context.Context, keys KeyCreator, raw string, key *models.APIKey, out io.Writer) error {
	if err := keys.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	fmt.Fprintf(out, "id:     %s\nname:   %s\nscopes: %s\nkey:    %s\n",
		key.ID, key.Name, strings.Join(key.Scopes, ","), raw)
	return nil
}

// newKey generates a random key and the record that authenticates it.
func newKey(name string, scopes []string, now time.Time) (string, *models.APIKey, error) {
	if len(scopes) == 0 {
		return "", nil, fmt.Errorf("at least one scope is required")
	}
	for _, s := range scopes {
		if !validScopes[s] {
			return "", nil, fmt.Errorf("unknown scope %q", s)
		}
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := keyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:8],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
