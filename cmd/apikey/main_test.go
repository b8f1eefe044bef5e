package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewKey(t *testing.T) {
	raw, key, err := newKey("ci", []string{models.ScopeEvents, models.ScopeAdmin}, time.Now())
	require.NoError(t, err)

	assert.True(t, len(raw) > 8)
	assert.Equal(t, "rb_", raw[:3])
	assert.Equal(t, raw[:8], key.KeyPrefix)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)))
	assert.Equal(t, []string{"events", "admin"}, key.Scopes)
}

func TestNewKey_RejectsBadScopes(t *testing.T) {
	_, _, err := newKey("ci", []string{"root"}, time.Now())
	assert.Error(t, err)

	_, _, err = newKey("ci", nil, time.Now())
	assert.Error(t, err)
}

func TestIssue_StoresAndPrints(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	raw, key, err := newKey("ci", []string{models.ScopeEvents}, time.Now())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, issue(ctx, st, raw, key, &out))
	assert.Contains(t, out.String(), raw)

	got, err := st.GetAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, key.ID, got[0].ID)
}

func TestRun_RequiresName(t *testing.T) {
	err := run([]string{"--scope", "events"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name")
}
