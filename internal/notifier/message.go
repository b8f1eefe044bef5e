package notifier

import (
	"fmt"
	"html"
)

// Event levels with a dedicated color.
const (
	LevelAlert   = "ALERT"
	LevelError   = "ERROR"
	LevelWarning = "WARNING"
	LevelInfo    = "INFO"
	LevelDebug   = "DEBUG"
)

const defaultColor = "purple"

var colors = map[string]string{
	LevelAlert:   "red",
	LevelError:   "red",
	LevelWarning: "yellow",
	LevelInfo:    "green",
	LevelDebug:   "purple",
}

// ColorFor maps an upper-case level to a room notification color.
func ColorFor(level string) string {
	if c, ok := colors[level]; ok {
		return c
	}
	return defaultColor
}

// FormatAlert renders the alert message. Every value is HTML-escaped.
func FormatAlert(projectName, message, link string) string {
	return fmt.Sprintf(`[ALERT] <strong>%s</strong> %s[<a href="%s">view</a>]`,
		html.EscapeString(projectName), html.EscapeString(message), html.EscapeString(link))
}

// FormatEvent renders an event message. Every value is HTML-escaped.
func FormatEvent(level, projectName, message, link string) string {
	return fmt.Sprintf(`[%s]<strong>%s</strong> %s [<a href="%s">view</a>]`,
		html.EscapeString(level), html.EscapeString(projectName), html.EscapeString(message), html.EscapeString(link))
}
