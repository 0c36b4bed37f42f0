package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

const sessionsRoot = "sessions"

// BuildSessionPrefix returns the key prefix all objects of one session share.
func BuildSessionPrefix(sessionID string) (string, error) {
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	return path.Join(sessionsRoot, sessionID), nil
}

// BuildSessionObjectPath returns sessions/<id>/<name>.
func BuildSessionObjectPath(sessionID, name string) (string, error) {
	prefix, err := BuildSessionPrefix(sessionID)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(name, "object name"); err != nil {
		return "", err
	}
	return path.Join(prefix, name), nil
}

// validatePathComponent accepts any single key segment: session ids are built
// from free-text prompts, so only separators, dot segments and control
// characters are refused.
func validatePathComponent(value, field string) error {
	invalid := strings.TrimSpace(value) == "" || value == "." || value == ".." ||
		len(value) > 255 || strings.ContainsAny(value, `/\`) ||
		strings.IndexFunc(value, unicode.IsControl) >= 0
	if invalid {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
