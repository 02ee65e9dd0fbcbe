package config

import (
	"os"
	"strings"
)

// Resolve returns the value of newKey from the environment, falling back to
// legacyKey and then to def. New-style names always win over legacy aliases
// even when both are set. Values are trimmed; an empty value counts as unset.
func Resolve(newKey, legacyKey, def string) string {
	if v := strings.TrimSpace(os.Getenv(newKey)); v != "" {
		return v
	}
	if legacyKey != "" {
		if v := strings.TrimSpace(os.Getenv(legacyKey)); v != "" {
			return v
		}
	}
	return def
}
