package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	e := &sanitized.Export
	e.SecretAccessKey = maskSecret(e.SecretAccessKey)
	e.AccountKey = maskSecret(e.AccountKey)
	e.ConnectionString = maskSecret(e.ConnectionString)
	e.EncryptionKey = maskSecret(e.EncryptionKey)
	return &sanitized
}

// maskSecret masks a secret value for safe logging. Empty stays empty.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
