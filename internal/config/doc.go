// Package config defines the scrapedelta configuration structure.
//
// Configuration is loaded by confloader with priority
// flag > env (SCRAPEDELTA_*) > file (YAML) > Default(). Verify rejects
// invalid values with ErrConfig; Sanitize masks secrets before logging.
package config
