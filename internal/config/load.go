package config

import (
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/infra/confloader"
)

// Load layers the YAML file at path (optional), SCRAPEDELTA_* environment
// variables and overrides over Default, then verifies the result.
func Load(path string, overrides map[string]any) (*Config, error) {
	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithEnvPrefix(confloader.DefaultEnvPrefix),
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, domain.ErrConfig.WithCause(err)
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
