package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/scrapedelta/internal/core/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrapedelta.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Layers(t *testing.T) {
	path := writeConfig(t, `
target:
  url: https://shop.example/list
  fields:
    - name: title
      selector: h2
  hash_fields: [title]
storage:
  output_dir: /var/lib/shop
schedule:
  interval: 15m
`)
	t.Setenv("SCRAPEDELTA_STORAGE_OUTPUT_DIR", "/srv/shop")

	cfg, err := Load(path, map[string]any{"log.level": "debug"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target.URL != "https://shop.example/list" {
		t.Errorf("url = %q", cfg.Target.URL)
	}
	if len(cfg.Target.Fields) != 1 || cfg.Target.Fields[0].Name != "title" {
		t.Errorf("fields = %+v", cfg.Target.Fields)
	}
	if cfg.Storage.OutputDir != "/srv/shop" {
		t.Errorf("output_dir = %q, env should win over file", cfg.Storage.OutputDir)
	}
	if cfg.Schedule.Interval != 15*time.Minute {
		t.Errorf("interval = %v", cfg.Schedule.Interval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q", cfg.Log.Level)
	}
	if cfg.Export.Kind != ExportNone {
		t.Errorf("export.kind default = %q", cfg.Export.Kind)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.OutputDir != DefaultOutputDir {
		t.Errorf("output_dir = %q", cfg.Storage.OutputDir)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		if !errors.Is(err, domain.ErrConfig) {
			t.Errorf("error = %v, want ErrConfig", err)
		}
	})
	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "export:\n  kind: s3\n")
		_, err := Load(path, nil)
		if !errors.Is(err, domain.ErrConfig) {
			t.Errorf("error = %v, want ErrConfig", err)
		}
	})
}
