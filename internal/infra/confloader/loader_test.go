package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Target struct {
		URL        string        `koanf:"url"`
		HashFields []string      `koanf:"hash_fields"`
		Timeout    time.Duration `koanf:"timeout"`
		Fields     []struct {
			Name     string `koanf:"name"`
			Selector string `koanf:"selector"`
		} `koanf:"fields"`
	} `koanf:"target"`
	Storage struct {
		OutputDir string `koanf:"output_dir"`
		KeepRuns  int    `koanf:"keep_runs"`
	} `koanf:"storage"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrapedelta.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/path/to/config.yaml"))

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.FilePath() != "/path/to/config.yaml" {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
	if NewLoader().envPrefix != DefaultEnvPrefix {
		t.Error("default env prefix not applied")
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"SCRAPEDELTA_TARGET_URL", "target.url"},
		{"SCRAPEDELTA_STORAGE_OUTPUT_DIR", "storage.output_dir"},
		{"SCRAPEDELTA_EXPORT_BUCKET", "export.bucket"},
		{"SCRAPEDELTA_TARGET_HASH_FIELDS", "target.hash_fields"},
		{"SCRAPEDELTA_DEBUG", "debug"},
	}
	for _, tt := range tests {
		if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	if err := NewLoader().LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
	if err := NewLoader().LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v", err)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeFile(t, `
target:
  url: "https://file.example/products"
  timeout: 45s
storage:
  output_dir: from-file
  keep_runs: 7
`)
	t.Setenv("SCRAPEDELTA_STORAGE_OUTPUT_DIR", "from-env")
	t.Setenv("SCRAPEDELTA_TARGET_HASH_FIELDS", "name,sku")

	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"storage.keep_runs": 2}),
	)

	var cfg testConfig
	cfg.Target.URL = "https://default.example"
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Target.URL != "https://file.example/products" {
		t.Errorf("URL = %q, file should override default", cfg.Target.URL)
	}
	if cfg.Storage.OutputDir != "from-env" {
		t.Errorf("OutputDir = %q, env should override file", cfg.Storage.OutputDir)
	}
	if cfg.Storage.KeepRuns != 2 {
		t.Errorf("KeepRuns = %d, overrides should win", cfg.Storage.KeepRuns)
	}
	if cfg.Target.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Target.Timeout)
	}
	if len(cfg.Target.HashFields) != 2 || cfg.Target.HashFields[1] != "sku" {
		t.Errorf("HashFields = %v, want [name sku]", cfg.Target.HashFields)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_ListsReplaceDefaults(t *testing.T) {
	path := writeFile(t, `
target:
  fields:
    - name: title
      selector: h2
`)
	var cfg testConfig
	cfg.Target.Fields = append(cfg.Target.Fields,
		struct {
			Name     string `koanf:"name"`
			Selector string `koanf:"selector"`
		}{"name", ".product-name"},
		struct {
			Name     string `koanf:"name"`
			Selector string `koanf:"selector"`
		}{"price", ".price"},
	)
	cfg.Storage.OutputDir = "kept"

	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Target.Fields) != 1 || cfg.Target.Fields[0].Name != "title" {
		t.Errorf("Fields = %+v, want only title", cfg.Target.Fields)
	}
	if cfg.Storage.OutputDir != "kept" {
		t.Errorf("OutputDir = %q, absent keys should keep defaults", cfg.Storage.OutputDir)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{
		"target.url":        "https://map.example",
		"storage.keep_runs": 3,
		"debug":             true,
	}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	if got := l.GetString("target.url"); got != "https://map.example" {
		t.Errorf("target.url = %q", got)
	}
	if got := l.GetInt("storage.keep_runs"); got != 3 {
		t.Errorf("storage.keep_runs = %d", got)
	}
	if !l.GetBool("debug") {
		t.Error("debug should be true")
	}
	if len(l.Keys()) != 3 || len(l.All()) != 3 {
		t.Errorf("Keys() = %v", l.Keys())
	}

	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Target.URL != "https://map.example" {
		t.Errorf("unmarshal of map keys: URL = %q", cfg.Target.URL)
	}
}

func TestMapProvider_ReadBytes(t *testing.T) {
	if _, err := mapProvider(nil).ReadBytes(); err != ErrReadBytesNotSupported {
		t.Errorf("ReadBytes() error = %v", err)
	}
}
