package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout())
	}
	if cfg.Search.MaxResults != 5 || !cfg.Search.IncludeMetadata {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.MaxResults != 5 {
		t.Errorf("MaxResults = %d", cfg.Search.MaxResults)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragdeck.yaml")
	data := "api:\n  base_url: http://rag.internal:9000\nsearch:\n  max_results: 12\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "http://rag.internal:9000" || cfg.Search.MaxResults != 12 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.API.TimeoutSecs != 30 || !cfg.Search.IncludeMetadata {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("api: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Index.Extensions = []string{".go", ".md"}
	cfg.Models.ChangeStrategy = "model-endpoint"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Index.Extensions) != 2 || got.Models.ChangeStrategy != "model-endpoint" {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	testChdir(t, t.TempDir())

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	want := filepath.Join(home, ".ragdeck", "config.yaml")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("defaults not written: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestLoadDefaultPrefersWorkingDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	testChdir(t, dir)
	os.WriteFile(filepath.Join(dir, "ragdeck.yaml"), []byte("search:\n  max_results: 7\n"), 0o644)

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	if path != "ragdeck.yaml" || cfg.Search.MaxResults != 7 {
		t.Errorf("got %q %+v", path, cfg.Search)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantURL string
		wantSec int
		wantErr bool
	}{
		{"none", nil, "http://localhost:8000", 30, false},
		{"vite", map[string]string{"VITE_API_URL": "http://vite:8000"}, "http://vite:8000", 30, false},
		{"ragdeck wins", map[string]string{"VITE_API_URL": "http://vite", "RAGDECK_API_URL": "http://rd"}, "http://rd", 30, false},
		{"timeout seconds", map[string]string{"RAGDECK_API_TIMEOUT": "45"}, "http://localhost:8000", 45, false},
		{"timeout duration", map[string]string{"RAGDECK_API_TIMEOUT": "2m"}, "http://localhost:8000", 120, false},
		{"timeout garbage", map[string]string{"RAGDECK_API_TIMEOUT": "soon"}, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envMap(tt.env))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.API.BaseURL != tt.wantURL || cfg.API.TimeoutSecs != tt.wantSec {
				t.Errorf("got %q/%d", cfg.API.BaseURL, cfg.API.TimeoutSecs)
			}
		})
	}
}

func TestApplyEnvFlags(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"RAGDECK_TRACE":        "1",
		"RAGDECK_MODEL_CHANGE": "model-endpoint",
		"RAGDECK_HOME":         "/tmp/rd",
	}))
	if !cfg.UI.Trace || cfg.Models.ChangeStrategy != "model-endpoint" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	p, _ := cfg.HistoryPath()
	if p != filepath.Join("/tmp/rd", "history.db") {
		t.Errorf("HistoryPath = %q", p)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "localhost:8000"
	cfg.Search.MaxResults = 21
	cfg.Models.ChangeStrategy = "sideways"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"base_url", "max_results", "change_strategy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("RAGDECK_TEST_DOTENV=from-file\n"), 0o644)
	t.Setenv("RAGDECK_TEST_DOTENV", "")
	os.Unsetenv("RAGDECK_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("RAGDECK_TEST_DOTENV"); got != "from-file" {
		t.Errorf("RAGDECK_TEST_DOTENV = %q", got)
	}
}

// testChdir mirrors testing.T.Chdir (Go 1.24+): chdir for the test, restored on cleanup.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}
