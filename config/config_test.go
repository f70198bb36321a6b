package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	f, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if f.TargetLanguage != "Korean" {
		t.Errorf("target_language = %q", f.TargetLanguage)
	}
	if f.MaxRetries != 3 || f.FallbackRetries != 2 || f.MaxConcurrent != 5 {
		t.Errorf("defaults = %+v", f)
	}
	if f.RequestDelay() != 200*time.Millisecond {
		t.Errorf("request delay = %v", f.RequestDelay())
	}
	if f.Glossary.Path != "packlate_glossary.json" {
		t.Errorf("glossary path = %q", f.Glossary.Path)
	}
}

func TestLoadFullFile(t *testing.T) {
	dir := writeConfig(t, `
target_language: Japanese
cache_path: cache.json
max_retries: 5
max_concurrent: 2
request_delay_ms: 50
glossary:
  enabled: true
  path: terms.json
review:
  enabled: true
  max_retries: 2
backend:
  provider: groq
  model: llama-3.3-70b
`)
	f, err := Load(dir)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if f.TargetLanguage != "Japanese" {
		t.Errorf("target_language = %q", f.TargetLanguage)
	}
	if f.MaxRetries != 5 || f.MaxConcurrent != 2 {
		t.Errorf("limits = %+v", f)
	}
	if f.RequestDelay() != 50*time.Millisecond {
		t.Errorf("request delay = %v", f.RequestDelay())
	}
	if !f.Glossary.Enabled || f.Glossary.Path != "terms.json" {
		t.Errorf("glossary = %+v", f.Glossary)
	}
	if !f.Review.Enabled || f.Review.MaxRetries != 2 {
		t.Errorf("review = %+v", f.Review)
	}
	if f.Backend.Provider != "groq" || f.Backend.Model != "llama-3.3-70b" {
		t.Errorf("backend = %+v", f.Backend)
	}
	// Unset fields still get defaults.
	if f.FallbackRetries != 2 || f.MaxTokensPerChunk != 3000 {
		t.Errorf("defaults not applied: %+v", f)
	}
}

func TestLoadRejectsNegativeValues(t *testing.T) {
	dir := writeConfig(t, "max_retries: -1\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for negative max_retries")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := writeConfig(t, "backend:\n  provider: telepathy\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	dir := writeConfig(t, "target_language: [unterminated\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGlossaryPathResolution(t *testing.T) {
	f := &File{}
	f.applyDefaults()
	got := f.GlossaryPath("/proj")
	if got != filepath.Join("/proj", "packlate_glossary.json") {
		t.Errorf("path = %q", got)
	}

	f.Glossary.Path = "/abs/terms.json"
	if got := f.GlossaryPath("/proj"); got != "/abs/terms.json" {
		t.Errorf("absolute path mangled: %q", got)
	}
}
