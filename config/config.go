// Package config — .packlate.yaml configuration file support.
//
// When a .packlate.yaml file exists in the project root, packlate uses
// it for job defaults. Every value can still be overridden by a CLI
// flag; the file just keeps per-project settings out of the command
// line.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .packlate.yaml structure.
type File struct {
	// TargetLanguage is the language translations are produced in
	// (default "Korean").
	TargetLanguage string `yaml:"target_language,omitempty"`

	// CachePath points at a JSON object of known-good translations
	// ({"source": "translation"}). Optional.
	CachePath string `yaml:"cache_path,omitempty"`

	// MaxRetries bounds bulk retry rounds (default 3).
	MaxRetries int `yaml:"max_retries,omitempty"`
	// FallbackRetries bounds per-item attempts after bulk retries
	// (default 2).
	FallbackRetries int `yaml:"fallback_retries,omitempty"`
	// MaxTokensPerChunk is the estimated-token budget per batch
	// (default 3000).
	MaxTokensPerChunk int `yaml:"max_tokens_per_chunk,omitempty"`

	// MaxConcurrent caps in-flight backend calls (default 5).
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`
	// RequestDelayMs is the minimum interval between call starts in
	// milliseconds (default 200).
	RequestDelayMs int `yaml:"request_delay_ms,omitempty"`

	// Glossary configures the terminology stage.
	Glossary GlossarySection `yaml:"glossary,omitempty"`
	// Review configures the quality review stage.
	Review ReviewSection `yaml:"review,omitempty"`
	// Backend sets provider defaults for credentials that do not name
	// their own.
	Backend BackendSection `yaml:"backend,omitempty"`
}

// GlossarySection toggles and locates the glossary store.
type GlossarySection struct {
	Enabled bool `yaml:"enabled,omitempty"`
	// Path is the glossary JSON file relative to the project root
	// (default "packlate_glossary.json").
	Path string `yaml:"path,omitempty"`
}

// ReviewSection toggles the quality review stage.
type ReviewSection struct {
	Enabled bool `yaml:"enabled,omitempty"`
	// MaxRetries bounds issue-triggered retranslation rounds
	// (default 1).
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// BackendSection holds provider defaults.
type BackendSection struct {
	// Provider: "google", "groq", "openai" or "ollama".
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".packlate.yaml"

// Load reads and validates .packlate.yaml from the given directory.
// Returns defaults if no .packlate.yaml exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			f := &File{}
			f.applyDefaults()
			return f, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := f.validate(path); err != nil {
		return nil, err
	}
	f.applyDefaults()
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.TargetLanguage == "" {
		f.TargetLanguage = "Korean"
	}
	if f.MaxRetries == 0 {
		f.MaxRetries = 3
	}
	if f.FallbackRetries == 0 {
		f.FallbackRetries = 2
	}
	if f.MaxTokensPerChunk == 0 {
		f.MaxTokensPerChunk = 3000
	}
	if f.MaxConcurrent == 0 {
		f.MaxConcurrent = 5
	}
	if f.RequestDelayMs == 0 {
		f.RequestDelayMs = 200
	}
	if f.Glossary.Path == "" {
		f.Glossary.Path = "packlate_glossary.json"
	}
	if f.Review.MaxRetries == 0 {
		f.Review.MaxRetries = 1
	}
}

func (f *File) validate(path string) error {
	for _, check := range []struct {
		name  string
		value int
	}{
		{"max_retries", f.MaxRetries},
		{"fallback_retries", f.FallbackRetries},
		{"max_tokens_per_chunk", f.MaxTokensPerChunk},
		{"max_concurrent", f.MaxConcurrent},
		{"request_delay_ms", f.RequestDelayMs},
		{"review.max_retries", f.Review.MaxRetries},
	} {
		if check.value < 0 {
			return fmt.Errorf("%s: %s must not be negative (got %d)", path, check.name, check.value)
		}
	}

	switch f.Backend.Provider {
	case "", "google", "gemini", "groq", "openai", "ollama":
	default:
		return fmt.Errorf("%s: unknown backend provider %q (valid: google, groq, openai, ollama)", path, f.Backend.Provider)
	}
	return nil
}

// RequestDelay returns the configured pacing interval as a duration.
func (f *File) RequestDelay() time.Duration {
	return time.Duration(f.RequestDelayMs) * time.Millisecond
}

// GlossaryPath resolves the glossary store path against the project
// root.
func (f *File) GlossaryPath(rootDir string) string {
	if filepath.IsAbs(f.Glossary.Path) {
		return f.Glossary.Path
	}
	return filepath.Join(rootDir, f.Glossary.Path)
}
