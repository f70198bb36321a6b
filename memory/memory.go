// Package memory implements packlate.lock — a translation memory that
// records MD5 checksums of source strings together with their accepted
// translations, per target language. This enables incremental runs:
// leaves whose source text is unchanged since the last run are resolved
// from the memory and never sent to the AI backend, saving tokens and
// time.
//
// The file is stored in the project root as packlate.lock.
package memory

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the default translation memory file name.
const FileName = "packlate.lock"

// Version is the memory file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Entry is one remembered translation. The source text is kept
// alongside the translation so the memory can be turned back into a
// source-keyed cache.
type Entry struct {
	Source      string `yaml:"source"`
	Translation string `yaml:"translation"`
}

// File represents the packlate.lock structure.
type File struct {
	Version   int                         `yaml:"version"`
	Languages map[string]map[string]Entry `yaml:"languages"` // lang -> md5(source) -> entry

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a translation memory from the given directory.
// Returns an empty memory if the file doesn't exist.
func Load(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	f := &File{
		Version:   Version,
		Languages: make(map[string]map[string]Entry),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.path = path

	if f.Languages == nil {
		f.Languages = make(map[string]map[string]Entry)
	}

	return f, nil
}

// Save writes the translation memory to disk.
func (f *File) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.path == "" {
		return fmt.Errorf("memory file path not set")
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling translation memory: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}

	return nil
}

// Path returns the memory file path.
func (f *File) Path() string {
	return f.path
}

// ---------------------------------------------------------------------------
// Lookup and update
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// Get returns the remembered translation for a source string, if any.
func (f *File) Get(lang, source string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, ok := f.Languages[lang]
	if !ok {
		return "", false
	}
	e, ok := entries[Hash(source)]
	if !ok {
		return "", false
	}
	return e.Translation, true
}

// Set records a translation for a source string.
func (f *File) Set(lang, source, translation string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(lang, source, translation)
}

// SetBatch records translations for multiple source strings at once.
// The input is a map of source -> translation.
func (f *File) SetBatch(lang string, pairs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for source, translation := range pairs {
		f.setLocked(lang, source, translation)
	}
}

func (f *File) setLocked(lang, source, translation string) {
	if f.Languages[lang] == nil {
		f.Languages[lang] = make(map[string]Entry)
	}
	f.Languages[lang][Hash(source)] = Entry{Source: source, Translation: translation}
}

// CacheFor returns the memory for one language as a source-keyed map,
// ready to feed extraction.
func (f *File) CacheFor(lang string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.Languages[lang]
	if len(entries) == 0 {
		return nil
	}
	cache := make(map[string]string, len(entries))
	for _, e := range entries {
		cache[e.Source] = e.Translation
	}
	return cache
}

// Clean removes entries whose source is no longer present in the
// current set. This prevents stale entries from accumulating.
func (f *File) Clean(lang string, currentSources []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.Languages[lang]
	if existing == nil {
		return
	}

	valid := make(map[string]bool, len(currentSources))
	for _, s := range currentSources {
		valid[Hash(s)] = true
	}

	for h := range existing {
		if !valid[h] {
			delete(existing, h)
		}
	}
}

// Forget removes all entries for a language.
func (f *File) Forget(lang string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Languages, lang)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of languages and total entries in the memory.
func (f *File) Stats() (languages, entries int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	languages = len(f.Languages)
	for _, m := range f.Languages {
		entries += len(m)
	}
	return
}

// LanguageNames returns the sorted list of languages with entries.
func (f *File) LanguageNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	langs := make([]string, 0, len(f.Languages))
	for l := range f.Languages {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Summary returns a human-readable summary string.
func (f *File) Summary() string {
	languages, entries := f.Stats()
	if languages == 0 {
		return "empty"
	}

	var parts []string
	for _, l := range f.LanguageNames() {
		parts = append(parts, fmt.Sprintf("%s: %d entries", l, len(f.Languages[l])))
	}
	return fmt.Sprintf("%d languages, %d entries (%s)", languages, entries, strings.Join(parts, ", "))
}
