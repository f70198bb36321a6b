package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultOutputPath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain json", "en_us.json", "en_us.translated.json"},
		{"with directory", "lang/en_us.json", "lang/en_us.translated.json"},
		{"no extension", "strings", "strings.translated"},
	}

	for _, tc := range tests {
		if got := defaultOutputPath(tc.input); got != tc.want {
			t.Fatalf("%s: defaultOutputPath(%q) = %q, want %q", tc.name, tc.input, got, tc.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("shortID() = %q, want %q", got, "01234567")
	}
	if got := shortID("cli"); got != "cli" {
		t.Fatalf("shortID(cli) = %q, want unchanged", got)
	}
}

func TestReadCache(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty path", func(t *testing.T) {
		cache, err := readCache("")
		if err != nil || cache != nil {
			t.Fatalf("readCache(\"\") = %v, %v", cache, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		cache, err := readCache(filepath.Join(dir, "missing.json"))
		if err != nil || cache != nil {
			t.Fatalf("readCache(missing) = %v, %v", cache, err)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "cache.json")
		if err := os.WriteFile(path, []byte(`{"Stone": "돌"}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		cache, err := readCache(path)
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if cache["Stone"] != "돌" {
			t.Fatalf("cache = %v", cache)
		}
	})

	t.Run("broken file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := readCache(path); err == nil {
			t.Fatal("expected error for broken cache file")
		}
	})
}

func TestCollectLeafPairs(t *testing.T) {
	src := map[string]any{
		"greeting": "Hello",
		"nested":   map[string]any{"items": []any{"Stone", "Sword"}},
		"blank":    "  ",
		"same":     "OK",
		"count":    float64(3),
	}
	dst := map[string]any{
		"greeting": "안녕하세요",
		"nested":   map[string]any{"items": []any{"돌", "검"}},
		"blank":    "  ",
		"same":     "OK",
		"count":    float64(3),
	}

	pairs := collectLeafPairs(src, dst)
	want := map[string]string{
		"Hello": "안녕하세요",
		"Stone": "돌",
		"Sword": "검",
	}
	if len(pairs) != len(want) {
		t.Fatalf("pairs = %v", pairs)
	}
	for s, tr := range want {
		if pairs[s] != tr {
			t.Errorf("pairs[%q] = %q, want %q", s, pairs[s], tr)
		}
	}
}

func TestReadWriteJSONDocumentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	doc := map[string]any{
		"greeting": "안녕하세요",
		"nested":   map[string]any{"items": []any{"돌", float64(3)}},
	}
	if err := writeJSONDocument(path, doc); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := readJSONDocument(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("document type = %T", got)
	}
	if m["greeting"] != "안녕하세요" {
		t.Fatalf("greeting = %v", m["greeting"])
	}
}

func TestReadJSONDocumentErrors(t *testing.T) {
	if _, err := readJSONDocument(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readJSONDocument(path); err == nil {
		t.Fatal("expected error for broken JSON")
	}
}
