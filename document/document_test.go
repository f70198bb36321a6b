package document

import (
	"reflect"
	"testing"

	"github.com/packlate/packlate/placeholder"
)

// ---------------------------------------------------------------------------
// Extract
// ---------------------------------------------------------------------------

func TestExtractAssignsIDs(t *testing.T) {
	doc := map[string]any{
		"title": "Iron Sword",
		"lore":  []any{"Sharp blade", "Forged in fire"},
	}

	out, items, stats := Extract(doc, ExtractOptions{})

	if stats.WorkItems != 3 {
		t.Fatalf("work items = %d, want 3", stats.WorkItems)
	}
	if stats.Leaves != 3 {
		t.Fatalf("leaves = %d, want 3", stats.Leaves)
	}

	ids := make(map[string]bool)
	for _, it := range items {
		if ids[it.ID] {
			t.Fatalf("duplicate id %q", it.ID)
		}
		ids[it.ID] = true
	}

	m := out.(map[string]any)
	if !ids[m["title"].(string)] {
		t.Errorf("title leaf %q is not an issued id", m["title"])
	}
	lore := m["lore"].([]any)
	if len(lore) != 2 {
		t.Fatalf("lore length = %d, want 2", len(lore))
	}
}

func TestExtractDeduplicatesIdenticalLeaves(t *testing.T) {
	doc := []any{"Stone", "Stone", "Stone"}

	out, items, _ := Extract(doc, ExtractOptions{})

	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	leaves := out.([]any)
	for i, leaf := range leaves {
		if leaf != items[0].ID {
			t.Errorf("leaf %d = %v, want shared id %q", i, leaf, items[0].ID)
		}
	}
}

func TestExtractCacheShortCircuit(t *testing.T) {
	doc := map[string]any{"a": "Stone"}
	cache := map[string]string{"Stone": "돌"}

	out, items, stats := Extract(doc, ExtractOptions{Cache: cache})

	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
	if stats.Cached != 1 {
		t.Fatalf("cached = %d, want 1", stats.Cached)
	}
	if got := out.(map[string]any)["a"]; got != "돌" {
		t.Fatalf("leaf = %v, want 돌", got)
	}
}

func TestExtractCacheHitsRawTextBeforeProtection(t *testing.T) {
	// The cache is keyed by raw source text, so a leaf must hit it
	// before placeholder tokens are substituted in.
	doc := map[string]any{"a": "Hello %s!", "b": "Bye %s!"}
	cache := map[string]string{"Hello %s!": "안녕 %s!"}
	protector := placeholder.NewProtector()

	out, items, stats := Extract(doc, ExtractOptions{
		Cache:   cache,
		Protect: protector.Protect,
	})

	if stats.Cached != 1 {
		t.Fatalf("cached = %d, want 1", stats.Cached)
	}
	if got := out.(map[string]any)["a"]; got != "안녕 %s!" {
		t.Fatalf("cached leaf = %v, want 안녕 %%s!", got)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Original != "Bye [P001]!" {
		t.Fatalf("work item = %q, want protected text", items[0].Original)
	}
}

func TestExtractDeduplicatesProtectedLeaves(t *testing.T) {
	// Identical raw leaves share one id and one set of tokens even
	// though per-occurrence numbering would otherwise diverge.
	doc := []any{"Hit %s!", "Hit %s!"}
	protector := placeholder.NewProtector()

	out, items, _ := Extract(doc, ExtractOptions{Protect: protector.Protect})

	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Original != "Hit [P001]!" {
		t.Fatalf("item = %q", items[0].Original)
	}
	leaves := out.([]any)
	if leaves[0] != items[0].ID || leaves[1] != items[0].ID {
		t.Fatalf("leaves = %v, want shared id %q", leaves, items[0].ID)
	}
	if protector.Count() != 1 {
		t.Fatalf("token count = %d, want 1", protector.Count())
	}
}

func TestExtractSkipsTokenOnlyLeaves(t *testing.T) {
	doc := map[string]any{"sep": "[P001]", "nl": "[NEWLINE]"}

	out, items, stats := Extract(doc, ExtractOptions{})

	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
	if stats.TokenOnly != 2 {
		t.Fatalf("token-only = %d, want 2", stats.TokenOnly)
	}
	if !reflect.DeepEqual(out, doc) {
		t.Fatalf("token-only leaves changed: %v", out)
	}
}

func TestExtractSkipsAlreadyTranslated(t *testing.T) {
	doc := map[string]any{"a": "이미 번역된 텍스트", "b": "Needs work"}

	_, items, stats := Extract(doc, ExtractOptions{})

	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Original != "Needs work" {
		t.Fatalf("item = %q", items[0].Original)
	}
	if stats.AlreadyTranslated != 1 {
		t.Fatalf("already translated = %d, want 1", stats.AlreadyTranslated)
	}
}

func TestExtractIgnoresBlankAndNonStringLeaves(t *testing.T) {
	doc := map[string]any{
		"empty":  "",
		"spaces": "   ",
		"count":  float64(42),
		"flag":   true,
		"null":   nil,
	}

	out, items, stats := Extract(doc, ExtractOptions{})

	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
	if stats.Leaves != 0 {
		t.Fatalf("leaves = %d, want 0", stats.Leaves)
	}
	if !reflect.DeepEqual(out, doc) {
		t.Fatalf("doc changed: %v", out)
	}
}

// ---------------------------------------------------------------------------
// Rebuild
// ---------------------------------------------------------------------------

func TestRebuildShapePreservation(t *testing.T) {
	doc := map[string]any{
		"name": "Copper Pickaxe",
		"tags": []any{"tool", "mining", float64(7)},
		"meta": map[string]any{"rarity": "rare"},
	}

	processed, items, _ := Extract(doc, ExtractOptions{})

	results := make(map[string]string)
	for _, it := range items {
		results[it.ID] = "번역:" + it.Original
	}
	out := Rebuild(processed, results)

	m := out.(map[string]any)
	if m["name"] != "번역:Copper Pickaxe" {
		t.Errorf("name = %v", m["name"])
	}
	tags := m["tags"].([]any)
	if len(tags) != 3 {
		t.Fatalf("tags length = %d, want 3", len(tags))
	}
	if tags[2] != float64(7) {
		t.Errorf("numeric leaf changed: %v", tags[2])
	}
	meta := m["meta"].(map[string]any)
	if meta["rarity"] != "번역:rare" {
		t.Errorf("nested leaf = %v", meta["rarity"])
	}
}

func TestRebuildFallsBackThroughResults(t *testing.T) {
	// Unresolved ids are mapped to their original text by the caller;
	// Rebuild must apply whatever the results map says and leave
	// unrelated leaves alone.
	processed := map[string]any{"a": "T001", "b": "untouched"}
	out := Rebuild(processed, map[string]string{"T001": "Original text"})

	m := out.(map[string]any)
	if m["a"] != "Original text" {
		t.Errorf("a = %v", m["a"])
	}
	if m["b"] != "untouched" {
		t.Errorf("b = %v", m["b"])
	}
}

func TestMapLeaves(t *testing.T) {
	doc := []any{"a", map[string]any{"k": "b"}, float64(1)}
	out := MapLeaves(doc, func(s string) string { return s + "!" })

	want := []any{"a!", map[string]any{"k": "b!"}, float64(1)}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}
}

// ---------------------------------------------------------------------------
// Script heuristic
// ---------------------------------------------------------------------------

func TestIsKoreanText(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"안녕하세요", true},
		{"안녕 hi", true},
		{"돌 Stone", false},
		{"Stone", false},
		{"", false},
		{"1234 %s", false},
		{"Iron 검", false},
	}

	for _, tc := range tests {
		if got := IsKoreanText(tc.in); got != tc.want {
			t.Errorf("IsKoreanText(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
