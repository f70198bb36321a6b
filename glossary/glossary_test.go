package glossary

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/packlate/packlate/document"
)

// ---------------------------------------------------------------------------
// Merging
// ---------------------------------------------------------------------------

func TestAddMergesCaseInsensitively(t *testing.T) {
	g := New()
	g.Add("Creeper", Meaning{Translation: "크리퍼"})
	g.Add("creeper", Meaning{Translation: "크리퍼 몬스터", Context: "mob"})

	terms := g.Terms()
	if len(terms) != 1 {
		t.Fatalf("terms = %d, want 1", len(terms))
	}
	if terms[0].Original != "Creeper" {
		t.Errorf("original = %q, want first-seen casing", terms[0].Original)
	}
	if len(terms[0].Meanings) != 2 {
		t.Fatalf("meanings = %d, want 2", len(terms[0].Meanings))
	}
}

func TestAddDeduplicatesMeanings(t *testing.T) {
	g := New()
	g.Add("Stone", Meaning{Translation: "돌"})
	g.Add("Stone", Meaning{Translation: "돌"})
	g.Add("Stone", Meaning{Translation: " 돌 "})

	if got := len(g.Terms()[0].Meanings); got != 1 {
		t.Fatalf("meanings = %d, want 1", got)
	}
}

func TestMergeNeverDropsExistingMeanings(t *testing.T) {
	g := New()
	g.Add("Forge", Meaning{Translation: "대장간", Context: "building"})
	g.Merge([]Term{{Original: "forge", Meanings: []Meaning{{Translation: "제련하다", Context: "verb"}}}})

	meanings := g.Terms()[0].Meanings
	if len(meanings) != 2 {
		t.Fatalf("meanings = %d, want 2", len(meanings))
	}
	if meanings[0].Translation != "대장간" {
		t.Errorf("existing meaning displaced: %+v", meanings)
	}
}

func TestDedupeMeanings(t *testing.T) {
	in := []Meaning{
		{Translation: "검"},
		{Translation: "검", Context: "weapon"},
		{Translation: "칼"},
	}
	out := DedupeMeanings(in)
	if len(out) != 2 {
		t.Fatalf("deduped = %d, want 2", len(out))
	}
	if out[0].Translation != "검" || out[1].Translation != "칼" {
		t.Fatalf("order not preserved: %+v", out)
	}
}

// ---------------------------------------------------------------------------
// Mining
// ---------------------------------------------------------------------------

func TestMineFromPairs(t *testing.T) {
	pairs := map[string]string{
		"Iron Ingot":                        "철 주괴",
		"Stone":                             "돌",
		"A very long sentence about mining": "채굴에 관한 아주 긴 문장",
		"x":                                 "짧",
		"Same":                              "Same",
		"Latin only":                        "not korean",
	}

	terms := MineFromPairs(pairs, document.IsKoreanText)

	got := make(map[string]string)
	for _, term := range terms {
		got[term.Original] = term.Meanings[0].Translation
	}
	want := map[string]string{"Iron Ingot": "철 주괴", "Stone": "돌"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mined = %v, want %v", got, want)
	}
	for _, term := range terms {
		if term.Meanings[0].Context != MinedContext {
			t.Errorf("context = %q, want %q", term.Meanings[0].Context, MinedContext)
		}
	}
}

// ---------------------------------------------------------------------------
// Prompt shaping
// ---------------------------------------------------------------------------

func TestFilterRelevant(t *testing.T) {
	g := New()
	g.Add("Creeper", Meaning{Translation: "크리퍼"})
	g.Add("Redstone", Meaning{Translation: "레드스톤"})
	g.Add("Nether", Meaning{Translation: "네더"})

	texts := []string{"A creeper appears!", "Powered by redstone dust"}
	relevant := g.FilterRelevant(texts)

	if len(relevant) != 2 {
		t.Fatalf("relevant = %d, want 2: %+v", len(relevant), relevant)
	}
	for _, term := range relevant {
		if term.Original == "Nether" {
			t.Fatalf("irrelevant term included: %+v", relevant)
		}
	}
}

func TestFormatForPrompt(t *testing.T) {
	terms := []Term{
		{Original: "Stone", Meanings: []Meaning{{Translation: "돌", Context: MinedContext}}},
		{Original: "Forge", Meanings: []Meaning{
			{Translation: "대장간", Context: "building"},
			{Translation: "제련하다"},
		}},
	}

	got := FormatForPrompt(terms)

	if !strings.HasPrefix(got, "GLOSSARY (2):") {
		t.Errorf("header missing: %q", got)
	}
	if !strings.Contains(got, "1. Stone -> 돌") {
		t.Errorf("mined meaning should print bare: %q", got)
	}
	if !strings.Contains(got, "2. Forge -> 대장간 (Context: building) / 제련하다") {
		t.Errorf("contexted meaning malformed: %q", got)
	}
}

func TestFormatForPromptEmpty(t *testing.T) {
	if got := FormatForPrompt(nil); got != "No glossary." {
		t.Fatalf("got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.json")
	terms := []Term{
		{Original: "Anvil", Meanings: []Meaning{{Translation: "모루"}}},
		{Original: "Creeper", Meanings: []Meaning{{Translation: "크리퍼", Context: "mob"}}},
	}

	if err := Save(path, terms); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, terms) {
		t.Fatalf("round trip mismatch:\n  saved  %+v\n  loaded %+v", terms, loaded)
	}
}

func TestLoadMissingFile(t *testing.T) {
	terms, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if terms != nil {
		t.Fatalf("terms = %+v, want nil", terms)
	}
}
