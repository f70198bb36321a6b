// Package glossary maintains the terminology dictionary used to keep
// translations consistent.
//
// One glossary is keyed by case-insensitive original term. Terms are
// merged from three sources in priority order: a preset dictionary
// loaded from disk, a dictionary mined from previously translated text
// pairs, and terms extracted by backend analysis calls. Later sources
// only add new meanings, never drop existing ones.
package glossary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MinedContext marks meanings that came from prior translation pairs
// rather than from an analysis call. It is omitted when formatting
// glossary lines for a prompt.
const MinedContext = "existing translation"

// maxMinedTermWords caps mined entries to short phrases.
const maxMinedTermWords = 3

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Meaning is one target-language reading of a term, optionally
// disambiguated by a short context snippet.
type Meaning struct {
	Translation string `json:"translation"`
	Context     string `json:"context,omitempty"`
}

// Term is a source-language word or phrase with its known meanings.
type Term struct {
	Original string    `json:"original"`
	Meanings []Meaning `json:"meanings"`
}

// Glossary is the merged dictionary. Safe for concurrent use: the
// extraction stage adds terms from many workers at once.
type Glossary struct {
	mu    sync.Mutex
	terms map[string]*Term // keyed by lowercased original
	order []string
}

// New returns an empty glossary.
func New() *Glossary {
	return &Glossary{terms: make(map[string]*Term)}
}

// ---------------------------------------------------------------------------
// Merging
// ---------------------------------------------------------------------------

// Add records meanings for original, merging with any existing entry.
// Meanings are deduplicated by normalized translation text, so adding
// the same reading twice is a no-op.
func (g *Glossary) Add(original string, meanings ...Meaning) {
	original = strings.TrimSpace(original)
	if original == "" || len(meanings) == 0 {
		return
	}
	key := strings.ToLower(original)

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.terms[key]
	if !ok {
		entry = &Term{Original: original}
		g.terms[key] = entry
		g.order = append(g.order, key)
	}
	entry.Meanings = mergeMeanings(entry.Meanings, meanings)
}

// Merge adds every term from terms, preserving existing meanings.
func (g *Glossary) Merge(terms []Term) {
	for _, t := range terms {
		g.Add(t.Original, t.Meanings...)
	}
}

// Terms returns all entries in first-added order.
func (g *Glossary) Terms() []Term {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Term, 0, len(g.order))
	for _, key := range g.order {
		entry := g.terms[key]
		meanings := make([]Meaning, len(entry.Meanings))
		copy(meanings, entry.Meanings)
		out = append(out, Term{Original: entry.Original, Meanings: meanings})
	}
	return out
}

// Len reports the number of distinct terms.
func (g *Glossary) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.terms)
}

// mergeMeanings appends new meanings whose normalized translation is
// not already present.
func mergeMeanings(existing, incoming []Meaning) []Meaning {
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[normalizeTranslation(m.Translation)] = true
	}
	merged := existing
	for _, m := range incoming {
		key := normalizeTranslation(m.Translation)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, m)
	}
	return merged
}

// DedupeMeanings removes meanings that repeat an earlier meaning's
// normalized translation, keeping first occurrences.
func DedupeMeanings(meanings []Meaning) []Meaning {
	seen := make(map[string]bool, len(meanings))
	var out []Meaning
	for _, m := range meanings {
		key := normalizeTranslation(m.Translation)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func normalizeTranslation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ---------------------------------------------------------------------------
// Mining
// ---------------------------------------------------------------------------

// MineFromPairs builds terms from known source→target text pairs.
// Only short phrases survive: at most three words, both sides
// non-trivial, and the target side recognizably in the target script
// per isTarget.
func MineFromPairs(pairs map[string]string, isTarget func(string) bool) []Term {
	var terms []Term
	for src, tgt := range pairs {
		src = strings.TrimSpace(src)
		tgt = strings.TrimSpace(tgt)
		if len(src) <= 1 || len(tgt) <= 1 || src == tgt {
			continue
		}
		if len(strings.Fields(src)) > maxMinedTermWords {
			continue
		}
		if !isTarget(tgt) {
			continue
		}
		terms = append(terms, Term{
			Original: src,
			Meanings: []Meaning{{Translation: tgt, Context: MinedContext}},
		})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Original < terms[j].Original })
	return terms
}

// ---------------------------------------------------------------------------
// Prompt shaping
// ---------------------------------------------------------------------------

// FilterRelevant returns only the terms whose original text appears in
// at least one of texts, case-insensitively. Keeping prompts down to
// the terms a chunk actually mentions is what keeps glossary use
// affordable.
func (g *Glossary) FilterRelevant(texts []string) []Term {
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}

	var out []Term
	for _, term := range g.Terms() {
		needle := strings.ToLower(term.Original)
		for _, hay := range lowered {
			if strings.Contains(hay, needle) {
				out = append(out, term)
				break
			}
		}
	}
	return out
}

// FormatForPrompt renders terms as numbered glossary lines. Mined
// meanings print bare; analysis meanings carry their context.
func FormatForPrompt(terms []Term) string {
	if len(terms) == 0 {
		return "No glossary."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "GLOSSARY (%d):\n", len(terms))
	for i, term := range terms {
		var meanings []string
		for _, m := range term.Meanings {
			if m.Context != "" && m.Context != MinedContext {
				meanings = append(meanings, fmt.Sprintf("%s (Context: %s)", m.Translation, m.Context))
			} else {
				meanings = append(meanings, m.Translation)
			}
		}
		fmt.Fprintf(&b, "%d. %s -> %s\n", i+1, term.Original, strings.Join(meanings, " / "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// Load reads a glossary store: a flat JSON list of term records.
// A missing file yields an empty list, not an error.
func Load(path string) ([]Term, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading glossary %s: %w", path, err)
	}
	var terms []Term
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("parsing glossary %s: %w", path, err)
	}
	return terms, nil
}

// Save writes terms to path as an indented JSON list, creating parent
// directories as needed.
func Save(path string, terms []Term) error {
	data, err := json.MarshalIndent(terms, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling glossary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating glossary directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing glossary %s: %w", path, err)
	}
	return nil
}
