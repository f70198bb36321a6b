// Package document flattens nested documents into translatable work
// items and rebuilds them afterward.
//
// A document is an arbitrarily nested tree of map[string]any, []any and
// string leaves (other scalar leaves pass through untouched). Extraction
// walks the tree, decides per leaf whether any work is needed, and
// replaces leaves that need translation with opaque ids. Rebuilding
// swaps the ids back for resolved translations while preserving the
// tree's exact shape.
package document

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/packlate/packlate/placeholder"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Item is one unit of translation work: an opaque id and the source
// text it stands for. Items are immutable for the lifetime of a job.
type Item struct {
	ID       string
	Original string
}

// Stats summarizes one extraction pass.
type Stats struct {
	// Leaves is the number of non-empty string leaves visited.
	Leaves int
	// Cached leaves were resolved directly from the translation cache.
	Cached int
	// TokenOnly leaves carry no translatable content.
	TokenOnly int
	// AlreadyTranslated leaves matched the target script heuristic.
	AlreadyTranslated int
	// WorkItems is the number of unique items that need a backend call.
	WorkItems int
}

// ExtractOptions configures one extraction pass.
type ExtractOptions struct {
	// Cache maps raw source text to a known-good translation. Hits are
	// substituted in place and never dispatched.
	Cache map[string]string
	// IsTranslated reports whether a leaf is already in the target
	// language. Defaults to IsKoreanText.
	IsTranslated func(string) bool
	// Protect rewrites a leaf before it becomes a work item, typically
	// substituting placeholder tokens. The cache lookup, script check
	// and deduplication all see the raw leaf; only issued items and
	// token-only leaves carry the protected form. Defaults to the
	// identity.
	Protect func(string) string
}

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

type extractor struct {
	opts    ExtractOptions
	counter int
	items   []Item
	byText  map[string]string // original text -> issued id
	stats   Stats
}

// Extract walks doc and returns a copy with work leaves replaced by
// ids, the work items in first-seen order, and extraction stats.
// Identical leaf strings share one id, so the work set never exceeds
// the number of unique leaves.
func Extract(doc any, opts ExtractOptions) (any, []Item, Stats) {
	if opts.IsTranslated == nil {
		opts.IsTranslated = IsKoreanText
	}
	if opts.Protect == nil {
		opts.Protect = func(s string) string { return s }
	}
	ex := &extractor{opts: opts, byText: make(map[string]string)}
	out := ex.walk(doc)
	ex.stats.WorkItems = len(ex.items)
	return out, ex.items, ex.stats
}

func (ex *extractor) walk(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = ex.walk(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = ex.walk(child)
		}
		return out
	case string:
		return ex.leaf(v)
	default:
		return node
	}
}

func (ex *extractor) leaf(s string) any {
	if strings.TrimSpace(s) == "" {
		return s
	}
	ex.stats.Leaves++

	// Cache and script checks run on the raw leaf so that cached
	// translations keyed by source text keep hitting across jobs.
	if cached, ok := ex.opts.Cache[s]; ok {
		ex.stats.Cached++
		return cached
	}
	if ex.opts.IsTranslated(s) {
		ex.stats.AlreadyTranslated++
		return s
	}
	if id, ok := ex.byText[s]; ok {
		return id
	}

	protected := ex.opts.Protect(s)
	if placeholder.IsTokenOnly(protected) {
		ex.stats.TokenOnly++
		return protected
	}

	ex.counter++
	id := fmt.Sprintf("T%03d", ex.counter)
	ex.byText[s] = id
	ex.items = append(ex.items, Item{ID: id, Original: protected})
	return id
}

// ---------------------------------------------------------------------------
// Rebuilding
// ---------------------------------------------------------------------------

// Rebuild replaces every id leaf with its entry from results. The
// caller must supply an entry for every issued id (falling back to the
// item's original text for unresolved ids) so no raw id survives in
// the output. Non-id leaves pass through untouched.
func Rebuild(doc any, results map[string]string) any {
	return MapLeaves(doc, func(s string) string {
		if text, ok := results[s]; ok {
			return text
		}
		return s
	})
}

// MapLeaves returns a structural copy of doc with fn applied to every
// string leaf. Shape is preserved exactly: same key sets, same slice
// lengths and order.
func MapLeaves(doc any, fn func(string) string) any {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = MapLeaves(child, fn)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = MapLeaves(child, fn)
		}
		return out
	case string:
		return fn(v)
	default:
		return doc
	}
}

// ---------------------------------------------------------------------------
// Script heuristic
// ---------------------------------------------------------------------------

// IsKoreanText reports whether at least 30% of the letters in s are
// Hangul. Leaves that pass are considered already translated and are
// skipped. Strings without letters never pass.
func IsKoreanText(s string) bool {
	letters, hangul := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Hangul, r) {
			hangul++
		}
	}
	if letters == 0 {
		return false
	}
	return float64(hangul)/float64(letters) >= 0.3
}
