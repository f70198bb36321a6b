package pipeline

import (
	"strings"

	"github.com/packlate/packlate/document"
	"github.com/packlate/packlate/placeholder"
)

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// unresolvedReason labels why an item failed validation. Reasons feed
// logs and the retry summary; every reason takes the same retry path.
type unresolvedReason string

const (
	reasonMissing        unresolvedReason = "missing result"
	reasonEmpty          unresolvedReason = "empty translation"
	reasonIDEcho         unresolvedReason = "id echoed back"
	reasonTokenMismatch  unresolvedReason = "placeholder mismatch"
	reasonIdenticalToSrc unresolvedReason = "identical to source"
)

// identityLengthThreshold is the source length above which an unchanged
// result counts as an untranslated passthrough. Short strings are often
// legitimately identical (proper nouns, codes), so they pass.
const identityLengthThreshold = 3

type unresolvedItem struct {
	document.Item
	Reason unresolvedReason
}

// classify splits items into resolved and unresolved against the
// current translation map. An item is resolved only when a result
// exists, is non-empty, is not the opaque id, carries the exact
// placeholder-token multiset of the original, and is not an
// untranslated passthrough.
func classify(items []document.Item, translations map[string]string) (resolved int, unresolved []unresolvedItem) {
	for _, item := range items {
		reason, ok := checkItem(item, translations)
		if ok {
			resolved++
			continue
		}
		unresolved = append(unresolved, unresolvedItem{Item: item, Reason: reason})
	}
	return resolved, unresolved
}

func checkItem(item document.Item, translations map[string]string) (unresolvedReason, bool) {
	translated, ok := translations[item.ID]
	if !ok {
		return reasonMissing, false
	}
	translated = strings.TrimSpace(translated)
	original := strings.TrimSpace(item.Original)

	switch {
	case translated == "" && original != "":
		return reasonEmpty, false
	case translated == item.ID:
		return reasonIDEcho, false
	case !placeholder.ValidatePreservation(original, translated):
		return reasonTokenMismatch, false
	case placeholder.IsTokenOnly(original):
		// Token-only originals are legitimately unchanged.
		return "", true
	case translated == original && len(original) > identityLengthThreshold:
		return reasonIdenticalToSrc, false
	}
	return "", true
}

// acceptable reports whether a retry result may replace the current
// entry for item: non-empty, not the id, token multiset intact.
func acceptable(item document.Item, translated string) bool {
	translated = strings.TrimSpace(translated)
	if translated == "" || translated == item.ID {
		return false
	}
	return placeholder.ValidatePreservation(strings.TrimSpace(item.Original), translated)
}

// reasonCounts aggregates unresolved items per reason for logging.
func reasonCounts(items []unresolvedItem) map[unresolvedReason]int {
	counts := make(map[unresolvedReason]int)
	for _, it := range items {
		counts[it.Reason]++
	}
	return counts
}
