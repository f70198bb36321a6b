package pipeline

import (
	"fmt"
	"strings"

	"github.com/packlate/packlate/dispatch"
	"github.com/packlate/packlate/document"
	"github.com/packlate/packlate/glossary"
	"github.com/packlate/packlate/placeholder"
)

// ---------------------------------------------------------------------------
// Prompt builders
// ---------------------------------------------------------------------------

const translateSystem = `You are a professional translator. Translate every given item into %s.
Respond with a JSON array only: [{"id": "...", "translated": "..."}], one object per item.

Rules:
- Never change an item's id, and never put an id inside a translation.
- Translate every item completely; empty translations and untouched source text are forbidden.
- Never delete, modify or translate placeholders like [P007], [NEWLINE] or [S3]; keep each one in its natural position.
- The "(Context: ...)" notes in the glossary are for disambiguation only; never copy them into a translation.
- Do not add the source text in parentheses after a translation.`

const retrySystem = `You are a professional translator. These items failed translation before; this time every one must succeed.
Respond with a JSON array only: [{"id": "...", "translated": "..."}], one object per item.

Rules:
- Never change an item's id, and never put an id inside a translation.
- Translate every item into %s; do not give up on difficult terms, use the glossary or the meaning.
- Never delete, modify or translate placeholders like [P007], [NEWLINE] or [S3].
- Do not add the source text in parentheses after a translation.`

const fallbackSystem = `You are a translation expert. The following text previously failed translation or lost placeholders.
Respond with a JSON array only: [{"id": "%s", "translated": "..."}] containing exactly one object.

Rules:
- The translation must contain every placeholder listed below, with matching counts, in a natural position.
- Never add placeholders that are not listed.
- Never include the id in the translation text.
- An empty translation or one identical to the source is not acceptable.`

const termsSystem = `You are a terminology analyst. Extract domain terms from the given source texts and translate each into %s.
Respond with a JSON array only: [{"term": "...", "translation": "...", "context": "..."}].
Pick short nouns and noun phrases that should be translated consistently; context is a few words describing where the term appears.
Skip placeholders like [P007] or [NEWLINE]; they are not terms.`

const reviewSystem = `You are a translation quality reviewer. Review each original/translated pair for defects.
Respond with a JSON array only: [{"text_id": "...", "issue_type": "...", "severity": "...", "description": "...", "suggested_fix": "..."}].
Return an empty array when nothing is wrong.

Criteria: meaning fidelity, naturalness in %s, placeholder preservation ([P007], [NEWLINE], [S3] must survive untouched), terminology consistency, grammar.
Severity is "low", "medium" or "high"; placeholder loss and meaning distortion are always "high".`

const requalifySystem = `You are a professional translator. The items below were flagged in quality review and must be retranslated into %s.
Respond with a JSON array only: [{"id": "...", "translated": "..."}], one object per item.

Rules:
- Resolve every listed issue; use a suggested fix when one is given.
- Never change an item's id.
- Never delete, modify or translate placeholders like [P007], [NEWLINE] or [S3].
- The previous translation is shown for reference; produce a better one, not a copy.`

func translatePrompt(lang string, terms []glossary.Term, items []document.Item) (string, string) {
	var b strings.Builder
	b.WriteString(glossary.FormatForPrompt(terms))
	b.WriteString("\n\n")
	b.WriteString(formatItems(items))
	return fmt.Sprintf(translateSystem, lang), b.String()
}

func retryPrompt(lang string, terms []glossary.Term, items []document.Item) (string, string) {
	var b strings.Builder
	b.WriteString(glossary.FormatForPrompt(terms))
	b.WriteString("\n\n")
	b.WriteString(formatItems(items))
	return fmt.Sprintf(retrySystem, lang), b.String()
}

func fallbackPrompt(lang string, terms []glossary.Term, item document.Item) (string, string) {
	required := placeholder.TokensIn(item.Original)
	list := "none"
	if len(required) > 0 {
		list = strings.Join(required, " ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target language: %s\n", lang)
	fmt.Fprintf(&b, "Required placeholders: %s\n\n", list)
	fmt.Fprintf(&b, "Source text:\n```\n%s\n```\n\n", item.Original)
	b.WriteString(glossary.FormatForPrompt(terms))
	return fmt.Sprintf(fallbackSystem, item.ID), b.String()
}

func termsPrompt(lang string, items []document.Item) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "SOURCE TEXTS (%d):\n", len(items))
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.Original)
	}
	return fmt.Sprintf(termsSystem, lang), b.String()
}

func reviewPrompt(lang string, pairs []reviewPair) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "PAIRS (%d):\n", len(pairs))
	for i, p := range pairs {
		fmt.Fprintf(&b, "%d. [%s]\noriginal:\n```\n%s\n```\ntranslated:\n```\n%s\n```\n\n", i+1, p.ID, p.Original, p.Translated)
	}
	return fmt.Sprintf(reviewSystem, lang), strings.TrimRight(b.String(), "\n")
}

func requalifyPrompt(lang string, terms []glossary.Term, flagged []flaggedItem) (string, string) {
	var b strings.Builder
	b.WriteString(glossary.FormatForPrompt(terms))
	fmt.Fprintf(&b, "\n\nITEMS (%d):\n", len(flagged))
	for i, f := range flagged {
		fmt.Fprintf(&b, "%d. [%s]\noriginal:\n```\n%s\n```\nprevious translation:\n```\n%s\n```\nissues:\n", i+1, f.ID, f.Original, f.Translated)
		for _, issue := range f.Issues {
			fmt.Fprintf(&b, "- [%s/%s] %s", issue.IssueType, issue.Severity, issue.Description)
			if issue.SuggestedFix != "" {
				fmt.Fprintf(&b, " (fix: %s)", issue.SuggestedFix)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return fmt.Sprintf(requalifySystem, lang), strings.TrimRight(b.String(), "\n")
}

// formatItems renders a chunk the way every translation prompt expects.
func formatItems(items []document.Item) string {
	if len(items) == 0 {
		return "No items."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "TEXTS (%d):\n", len(items))
	for i, it := range items {
		fmt.Fprintf(&b, "%d. [%s]\n```\n%s\n```\n\n", i+1, it.ID, it.Original)
	}
	return strings.TrimRight(b.String(), "\n")
}

// flaggedItem pairs an item with the quality issues recorded against it.
type flaggedItem struct {
	ID         string
	Original   string
	Translated string
	Issues     []dispatch.IssueRecord
}

// reviewPair is one original/translated pair submitted for review.
type reviewPair struct {
	ID         string
	Original   string
	Translated string
}
