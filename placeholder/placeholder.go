// Package placeholder protects non-translatable substrings.
//
// Before a string is sent for translation, every substring that must
// survive byte-for-byte (format codes, printf arguments, embedded
// serialized fragments, resource references, markup) is replaced by an
// opaque token. After translation the tokens are swapped back for the
// original literals. Tokens come in three forms:
//
//	[P007]     numbered token, one per protected occurrence, job-scoped
//	[NEWLINE]  reserved token for line breaks
//	[S3]       reserved token for a run of 3 spaces
//
// Numbered tokens are restored in descending numeric order so that a
// lower-numbered token's literal can never collide with the text of a
// higher-numbered token.
package placeholder

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Kinds
// ---------------------------------------------------------------------------

// Kind classifies what a protected literal is.
type Kind string

const (
	KindFormatCode Kind = "format-code"
	KindArg        Kind = "templated-arg"
	KindFragment   Kind = "structured-fragment"
	KindNewline    Kind = "newline"
	KindWhitespace Kind = "whitespace-run"
	KindTag        Kind = "tag"
)

// Placeholder is one protected substring: the token that stands in for
// it and the literal text it restores to.
type Placeholder struct {
	Token   string
	Literal string
	Kind    Kind
}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

var (
	// Serialized object/array spans. Quoted strings inside the span may
	// contain arbitrary text; bare runs are limited to structural
	// characters, numbers and JSON literal letters.
	reFragment = regexp.MustCompile(`[{\[](?:[,:{}\[\]0-9.\-+Eaeflnr-u \n\r\t]|"[^"]*")+[}\]]`)

	// printf-style arguments: %s, %d, %1$s, %2$d.
	rePrintfArg = regexp.MustCompile(`%(?:[0-9]+\$[sd]|[sd])`)

	// Legacy percent-delimited variables: %username%.
	reLegacyVar = regexp.MustCompile(`%[a-zA-Z_][a-zA-Z0-9_]*%`)

	// Shell/function-style references: $(...).
	reItemRef = regexp.MustCompile(`\$\([^)]*\)`)

	// Embedded image directives: {image:path width:32}.
	reImageRef = regexp.MustCompile(`\{image:[^}]+\}`)

	// namespace:path resource references, bare or wrapped in {} / [].
	reResourceRef = regexp.MustCompile(`\{[a-zA-Z_0-9]+[:.][a-zA-Z_0-9/.]+\}|\[[a-zA-Z_0-9]+[:.][0-9a-zA-Z_]+(?:[./][0-9a-zA-Z_]+)*\]|[a-zA-Z_0-9]+[:.][0-9a-zA-Z_]+(?:[./][0-9a-zA-Z_]+)*`)

	// Inline styling codes: §a, &l.
	reFormatCode = regexp.MustCompile(`[§&][0-9a-fk-or]`)

	// HTML-like tags.
	reHTMLTag = regexp.MustCompile(`<[^>]*>`)

	// ${...} interpolation and {{...}} template spans.
	reInterp   = regexp.MustCompile(`\$\{[^}]+\}`)
	reMustache = regexp.MustCompile(`\{\{[^}]+\}\}`)

	// Bare template arguments: {player}.
	reBraceArg = regexp.MustCompile(`\{[A-Za-z0-9_]+\}`)

	// Square-bracket tags: [Note]. The shape overlaps this package's
	// own tokens, so issue skips matches that are already tokens.
	reSquareTag = regexp.MustCompile(`\[[A-Za-z0-9_]+\]`)

	// Leading space run, or any interior run of two or more spaces.
	reSpaceRun = regexp.MustCompile(`^ +| {2,}`)

	// Tokens this package itself issues.
	reNumberedToken = regexp.MustCompile(`\[P\d{3,}\]`)
	reNewlineToken  = regexp.MustCompile(`\[NEWLINE\]`)
	reSpaceToken    = regexp.MustCompile(`\[S\d+\]`)
)

// pattern pairs a regexp with the kind its matches are recorded under.
// Order matters: earlier patterns win, so a serialized fragment that
// contains a printf argument is protected as one unit.
var patterns = []struct {
	re   *regexp.Regexp
	kind Kind
}{
	{reFragment, KindFragment},
	{rePrintfArg, KindArg},
	{reLegacyVar, KindArg},
	{reItemRef, KindTag},
	{reInterp, KindArg},
	{reMustache, KindArg},
	{reImageRef, KindTag},
	{reResourceRef, KindTag},
	{reFormatCode, KindFormatCode},
	{reHTMLTag, KindTag},
	{reBraceArg, KindArg},
	{reSquareTag, KindTag},
}

// ---------------------------------------------------------------------------
// Protector
// ---------------------------------------------------------------------------

// Protector issues tokens for one job and remembers the token→literal
// mapping needed to undo them. It is not safe for concurrent use; the
// extraction stage runs single-threaded.
type Protector struct {
	counter int
	entries map[string]Placeholder
	order   []string
}

// NewProtector returns an empty protector. Token numbering starts at
// [P001] and is scoped to this protector.
func NewProtector() *Protector {
	return &Protector{entries: make(map[string]Placeholder)}
}

// Protect replaces every protected substring in text with a token and
// records the mapping. Fragments are handled before line breaks so a
// fragment keeps its raw newlines inside its literal.
func (p *Protector) Protect(text string) string {
	if text == "" {
		return text
	}

	text = reFragment.ReplaceAllStringFunc(text, func(m string) string {
		return p.issue(m, KindFragment)
	})

	text = p.protectNewlines(text)
	text = p.protectSpaceRuns(text)

	for _, pat := range patterns[1:] {
		text = pat.re.ReplaceAllStringFunc(text, func(m string) string {
			if isInternalToken(m) {
				return m
			}
			return p.issue(m, pat.kind)
		})
	}
	return text
}

// isInternalToken reports whether s is exactly one token this package
// issues. Tokens already substituted into the text must never be
// protected a second time.
func isInternalToken(s string) bool {
	for _, re := range []*regexp.Regexp{reNumberedToken, reNewlineToken, reSpaceToken} {
		if re.FindString(s) == s {
			return true
		}
	}
	return false
}

// protectNewlines swaps every line-break style for the reserved
// [NEWLINE] token. All styles restore to "\n".
func (p *Protector) protectNewlines(text string) string {
	if !strings.ContainsAny(text, "\r\n") {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "[NEWLINE]")
	text = strings.ReplaceAll(text, "\r", "[NEWLINE]")
	text = strings.ReplaceAll(text, "\n", "[NEWLINE]")
	p.record(Placeholder{Token: "[NEWLINE]", Literal: "\n", Kind: KindNewline})
	return text
}

// protectSpaceRuns tokenizes leading space runs and interior runs of
// two or more spaces as [S<n>], where n is the run length.
func (p *Protector) protectSpaceRuns(text string) string {
	return reSpaceRun.ReplaceAllStringFunc(text, func(m string) string {
		tok := fmt.Sprintf("[S%d]", len(m))
		p.record(Placeholder{Token: tok, Literal: m, Kind: KindWhitespace})
		return tok
	})
}

// issue assigns the next numbered token to literal and records it.
func (p *Protector) issue(literal string, kind Kind) string {
	p.counter++
	tok := fmt.Sprintf("[P%03d]", p.counter)
	p.record(Placeholder{Token: tok, Literal: literal, Kind: kind})
	return tok
}

func (p *Protector) record(ph Placeholder) {
	if _, ok := p.entries[ph.Token]; ok {
		return
	}
	p.entries[ph.Token] = ph
	p.order = append(p.order, ph.Token)
}

// Restore substitutes every known token in text back to its literal.
// Reserved tokens go first; numbered tokens follow in descending
// numeric order.
func (p *Protector) Restore(text string) string {
	if text == "" || len(p.entries) == 0 {
		return text
	}

	for _, tok := range p.order {
		ph := p.entries[tok]
		if ph.Kind == KindNewline || ph.Kind == KindWhitespace {
			text = strings.ReplaceAll(text, ph.Token, ph.Literal)
		}
	}

	numbered := make([]Placeholder, 0, len(p.order))
	for _, tok := range p.order {
		ph := p.entries[tok]
		if ph.Kind != KindNewline && ph.Kind != KindWhitespace {
			numbered = append(numbered, ph)
		}
	}
	sort.Slice(numbered, func(i, j int) bool {
		return tokenNumber(numbered[i].Token) > tokenNumber(numbered[j].Token)
	})
	for _, ph := range numbered {
		text = strings.ReplaceAll(text, ph.Token, ph.Literal)
	}
	return text
}

// Tokens returns every recorded placeholder in issue order.
func (p *Protector) Tokens() []Placeholder {
	out := make([]Placeholder, 0, len(p.order))
	for _, tok := range p.order {
		out = append(out, p.entries[tok])
	}
	return out
}

// Count reports how many distinct tokens have been issued.
func (p *Protector) Count() int { return len(p.entries) }

func tokenNumber(tok string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(tok, "[P"), "]"))
	if err != nil {
		return -1
	}
	return n
}

// ---------------------------------------------------------------------------
// Token inspection
// ---------------------------------------------------------------------------

// TokensIn returns every internal token occurrence in text, duplicates
// included, in no particular order.
func TokensIn(text string) []string {
	var out []string
	out = append(out, reNumberedToken.FindAllString(text, -1)...)
	out = append(out, reNewlineToken.FindAllString(text, -1)...)
	out = append(out, reSpaceToken.FindAllString(text, -1)...)
	return out
}

// ValidatePreservation reports whether translated carries exactly the
// same multiset of tokens as original.
func ValidatePreservation(original, translated string) bool {
	a := TokensIn(original)
	b := TokensIn(translated)
	if len(a) != len(b) {
		return false
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Missing returns the tokens present in original but absent from
// translated, deduplicated.
func Missing(original, translated string) []string {
	have := make(map[string]bool)
	for _, tok := range TokensIn(translated) {
		have[tok] = true
	}
	var missing []string
	seen := make(map[string]bool)
	for _, tok := range TokensIn(original) {
		if !have[tok] && !seen[tok] {
			missing = append(missing, tok)
			seen[tok] = true
		}
	}
	return missing
}

// IsTokenOnly reports whether text consists of nothing but internal
// tokens and surrounding whitespace. Such strings have no translatable
// content and are excluded from the work set. Empty strings are not
// token-only.
func IsTokenOnly(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	stripped := reNumberedToken.ReplaceAllString(text, "")
	stripped = reNewlineToken.ReplaceAllString(stripped, "")
	stripped = reSpaceToken.ReplaceAllString(stripped, "")
	return strings.TrimSpace(stripped) == ""
}
