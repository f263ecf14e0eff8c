package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonicalizer turns a noisy name into its comparison form. The output of
// Canonicalize is a fixed point: canonicalizing it again returns it unchanged.
type Canonicalizer struct {
	suffixes map[string]struct{}
}

// NewCanonicalizer creates a canonicalizer that strips the given trailing words.
func NewCanonicalizer(suffixes []string) *Canonicalizer {
	c := &Canonicalizer{suffixes: make(map[string]struct{}, len(suffixes))}
	for _, s := range suffixes {
		// Suffixes go through the same folding as names so "Inc." matches "inc".
		for _, w := range strings.Fields(foldWords(s)) {
			c.suffixes[w] = struct{}{}
		}
	}
	return c
}

// Canonicalize case-folds, strips diacritics and punctuation, collapses
// whitespace and removes trailing corporate/branch suffix words. The last
// remaining word is never stripped.
func (c *Canonicalizer) Canonicalize(raw string) string {
	words := strings.Fields(foldWords(raw))
	for len(words) > 1 {
		if _, ok := c.suffixes[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// foldWords removes combining marks, folds case and replaces every rune that
// is not a letter or digit with a space.
func foldWords(raw string) string {
	// transform chains and casers keep state, so build them per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, raw)
	if err != nil {
		stripped = raw
	}
	folded := cases.Fold().String(stripped)

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
}

// CanonicalAccount strips everything but letters and digits from an account
// number and upper-cases it.
func CanonicalAccount(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
