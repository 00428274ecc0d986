// Package catalog provides the static brand lookup shared by the quality
// gate, the query parser, and the ranking engine. A Catalog is built once at
// startup and injected everywhere it is needed; it is never mutated after
// construction, so concurrent reads need no synchronization.
package catalog

import (
	"regexp"
	"strings"
)

// Match confidence tiers, highest first.
const (
	ConfidenceExact     = 1.0 // word-bounded token in the text's own language
	ConfidenceAlias     = 0.8 // known alias, transliteration typo or nickname
	ConfidenceSubstring = 0.6 // exact token found without a word boundary
)

// Entry describes one canonical brand: its key plus the tokens that identify
// it. Exact tokens are matched word-bounded first; aliases catch common typos
// and nicknames at lower confidence.
type Entry struct {
	Key     string   // canonical lowercase id, e.g. "bmw"
	Exact   []string // full-confidence tokens (latin and cyrillic spellings)
	Aliases []string // typos / nicknames, matched at alias confidence
}

// Catalog is an ordered, immutable brand table. Order matters: the first
// entry that matches wins, so callers get deterministic results independent
// of map iteration.
type Catalog struct {
	entries []compiled
}

type compiled struct {
	key     string
	exact   []string
	aliases []string
	bounded []*regexp.Regexp // one word-bounded pattern per exact token
}

// New builds a Catalog from entries, preserving their order.
func New(entries []Entry) Catalog {
	cs := make([]compiled, 0, len(entries))
	for _, e := range entries {
		c := compiled{key: e.Key}
		for _, tok := range e.Exact {
			tok = strings.ToLower(tok)
			c.exact = append(c.exact, tok)
			c.bounded = append(c.bounded, boundedPattern(tok))
		}
		for _, a := range e.Aliases {
			c.aliases = append(c.aliases, strings.ToLower(a))
		}
		cs = append(cs, c)
	}
	return Catalog{entries: cs}
}

// boundedPattern compiles a word-bounded match for tok. Go's \b is
// ASCII-only, so cyrillic tokens get an explicit letter/digit guard instead.
func boundedPattern(tok string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^a-zа-яё0-9])` + regexp.QuoteMeta(tok) + `(?:[^a-zа-яё0-9]|$)`)
}

// Match scans text for the first known brand. It returns the brand key and a
// confidence tier, or ("", 0) when nothing matches. Pure function: no state,
// no side effects.
func (c Catalog) Match(text string) (string, float64) {
	if text == "" {
		return "", 0
	}
	lower := strings.ToLower(text)

	for _, e := range c.entries {
		for _, re := range e.bounded {
			if re.MatchString(lower) {
				return e.key, ConfidenceExact
			}
		}
		for _, a := range e.aliases {
			if strings.Contains(lower, a) {
				return e.key, ConfidenceAlias
			}
		}
		for _, tok := range e.exact {
			if strings.Contains(lower, tok) {
				return e.key, ConfidenceSubstring
			}
		}
	}
	return "", 0
}

// Contains reports whether key is a known canonical brand.
func (c Catalog) Contains(key string) bool {
	key = strings.ToLower(key)
	for _, e := range c.entries {
		if e.key == key {
			return true
		}
	}
	return false
}

// Keys returns the canonical brand keys in catalog order.
func (c Catalog) Keys() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.key
	}
	return out
}

// Len returns the number of brands in the catalog.
func (c Catalog) Len() int { return len(c.entries) }
