// Package queryparse converts free-text search queries into the structured
// fields the ranking engine reasons about. It shares the brand catalog and
// the signal-extraction vocabulary with the ingest side, so query-time and
// ingest-time semantics cannot drift apart.
//
// Parsing is a two-stage pipeline: an optional advanced parser runs behind a
// circuit breaker, and any unavailability or failure falls closed into the
// deterministic rule-based pass. Parse never returns an error.
package queryparse

import (
	"context"
	"regexp"
	"strings"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/listing"
	"github.com/CarSpotAI/carspot-mvp/engine/signals"
	"github.com/CarSpotAI/carspot-mvp/pkg/fn"
	"github.com/CarSpotAI/carspot-mvp/pkg/resilience"
)

// Advanced is a pluggable higher-quality parser (a future learned model).
// Implementations return a tagged result; the Parser treats any error as
// "unavailable" and falls back to rules. There is no exception-driven
// control flow here; unavailability is an expected state.
type Advanced interface {
	Parse(ctx context.Context, raw string) fn.Result[StructuredQuery]
}

// Parser builds StructuredQuery values. Safe for concurrent use.
type Parser struct {
	catalog   catalog.Catalog
	extractor *signals.Extractor
	advanced  Advanced
	breaker   *resilience.Breaker
}

// New creates a rule-based Parser.
func New(cat catalog.Catalog, ex *signals.Extractor) *Parser {
	return &Parser{catalog: cat, extractor: ex}
}

// WithAdvanced attaches an advanced parser guarded by the given breaker.
// When the breaker is open the rule-based pass is used without probing.
func (p *Parser) WithAdvanced(adv Advanced, b *resilience.Breaker) *Parser {
	p.advanced = adv
	p.breaker = b
	return p
}

// Parse converts raw free text into a StructuredQuery. It never fails: the
// worst outcome is an all-nil query carrying the raw text. Output is
// byte-identical for identical input.
func (p *Parser) Parse(ctx context.Context, raw string) (q StructuredQuery) {
	defer func() {
		if r := recover(); r != nil {
			q = StructuredQuery{RawText: raw}
		}
	}()

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StructuredQuery{RawText: raw}
	}

	if p.advanced != nil && p.breaker != nil {
		res := resilience.CallResult(p.breaker, ctx, func(ctx context.Context) fn.Result[StructuredQuery] {
			return p.advanced.Parse(ctx, trimmed)
		})
		if res.IsOk() {
			q, _ := res.Unwrap()
			q.RawText = raw
			return q
		}
		// Unavailable or unhealthy: fall through to rules.
	}

	return p.parseRules(raw, trimmed)
}

var (
	reMileageCeiling = regexp.MustCompile(`до\s*(\d[\d\s]{0,8}\d|\d)\s*(тыс\.?\s*км|тыс|км|km)(?:[^a-zа-яё0-9]|$)`)
	reToken          = regexp.MustCompile(`[a-zа-яё0-9]+`)
)

// knownCities is the closed city list. Unmatched city mentions are dropped,
// not stored as free text.
var knownCities = []string{
	"москва", "спб", "питер", "екатеринбург", "казань",
	"новосибирск", "нижний новгород", "самара", "краснодар", "воронеж",
}

// stopTokens are connectors and unit words already consumed by the field
// rules; they never become keywords.
var stopTokens = map[string]bool{
	"до": true, "без": true, "и": true, "или": true, "не": true,
	"бит": true, "крашен": true, "окрасов": true, "окраса": true,
	"км": true, "тыс": true, "млн": true, "руб": true, "р": true,
	"к": true, "k": true, "₽": true,
}

// parseRules is the deterministic fallback pass. Extraction order: brand,
// price ceiling, mileage ceiling, fuel, paint condition, city, then
// keywords/exclusions from whatever tokens remain.
func (p *Parser) parseRules(raw, trimmed string) StructuredQuery {
	q := StructuredQuery{RawText: raw}
	lower := strings.ToLower(trimmed)

	// Brand, with the catalog's confidence carried through.
	if key, conf := p.catalog.Match(lower); key != "" {
		q.Brand = key
		q.BrandConfidence = conf
	}

	// Price ceiling. A bare price mention is treated as a ceiling too,
	// a known ambiguity for "around X" queries, resolved toward ceilings.
	sig := p.extractor.Extract(lower)
	if sig.Price != nil {
		q.PriceMax = sig.Price
	}

	// Mileage ceiling requires the explicit "up to" qualifier plus a
	// distance unit.
	if m := reMileageCeiling.FindStringSubmatch(lower); m != nil {
		if v, ok := parseCeiling(m[1]); ok {
			if strings.HasPrefix(m[2], "тыс") {
				v *= 1000
			}
			q.MileageMax = listing.IntPtr(v)
		}
	}

	q.Fuel = signals.DetectFuel(lower)
	q.PaintCondition = signals.DetectPaint(lower)

	for _, city := range knownCities {
		if strings.Contains(lower, city) {
			q.City = city
			break
		}
	}

	// Keywords and exclusions. A token negated either by prefix
	// ("некрашеный") or by a standalone "не" ("не битый") becomes an
	// exclusion. Numbers and the brand mention are already consumed by
	// the field rules above.
	negated := false
	for _, tok := range reToken.FindAllString(lower, -1) {
		if tok == "не" {
			negated = true
			continue
		}
		if stopTokens[tok] || isDigits(tok) {
			negated = false
			continue
		}
		if q.Brand != "" {
			if key, _ := p.catalog.Match(tok); key == q.Brand {
				negated = false
				continue
			}
		}
		if negated {
			q.Exclusions = append(q.Exclusions, tok)
			negated = false
			continue
		}
		if strings.HasPrefix(tok, "не") && len([]rune(tok)) > 2 {
			q.Exclusions = append(q.Exclusions, strings.TrimPrefix(tok, "не"))
			continue
		}
		q.Keywords = append(q.Keywords, tok)
	}
	return q
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func parseCeiling(raw string) (int, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" || len(cleaned) > 9 {
		return 0, false
	}
	v := 0
	for _, r := range cleaned {
		v = v*10 + int(r-'0')
	}
	return v, true
}
