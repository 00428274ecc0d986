// Package signals turns normalized listing text into the scalar and boolean
// facts the quality gate and the ranker reason about: price, model year,
// mileage, fuel type, and paint condition. Every extraction is an
// independent, best-effort, first-match-wins scan over text that has been
// stripped of URLs and channel boilerplate, so promo noise can never
// masquerade as a price or a year.
package signals

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/CarSpotAI/carspot-mvp/engine/listing"
)

// Signals is the per-text value object produced by Extract. It is created
// fresh per call and never persisted on its own: the ingestion pipeline
// folds it into the enriched index payload or discards it with the text.
type Signals struct {
	Price      *int // base currency units (RUB)
	Year       *int
	MileageKM  *int
	HasPrice   bool // any price-like token, including foreign currencies
	HasYear    bool
	HasMileage bool

	Fuel           string // listing.Fuel* value or ""
	PaintCondition string // listing.Paint* value or ""
}

// Options configures the extractor. The year window is configuration, not a
// constant, so the plausible-model-year range can move without a code change.
type Options struct {
	MinYear int
	MaxYear int
}

// DefaultOptions returns the extraction defaults.
func DefaultOptions() Options {
	return Options{MinYear: 1960, MaxYear: 2030}
}

// Extractor holds the compiled patterns. Safe for concurrent use; it carries
// no per-call state.
type Extractor struct {
	opts Options
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.MinYear == 0 {
		opts.MinYear = DefaultOptions().MinYear
	}
	if opts.MaxYear == 0 {
		opts.MaxYear = DefaultOptions().MaxYear
	}
	return &Extractor{opts: opts}
}

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reURL        = regexp.MustCompile(`https?://\S+|www\.\S+|t\.me/\S+`)

	// Channel/boilerplate phrases that frequently carry digits or currency
	// symbols (promo codes, discount percentages) and must not feed the
	// price/year scans.
	boilerplate = []string{
		"подписывайтесь", "подписка", "подпишись",
		"ставьте лайк", "лайк и репост", "репост",
		"subscribe", "like and share", "follow us",
		"скидка", "скидки", "акция", "промокод",
	}

	// Price: digits immediately followed by a currency or magnitude unit.
	// A trailing letter guard stands in for \b, which is ASCII-only in Go
	// and never fires after a cyrillic "к". The optional distance group
	// catches "800 тыс км", which is a mileage, not a price.
	rePriceRUB = regexp.MustCompile(`(\d[\d\s]{0,11}\d|\d)\s*(млн|миллион[а-я]*|тыс|руб[а-я.]*|₽|р\.|к|k)(\.?\s*(?:км|km))?(?:[^a-zа-яё0-9]|$)`)

	// Foreign-currency mentions count as a price *signal* but are left
	// unparsed: there is no exchange-rate source, and a wrong ceiling is
	// worse than none.
	rePriceForeign = regexp.MustCompile(`(\d[\d\s]{0,11}\d|\d)\s*(\$|€|usd|eur)`)

	reYear = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)

	reMileage = regexp.MustCompile(`(\d[\d\s]{0,8}\d|\d)\s*(тыс\.?\s*км|км|km)(?:[^a-zа-яё0-9]|$)`)
)

// Normalize lowercases, collapses whitespace, and strips URLs and
// boilerplate. It is exported because the ingestion pipeline also wants the
// cleaned text for embedding.
func Normalize(text string) string {
	t := strings.ToLower(text)
	t = reURL.ReplaceAllString(t, " ")
	for _, b := range boilerplate {
		t = strings.ReplaceAll(t, b, " ")
	}
	return strings.TrimSpace(reWhitespace.ReplaceAllString(t, " "))
}

// Extract derives all signals from text. Pure and idempotent.
func (e *Extractor) Extract(text string) Signals {
	var s Signals
	t := Normalize(text)
	if t == "" {
		return s
	}

	for _, m := range rePriceRUB.FindAllStringSubmatch(t, -1) {
		if m[3] != "" {
			continue // "N тыс км" is a mileage, not a price
		}
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		switch unit := m[2]; {
		case unit == "млн" || strings.HasPrefix(unit, "миллион"):
			v *= 1_000_000
		case unit == "тыс" || unit == "к" || unit == "k":
			v *= 1000
		default:
			// Bare currency amounts under three digits are noise, not prices.
			if v < 100 {
				continue
			}
		}
		s.Price = listing.IntPtr(v)
		s.HasPrice = true
		break
	}
	if !s.HasPrice && rePriceForeign.MatchString(t) {
		s.HasPrice = true // signal only, no parsed value
	}

	if m := reYear.FindStringSubmatch(t); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil && y >= e.opts.MinYear && y <= e.opts.MaxYear {
			s.Year = listing.IntPtr(y)
			s.HasYear = true
		}
	}

	if m := reMileage.FindStringSubmatch(t); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			if strings.HasPrefix(m[2], "тыс") {
				v *= 1000
			}
			s.MileageKM = listing.IntPtr(v)
			s.HasMileage = true
		}
	}

	s.Fuel = DetectFuel(t)
	s.PaintCondition = DetectPaint(t)
	return s
}

// DetectFuel maps fuel keywords onto the shared fuel vocabulary. Input is
// expected to be lowercase.
func DetectFuel(t string) string {
	switch {
	case strings.Contains(t, "бенз") || strings.Contains(t, "petrol") || strings.Contains(t, "gasoline"):
		return listing.FuelPetrol
	case strings.Contains(t, "диз") || strings.Contains(t, "diesel"):
		return listing.FuelDiesel
	case strings.Contains(t, "гибрид") || strings.Contains(t, "hybrid"):
		return listing.FuelHybrid
	case strings.Contains(t, "электро") || strings.Contains(t, "electric"):
		return listing.FuelElectric
	}
	return ""
}

// DetectPaint maps paint/accident keywords onto the shared vocabulary. The
// "original" set is checked first because its phrases ("не бит") contain the
// damaged-set tokens ("бит"). Input is expected to be lowercase.
func DetectPaint(t string) string {
	switch {
	case strings.Contains(t, "без окрас") || strings.Contains(t, "не бит") || strings.Contains(t, "не крашен") || strings.Contains(t, "unpainted"):
		return listing.PaintOriginal
	case strings.Contains(t, "крашен") || strings.Contains(t, "бит") || strings.Contains(t, "repainted"):
		return listing.PaintRepainted
	}
	return ""
}

// parseNumber strips digit-group spaces and parses the result. Returns false
// on overflow-sized garbage rather than guessing.
func parseNumber(raw string) (int, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" || len(cleaned) > 12 {
		return 0, false
	}
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, false
	}
	return v, true
}
