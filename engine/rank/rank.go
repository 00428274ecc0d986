// Package rank orders vector-store candidates for a structured query. The
// engine is pure: it performs no I/O, reads payload fields with graceful
// defaults, and produces an explainable, diversity-constrained ordering.
package rank

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/listing"
	"github.com/CarSpotAI/carspot-mvp/engine/queryparse"
	"github.com/CarSpotAI/carspot-mvp/pkg/fn"
)

// Candidate is one vector-store hit: the raw similarity score plus the
// indexed payload. The engine never mutates candidates.
type Candidate struct {
	Score   float64
	Payload listing.IndexPayload
}

// Result is one ranked output row. WhyMatch lists the scoring terms that
// fired, in evaluation order; it is a first-class output, not debug info.
type Result struct {
	Payload  listing.IndexPayload `json:"payload"`
	Score    float64              `json:"score"`
	WhyMatch []string             `json:"why_match"`
}

// Multiplicative boosts and additive bonuses. Heuristic values carried over
// from observed listing quality per source class; not calibrated
// probabilities.
const (
	boostBrandKnown   = 1.15
	boostBrandUnknown = 0.90
	boostSaleIntent   = 1.10
	boostNoSaleIntent = 0.85

	bonusBrandMatch    = 0.10
	bonusModelMatch    = 0.10
	bonusPriceWithin   = 0.05
	bonusMileageWithin = 0.05
)

// sourceClassBoosts maps a source class to its multiplicative boost. Forum
// posts tend to be richer than channel reposts; marketplace pages are the
// noisiest.
var sourceClassBoosts = map[string]float64{
	"forum":       1.5,
	"telegram":    1.0,
	"marketplace": 0.8,
}

// sourceClasses resolves a named source to a class by substring. Unknown
// sources stay neutral.
var sourceClasses = []struct {
	needle string
	class  string
}{
	{"forum", "forum"},
	{"club", "forum"},
	{"telegram", "telegram"},
	{"t.me", "telegram"},
	{"avito", "marketplace"},
	{"auto.ru", "marketplace"},
	{"autoru", "marketplace"},
	{"drom", "marketplace"},
	{"marketplace", "marketplace"},
}

// Options configures the engine. Zero values fall back to defaults.
type Options struct {
	// PerSourceCap is the hard limit on results from one named source,
	// applied before fairness penalties.
	PerSourceCap int
	// RecencyWindowDays is the linear decay window for the recency term.
	RecencyWindowDays int
	// RecencyWeight scales the recency term added to the semantic base.
	RecencyWeight float64
	// FairnessK steers the rank-based penalty 1/(1+n*k) applied per
	// repeated source and per repeated URL domain.
	FairnessK float64
	// Now is the clock used for candidate age; injectable for tests.
	Now func() time.Time
}

// DefaultOptions returns the production configuration.
func DefaultOptions() Options {
	return Options{
		PerSourceCap:      3,
		RecencyWindowDays: 180,
		RecencyWeight:     0.3,
		FairnessK:         0.1,
		Now:               time.Now,
	}
}

// Engine ranks candidate sets. Safe for concurrent use.
type Engine struct {
	catalog catalog.Catalog
	opts    Options
}

// New creates a ranking engine sharing the ingest-side brand catalog.
func New(cat catalog.Catalog, opts Options) *Engine {
	def := DefaultOptions()
	if opts.PerSourceCap <= 0 {
		opts.PerSourceCap = def.PerSourceCap
	}
	if opts.RecencyWindowDays <= 0 {
		opts.RecencyWindowDays = def.RecencyWindowDays
	}
	if opts.RecencyWeight <= 0 {
		opts.RecencyWeight = def.RecencyWeight
	}
	if opts.FairnessK <= 0 {
		opts.FairnessK = def.FairnessK
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Engine{catalog: cat, opts: opts}
}

// Rank scores, deduplicates, caps, and orders candidates. limit bounds the
// returned rows; topK bounds how many candidates are considered at all
// (zero means no bound). An empty candidate set yields an empty list.
func (e *Engine) Rank(q queryparse.StructuredQuery, candidates []Candidate, limit, topK int) []Result {
	if len(candidates) == 0 {
		return []Result{}
	}
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	// Duplicate URLs collapse to the first (highest upstream similarity)
	// occurrence. Candidates without a URL are kept as-is.
	withURL := fn.Filter(candidates, func(c Candidate) bool { return c.Payload.SourceURL != "" })
	withoutURL := fn.Filter(candidates, func(c Candidate) bool { return c.Payload.SourceURL == "" })
	deduped := append(fn.Uniq(withURL, func(c Candidate) string { return c.Payload.SourceURL }), withoutURL...)

	scored := make([]Result, 0, len(deduped))
	for _, c := range deduped {
		scored = append(scored, e.score(q, c))
	}

	// Stable pre-sort so the cap and fairness walk see the strongest
	// items first; ties keep arrival order.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	// Hard per-source cap, then rank-based fairness penalties for
	// repeated sources and repeated URL domains.
	perSource := map[string]int{}
	perDomain := map[string]int{}
	out := make([]Result, 0, len(scored))
	for _, r := range scored {
		src := r.Payload.Source
		if src != "" && perSource[src] >= e.opts.PerSourceCap {
			continue
		}

		srcSeen := 0
		if src != "" {
			srcSeen = perSource[src]
		}
		dom := domainOf(r.Payload.SourceURL)
		domSeen := 0
		if dom != "" {
			domSeen = perDomain[dom]
		}
		penalty := 1.0 / (1.0 + float64(srcSeen)*e.opts.FairnessK) / (1.0 + float64(domSeen)*e.opts.FairnessK)
		if penalty < 1.0 {
			r.Score *= penalty
			r.WhyMatch = append(r.WhyMatch, "fairness_penalty")
		}

		if src != "" {
			perSource[src]++
		}
		if dom != "" {
			perDomain[dom]++
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// score computes one candidate's score and explanation. Absent payload
// fields contribute no bonus; they are never an error.
func (e *Engine) score(q queryparse.StructuredQuery, c Candidate) Result {
	var why []string

	base := c.Score
	if rec := e.recency(c.Payload.CreatedAt); rec > 0 {
		base += e.opts.RecencyWeight * rec
		why = append(why, "recent")
	}

	score := base

	if class := classifySource(c.Payload.Source); class != "" {
		if boost, ok := sourceClassBoosts[class]; ok && boost != 1.0 {
			score *= boost
			why = append(why, "source:"+class)
		}
	}

	if c.Payload.Brand != "" && e.catalog.Contains(c.Payload.Brand) {
		score *= boostBrandKnown
		why = append(why, "brand_known")
	} else {
		score *= boostBrandUnknown
	}

	if c.Payload.SaleIntent {
		score *= boostSaleIntent
		why = append(why, "sale_intent")
	} else {
		score *= boostNoSaleIntent
	}

	bonus := 0.0
	if q.Brand != "" && c.Payload.Brand == q.Brand {
		bonus += bonusBrandMatch
		why = append(why, "brand_match")
	}
	if q.Model != "" && c.Payload.Model != "" && strings.EqualFold(c.Payload.Model, q.Model) {
		bonus += bonusModelMatch
		why = append(why, "model_match")
	}
	if q.PriceMax != nil && c.Payload.Price != nil && *c.Payload.Price <= *q.PriceMax {
		bonus += bonusPriceWithin
		why = append(why, "price_within_limit")
	}
	if q.MileageMax != nil && c.Payload.Mileage != nil && *c.Payload.Mileage <= *q.MileageMax {
		bonus += bonusMileageWithin
		why = append(why, "mileage_within_limit")
	}
	score *= 1 + bonus

	return Result{Payload: c.Payload, Score: score, WhyMatch: why}
}

// recency decays linearly from 1 to 0 over the configured window. A
// missing timestamp yields 0: no bonus, never a penalty.
func (e *Engine) recency(createdAt int64) float64 {
	if createdAt <= 0 {
		return 0
	}
	age := e.opts.Now().Sub(time.Unix(createdAt, 0))
	if age < 0 {
		return 1
	}
	window := time.Duration(e.opts.RecencyWindowDays) * 24 * time.Hour
	if age >= window {
		return 0
	}
	return 1 - float64(age)/float64(window)
}

func classifySource(source string) string {
	s := strings.ToLower(source)
	for _, sc := range sourceClasses {
		if strings.Contains(s, sc.needle) {
			return sc.class
		}
	}
	return ""
}

func domainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
