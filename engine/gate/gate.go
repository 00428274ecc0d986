// Package gate implements the ingest-time quality gate: the keep/skip
// decision that runs on every scraped text before anything is persisted or
// indexed. The gate is deterministic rule logic with no learned models, and
// it never panics past its entry point: a malformed single item must never
// abort a batch ingest.
package gate

import (
	"strings"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/signals"
)

// Reason is the closed set of decision reason codes. Downstream statistics
// aggregate by these values, so nothing else may ever be emitted.
type Reason string

const (
	ReasonEmptyText     Reason = "empty_text"
	ReasonNotSaleIntent Reason = "not_sale_intent"
	ReasonOK            Reason = "ok"
	ReasonException     Reason = "exception"
)

// Policy selects how strict the gate is. The project history had both
// variants; the policy is explicit configuration, not an implicit default.
type Policy string

const (
	// PolicyIntentOnly keeps anything whose sale-intent score passes the
	// threshold. This is the default.
	PolicyIntentOnly Policy = "intent_only"
	// PolicyIntentAndSignals additionally requires a brand hit and at least
	// one numeric signal (price, year, or mileage), the stricter variant
	// used for very noisy channel sources.
	PolicyIntentAndSignals Policy = "intent_and_signals"
)

// Decision is the gate's verdict for one raw item. Kept items always carry a
// quality score, even if it is zero.
type Decision struct {
	Skip         bool    `json:"skip"`
	Reason       Reason  `json:"reason"`
	SaleIntent   bool    `json:"sale_intent"`
	QualityScore float64 `json:"quality_score"`
}

// Options configures the gate.
type Options struct {
	MinSaleScore int    // sale-intent threshold, default 2
	Policy       Policy // default PolicyIntentOnly
}

// DefaultOptions returns the gate defaults.
func DefaultOptions() Options {
	return Options{MinSaleScore: 2, Policy: PolicyIntentOnly}
}

// Sale-intent phrase lists. Scored +2 each for positive, -2 each for
// negative; a price signal adds +1.
var positivePhrases = []string{
	// RU
	"продам", "продаю", "продаётся", "продается", "продажа",
	"срочно продам", "торг", "обмен", "рассмотрю обмен",
	// EN
	"for sale", "selling", "sell",
}

var negativePhrases = []string{
	// RU
	"ищу", "куплю", "нужен", "подскажите", "помогите",
	"обсуждение", "вопрос", "что лучше", "ремонт",
	"не заводится", "ошибка", "диагностика",
	// EN
	"looking for", "help", "question", "repair",
}

// Gate classifies raw texts. It is stateless per call and safe for
// concurrent use; the catalog and extractor it holds are immutable.
type Gate struct {
	opts      Options
	catalog   catalog.Catalog
	extractor *signals.Extractor
}

// New creates a Gate around the given brand catalog and signal extractor.
func New(cat catalog.Catalog, ex *signals.Extractor, opts Options) *Gate {
	if opts.MinSaleScore == 0 {
		opts.MinSaleScore = DefaultOptions().MinSaleScore
	}
	if opts.Policy == "" {
		opts.Policy = PolicyIntentOnly
	}
	return &Gate{opts: opts, catalog: cat, extractor: ex}
}

// Classify decides whether a raw text from the named source is a genuine
// for-sale listing. It never panics: internal faults become a skip decision
// with ReasonException.
func (g *Gate) Classify(text, source string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Skip: true, Reason: ReasonException}
		}
	}()
	_ = source // decisions are source-independent today; the parameter keeps the contract stable

	if strings.TrimSpace(text) == "" {
		return Decision{Skip: true, Reason: ReasonEmptyText}
	}

	sig := g.extractor.Extract(text)
	intent := g.saleIntent(strings.ToLower(text), sig)

	if !intent {
		return Decision{Skip: true, Reason: ReasonNotSaleIntent}
	}

	if g.opts.Policy == PolicyIntentAndSignals {
		brand, _ := g.catalog.Match(text)
		numeric := sig.HasPrice || sig.HasYear || sig.HasMileage
		if brand == "" || !numeric {
			return Decision{Skip: true, Reason: ReasonNotSaleIntent, SaleIntent: true}
		}
	}

	return Decision{
		Skip:         false,
		Reason:       ReasonOK,
		SaleIntent:   true,
		QualityScore: qualityScore(sig),
	}
}

// Signals re-exposes the extractor so the ingestion pipeline can enrich a
// kept record without extracting twice in callers that want both.
func (g *Gate) Signals(text string) signals.Signals {
	return g.extractor.Extract(text)
}

// saleIntent scores the text: +2 per positive phrase, +1 for a price signal,
// -2 per negative phrase; intent iff total >= MinSaleScore.
func (g *Gate) saleIntent(lower string, sig signals.Signals) bool {
	score := 0
	for _, w := range positivePhrases {
		if strings.Contains(lower, w) {
			score += 2
		}
	}
	if sig.HasPrice {
		score++
	}
	for _, w := range negativePhrases {
		if strings.Contains(lower, w) {
			score -= 2
		}
	}
	return score >= g.opts.MinSaleScore
}

// qualityScore weights the structured facts a listing carries. Price is the
// strongest usefulness signal; the sum is capped at 1.0.
func qualityScore(sig signals.Signals) float64 {
	score := 0.0
	if sig.HasPrice {
		score += 0.5
	}
	if sig.HasYear {
		score += 0.25
	}
	if sig.HasMileage {
		score += 0.25
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
