package gate

import (
	"strings"
	"testing"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/signals"
)

func newGate(opts Options) *Gate {
	return New(catalog.Default(), signals.New(signals.DefaultOptions()), opts)
}

func TestClassifyFullListingKept(t *testing.T) {
	g := newGate(DefaultOptions())
	d := g.Classify("Продам BMW X5 2019, пробег 40000 км, цена 3800000 руб", "telegram")

	if d.Skip {
		t.Fatalf("expected keep, got skip (%s)", d.Reason)
	}
	if d.Reason != ReasonOK {
		t.Errorf("expected reason ok, got %s", d.Reason)
	}
	if !d.SaleIntent {
		t.Error("expected sale_intent=true")
	}
	if d.QualityScore <= 0.5 {
		t.Errorf("price+year+mileage present: quality score %v should exceed 0.5", d.QualityScore)
	}
}

func TestClassifyDiscussionSkipped(t *testing.T) {
	g := newGate(DefaultOptions())
	d := g.Classify("Ищу BMW, подскажите по комплектации", "forum")

	if !d.Skip {
		t.Fatal("expected skip")
	}
	if d.Reason != ReasonNotSaleIntent {
		t.Errorf("expected not_sale_intent, got %s", d.Reason)
	}
}

func TestClassifyEmptyText(t *testing.T) {
	g := newGate(DefaultOptions())
	for _, text := range []string{"", "   ", "\n\t"} {
		d := g.Classify(text, "telegram")
		if !d.Skip || d.Reason != ReasonEmptyText {
			t.Errorf("%q: expected skip/empty_text, got skip=%v reason=%s", text, d.Skip, d.Reason)
		}
	}
}

func TestClassifyReasonAlwaysInClosedSet(t *testing.T) {
	g := newGate(DefaultOptions())
	valid := map[Reason]bool{
		ReasonEmptyText: true, ReasonNotSaleIntent: true,
		ReasonOK: true, ReasonException: true,
	}
	inputs := []string{
		"", "продам bmw", "ищу запчасти", "?!@#$%^&*",
		strings.Repeat("а", 10000),
		"продам \x00\x01 битые байты 500000 руб",
	}
	for _, text := range inputs {
		d := g.Classify(text, "x")
		if !valid[d.Reason] {
			t.Errorf("%.30q: reason %q outside the closed set", text, d.Reason)
		}
	}
}

func TestClassifyKeptAlwaysHasQualityScore(t *testing.T) {
	g := newGate(DefaultOptions())
	// Positive phrases but zero structured facts: kept with score 0.
	d := g.Classify("Продам машину, торг уместен", "telegram")
	if d.Skip {
		t.Fatalf("expected keep, got skip (%s)", d.Reason)
	}
	if d.QualityScore != 0 {
		t.Errorf("no price/year/mileage: want score 0, got %v", d.QualityScore)
	}
}

func TestClassifyPriceSignalAloneIsNotIntent(t *testing.T) {
	g := newGate(DefaultOptions())
	// +1 for price is below the default threshold of 2.
	d := g.Classify("стоимость обслуживания 15000 руб в год", "forum")
	if !d.Skip || d.Reason != ReasonNotSaleIntent {
		t.Errorf("expected not_sale_intent, got skip=%v reason=%s", d.Skip, d.Reason)
	}
}

func TestClassifyNegativePhrasesOutweighPositive(t *testing.T) {
	g := newGate(DefaultOptions())
	d := g.Classify("Продам или куплю, вопрос, ремонт не предлагать", "forum")
	if !d.Skip {
		t.Error("negatives should pull the score below the threshold")
	}
}

func TestStrictPolicyRequiresBrandAndNumbers(t *testing.T) {
	g := newGate(Options{MinSaleScore: 2, Policy: PolicyIntentAndSignals})

	// Sale intent without a brand: skipped under the strict policy.
	d := g.Classify("Продам машину срочно, торг", "telegram")
	if !d.Skip || d.Reason != ReasonNotSaleIntent {
		t.Errorf("strict policy: expected skip/not_sale_intent, got skip=%v reason=%s", d.Skip, d.Reason)
	}
	if !d.SaleIntent {
		t.Error("strict policy skip should still report the intent score outcome")
	}

	// Brand + numeric signal: kept.
	d = g.Classify("Продам BMW 2018 года, торг", "telegram")
	if d.Skip {
		t.Errorf("strict policy: expected keep, got skip (%s)", d.Reason)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	g := newGate(DefaultOptions())
	text := "Продаётся ауди а4, 2016, 98 тыс км, 1 450 000 руб"
	a := g.Classify(text, "avito.ru")
	b := g.Classify(text, "avito.ru")
	if a != b {
		t.Errorf("classify not idempotent: %+v vs %+v", a, b)
	}
}
