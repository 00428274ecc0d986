package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/gate"
	"github.com/CarSpotAI/carspot-mvp/engine/listing"
	"github.com/CarSpotAI/carspot-mvp/engine/semantic"
	"github.com/CarSpotAI/carspot-mvp/engine/signals"
	"github.com/CarSpotAI/carspot-mvp/pkg/metrics"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndexer struct {
	records []semantic.VectorRecord
	deleted []string
	err     error
}

func (f *fakeIndexer) Upsert(_ context.Context, recs []semantic.VectorRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, recs...)
	return nil
}

func (f *fakeIndexer) DeleteBySourceURL(_ context.Context, sourceURL string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, sourceURL)
	return nil
}

var ingestedAt = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestPipeline(em *fakeEmbedder, ix *fakeIndexer, reg *metrics.Registry) *Pipeline {
	cat := catalog.Default()
	ex := signals.New(signals.DefaultOptions())
	return NewPipeline(Deps{
		Gate:     gate.New(cat, ex, gate.DefaultOptions()),
		Catalog:  cat,
		Embedder: em,
		Store:    ix,
		Metrics:  reg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return ingestedAt },
	})
}

func TestProcessIndexesSaleListing(t *testing.T) {
	em := &fakeEmbedder{}
	ix := &fakeIndexer{}
	p := newTestPipeline(em, ix, nil)

	published := ingestedAt.Add(-48 * time.Hour)
	rec := listing.Record{
		Source:    "bmw_forum",
		SourceURL: "https://forum.example/post/1",
		Title:     "Продам BMW X5 2019",
		Content:   "пробег 40000 км, цена 3800000 руб",
		CreatedAt: published,
	}

	out, err := p.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Skipped || out.Reason != gate.ReasonOK {
		t.Fatalf("outcome = %+v", out)
	}
	if em.calls != 1 || len(ix.records) != 1 {
		t.Fatalf("embedder calls = %d, indexed = %d", em.calls, len(ix.records))
	}

	pl := ix.records[0].Payload
	if pl.Brand != "bmw" {
		t.Fatalf("brand = %q", pl.Brand)
	}
	if pl.Price == nil || *pl.Price != 3800000 {
		t.Fatalf("price = %v", pl.Price)
	}
	if pl.Year == nil || *pl.Year != 2019 {
		t.Fatalf("year = %v", pl.Year)
	}
	if pl.Mileage == nil || *pl.Mileage != 40000 {
		t.Fatalf("mileage = %v", pl.Mileage)
	}
	if !pl.SaleIntent || pl.QualityScore <= 0.5 {
		t.Fatalf("sale_intent=%v quality=%v", pl.SaleIntent, pl.QualityScore)
	}
	if pl.CreatedAt != published.Unix() || pl.CreatedAtSource != listing.CreatedAtFromSource {
		t.Fatalf("created_at=%d source=%q", pl.CreatedAt, pl.CreatedAtSource)
	}
}

func TestProcessSkipsDiscussionPost(t *testing.T) {
	em := &fakeEmbedder{}
	ix := &fakeIndexer{}
	p := newTestPipeline(em, ix, nil)

	out, err := p.Process(context.Background(), listing.Record{
		Source:    "telegram_channel",
		SourceURL: "https://t.me/c/1",
		Content:   "Ищу BMW, подскажите по комплектации",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Skipped || out.Reason != gate.ReasonNotSaleIntent {
		t.Fatalf("outcome = %+v", out)
	}
	if em.calls != 0 || len(ix.records) != 0 {
		t.Fatal("skipped record must not reach the embedder or indexer")
	}
}

func TestProcessSkipEvictsStaleIndexEntry(t *testing.T) {
	ix := &fakeIndexer{}
	p := newTestPipeline(&fakeEmbedder{}, ix, nil)

	out, err := p.Process(context.Background(), listing.Record{
		Source:    "bmw_forum",
		SourceURL: "https://forum.example/post/1",
		Content:   "Продано, тему можно закрывать",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Skipped {
		t.Fatalf("outcome = %+v", out)
	}
	if len(ix.deleted) != 1 || ix.deleted[0] != "https://forum.example/post/1" {
		t.Fatalf("deleted = %v", ix.deleted)
	}
}

func TestProcessDefaultsCreatedAtToIngestTime(t *testing.T) {
	em := &fakeEmbedder{}
	ix := &fakeIndexer{}
	p := newTestPipeline(em, ix, nil)

	_, err := p.Process(context.Background(), listing.Record{
		Source:    "avito",
		SourceURL: "https://avito.ru/x",
		Content:   "Продам Audi A4, цена 1500000 руб",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	pl := ix.records[0].Payload
	if pl.CreatedAt != ingestedAt.Unix() || pl.CreatedAtSource != listing.CreatedAtFromIngested {
		t.Fatalf("created_at=%d source=%q", pl.CreatedAt, pl.CreatedAtSource)
	}
}

func TestProcessEmbedderFailureReturnsError(t *testing.T) {
	em := &fakeEmbedder{err: errors.New("embedder down")}
	ix := &fakeIndexer{}
	p := newTestPipeline(em, ix, nil)

	_, err := p.Process(context.Background(), listing.Record{
		Source:    "avito",
		SourceURL: "https://avito.ru/x",
		Content:   "Продам Audi A4, цена 1500000 руб",
	})
	if err == nil {
		t.Fatal("expected embed failure to propagate")
	}
	if len(ix.records) != 0 {
		t.Fatal("failed record must not be indexed")
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("https://avito.ru/x")
	b := PointID("https://avito.ru/x")
	c := PointID("https://avito.ru/y")
	if a != b {
		t.Fatal("same URL must map to the same point ID")
	}
	if a == c {
		t.Fatal("distinct URLs must map to distinct point IDs")
	}
}

func TestGateDecisionCountersByReason(t *testing.T) {
	reg := metrics.New()
	em := &fakeEmbedder{}
	ix := &fakeIndexer{}
	p := newTestPipeline(em, ix, reg)

	ctx := context.Background()
	p.Process(ctx, listing.Record{SourceURL: "u1", Content: ""})
	p.Process(ctx, listing.Record{SourceURL: "u2", Content: "Ищу BMW, вопрос"})
	p.Process(ctx, listing.Record{SourceURL: "u3", Content: "Продам BMW, цена 500000 руб"})

	out := reg.Render()
	for _, want := range []string{
		`gate_decisions_total{reason="empty_text"} 1`,
		`gate_decisions_total{reason="not_sale_intent"} 1`,
		`gate_decisions_total{reason="ok"} 1`,
		`ingest_indexed_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
