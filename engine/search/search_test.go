package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/listing"
	"github.com/CarSpotAI/carspot-mvp/engine/queryparse"
	"github.com/CarSpotAI/carspot-mvp/engine/rank"
	"github.com/CarSpotAI/carspot-mvp/engine/semantic"
	"github.com/CarSpotAI/carspot-mvp/engine/signals"
	"github.com/CarSpotAI/carspot-mvp/pkg/history"
)

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeSearcher struct {
	hits    []semantic.Hit
	err     error
	filters map[string]string
}

func (f *fakeSearcher) Search(context.Context, []float32, int) ([]semantic.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeSearcher) SearchFiltered(_ context.Context, _ []float32, _ int, filters map[string]string) ([]semantic.Hit, error) {
	f.filters = filters
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeRecorder struct{ entries []history.Entry }

func (f *fakeRecorder) Record(_ context.Context, e history.Entry) {
	f.entries = append(f.entries, e)
}

func hit(score float32, brand, source, url string) semantic.Hit {
	return semantic.Hit{Score: score, Payload: listing.IndexPayload{
		Brand:      brand,
		Source:     source,
		SourceURL:  url,
		SaleIntent: true,
	}}
}

func newService(se *fakeSearcher, em *fakeEmbedder, rec Recorder) *Service {
	cat := catalog.Default()
	parser := queryparse.New(cat, signals.New(signals.DefaultOptions()))
	ranker := rank.New(cat, rank.DefaultOptions())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(parser, ranker, em, se, rec, nil, log, Options{Limit: 10, TopK: 50})
}

func TestEmbedTextCoversStructuredFields(t *testing.T) {
	q := queryparse.StructuredQuery{
		Brand:          "bmw",
		Fuel:           listing.FuelPetrol,
		PaintCondition: listing.PaintOriginal,
		City:           "москва",
	}
	got := embedText(q)
	for _, part := range []string{"bmw", listing.FuelPetrol, listing.PaintOriginal, "москва"} {
		if !strings.Contains(got, part) {
			t.Fatalf("embed text %q missing %q", got, part)
		}
	}
}

func TestSearchFuelQueryNarrowsCandidates(t *testing.T) {
	se := &fakeSearcher{hits: []semantic.Hit{
		hit(0.9, "bmw", "bmw_forum", "https://forum.example/1"),
	}}
	svc := newService(se, &fakeEmbedder{}, nil)

	resp := svc.Search(context.Background(), "bmw бензин")
	if se.filters[listing.KeyFuel] != listing.FuelPetrol {
		t.Fatalf("fuel filter not applied: %v", se.filters)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d", len(resp.Results))
	}
}

func TestSearchWithoutAttributesSkipsFilters(t *testing.T) {
	se := &fakeSearcher{hits: []semantic.Hit{
		hit(0.9, "bmw", "bmw_forum", "https://forum.example/1"),
	}}
	svc := newService(se, &fakeEmbedder{}, nil)

	svc.Search(context.Background(), "bmw")
	if se.filters != nil {
		t.Fatalf("unexpected filters on plain query: %v", se.filters)
	}
}

func TestSearchEndToEnd(t *testing.T) {
	se := &fakeSearcher{hits: []semantic.Hit{
		hit(0.9, "bmw", "bmw_forum", "https://forum.example/1"),
		hit(0.8, "bmw", "avito", "https://avito.ru/2"),
	}}
	svc := newService(se, &fakeEmbedder{}, nil)

	resp := svc.Search(context.Background(), "bmw бензин")
	if resp.Query.Brand != "bmw" {
		t.Fatalf("query brand = %q", resp.Query.Brand)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d", len(resp.Results))
	}
	if resp.Results[0].Payload.Source != "bmw_forum" {
		t.Fatal("forum hit should rank first")
	}
	if resp.Debug.VectorHits != 2 || resp.Debug.FinalResults != 2 || resp.Debug.EmptyResult {
		t.Fatalf("debug = %+v", resp.Debug)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	if !strings.Contains(resp.Answer, "2") {
		t.Fatalf("answer = %q", resp.Answer)
	}
}

func TestSearchEmbedderFaultYieldsEmptyResponse(t *testing.T) {
	svc := newService(&fakeSearcher{}, &fakeEmbedder{err: errors.New("down")}, nil)

	resp := svc.Search(context.Background(), "bmw до 2 млн")
	if len(resp.Results) != 0 || !resp.Debug.EmptyResult {
		t.Fatalf("expected empty response, got %+v", resp.Debug)
	}
	// The structured query must still be populated for the client.
	if resp.Query.Brand != "bmw" || resp.Query.PriceMax == nil {
		t.Fatalf("query = %+v", resp.Query)
	}
	if resp.Answer == "" {
		t.Fatal("empty response still carries an answer")
	}
}

func TestSearchStoreFaultYieldsEmptyResponse(t *testing.T) {
	svc := newService(&fakeSearcher{err: errors.New("qdrant down")}, &fakeEmbedder{}, nil)
	resp := svc.Search(context.Background(), "audi")
	if len(resp.Results) != 0 || !resp.Debug.EmptyResult {
		t.Fatalf("expected empty response, got %d results", len(resp.Results))
	}
}

func TestSearchZeroHitsIsNotAnError(t *testing.T) {
	svc := newService(&fakeSearcher{hits: nil}, &fakeEmbedder{}, nil)
	resp := svc.Search(context.Background(), "lamborghini")
	if resp.Results == nil {
		t.Fatal("results must be an empty list, not nil")
	}
	if !strings.Contains(resp.Answer, "Ничего не найдено") {
		t.Fatalf("answer = %q", resp.Answer)
	}
}

func TestSearchRecordsHistory(t *testing.T) {
	rec := &fakeRecorder{}
	se := &fakeSearcher{hits: []semantic.Hit{
		hit(0.9, "bmw", "bmw_forum", "https://forum.example/1"),
	}}
	svc := newService(se, &fakeEmbedder{}, rec)

	svc.Search(context.Background(), "bmw")
	if len(rec.entries) != 1 {
		t.Fatalf("history entries = %d", len(rec.entries))
	}
	e := rec.entries[0]
	if e.Query != "bmw" || e.ResultCount != 1 {
		t.Fatalf("entry = %+v", e)
	}
	if len(e.Structured) == 0 {
		t.Fatal("structured query not recorded")
	}
}

func TestBuildAnswerWithFilters(t *testing.T) {
	q := queryparse.StructuredQuery{
		Brand:      "bmw",
		PriceMax:   listing.IntPtr(2000000),
		MileageMax: listing.IntPtr(50000),
	}
	results := []rank.Result{{}, {}}
	a := BuildAnswer(q, results)
	for _, want := range []string{"2", "Bmw", "2000000", "50000"} {
		if !strings.Contains(a, want) {
			t.Fatalf("answer %q missing %q", a, want)
		}
	}
}
