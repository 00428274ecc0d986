// Package search implements the query path: structure the free-text query,
// embed it, fetch vector candidates, rank them, and assemble the response
// with per-source stats and a short textual answer. A search never fails at
// the API surface: internal faults produce an empty, well-formed response.
package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/CarSpotAI/carspot-mvp/engine/listing"
	"github.com/CarSpotAI/carspot-mvp/engine/queryparse"
	"github.com/CarSpotAI/carspot-mvp/engine/rank"
	"github.com/CarSpotAI/carspot-mvp/engine/semantic"
	"github.com/CarSpotAI/carspot-mvp/pkg/fn"
	"github.com/CarSpotAI/carspot-mvp/pkg/history"
	"github.com/CarSpotAI/carspot-mvp/pkg/metrics"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector store's similarity search surface.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.Hit, error)
	SearchFiltered(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]semantic.Hit, error)
}

// Recorder persists search history. Recording is best-effort.
type Recorder interface {
	Record(ctx context.Context, e history.Entry)
}

// Options configures the search service.
type Options struct {
	// Limit bounds the returned result rows.
	Limit int
	// TopK bounds how many vector hits are fetched and considered.
	TopK int
}

// DefaultOptions returns the production search configuration.
func DefaultOptions() Options {
	return Options{Limit: 10, TopK: 50}
}

// SourceStat counts final results per named source.
type SourceStat struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Debug carries per-request observability fields in the response body.
type Debug struct {
	LatencyMS    int64 `json:"latency_ms"`
	VectorHits   int   `json:"vector_hits"`
	FinalResults int   `json:"final_results"`
	EmptyResult  bool  `json:"empty_result"`
}

// Response is the complete search answer.
type Response struct {
	Query   queryparse.StructuredQuery `json:"query"`
	Results []rank.Result              `json:"results"`
	Sources []SourceStat               `json:"sources"`
	Answer  string                     `json:"answer"`
	Debug   Debug                      `json:"debug"`
}

// Service executes searches. Safe for concurrent use.
type Service struct {
	parser   *queryparse.Parser
	ranker   *rank.Engine
	embedder Embedder
	searcher Searcher
	recorder Recorder
	metrics  *metrics.Registry
	log      *slog.Logger
	opts     Options
	now      func() time.Time
}

// New wires a search service. recorder and reg may be nil.
func New(parser *queryparse.Parser, ranker *rank.Engine, embedder Embedder, searcher Searcher,
	recorder Recorder, reg *metrics.Registry, log *slog.Logger, opts Options) *Service {
	def := DefaultOptions()
	if opts.Limit <= 0 {
		opts.Limit = def.Limit
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		parser:   parser,
		ranker:   ranker,
		embedder: embedder,
		searcher: searcher,
		recorder: recorder,
		metrics:  reg,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// Search runs one query end to end. It never returns an error: embedder or
// store faults degrade to an empty result set with the structured query and
// debug block intact.
func (s *Service) Search(ctx context.Context, raw string) Response {
	start := s.now()
	if s.metrics != nil {
		s.metrics.Counter("search_requests_total", "search requests").Inc()
	}

	q := s.parser.Parse(ctx, raw)

	hits := s.fetch(ctx, q)
	candidates := fn.Map(hits, func(h semantic.Hit) rank.Candidate {
		return rank.Candidate{Score: float64(h.Score), Payload: h.Payload}
	})
	results := s.ranker.Rank(q, candidates, s.opts.Limit, s.opts.TopK)

	latency := s.now().Sub(start)
	resp := Response{
		Query:   q,
		Results: results,
		Sources: sourceStats(results),
		Answer:  BuildAnswer(q, results),
		Debug: Debug{
			LatencyMS:    latency.Milliseconds(),
			VectorHits:   len(hits),
			FinalResults: len(results),
			EmptyResult:  len(results) == 0,
		},
	}

	if s.metrics != nil {
		s.metrics.Histogram("search_seconds", "search latency", nil).Observe(latency.Seconds())
		if resp.Debug.EmptyResult {
			s.metrics.Counter("search_empty_total", "searches with no results").Inc()
		}
	}
	s.record(ctx, raw, q, resp)
	return resp
}

// fetch embeds the query and pulls vector candidates. Any fault yields an
// empty candidate set, logged but not propagated. The embed call gets one
// retry; a transient embedder hiccup should not blank a user's search.
func (s *Service) fetch(ctx context.Context, q queryparse.StructuredQuery) []semantic.Hit {
	res := fn.Retry(ctx, 2, 100*time.Millisecond, func(ctx context.Context) fn.Result[[]float32] {
		return fn.FromPair(s.embedder.Embed(ctx, embedText(q)))
	})
	vec, err := res.Unwrap()
	if err != nil {
		s.log.Warn("search: embed failed", "error", err)
		return nil
	}
	var hits []semantic.Hit
	if filters := payloadFilters(q); len(filters) > 0 {
		hits, err = s.searcher.SearchFiltered(ctx, vec, s.opts.TopK, filters)
	} else {
		hits, err = s.searcher.Search(ctx, vec, s.opts.TopK)
	}
	if err != nil {
		s.log.Warn("search: vector search failed", "error", err)
		return nil
	}
	return hits
}

// payloadFilters maps extracted query attributes onto indexed keyword
// fields, narrowing the candidate set before ranking.
func payloadFilters(q queryparse.StructuredQuery) map[string]string {
	filters := map[string]string{}
	if q.Fuel != "" {
		filters[listing.KeyFuel] = q.Fuel
	}
	if q.PaintCondition != "" {
		filters[listing.KeyPaintCondition] = q.PaintCondition
	}
	return filters
}

// embedText builds the embedding input from the structured fields so that
// query-side and ingest-side vocabularies line up; the raw text is the
// fallback when nothing was extracted.
func embedText(q queryparse.StructuredQuery) string {
	var parts []string
	if q.Brand != "" {
		parts = append(parts, q.Brand)
	}
	if q.Model != "" {
		parts = append(parts, q.Model)
	}
	if q.Fuel != "" {
		parts = append(parts, q.Fuel)
	}
	if q.PaintCondition != "" {
		parts = append(parts, q.PaintCondition)
	}
	if q.City != "" {
		parts = append(parts, q.City)
	}
	parts = append(parts, q.Keywords...)
	if len(parts) == 0 {
		return q.RawText
	}
	return strings.Join(parts, " ")
}

func sourceStats(results []rank.Result) []SourceStat {
	counts := map[string]int{}
	var order []string
	for _, r := range results {
		src := r.Payload.Source
		if src == "" {
			src = "unknown"
		}
		if _, seen := counts[src]; !seen {
			order = append(order, src)
		}
		counts[src]++
	}
	stats := make([]SourceStat, 0, len(order))
	for _, src := range order {
		stats = append(stats, SourceStat{Source: src, Count: counts[src]})
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
	return stats
}

// record writes the search to history, best-effort.
func (s *Service) record(ctx context.Context, raw string, q queryparse.StructuredQuery, resp Response) {
	if s.recorder == nil {
		return
	}
	structured, err := json.Marshal(q)
	if err != nil {
		structured = nil
	}
	s.recorder.Record(ctx, history.Entry{
		Query:       raw,
		Structured:  structured,
		ResultCount: len(resp.Results),
		LatencyMS:   resp.Debug.LatencyMS,
	})
}
