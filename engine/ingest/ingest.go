// Package ingest runs scraped listings through the quality gate, enriches
// kept records with extracted signals, embeds them, and indexes them in the
// vector store. It also hosts the NATS consumer with retry and DLQ support.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/gate"
	"github.com/CarSpotAI/carspot-mvp/engine/listing"
	"github.com/CarSpotAI/carspot-mvp/engine/semantic"
	"github.com/CarSpotAI/carspot-mvp/pkg/fn"
	"github.com/CarSpotAI/carspot-mvp/pkg/metrics"
	"github.com/CarSpotAI/carspot-mvp/pkg/natsutil"
	"github.com/CarSpotAI/carspot-mvp/pkg/resilience"
)

const (
	// Subject is the NATS subject scraping adapters publish listings to.
	Subject = "engine.listings"
	// DLQSubject receives listings that failed MaxRetries times.
	DLQSubject = "engine.listings.dlq"
	// MaxRetries before a message is dead-lettered.
	MaxRetries = 3
)

// Embedder turns text into a fixed-dimensionality vector. The pipeline is
// provider-agnostic.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Indexer stores enriched, embedded listings and evicts ones that no
// longer pass the gate.
type Indexer interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	DeleteBySourceURL(ctx context.Context, sourceURL string) error
}

// Deps holds the external dependencies of the ingestion pipeline.
type Deps struct {
	Gate     *gate.Gate
	Catalog  catalog.Catalog
	Embedder Embedder
	Store    Indexer
	// Limiter bounds embedder call rate; nil disables limiting.
	Limiter *resilience.Limiter
	Metrics *metrics.Registry
	Logger  *slog.Logger
	// Now supplies ingestion time for records without a source timestamp.
	Now func() time.Time
}

// Outcome is the result of processing one record: either a skip with the
// gate's reason, or the indexed point ID.
type Outcome struct {
	Skipped bool        `json:"skipped"`
	Reason  gate.Reason `json:"reason"`
	PointID string      `json:"point_id,omitempty"`
}

// enriched is a kept record folded together with its extracted payload.
type enriched struct {
	rec     listing.Record
	payload listing.IndexPayload
}

type embedded struct {
	enriched
	vector []float32
}

// Pipeline is the gate→enrich→embed→index flow for one record.
type Pipeline struct {
	deps Deps
}

// NewPipeline wires the ingestion pipeline.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}
}

// Process runs one record through the pipeline. Gate skips are a normal
// outcome, not an error; only embedder/indexer faults return an error.
func (p *Pipeline) Process(ctx context.Context, rec listing.Record) (Outcome, error) {
	d := p.deps.Gate.Classify(rec.Text(), rec.Source)
	p.countDecision(d.Reason)
	if d.Skip {
		p.deps.Logger.Info("ingest: skipped",
			"reason", d.Reason, "source", rec.Source, "url", rec.SourceURL)
		// A re-scraped page that no longer passes the gate (edited post,
		// sold listing) must not linger in the index. Eviction is
		// best-effort; a miss is a no-op.
		if rec.SourceURL != "" {
			if err := p.deps.Store.DeleteBySourceURL(ctx, rec.SourceURL); err != nil {
				p.deps.Logger.Warn("ingest: evict failed", "url", rec.SourceURL, "error", err)
			}
		}
		return Outcome{Skipped: true, Reason: d.Reason}, nil
	}

	embedStage := p.embedStage()
	if p.deps.Limiter != nil {
		embedStage = resilience.LimiterStageWait(p.deps.Limiter, embedStage)
	}
	pipeline := fn.Then(
		fn.TracedStage("ingest.enrich", p.enrichStage(d)),
		fn.Then(
			fn.TracedStage("ingest.embed", embedStage),
			fn.TracedStage("ingest.index", p.indexStage()),
		),
	)

	res := pipeline(ctx, rec)
	if res.IsErr() {
		_, err := res.Unwrap()
		if p.deps.Metrics != nil {
			p.deps.Metrics.Counter("ingest_failures_total", "pipeline failures past the gate").Inc()
		}
		return Outcome{}, err
	}
	pointID, _ := res.Unwrap()
	if p.deps.Metrics != nil {
		p.deps.Metrics.Counter("ingest_indexed_total", "listings indexed").Inc()
	}
	p.deps.Logger.Info("ingest: indexed", "point_id", pointID, "source", rec.Source)
	return Outcome{Reason: gate.ReasonOK, PointID: pointID}, nil
}

// enrichStage folds the gate decision and extracted signals into the index
// payload, normalizing created_at with its provenance tag.
func (p *Pipeline) enrichStage(d gate.Decision) fn.Stage[listing.Record, enriched] {
	return func(_ context.Context, rec listing.Record) fn.Result[enriched] {
		text := rec.Text()
		sig := p.deps.Gate.Signals(text)
		brand, conf := p.deps.Catalog.Match(text)

		payload := listing.IndexPayload{
			Brand:           brand,
			BrandConfidence: conf,
			Title:           rec.Title,
			Year:            sig.Year,
			Mileage:         sig.MileageKM,
			Price:           sig.Price,
			Fuel:            sig.Fuel,
			PaintCondition:  sig.PaintCondition,
			Source:          rec.Source,
			SourceURL:       rec.SourceURL,
			SaleIntent:      d.SaleIntent,
			QualityScore:    d.QualityScore,
		}
		if !rec.CreatedAt.IsZero() {
			payload.CreatedAt = rec.CreatedAt.Unix()
			payload.CreatedAtSource = listing.CreatedAtFromSource
		} else {
			payload.CreatedAt = p.deps.Now().Unix()
			payload.CreatedAtSource = listing.CreatedAtFromIngested
		}
		return fn.Ok(enriched{rec: rec, payload: payload})
	}
}

func (p *Pipeline) embedStage() fn.Stage[enriched, embedded] {
	return func(ctx context.Context, e enriched) fn.Result[embedded] {
		vec, err := p.deps.Embedder.Embed(ctx, e.rec.Text())
		if err != nil {
			return fn.Errf[embedded]("embed: %w", err)
		}
		return fn.Ok(embedded{enriched: e, vector: vec})
	}
}

func (p *Pipeline) indexStage() fn.Stage[embedded, string] {
	return func(ctx context.Context, e embedded) fn.Result[string] {
		pointID := PointID(e.rec.SourceURL)
		rec := semantic.VectorRecord{
			ID:        pointID,
			Embedding: e.vector,
			Payload:   e.payload,
		}
		if err := p.deps.Store.Upsert(ctx, []semantic.VectorRecord{rec}); err != nil {
			return fn.Errf[string]("vector upsert: %w", err)
		}
		return fn.Ok(pointID)
	}
}

// PointID derives the deterministic vector point ID for a listing URL, so
// re-ingesting the same page overwrites rather than duplicates.
func PointID(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()
}

func (p *Pipeline) countDecision(reason gate.Reason) {
	if p.deps.Metrics == nil {
		return
	}
	p.deps.Metrics.Counter(
		metrics.WithLabels("gate_decisions_total", "reason", string(reason)),
		"gate decisions by reason",
	).Inc()
}

// dlqMessage is published to the DLQ after repeated pipeline failures.
type dlqMessage struct {
	Record  listing.Record `json:"record"`
	Error   string         `json:"error"`
	Retries int            `json:"retries"`
}

// StartConsumer subscribes the pipeline to the listings subject. Pipeline
// failures are re-published with a retry header and dead-lettered after
// MaxRetries; gate skips are final and never retried.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := pipeline.deps.Logger

	return natsutil.SubscribeMsg(nc, Subject, func(ctx context.Context, msg *nats.Msg) {
		var rec listing.Record
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		outcome, err := pipeline.Process(ctx, rec)
		if err == nil {
			if !outcome.Skipped {
				log.Info("ingest: done", "point_id", outcome.PointID)
			}
			return
		}

		retries := natsutil.RetryCount(msg) + 1
		log.Error("ingest: pipeline failed",
			"error", err, "url", rec.SourceURL, "retry", retries)

		if retries >= MaxRetries {
			dlq := dlqMessage{Record: rec, Error: err.Error(), Retries: retries}
			if perr := natsutil.Publish(ctx, nc, DLQSubject, dlq); perr != nil {
				log.Error("ingest: DLQ publish failed", "error", perr)
			}
			return
		}
		if perr := natsutil.PublishRetry(ctx, nc, Subject, rec, retries); perr != nil {
			log.Error("ingest: retry publish failed", "error", perr)
		}
	})
}
