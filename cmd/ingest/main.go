// Command ingest consumes scraped listings from NATS, runs them through the
// quality gate and enrichment pipeline, and indexes kept listings in Qdrant.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/gate"
	"github.com/CarSpotAI/carspot-mvp/engine/ingest"
	"github.com/CarSpotAI/carspot-mvp/engine/semantic"
	"github.com/CarSpotAI/carspot-mvp/engine/signals"
	"github.com/CarSpotAI/carspot-mvp/pkg/metrics"
	"github.com/CarSpotAI/carspot-mvp/pkg/ollama"
	"github.com/CarSpotAI/carspot-mvp/pkg/resilience"
)

const vectorDims = 768 // nomic-embed-text

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		ollamaModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "carspot_listings", "Qdrant collection name")
		metricsPort = flag.Int("metrics-port", 9091, "Prometheus metrics port")
		embedRate   = flag.Float64("embed-rate", 10, "max embedder calls per second")
		gatePolicy  = flag.String("gate-policy", string(gate.PolicyIntentOnly), "gate policy: intent_only or intent_and_signals")
		recreate    = flag.Bool("recreate", false, "drop and recreate the collection before consuming")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.ServeAsync(*metricsPort)

	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		logger.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if *recreate {
		if err := vs.DeleteCollection(ctx); err != nil {
			logger.Warn("qdrant delete collection failed", "error", err)
		} else {
			logger.Info("dropped collection for reindex", "collection", *collection)
		}
	}
	if err := vs.EnsureCollection(ctx, vectorDims); err != nil {
		logger.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Qdrant", "collection", *collection, "dims", vectorDims)

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		logger.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()
	logger.Info("connected to NATS", "url", *natsURL)

	cat := catalog.Default()
	ex := signals.New(signals.DefaultOptions())
	gateOpts := gate.DefaultOptions()
	gateOpts.Policy = gate.Policy(*gatePolicy)

	deps := ingest.Deps{
		Gate:     gate.New(cat, ex, gateOpts),
		Catalog:  cat,
		Embedder: ollama.NewEmbedClient(*ollamaURL, *ollamaModel),
		Store:    vs,
		Limiter:  resilience.NewLimiter(resilience.LimiterOpts{Rate: *embedRate, Burst: 5}),
		Metrics:  reg,
		Logger:   logger,
	}

	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	logger.Info("ingest worker running",
		"subject", ingest.Subject, "dlq", ingest.DLQSubject, "policy", *gatePolicy)

	<-ctx.Done()
	logger.Info("shutting down")
}
