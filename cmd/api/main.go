// Package main implements the CarSpot search API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/CarSpotAI/carspot-mvp/engine/catalog"
	"github.com/CarSpotAI/carspot-mvp/engine/queryparse"
	"github.com/CarSpotAI/carspot-mvp/engine/rank"
	"github.com/CarSpotAI/carspot-mvp/engine/search"
	"github.com/CarSpotAI/carspot-mvp/engine/semantic"
	"github.com/CarSpotAI/carspot-mvp/engine/signals"
	"github.com/CarSpotAI/carspot-mvp/pkg/history"
	"github.com/CarSpotAI/carspot-mvp/pkg/metrics"
	"github.com/CarSpotAI/carspot-mvp/pkg/mid"
	"github.com/CarSpotAI/carspot-mvp/pkg/ollama"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	OllamaURL   string
	EmbedModel  string
	QdrantURL   string
	Collection  string
	DatabaseURL string
	CORSOrigin  string
	SearchLimit int
	SearchTopK  int
}

func loadConfig() Config {
	_ = godotenv.Load()
	return Config{
		Port:        envOr("PORT", "8080"),
		OllamaURL:   envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:  envOr("EMBED_MODEL", "nomic-embed-text"),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		Collection:  envOr("QDRANT_COLLECTION", "carspot_listings"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
		SearchLimit: envIntOr("SEARCH_LIMIT", 10),
		SearchTopK:  envIntOr("SEARCH_TOP_K", 50),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)

	var histStore *history.Store
	if cfg.DatabaseURL != "" {
		histStore, err = history.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("history store: %w", err)
		}
		defer histStore.Close()
	} else {
		logger.Warn("DATABASE_URL not set, search history disabled")
	}

	reg := metrics.New()

	cat := catalog.Default()
	ex := signals.New(signals.DefaultOptions())
	parser := queryparse.New(cat, ex)
	ranker := rank.New(cat, rank.DefaultOptions())

	var recorder search.Recorder
	if histStore != nil {
		recorder = histStore
	}
	svc := search.New(parser, ranker, embedder, vectorStore, recorder, reg, logger,
		search.Options{Limit: cfg.SearchLimit, TopK: cfg.SearchTopK})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/v1/search", handleSearch(svc))
	mux.HandleFunc("GET /api/v1/search/history", handleHistory(histStore))
	mux.HandleFunc("GET /api/v1/analytics/top-queries", handleTopQueries(histStore))
	mux.HandleFunc("GET /api/v1/analytics/empty-queries", handleEmptyQueries(histStore))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("carspot-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// SearchRequest is the JSON body for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
}

func handleSearch(svc *search.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}

		resp := svc.Search(r.Context(), req.Query)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleHistory(store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, `{"error":"history disabled"}`, http.StatusNotImplemented)
			return
		}
		entries, err := store.Recent(r.Context(), envIntOr("HISTORY_LIMIT", 50))
		if err != nil {
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"history": entries})
	}
}

func handleTopQueries(store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, `{"error":"history disabled"}`, http.StatusNotImplemented)
			return
		}
		stats, err := store.TopQueries(r.Context(), 20)
		if err != nil {
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"top_queries": stats})
	}
}

func handleEmptyQueries(store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, `{"error":"history disabled"}`, http.StatusNotImplemented)
			return
		}
		stats, err := store.EmptyQueries(r.Context(), 20)
		if err != nil {
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"empty_queries": stats})
	}
}
