package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tripmesh/trustd/internal/engine"
	"github.com/tripmesh/trustd/internal/trust"
)

// TrustEngine runs full recomputes on behalf of authenticated callers.
type TrustEngine interface {
	ComputeFull(ctx context.Context, userID uuid.UUID) (*engine.Result, error)
}

// SnapshotReader serves the stored snapshot for profile rendering.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, userID uuid.UUID) (*trust.Snapshot, error)
}

// PriceSource serves cached asset prices.
type PriceSource interface {
	Price(ctx context.Context, asset string) (float64, error)
}

type Server struct {
	router *chi.Mux
	port   int
	engine TrustEngine
	snaps  SnapshotReader
	prices PriceSource
	logger *slog.Logger
}

func NewServer(port int, apiToken string, eng TrustEngine, snaps SnapshotReader,
	prices PriceSource, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		engine: eng,
		snaps:  snaps,
		prices: prices,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1/trust", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/{userID}", s.getTrust)
		r.Post("/{userID}/recompute", s.recompute)
	})
	router.Get("/api/v1/price/{asset}", s.getPrice)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("api server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
