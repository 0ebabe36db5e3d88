package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tripmesh/trustd/internal/price"
)

// getPrice handles GET /api/v1/price/{asset}.
func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	usd, err := s.prices.Price(r.Context(), asset)
	if err != nil {
		if errors.Is(err, price.ErrUnknownAsset) {
			http.Error(w, `{"error":"unknown asset"}`, http.StatusNotFound)
			return
		}
		s.logger.Error("price lookup failed", "asset", asset, "error", err)
		http.Error(w, `{"error":"price lookup failed"}`, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "usd": usd})
}
