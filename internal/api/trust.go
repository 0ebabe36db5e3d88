package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tripmesh/trustd/internal/trust"
)

type trustResponse struct {
	UserID              string          `json:"user_id"`
	Scores              trust.Breakdown `json:"scores"`
	PeerConnectionCount int             `json:"peer_connection_count"`
	WalletVerified      bool            `json:"wallet_verified"`
	UpdatedAt           *time.Time      `json:"updated_at,omitempty"`
}

// recompute handles POST /api/v1/trust/{userID}/recompute.
func (s *Server) recompute(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}

	res, err := s.engine.ComputeFull(r.Context(), userID)
	if err != nil {
		s.logger.Error("recompute failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"recompute failed"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, trustResponse{
		UserID:              res.UserID.String(),
		Scores:              res.Scores,
		PeerConnectionCount: res.PeerConnectionCount,
		WalletVerified:      res.WalletVerified,
	})
}

// getTrust handles GET /api/v1/trust/{userID}.
func (s *Server) getTrust(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}

	snap, err := s.snaps.GetSnapshot(r.Context(), userID)
	if err != nil {
		s.logger.Error("snapshot read failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"snapshot read failed"}`, http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, `{"error":"no trust snapshot"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, trustResponse{
		UserID:              snap.UserID.String(),
		Scores:              snap.Scores,
		PeerConnectionCount: snap.Signals.PeerConnectionCount,
		WalletVerified:      snap.Signals.WalletVerified,
		UpdatedAt:           &snap.UpdatedAt,
	})
}
