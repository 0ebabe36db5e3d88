package processor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tripmesh/trustd/internal/bus"
	"github.com/tripmesh/trustd/internal/engine"
)

// TrustEngine is the slice of the recompute engine the processor drives.
type TrustEngine interface {
	ComputeFull(ctx context.Context, userID uuid.UUID) (*engine.Result, error)
	ComputeFromStored(ctx context.Context, userID uuid.UUID) error
}

// Processor bridges bus subjects to the recompute engine. Malformed
// payloads are logged and dropped; a bus consumer must never crash over
// one bad message.
type Processor struct {
	engine TrustEngine
	logger *slog.Logger
}

func New(eng TrustEngine, logger *slog.Logger) *Processor {
	return &Processor{engine: eng, logger: logger}
}

// HandleSignalMutation is the NATS handler for tripmesh.signal.>. The
// mutating subsystem already persisted the signal, so a stored-only
// rescore is all that is needed.
func (p *Processor) HandleSignalMutation(subject string, data []byte) {
	ctx := context.Background()

	var evt bus.SignalMutationEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse signal event", "subject", subject, "error", err)
		return
	}

	userID, err := uuid.Parse(evt.UserID)
	if err != nil {
		p.logger.Error("invalid user id in signal event", "subject", subject, "user_id", evt.UserID, "error", err)
		return
	}

	p.logger.Info("signal mutation received", "subject", subject, "user_id", userID)

	if err := p.engine.ComputeFromStored(ctx, userID); err != nil {
		p.logger.Error("stored recompute failed", "user_id", userID, "error", err)
	}
}

// HandleRecomputeRequest is the NATS handler for tripmesh.trust.recompute.
func (p *Processor) HandleRecomputeRequest(subject string, data []byte) {
	ctx := context.Background()

	var req bus.RecomputeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		p.logger.Error("failed to parse recompute request", "error", err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		p.logger.Error("invalid user id in recompute request", "user_id", req.UserID, "error", err)
		return
	}

	p.logger.Info("recompute requested", "user_id", userID, "reason", req.Reason)

	if _, err := p.engine.ComputeFull(ctx, userID); err != nil {
		p.logger.Error("full recompute failed", "user_id", userID, "error", err)
	}
}
