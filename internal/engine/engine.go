// Package engine orchestrates trust recomputes. A full recompute fans out
// to the signal collectors and merges their partial results into the stored
// snapshot; a stored-only recompute rescores what is already persisted.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripmesh/trustd/internal/accountage"
	"github.com/tripmesh/trustd/internal/bus"
	"github.com/tripmesh/trustd/internal/identity"
	"github.com/tripmesh/trustd/internal/ledger"
	"github.com/tripmesh/trustd/internal/metrics"
	"github.com/tripmesh/trustd/internal/trust"
)

// SnapshotStore is the persistence surface the engine needs: the snapshot
// row it owns plus read-only views into collaborating subsystems' tables.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, userID uuid.UUID) (*trust.Snapshot, error)
	UpsertSnapshot(ctx context.Context, snap *trust.Snapshot) error
	UpdateScores(ctx context.Context, userID uuid.UUID, scores trust.Breakdown) error
	CompletedConnectionCount(ctx context.Context, userID uuid.UUID) (int, error)
	VerifiedWalletAddress(ctx context.Context, userID uuid.UUID) (string, error)
	MessagingPlatformID(ctx context.Context, userID uuid.UUID) (int64, error)
}

type WalletEnricher interface {
	Enrich(ctx context.Context, address string) ledger.Enrichment
}

type IdentityRefresher interface {
	Refresh(ctx context.Context, refreshToken string) identity.Outcome
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Result is what a full recompute hands back to its caller.
type Result struct {
	UserID              uuid.UUID
	Scores              trust.Breakdown
	PeerConnectionCount int
	WalletVerified      bool
}

type Engine struct {
	store     SnapshotStore
	wallet    WalletEnricher
	identity  IdentityRefresher
	publisher Publisher
	estimator *accountage.Estimator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func New(store SnapshotStore, wallet WalletEnricher, refresher IdentityRefresher,
	publisher Publisher, estimator *accountage.Estimator, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		wallet:    wallet,
		identity:  refresher,
		publisher: publisher,
		estimator: estimator,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ComputeFull reloads every applicable signal and rescores. Collector and
// collaborator failures keep the prior value; only reading or writing the
// snapshot row itself fails the invocation. The single write happens after
// all collection resolves, so an aborted invocation writes nothing.
func (e *Engine) ComputeFull(ctx context.Context, userID uuid.UUID) (*Result, error) {
	start := e.now()

	prior, err := e.store.GetSnapshot(ctx, userID)
	if err != nil {
		e.metrics.RecordRecompute("full", "error", e.now().Sub(start).Seconds())
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if prior == nil {
		prior = &trust.Snapshot{UserID: userID}
	}

	u := e.collect(ctx, userID, prior)

	next := mergeSnapshot(prior, u)
	next.UserID = userID
	next.Scores = trust.Score(next.Signals)
	next.UpdatedAt = e.now()

	if err := e.store.UpsertSnapshot(ctx, next); err != nil {
		e.metrics.RecordRecompute("full", "error", e.now().Sub(start).Seconds())
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	e.publishUpdated(userID, next.Scores, "full")
	e.metrics.RecordRecompute("full", "ok", e.now().Sub(start).Seconds())
	e.metrics.CompositeScore.Observe(float64(next.Scores.Composite))
	e.logger.Info("trust recomputed",
		"user_id", userID,
		"mode", "full",
		"composite", next.Scores.Composite,
		"legacy_level", next.Scores.LegacyLevel,
	)

	return &Result{
		UserID:              userID,
		Scores:              next.Scores,
		PeerConnectionCount: next.Signals.PeerConnectionCount,
		WalletVerified:      next.Signals.WalletVerified,
	}, nil
}

// ComputeFromStored rescores the stored signals without touching any
// collector. A missing row is a no-op: there is nothing to score yet.
func (e *Engine) ComputeFromStored(ctx context.Context, userID uuid.UUID) error {
	start := e.now()

	snap, err := e.store.GetSnapshot(ctx, userID)
	if err != nil {
		e.metrics.RecordRecompute("stored", "error", e.now().Sub(start).Seconds())
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		e.metrics.RecordRecompute("stored", "noop", e.now().Sub(start).Seconds())
		e.logger.Debug("no snapshot to rescore", "user_id", userID)
		return nil
	}

	scores := trust.Score(snap.Signals)
	if err := e.store.UpdateScores(ctx, userID, scores); err != nil {
		e.metrics.RecordRecompute("stored", "error", e.now().Sub(start).Seconds())
		return fmt.Errorf("write scores: %w", err)
	}

	e.publishUpdated(userID, scores, "stored")
	e.metrics.RecordRecompute("stored", "ok", e.now().Sub(start).Seconds())
	e.metrics.CompositeScore.Observe(float64(scores.Composite))
	e.logger.Info("trust recomputed",
		"user_id", userID,
		"mode", "stored",
		"composite", scores.Composite,
		"legacy_level", scores.LegacyLevel,
	)
	return nil
}

// collect fans out to every applicable source concurrently. The sources
// are independent; each goroutine writes only its own slot and nothing
// reads the updates until Wait returns.
func (e *Engine) collect(ctx context.Context, userID uuid.UUID, prior *trust.Snapshot) updates {
	var u updates
	var wg sync.WaitGroup

	if prior.Signals.WalletVerified {
		wg.Add(1)
		go func() {
			defer wg.Done()
			address, err := e.store.VerifiedWalletAddress(ctx, userID)
			if err != nil {
				e.logger.Warn("wallet address lookup failed", "user_id", userID, "error", err)
				e.metrics.RecordCollectorFailure("wallet_address")
				return
			}
			if address == "" {
				return
			}
			u.wallet = e.wallet.Enrich(ctx, address)
		}()
	}

	if prior.RefreshToken != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := e.identity.Refresh(ctx, prior.RefreshToken)
			u.identity = &outcome
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		count, err := e.store.CompletedConnectionCount(ctx, userID)
		if err != nil {
			e.logger.Warn("connection count failed", "user_id", userID, "error", err)
			e.metrics.RecordCollectorFailure("connections")
			return
		}
		u.connections = &count
	}()

	// Account age is estimated once and then cached on the snapshot.
	if prior.Signals.AccountAgeDays == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			platformID, err := e.store.MessagingPlatformID(ctx, userID)
			if err != nil {
				e.logger.Warn("messaging link lookup failed", "user_id", userID, "error", err)
				e.metrics.RecordCollectorFailure("messaging_link")
				return
			}
			if platformID == 0 {
				return
			}
			if days, ok := e.estimator.EstimateDays(platformID, e.now()); ok {
				u.accountAge = &days
			}
		}()
	}

	wg.Wait()
	return u
}

func (e *Engine) publishUpdated(userID uuid.UUID, scores trust.Breakdown, mode string) {
	event := bus.TrustUpdatedEvent{
		UserID:      userID.String(),
		Composite:   scores.Composite,
		LegacyLevel: scores.LegacyLevel,
		Mode:        mode,
	}
	if err := e.publisher.Publish(bus.SubjectTrustUpdated, event); err != nil {
		e.logger.Warn("publish trust update failed", "user_id", userID, "error", err)
	}
}
