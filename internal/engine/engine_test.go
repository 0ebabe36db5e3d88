package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tripmesh/trustd/internal/accountage"
	"github.com/tripmesh/trustd/internal/bus"
	"github.com/tripmesh/trustd/internal/identity"
	"github.com/tripmesh/trustd/internal/ledger"
	"github.com/tripmesh/trustd/internal/metrics"
	"github.com/tripmesh/trustd/internal/trust"
)

type fakeStore struct {
	snap      *trust.Snapshot
	getErr    error
	upsertErr error
	updateErr error

	connCount    int
	connErr      error
	walletAddr   string
	walletErr    error
	messagingID  int64
	messagingErr error

	upserted         *trust.Snapshot
	updatedScores    *trust.Breakdown
	walletAddrCalled bool
	messagingCalled  bool
}

func (f *fakeStore) GetSnapshot(ctx context.Context, userID uuid.UUID) (*trust.Snapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.snap == nil {
		return nil, nil
	}
	snap := *f.snap
	return &snap, nil
}

func (f *fakeStore) UpsertSnapshot(ctx context.Context, snap *trust.Snapshot) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = snap
	return nil
}

func (f *fakeStore) UpdateScores(ctx context.Context, userID uuid.UUID, scores trust.Breakdown) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedScores = &scores
	return nil
}

func (f *fakeStore) CompletedConnectionCount(ctx context.Context, userID uuid.UUID) (int, error) {
	if f.connErr != nil {
		return 0, f.connErr
	}
	return f.connCount, nil
}

func (f *fakeStore) VerifiedWalletAddress(ctx context.Context, userID uuid.UUID) (string, error) {
	f.walletAddrCalled = true
	if f.walletErr != nil {
		return "", f.walletErr
	}
	return f.walletAddr, nil
}

func (f *fakeStore) MessagingPlatformID(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.messagingCalled = true
	if f.messagingErr != nil {
		return 0, f.messagingErr
	}
	return f.messagingID, nil
}

type fakeEnricher struct {
	enr     ledger.Enrichment
	called  bool
	gotAddr string
}

func (f *fakeEnricher) Enrich(ctx context.Context, address string) ledger.Enrichment {
	f.called = true
	f.gotAddr = address
	return f.enr
}

type fakeRefresher struct {
	out      identity.Outcome
	called   bool
	gotToken string
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) identity.Outcome {
	f.called = true
	f.gotToken = refreshToken
	return f.out
}

type published struct {
	subject string
	payload any
}

type fakePublisher struct {
	err    error
	events []published
}

func (f *fakePublisher) Publish(subject string, data any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{subject: subject, payload: data})
	return nil
}

func newTestEngine(store *fakeStore, enricher *fakeEnricher, refresher *fakeRefresher, publisher *fakePublisher) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	return New(store, enricher, refresher, publisher, accountage.New(accountage.DefaultTable()), m, logger)
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestComputeFull_EstablishedUser(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap: &trust.Snapshot{
			UserID: userID,
			Signals: trust.Signals{
				WalletVerified:  true,
				HasPublicHandle: true,
				AccountAgeDays:  intPtr(400),
			},
			RefreshToken: "stored-token",
		},
		connCount:  35,
		walletAddr: "wallet-addr",
	}
	enricher := &fakeEnricher{enr: ledger.Enrichment{
		AgeDays:   intPtr(120),
		TxCount:   intPtr(15),
		HasTokens: boolPtr(true),
	}}
	refresher := &fakeRefresher{out: identity.Outcome{
		Status:       identity.StatusSuccess,
		RefreshToken: "rotated-token",
		Premium:      boolPtr(true),
	}}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, enricher, refresher, publisher)

	res, err := eng.ComputeFull(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := trust.Breakdown{Handshakes: 30, Wallet: 20, Socials: 16, Composite: 66, LegacyLevel: 5}
	if res.Scores != want {
		t.Errorf("expected scores %+v, got %+v", want, res.Scores)
	}
	if res.PeerConnectionCount != 35 {
		t.Errorf("expected 35 connections, got %d", res.PeerConnectionCount)
	}
	if !res.WalletVerified {
		t.Error("expected wallet verified in result")
	}

	if enricher.gotAddr != "wallet-addr" {
		t.Errorf("expected enrichment for wallet-addr, got %q", enricher.gotAddr)
	}
	if refresher.gotToken != "stored-token" {
		t.Errorf("expected refresh with stored token, got %q", refresher.gotToken)
	}

	if store.upserted == nil {
		t.Fatal("expected a snapshot write")
	}
	if store.upserted.RefreshToken != "rotated-token" {
		t.Errorf("expected rotated token persisted, got %q", store.upserted.RefreshToken)
	}
	if !store.upserted.Signals.IdentityVerified || !store.upserted.Signals.IdentityPremium {
		t.Errorf("expected identity signals set, got %+v", store.upserted.Signals)
	}
	if store.upserted.Signals.WalletAgeDays == nil || *store.upserted.Signals.WalletAgeDays != 120 {
		t.Errorf("expected wallet age 120, got %v", store.upserted.Signals.WalletAgeDays)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	if publisher.events[0].subject != bus.SubjectTrustUpdated {
		t.Errorf("expected subject %s, got %s", bus.SubjectTrustUpdated, publisher.events[0].subject)
	}
	event, ok := publisher.events[0].payload.(bus.TrustUpdatedEvent)
	if !ok {
		t.Fatalf("expected TrustUpdatedEvent payload, got %T", publisher.events[0].payload)
	}
	if event.Composite != 66 || event.LegacyLevel != 5 || event.Mode != "full" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestComputeFull_FirstRecomputeCreatesRow(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{connCount: 5}
	enricher := &fakeEnricher{}
	refresher := &fakeRefresher{}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, enricher, refresher, publisher)

	res, err := eng.ComputeFull(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Scores.Composite != 5 || res.Scores.LegacyLevel != 1 {
		t.Errorf("expected composite 5 level 1, got %+v", res.Scores)
	}
	if enricher.called {
		t.Error("wallet enrichment must not run without a verified wallet")
	}
	if refresher.called {
		t.Error("identity refresh must not run without a stored token")
	}
	if store.upserted == nil || store.upserted.UserID != userID {
		t.Errorf("expected a new row for %s, got %+v", userID, store.upserted)
	}
}

func TestComputeFull_CollectorFailuresKeepPrior(t *testing.T) {
	userID := uuid.New()
	prior := trust.Signals{
		PeerConnectionCount: 12,
		WalletVerified:      true,
		WalletAgeDays:       intPtr(120),
		WalletTxCount:       intPtr(15),
		WalletHasTokens:     true,
		IdentityVerified:    true,
		IdentityPremium:     true,
		AccountAgeDays:      intPtr(400),
	}
	store := &fakeStore{
		snap:       &trust.Snapshot{UserID: userID, Signals: prior, RefreshToken: "stored-token"},
		connErr:    errors.New("connections timeout"),
		walletAddr: "wallet-addr",
	}
	enricher := &fakeEnricher{} // every field nil: both sub-queries failed
	refresher := &fakeRefresher{out: identity.Outcome{Status: identity.StatusTransient}}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, enricher, refresher, publisher)

	_, err := eng.ComputeFull(context.Background(), userID)
	if err != nil {
		t.Fatalf("collector failures must not fail the invocation: %v", err)
	}

	if store.upserted == nil {
		t.Fatal("expected a snapshot write")
	}
	if !reflect.DeepEqual(store.upserted.Signals, prior) {
		t.Errorf("expected prior signals retained, got %+v", store.upserted.Signals)
	}
	if store.upserted.RefreshToken != "stored-token" {
		t.Errorf("expected stored token retained, got %q", store.upserted.RefreshToken)
	}
}

func TestComputeFull_RevocationClearsIdentity(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap: &trust.Snapshot{
			UserID: userID,
			Signals: trust.Signals{
				PeerConnectionCount: 8,
				IdentityVerified:    true,
				IdentityPremium:     true,
				HasPublicHandle:     true,
			},
			RefreshToken: "dead-token",
		},
		connCount: 8,
	}
	refresher := &fakeRefresher{out: identity.Outcome{Status: identity.StatusRevoked}}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, &fakeEnricher{}, refresher, publisher)

	res, err := eng.ComputeFull(context.Background(), userID)
	if err != nil {
		t.Fatalf("revocation must not fail the invocation: %v", err)
	}

	if store.upserted.Signals.IdentityVerified || store.upserted.Signals.IdentityPremium {
		t.Errorf("expected identity cleared, got %+v", store.upserted.Signals)
	}
	if store.upserted.RefreshToken != "" {
		t.Errorf("expected token cleared, got %q", store.upserted.RefreshToken)
	}
	if !store.upserted.Signals.HasPublicHandle {
		t.Error("revocation must not clear unrelated signals")
	}
	// 8 handshakes + 4 for the public handle.
	if res.Scores.Composite != 12 {
		t.Errorf("expected composite 12 after revocation, got %d", res.Scores.Composite)
	}
}

func TestComputeFull_ProfileFailureStillRotatesToken(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap: &trust.Snapshot{
			UserID:       userID,
			Signals:      trust.Signals{IdentityVerified: true, IdentityPremium: true},
			RefreshToken: "stored-token",
		},
	}
	refresher := &fakeRefresher{out: identity.Outcome{
		Status:       identity.StatusSuccess,
		RefreshToken: "rotated-token",
	}}
	eng := newTestEngine(store, &fakeEnricher{}, refresher, &fakePublisher{})

	if _, err := eng.ComputeFull(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.upserted.RefreshToken != "rotated-token" {
		t.Errorf("rotated token must be persisted, got %q", store.upserted.RefreshToken)
	}
	if !store.upserted.Signals.IdentityPremium {
		t.Error("unknown premium must keep the prior value")
	}
	if !store.upserted.Signals.IdentityVerified {
		t.Error("successful refresh must keep identity verified")
	}
}

func TestComputeFull_SnapshotLoadErrorIsFatal(t *testing.T) {
	store := &fakeStore{getErr: errors.New("connection refused")}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, publisher)

	res, err := eng.ComputeFull(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error from snapshot load failure")
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if store.upserted != nil {
		t.Error("nothing must be written after a load failure")
	}
	if len(publisher.events) != 0 {
		t.Error("nothing must be published after a load failure")
	}
}

func TestComputeFull_SnapshotWriteErrorIsFatal(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("write failed"), connCount: 3}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, publisher)

	_, err := eng.ComputeFull(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error from snapshot write failure")
	}
	if len(publisher.events) != 0 {
		t.Error("nothing must be published after a write failure")
	}
}

func TestComputeFull_PublishFailureIsAbsorbed(t *testing.T) {
	store := &fakeStore{connCount: 3}
	publisher := &fakePublisher{err: errors.New("nats down")}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, publisher)

	res, err := eng.ComputeFull(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("publish failure must not fail the invocation: %v", err)
	}
	if res == nil || res.Scores.Composite != 3 {
		t.Errorf("expected composite 3, got %+v", res)
	}
}

func TestComputeFull_EstimatesAccountAge(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{messagingID: 2000}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, &fakePublisher{})

	table, err := accountage.NewTable([]accountage.Anchor{
		{ID: 1000, Time: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 2000, Time: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	eng.estimator = accountage.New(table)
	eng.now = func() time.Time { return time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC) }

	if _, err := eng.ComputeFull(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.upserted.Signals.AccountAgeDays == nil || *store.upserted.Signals.AccountAgeDays != 30 {
		t.Errorf("expected account age 30, got %v", store.upserted.Signals.AccountAgeDays)
	}
}

func TestComputeFull_CachedAccountAgeSkipsLookup(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap: &trust.Snapshot{
			UserID:  userID,
			Signals: trust.Signals{AccountAgeDays: intPtr(400)},
		},
		messagingID: 2000,
	}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, &fakePublisher{})

	if _, err := eng.ComputeFull(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.messagingCalled {
		t.Error("cached account age must not trigger a messaging lookup")
	}
	if *store.upserted.Signals.AccountAgeDays != 400 {
		t.Errorf("expected cached age 400, got %d", *store.upserted.Signals.AccountAgeDays)
	}
}

func TestComputeFull_SkipsEnrichmentWithoutAddress(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap: &trust.Snapshot{
			UserID:  userID,
			Signals: trust.Signals{WalletVerified: true},
		},
		walletAddr: "",
	}
	enricher := &fakeEnricher{}
	eng := newTestEngine(store, enricher, &fakeRefresher{}, &fakePublisher{})

	if _, err := eng.ComputeFull(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !store.walletAddrCalled {
		t.Error("verified wallet must trigger an address lookup")
	}
	if enricher.called {
		t.Error("no address resolved, enrichment must be skipped")
	}
}

func TestComputeFull_UnverifiedWalletSkipsAddressLookup(t *testing.T) {
	store := &fakeStore{walletAddr: "wallet-addr"}
	enricher := &fakeEnricher{}
	eng := newTestEngine(store, enricher, &fakeRefresher{}, &fakePublisher{})

	if _, err := eng.ComputeFull(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.walletAddrCalled {
		t.Error("unverified wallet must not trigger an address lookup")
	}
	if enricher.called {
		t.Error("unverified wallet must not be enriched")
	}
}

func TestComputeFromStored_AbsentRowIsNoOp(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, publisher)

	if err := eng.ComputeFromStored(context.Background(), uuid.New()); err != nil {
		t.Fatalf("absent row must be a no-op, got %v", err)
	}
	if store.updatedScores != nil {
		t.Error("nothing must be written for an absent row")
	}
	if len(publisher.events) != 0 {
		t.Error("nothing must be published for an absent row")
	}
}

func TestComputeFromStored_RescoresWithoutCollectors(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap: &trust.Snapshot{
			UserID: userID,
			Signals: trust.Signals{
				PeerConnectionCount: 35,
				WalletVerified:      true,
				WalletAgeDays:       intPtr(120),
				WalletTxCount:       intPtr(15),
				WalletHasTokens:     true,
				IdentityVerified:    true,
				IdentityPremium:     true,
				HasPublicHandle:     true,
				AccountAgeDays:      intPtr(400),
			},
			RefreshToken: "stored-token",
		},
	}
	enricher := &fakeEnricher{}
	refresher := &fakeRefresher{}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, enricher, refresher, publisher)

	if err := eng.ComputeFromStored(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if enricher.called || refresher.called {
		t.Error("stored-only recompute must not touch collectors")
	}
	if store.updatedScores == nil {
		t.Fatal("expected a score write")
	}
	if store.updatedScores.Composite != 66 || store.updatedScores.LegacyLevel != 5 {
		t.Errorf("expected composite 66 level 5, got %+v", store.updatedScores)
	}
	if store.upserted != nil {
		t.Error("stored-only recompute must not rewrite signal columns")
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	event := publisher.events[0].payload.(bus.TrustUpdatedEvent)
	if event.Mode != "stored" {
		t.Errorf("expected mode stored, got %q", event.Mode)
	}
}

func TestComputeFromStored_Idempotent(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap: &trust.Snapshot{
			UserID:  userID,
			Signals: trust.Signals{PeerConnectionCount: 17, MessagingPremium: true},
		},
	}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, &fakePublisher{})

	if err := eng.ComputeFromStored(context.Background(), userID); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first := *store.updatedScores

	if err := eng.ComputeFromStored(context.Background(), userID); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if *store.updatedScores != first {
		t.Errorf("expected identical scores, got %+v then %+v", first, *store.updatedScores)
	}
}

func TestComputeFromStored_WriteErrorIsFatal(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{
		snap:      &trust.Snapshot{UserID: userID},
		updateErr: errors.New("write failed"),
	}
	publisher := &fakePublisher{}
	eng := newTestEngine(store, &fakeEnricher{}, &fakeRefresher{}, publisher)

	if err := eng.ComputeFromStored(context.Background(), userID); err == nil {
		t.Fatal("expected error from score write failure")
	}
	if len(publisher.events) != 0 {
		t.Error("nothing must be published after a write failure")
	}
}
