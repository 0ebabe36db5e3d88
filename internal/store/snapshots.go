package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tripmesh/trustd/internal/trust"
)

// GetSnapshot fetches the signal snapshot for a user. It returns (nil, nil)
// when no row exists; callers decide whether absence means "start from
// zero" or "nothing to do".
func (s *Store) GetSnapshot(ctx context.Context, userID uuid.UUID) (*trust.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, peer_connection_count, wallet_verified, wallet_age_days,
		       wallet_tx_count, wallet_has_tokens, identity_verified, identity_premium,
		       messaging_premium, has_public_handle, account_age_days, refresh_token,
		       score_handshakes, score_wallet, score_socials, score_events,
		       score_community, score_composite, legacy_level, updated_at
		FROM trust_snapshots
		WHERE user_id = $1`,
		userID,
	)

	var snap trust.Snapshot
	err := row.Scan(
		&snap.UserID,
		&snap.Signals.PeerConnectionCount,
		&snap.Signals.WalletVerified,
		&snap.Signals.WalletAgeDays,
		&snap.Signals.WalletTxCount,
		&snap.Signals.WalletHasTokens,
		&snap.Signals.IdentityVerified,
		&snap.Signals.IdentityPremium,
		&snap.Signals.MessagingPremium,
		&snap.Signals.HasPublicHandle,
		&snap.Signals.AccountAgeDays,
		&snap.RefreshToken,
		&snap.Scores.Handshakes,
		&snap.Scores.Wallet,
		&snap.Scores.Socials,
		&snap.Scores.Events,
		&snap.Scores.Community,
		&snap.Scores.Composite,
		&snap.Scores.LegacyLevel,
		&snap.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &snap, nil
}

// UpsertSnapshot writes the full snapshot row, signals and scores alike.
// The write is a single last-writer-wins replace keyed by user ID.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *trust.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trust_snapshots (user_id, peer_connection_count, wallet_verified,
			wallet_age_days, wallet_tx_count, wallet_has_tokens, identity_verified,
			identity_premium, messaging_premium, has_public_handle, account_age_days,
			refresh_token, score_handshakes, score_wallet, score_socials, score_events,
			score_community, score_composite, legacy_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
		ON CONFLICT (user_id)
		DO UPDATE SET
			peer_connection_count = $2,
			wallet_verified = $3,
			wallet_age_days = $4,
			wallet_tx_count = $5,
			wallet_has_tokens = $6,
			identity_verified = $7,
			identity_premium = $8,
			messaging_premium = $9,
			has_public_handle = $10,
			account_age_days = $11,
			refresh_token = $12,
			score_handshakes = $13,
			score_wallet = $14,
			score_socials = $15,
			score_events = $16,
			score_community = $17,
			score_composite = $18,
			legacy_level = $19,
			updated_at = now()`,
		snap.UserID,
		snap.Signals.PeerConnectionCount,
		snap.Signals.WalletVerified,
		snap.Signals.WalletAgeDays,
		snap.Signals.WalletTxCount,
		snap.Signals.WalletHasTokens,
		snap.Signals.IdentityVerified,
		snap.Signals.IdentityPremium,
		snap.Signals.MessagingPremium,
		snap.Signals.HasPublicHandle,
		snap.Signals.AccountAgeDays,
		snap.RefreshToken,
		snap.Scores.Handshakes,
		snap.Scores.Wallet,
		snap.Scores.Socials,
		snap.Scores.Events,
		snap.Scores.Community,
		snap.Scores.Composite,
		snap.Scores.LegacyLevel,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// UpdateScores writes only the score columns, leaving signal fields alone.
// Stored-only recomputes use this so they cannot race signal mutations.
func (s *Store) UpdateScores(ctx context.Context, userID uuid.UUID, scores trust.Breakdown) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trust_snapshots SET
			score_handshakes = $2,
			score_wallet = $3,
			score_socials = $4,
			score_events = $5,
			score_community = $6,
			score_composite = $7,
			legacy_level = $8,
			updated_at = now()
		WHERE user_id = $1`,
		userID,
		scores.Handshakes,
		scores.Wallet,
		scores.Socials,
		scores.Events,
		scores.Community,
		scores.Composite,
		scores.LegacyLevel,
	)
	if err != nil {
		return fmt.Errorf("update scores: %w", err)
	}
	return nil
}
