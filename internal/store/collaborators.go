package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Collaborator reads. These tables belong to other TripMesh subsystems;
// trustd only ever reads them, and a recompute survives any of these
// queries failing.

// CompletedConnectionCount counts connections in the terminal completed
// state with the user on either side.
func (s *Store) CompletedConnectionCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM connections
		WHERE status = 'completed' AND (requester_id = $1 OR addressee_id = $1)`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed connections: %w", err)
	}
	return count, nil
}

// VerifiedWalletAddress returns the user's most recently verified wallet
// address, or "" when no wallet is verified.
func (s *Store) VerifiedWalletAddress(ctx context.Context, userID uuid.UUID) (string, error) {
	var address string
	err := s.pool.QueryRow(ctx, `
		SELECT address
		FROM wallets
		WHERE user_id = $1 AND verified = true
		ORDER BY verified_at DESC
		LIMIT 1`,
		userID,
	).Scan(&address)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get verified wallet: %w", err)
	}
	return address, nil
}

// MessagingPlatformID returns the numeric messaging-platform ID from the
// user's messaging link, or 0 when no link exists.
func (s *Store) MessagingPlatformID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var platformID int64
	err := s.pool.QueryRow(ctx, `
		SELECT platform_user_id
		FROM messaging_links
		WHERE user_id = $1`,
		userID,
	).Scan(&platformID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get messaging link: %w", err)
	}
	return platformID, nil
}
