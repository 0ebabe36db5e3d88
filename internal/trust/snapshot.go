package trust

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the persisted per-user signal record: every last-known signal
// value, the refresh token for identity re-verification, and the scores
// computed from those signals at the last write. Signal fields and score
// fields are always written together, so the scores are consistent with the
// signals as of UpdatedAt.
type Snapshot struct {
	UserID       uuid.UUID
	Signals      Signals
	RefreshToken string // "" when no identity grant is stored
	Scores       Breakdown
	UpdatedAt    time.Time
}
