package engine

import (
	"github.com/tripmesh/trustd/internal/identity"
	"github.com/tripmesh/trustd/internal/ledger"
	"github.com/tripmesh/trustd/internal/trust"
)

// updates carries one fan-out pass worth of partial results. Nil fields
// mean the source produced nothing and the prior value stands.
type updates struct {
	wallet      ledger.Enrichment
	identity    *identity.Outcome
	connections *int
	accountAge  *int
}

// mergeSnapshot folds updates into a copy of prior. The rule is uniform:
// no new information keeps the old value. The one source that clears
// state instead of keeping it is a definitive identity revocation.
func mergeSnapshot(prior *trust.Snapshot, u updates) *trust.Snapshot {
	next := *prior

	if u.connections != nil {
		next.Signals.PeerConnectionCount = *u.connections
	}
	if u.wallet.AgeDays != nil {
		next.Signals.WalletAgeDays = u.wallet.AgeDays
	}
	if u.wallet.TxCount != nil {
		next.Signals.WalletTxCount = u.wallet.TxCount
	}
	if u.wallet.HasTokens != nil {
		next.Signals.WalletHasTokens = *u.wallet.HasTokens
	}
	if u.accountAge != nil {
		next.Signals.AccountAgeDays = u.accountAge
	}

	if u.identity != nil {
		switch u.identity.Status {
		case identity.StatusSuccess:
			next.Signals.IdentityVerified = true
			if u.identity.Premium != nil {
				next.Signals.IdentityPremium = *u.identity.Premium
			}
			if u.identity.RefreshToken != "" {
				next.RefreshToken = u.identity.RefreshToken
			}
		case identity.StatusRevoked:
			next.Signals.IdentityVerified = false
			next.Signals.IdentityPremium = false
			next.RefreshToken = ""
		case identity.StatusTransient:
			// Nothing can be concluded; the stored state stands.
		}
	}

	return &next
}
