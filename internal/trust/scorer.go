package trust

// Category caps and per-signal weights are scoring policy, fixed in code
// rather than configuration: the composite must be reproducible everywhere
// it is computed.
const (
	handshakesCap = 30
	walletCap     = 20
	socialsCap    = 20

	walletSignalWeight = 5
	socialSignalWeight = 4

	walletAgeThresholdDays  = 90
	walletTxThreshold       = 10
	accountAgeThresholdDays = 365
)

// Signals is the per-user signal bundle fed into Score. Optional fields are
// pointers: nil means the signal was never collected. A nil optional scores
// the same as zero but survives merges differently.
type Signals struct {
	PeerConnectionCount int  `json:"peer_connection_count"`
	WalletVerified      bool `json:"wallet_verified"`
	WalletAgeDays       *int `json:"wallet_age_days,omitempty"`
	WalletTxCount       *int `json:"wallet_tx_count,omitempty"`
	WalletHasTokens     bool `json:"wallet_has_tokens"`
	IdentityVerified    bool `json:"identity_verified"`
	IdentityPremium     bool `json:"identity_premium"`
	MessagingPremium    bool `json:"messaging_premium"`
	HasPublicHandle     bool `json:"has_public_handle"`
	AccountAgeDays      *int `json:"account_age_days,omitempty"`
}

// Breakdown is the scored output: points per category, their sum, and the
// legacy 1-5 level older clients still display.
type Breakdown struct {
	Handshakes  int `json:"handshakes"`
	Wallet      int `json:"wallet"`
	Socials     int `json:"socials"`
	Events      int `json:"events"`
	Community   int `json:"community"`
	Composite   int `json:"composite"`
	LegacyLevel int `json:"legacy_level"`
}

// Score computes the composite trust score for a signal bundle.
// Pure and deterministic: no I/O, safe to call any number of times.
//
// Each category is capped independently, so a new signal inside one category
// never affects another. The composite is 0-100 by construction of the caps.
func Score(s Signals) Breakdown {
	b := Breakdown{
		Handshakes: clampInt(s.PeerConnectionCount, 0, handshakesCap),
		Wallet:     scoreWallet(s),
		Socials:    scoreSocials(s),
		// Events and Community are reserved: no signal feeds them yet, but
		// they stay in the output so the shape is stable for clients.
		Events:    0,
		Community: 0,
	}
	b.Composite = b.Handshakes + b.Wallet + b.Socials + b.Events + b.Community
	b.LegacyLevel = legacyLevel(b.Composite)
	return b
}

func scoreWallet(s Signals) int {
	pts := 0
	if s.WalletVerified {
		pts += walletSignalWeight
	}
	if s.WalletAgeDays != nil && *s.WalletAgeDays > walletAgeThresholdDays {
		pts += walletSignalWeight
	}
	if s.WalletTxCount != nil && *s.WalletTxCount > walletTxThreshold {
		pts += walletSignalWeight
	}
	if s.WalletHasTokens {
		pts += walletSignalWeight
	}
	return clampInt(pts, 0, walletCap)
}

func scoreSocials(s Signals) int {
	pts := 0
	if s.IdentityVerified {
		pts += socialSignalWeight
	}
	if s.IdentityPremium {
		pts += socialSignalWeight
	}
	if s.MessagingPremium {
		pts += socialSignalWeight
	}
	if s.HasPublicHandle {
		pts += socialSignalWeight
	}
	if s.AccountAgeDays != nil && *s.AccountAgeDays > accountAgeThresholdDays {
		pts += socialSignalWeight
	}
	return clampInt(pts, 0, socialsCap)
}

// legacyLevel maps a composite score onto the 1-5 scale that predates the
// 0-100 composite.
func legacyLevel(composite int) int {
	switch {
	case composite >= 60:
		return 5
	case composite >= 40:
		return 4
	case composite >= 25:
		return 3
	case composite >= 10:
		return 2
	default:
		return 1
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
