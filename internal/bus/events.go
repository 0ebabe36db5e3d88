package bus

// SubjectSignalWildcard catches every single-signal mutation announced by
// collaborating subsystems after they write the change.
const SubjectSignalWildcard = "tripmesh.signal.>"

// Concrete signal subjects under the wildcard.
const (
	SubjectWalletVerified      = "tripmesh.signal.wallet.verified"
	SubjectMessagingLinked     = "tripmesh.signal.messaging.linked"
	SubjectConnectionCompleted = "tripmesh.signal.connection.completed"
)

// SubjectRecomputeRequest asks for a full recompute with collector fan-out,
// typically from the periodic refresher.
const SubjectRecomputeRequest = "tripmesh.trust.recompute"

// SubjectTrustUpdated announces a finished recompute after the write lands.
const SubjectTrustUpdated = "tripmesh.trust.updated"

// SubjectServiceRegistered announces this service coming online.
const SubjectServiceRegistered = "tripmesh.agent.trustd.registered"

// SignalMutationEvent is the payload on every tripmesh.signal.> subject.
// The subject names which signal changed; the payload only says for whom.
type SignalMutationEvent struct {
	UserID string `json:"user_id"`
}

// RecomputeRequest is the payload on SubjectRecomputeRequest.
type RecomputeRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// TrustUpdatedEvent is the payload on SubjectTrustUpdated. Mode is "full"
// for a collector recompute and "stored" for a stored-only rescore.
type TrustUpdatedEvent struct {
	UserID      string `json:"user_id"`
	Composite   int    `json:"composite"`
	LegacyLevel int    `json:"legacy_level"`
	Mode        string `json:"mode"`
}
