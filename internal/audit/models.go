package audit

import "time"

// Event is an immutable, append-only audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - Action is drawn from the closed set below.
// - ActorID is nil when the identity is not known (e.g. an anonymous phrase challenge).
//
// Storage (Postgres): table audit_events, INSERT-only; a trigger rejects UPDATE/DELETE.
type Event struct {
	ID      string `json:"id" db:"id"`
	ActorID *int64 `json:"actor_id,omitempty" db:"actor_id"`
	Action  Action `json:"action" db:"action"`

	// Details holds action-specific facts (confidence, sample count, ...).
	// Stored as JSONB.
	Details map[string]any `json:"details,omitempty" db:"details"`

	// IPAddress is the resolved client IP when the event came through HTTP.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionLogin         Action = "login"
	ActionLoginVoice    Action = "login_voice"
	ActionVoiceEnroll   Action = "voice_enroll"
	ActionVoiceIdentify Action = "voice_identify"
	ActionPhraseVerify  Action = "phrase_verify"
)

func (a Action) Valid() bool {
	switch a {
	case ActionLogin, ActionLoginVoice, ActionVoiceEnroll, ActionVoiceIdentify, ActionPhraseVerify:
		return true
	default:
		return false
	}
}

// EstablishesIdentity reports whether the action documents an authentication
// or enrollment. Those events must be written together with the change they
// record; a failed write fails the operation.
func (a Action) EstablishesIdentity() bool {
	return a != ActionPhraseVerify && a.Valid()
}

// Filter narrows an audit listing. Zero values mean "no filter".
type Filter struct {
	ActorID *int64
	Action  Action
	Limit   int
	Offset  int
}
