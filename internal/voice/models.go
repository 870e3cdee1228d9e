package voice

import "time"

// Embedding is a speaker feature vector. Its length is fixed per deployment
// by the embedding extractor.
type Embedding []float32

// Role names. Keep these stable; they are embedded in issued credentials.
const (
	RoleAdmin        = "admin"
	RoleDataAnalyst  = "data analyst"
	RoleBusinessUser = "business user"
	RoleViewer       = "viewer"
)

// Identity is the account a voice profile belongs to.
type Identity struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// IdentityFilter narrows an identity listing. Username matches as a
// case-insensitive substring; Role must match exactly.
type IdentityFilter struct {
	ID       *int64
	Username string
	Role     string
	Limit    int
	Offset   int
}

// Phrase is an immutable challenge text from the seeded catalog.
type Phrase struct {
	ID   int64  `json:"id" db:"id"`
	Text string `json:"text" db:"text"`
}

// Sample is one recorded utterance owned by exactly one identity.
//
// Samples are history: they are never rewritten when a profile is recomputed,
// and deleting one does not touch the profile derived from it.
type Sample struct {
	ID         string    `json:"id" db:"id"`
	IdentityID int64     `json:"identity_id" db:"identity_id"`
	PhraseID   *int64    `json:"phrase_id,omitempty" db:"phrase_id"`
	Audio      []byte    `json:"-" db:"audio"`
	Embedding  Embedding `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Profile is the enrolled voice of one identity: the mean of the samples
// submitted by its latest enrollment.
//
// Invariant: len(Vector) == Dimension.
type Profile struct {
	IdentityID   int64     `json:"identity_id" db:"identity_id"`
	Vector       Embedding `json:"-" db:"vector"`
	Dimension    int       `json:"dimension" db:"dimension"`
	ModelVersion string    `json:"model_version" db:"model_version"`
	SampleCount  int       `json:"sample_count" db:"sample_count"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// StoredProfile is a profile row as read back from storage. Err is set when
// the row could not be decoded; readers decide whether to skip it.
type StoredProfile struct {
	Profile
	Err error
}
