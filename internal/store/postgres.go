package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voice-auth/internal/audit"
	"voice-auth/internal/enrollment"
	"voice-auth/internal/voice"
	"voice-auth/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Postgres is the CredentialStore backed by Postgres with the pgvector
// extension. It assumes the schema in internal/db/migrations.
type Postgres struct {
	db *sql.DB

	// CommitAttempts bounds retries of an enrollment commit that lost a
	// serialization race. Defaults to 3.
	CommitAttempts int
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, CommitAttempts: 3}
}

// mapPgError translates driver errors into the voice error taxonomy.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: concurrent update (%s)", voice.ErrConflict, pgErr.Code)
		case "23505":
			return fmt.Errorf("%w: %s", voice.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", voice.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

/* ===================== IDENTITIES ===================== */

func (p *Postgres) CreateIdentity(ctx context.Context, in voice.Identity) (voice.Identity, error) {
	const q = `
INSERT INTO identities (username, password_hash, role)
VALUES ($1, $2, $3)
RETURNING id, created_at
`
	if err := p.db.QueryRowContext(ctx, q, in.Username, in.PasswordHash, in.Role).Scan(&in.ID, &in.CreatedAt); err != nil {
		return voice.Identity{}, mapPgError(err)
	}
	return in, nil
}

func (p *Postgres) GetIdentity(ctx context.Context, id int64) (voice.Identity, error) {
	const q = `
SELECT id, username, password_hash, role, created_at
FROM identities
WHERE id = $1
`
	return scanIdentity(p.db.QueryRowContext(ctx, q, id))
}

func (p *Postgres) FindIdentityByUsername(ctx context.Context, username string) (voice.Identity, error) {
	const q = `
SELECT id, username, password_hash, role, created_at
FROM identities
WHERE lower(username) = lower($1)
`
	return scanIdentity(p.db.QueryRowContext(ctx, q, username))
}

// ListIdentities returns one page of matching identities ordered by id,
// plus the total number of matches.
func (p *Postgres) ListIdentities(ctx context.Context, f voice.IdentityFilter) ([]voice.Identity, int, error) {
	var (
		where []string
		args  []any
	)
	if f.ID != nil {
		args = append(args, *f.ID)
		where = append(where, fmt.Sprintf("id = $%d", len(args)))
	}
	if f.Username != "" {
		args = append(args, "%"+escapeLike(f.Username)+"%")
		where = append(where, fmt.Sprintf("username ILIKE $%d", len(args)))
	}
	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM identities"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	var b strings.Builder
	b.WriteString("SELECT id, username, password_hash, role, created_at FROM identities")
	b.WriteString(cond)
	b.WriteString(" ORDER BY id ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []voice.Identity
	for rows.Next() {
		var idn voice.Identity
		if err := rows.Scan(&idn.ID, &idn.Username, &idn.PasswordHash, &idn.Role, &idn.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, idn)
	}
	return out, total, rows.Err()
}

func (p *Postgres) UpdateIdentityRole(ctx context.Context, id int64, role string) (voice.Identity, error) {
	const q = `
UPDATE identities SET role = $2
WHERE id = $1
RETURNING id, username, password_hash, role, created_at
`
	return scanIdentity(p.db.QueryRowContext(ctx, q, id, role))
}

// DeleteIdentity removes the identity. Samples and profile go with it via
// ON DELETE CASCADE; audit events have no foreign key and stay.
func (p *Postgres) DeleteIdentity(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return voice.ErrIdentityNotFound
	}
	return nil
}

// escapeLike neutralizes LIKE wildcards so a username filter matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanIdentity(row *sql.Row) (voice.Identity, error) {
	var idn voice.Identity
	if err := row.Scan(&idn.ID, &idn.Username, &idn.PasswordHash, &idn.Role, &idn.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return voice.Identity{}, voice.ErrIdentityNotFound
		}
		return voice.Identity{}, err
	}
	return idn, nil
}

/* ===================== PHRASES ===================== */

// AddPhrase inserts a phrase, returning the existing row when the text is
// already in the catalog.
func (p *Postgres) AddPhrase(ctx context.Context, text string) (voice.Phrase, error) {
	const q = `
INSERT INTO voice_phrases (text)
VALUES ($1)
ON CONFLICT (text) DO UPDATE SET text = EXCLUDED.text
RETURNING id, text
`
	var ph voice.Phrase
	if err := p.db.QueryRowContext(ctx, q, text).Scan(&ph.ID, &ph.Text); err != nil {
		return voice.Phrase{}, mapPgError(err)
	}
	return ph, nil
}

func (p *Postgres) GetPhrase(ctx context.Context, id int64) (voice.Phrase, error) {
	const q = `SELECT id, text FROM voice_phrases WHERE id = $1`
	var ph voice.Phrase
	if err := p.db.QueryRowContext(ctx, q, id).Scan(&ph.ID, &ph.Text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return voice.Phrase{}, voice.ErrPhraseNotFound
		}
		return voice.Phrase{}, err
	}
	return ph, nil
}

func (p *Postgres) ListPhrases(ctx context.Context) ([]voice.Phrase, error) {
	const q = `SELECT id, text FROM voice_phrases ORDER BY id ASC`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []voice.Phrase
	for rows.Next() {
		var ph voice.Phrase
		if err := rows.Scan(&ph.ID, &ph.Text); err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

/* ===================== ENROLLMENT ===================== */

func lockIdentity(ctx context.Context, tx *sql.Tx, identityID int64) error {
	// Serializes concurrent enrollments for the same identity.
	const q = `SELECT id FROM identities WHERE id = $1 FOR UPDATE`
	var id int64
	if err := tx.QueryRowContext(ctx, q, identityID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return voice.ErrIdentityNotFound
		}
		return err
	}
	return nil
}

// CommitEnrollment writes samples, the profile and the audit event in one
// transaction under the identity's row lock.
func (p *Postgres) CommitEnrollment(ctx context.Context, c enrollment.Commit) error {
	err := utils.RetryTx(ctx, p.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, p.CommitAttempts, isRetryable,
		func(ctx context.Context, tx *sql.Tx) error {
			if err := lockIdentity(ctx, tx, c.IdentityID); err != nil {
				return err
			}
			for _, s := range c.Samples {
				if err := insertSample(ctx, tx, s); err != nil {
					return fmt.Errorf("insert sample: %w", err)
				}
			}
			if err := upsertProfile(ctx, tx, c.Profile); err != nil {
				return fmt.Errorf("upsert profile: %w", err)
			}
			if err := insertEvent(ctx, tx, c.Event); err != nil {
				return fmt.Errorf("insert audit event: %w", err)
			}
			return nil
		})
	return mapPgError(err)
}

func upsertProfile(ctx context.Context, tx *sql.Tx, pr voice.Profile) error {
	const q = `
INSERT INTO voice_profiles (identity_id, vector, dimension, model_version, sample_count, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (identity_id) DO UPDATE SET
	vector = EXCLUDED.vector,
	dimension = EXCLUDED.dimension,
	model_version = EXCLUDED.model_version,
	sample_count = EXCLUDED.sample_count,
	updated_at = EXCLUDED.updated_at
`
	_, err := tx.ExecContext(ctx, q,
		pr.IdentityID,
		pgvector.NewVector(pr.Vector),
		pr.Dimension,
		pr.ModelVersion,
		pr.SampleCount,
		pr.UpdatedAt,
	)
	return err
}

/* ===================== PROFILES ===================== */

// ListProfiles reads every profile ordered by identity id. The vector column
// is read as text and parsed per row, so one damaged row is reported on that
// row instead of failing the whole scan.
func (p *Postgres) ListProfiles(ctx context.Context) ([]voice.StoredProfile, error) {
	const q = `
SELECT identity_id, vector::text, dimension, model_version, sample_count, updated_at
FROM voice_profiles
ORDER BY identity_id ASC
`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []voice.StoredProfile
	for rows.Next() {
		var (
			sp  voice.StoredProfile
			raw sql.NullString
		)
		if err := rows.Scan(&sp.IdentityID, &raw, &sp.Dimension, &sp.ModelVersion, &sp.SampleCount, &sp.UpdatedAt); err != nil {
			return nil, err
		}
		sp.Vector, sp.Err = parseVector(raw)
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (p *Postgres) GetProfile(ctx context.Context, identityID int64) (voice.Profile, error) {
	const q = `
SELECT identity_id, vector::text, dimension, model_version, sample_count, updated_at
FROM voice_profiles
WHERE identity_id = $1
`
	var (
		pr  voice.Profile
		raw sql.NullString
	)
	err := p.db.QueryRowContext(ctx, q, identityID).Scan(&pr.IdentityID, &raw, &pr.Dimension, &pr.ModelVersion, &pr.SampleCount, &pr.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return voice.Profile{}, fmt.Errorf("%w: profile", voice.ErrNotFound)
		}
		return voice.Profile{}, err
	}
	if pr.Vector, err = parseVector(raw); err != nil {
		return voice.Profile{}, err
	}
	return pr, nil
}

func parseVector(raw sql.NullString) (voice.Embedding, error) {
	if !raw.Valid {
		return nil, errors.New("vector is null")
	}
	if s := raw.String; len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("parse vector: malformed literal %q", s)
	}
	var v pgvector.Vector
	if err := v.Scan(raw.String); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return voice.Embedding(v.Slice()), nil
}

/* ===================== SAMPLES ===================== */

func insertSample(ctx context.Context, tx *sql.Tx, s voice.Sample) error {
	const q = `
INSERT INTO voice_samples (id, identity_id, phrase_id, audio, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	var emb any
	if len(s.Embedding) > 0 {
		emb = pgvector.NewVector(s.Embedding)
	}
	_, err := tx.ExecContext(ctx, q, s.ID, s.IdentityID, s.PhraseID, s.Audio, emb, s.CreatedAt)
	return err
}

// AddSample stores a free-form sample. The profile is left untouched.
func (p *Postgres) AddSample(ctx context.Context, s voice.Sample) error {
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return insertSample(ctx, tx, s)
	})
	if err = mapPgError(err); errors.Is(err, voice.ErrNotFound) {
		return voice.ErrIdentityNotFound
	}
	return err
}

// ListSamples returns the identity's samples newest first.
func (p *Postgres) ListSamples(ctx context.Context, identityID int64) ([]voice.Sample, error) {
	const q = `
SELECT id, identity_id, phrase_id, audio, embedding::text, created_at
FROM voice_samples
WHERE identity_id = $1
ORDER BY created_at DESC, id DESC
`
	rows, err := p.db.QueryContext(ctx, q, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []voice.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetSample(ctx context.Context, id string) (voice.Sample, error) {
	const q = `
SELECT id, identity_id, phrase_id, audio, embedding::text, created_at
FROM voice_samples
WHERE id = $1
`
	s, err := scanSample(p.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return voice.Sample{}, voice.ErrSampleNotFound
	}
	return s, err
}

func (p *Postgres) DeleteSample(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM voice_samples WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return voice.ErrSampleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(r rowScanner) (voice.Sample, error) {
	var (
		s        voice.Sample
		phraseID sql.NullInt64
		emb      sql.NullString
	)
	if err := r.Scan(&s.ID, &s.IdentityID, &phraseID, &s.Audio, &emb, &s.CreatedAt); err != nil {
		return voice.Sample{}, err
	}
	if phraseID.Valid {
		id := phraseID.Int64
		s.PhraseID = &id
	}
	if emb.Valid {
		v, err := parseVector(emb)
		if err != nil {
			return voice.Sample{}, err
		}
		s.Embedding = v
	}
	return s, nil
}

/* ===================== AUDIT ===================== */

func insertEvent(ctx context.Context, tx *sql.Tx, e audit.Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO audit_events (id, actor_id, action, details, ip_address, created_at)
VALUES ($1, $2, $3, $4::jsonb, NULLIF($5, ''), $6)
`
	_, err = tx.ExecContext(ctx, q, e.ID, e.ActorID, string(e.Action), string(details), e.IPAddress, e.CreatedAt)
	return err
}

func (p *Postgres) AppendEvent(ctx context.Context, e audit.Event) error {
	return mapPgError(utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return insertEvent(ctx, tx, e)
	}))
}

// ListEvents returns matching events newest first.
func (p *Postgres) ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.ActorID != nil {
		args = append(args, *f.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, string(f.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT id, actor_id, action, details, COALESCE(ip_address, ''), created_at FROM audit_events")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			actorID sql.NullInt64
			action  string
			details []byte
		)
		if err := rows.Scan(&e.ID, &actorID, &action, &details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			id := actorID.Int64
			e.ActorID = &id
		}
		e.Action = audit.Action(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details for event %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping reports database reachability.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
