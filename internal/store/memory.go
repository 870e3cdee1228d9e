package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"voice-auth/internal/audit"
	"voice-auth/internal/enrollment"
	"voice-auth/internal/voice"
)

// Memory is an in-process CredentialStore for tests and local runs.
// A single mutex serializes every write, which covers the per-identity
// exclusive section enrollment requires.
type Memory struct {
	mu sync.RWMutex

	identities     map[int64]voice.Identity
	nextIdentityID int64
	phrases        map[int64]voice.Phrase
	nextPhraseID   int64
	samples        []voice.Sample
	profiles       map[int64]voice.StoredProfile
	events         []audit.Event

	// FailSampleWrite makes CommitEnrollment fail while writing the n-th
	// sample (1-based). Zero disables it.
	FailSampleWrite int
	// FailEventWrite makes every audit write fail.
	FailEventWrite bool
}

var errInjected = errors.New("store: injected write failure")

func NewMemory() *Memory {
	return &Memory{
		identities: make(map[int64]voice.Identity),
		phrases:    make(map[int64]voice.Phrase),
		profiles:   make(map[int64]voice.StoredProfile),
	}
}

/* ===================== IDENTITIES ===================== */

func (m *Memory) CreateIdentity(ctx context.Context, in voice.Identity) (voice.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if strings.EqualFold(existing.Username, in.Username) {
			return voice.Identity{}, fmt.Errorf("%w: username %q already exists", voice.ErrConflict, in.Username)
		}
	}
	m.nextIdentityID++
	in.ID = m.nextIdentityID
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	m.identities[in.ID] = in
	return in, nil
}

func (m *Memory) GetIdentity(ctx context.Context, id int64) (voice.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idn, ok := m.identities[id]
	if !ok {
		return voice.Identity{}, voice.ErrIdentityNotFound
	}
	return idn, nil
}

func (m *Memory) FindIdentityByUsername(ctx context.Context, username string) (voice.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, idn := range m.identities {
		if strings.EqualFold(idn.Username, username) {
			return idn, nil
		}
	}
	return voice.Identity{}, voice.ErrIdentityNotFound
}

// ListIdentities returns one page of matching identities ordered by id,
// plus the total number of matches.
func (m *Memory) ListIdentities(ctx context.Context, f voice.IdentityFilter) ([]voice.Identity, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(f.Username)
	out := make([]voice.Identity, 0, len(m.identities))
	for _, idn := range m.identities {
		if f.ID != nil && idn.ID != *f.ID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(idn.Username), needle) {
			continue
		}
		if f.Role != "" && idn.Role != f.Role {
			continue
		}
		out = append(out, idn)
	}
	slices.SortFunc(out, func(a, b voice.Identity) int { return cmpInt64(a.ID, b.ID) })
	total := len(out)
	if f.Offset > 0 {
		out = out[min(f.Offset, len(out)):]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *Memory) UpdateIdentityRole(ctx context.Context, id int64, role string) (voice.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idn, ok := m.identities[id]
	if !ok {
		return voice.Identity{}, voice.ErrIdentityNotFound
	}
	idn.Role = role
	m.identities[id] = idn
	return idn, nil
}

// DeleteIdentity removes the identity with its samples and profile. Audit
// events keep their actor id.
func (m *Memory) DeleteIdentity(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id]; !ok {
		return voice.ErrIdentityNotFound
	}
	delete(m.identities, id)
	delete(m.profiles, id)
	m.samples = slices.DeleteFunc(m.samples, func(s voice.Sample) bool { return s.IdentityID == id })
	return nil
}

/* ===================== PHRASES ===================== */

func (m *Memory) AddPhrase(ctx context.Context, text string) (voice.Phrase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.phrases {
		if p.Text == text {
			return p, nil
		}
	}
	m.nextPhraseID++
	p := voice.Phrase{ID: m.nextPhraseID, Text: text}
	m.phrases[p.ID] = p
	return p, nil
}

func (m *Memory) GetPhrase(ctx context.Context, id int64) (voice.Phrase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.phrases[id]
	if !ok {
		return voice.Phrase{}, voice.ErrPhraseNotFound
	}
	return p, nil
}

func (m *Memory) ListPhrases(ctx context.Context) ([]voice.Phrase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]voice.Phrase, 0, len(m.phrases))
	for _, p := range m.phrases {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b voice.Phrase) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

/* ===================== ENROLLMENT ===================== */

// CommitEnrollment stages every write and applies them only when all
// succeeded, so a failure leaves samples, profile and audit log untouched.
func (m *Memory) CommitEnrollment(ctx context.Context, c enrollment.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.identities[c.IdentityID]; !ok {
		return voice.ErrIdentityNotFound
	}

	staged := make([]voice.Sample, 0, len(c.Samples))
	for i, s := range c.Samples {
		if m.FailSampleWrite > 0 && i+1 == m.FailSampleWrite {
			return fmt.Errorf("insert sample %d: %w", i+1, errInjected)
		}
		staged = append(staged, cloneSample(s))
	}
	if m.FailEventWrite {
		return fmt.Errorf("insert audit event: %w", errInjected)
	}

	m.samples = append(m.samples, staged...)
	p := c.Profile
	p.Vector = slices.Clone(p.Vector)
	m.profiles[c.IdentityID] = voice.StoredProfile{Profile: p}
	m.events = append(m.events, c.Event)
	return nil
}

/* ===================== PROFILES ===================== */

// ListProfiles returns every stored profile ordered by identity id.
func (m *Memory) ListProfiles(ctx context.Context) ([]voice.StoredProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]voice.StoredProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := p
		cp.Vector = slices.Clone(p.Vector)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b voice.StoredProfile) int { return cmpInt64(a.IdentityID, b.IdentityID) })
	return out, nil
}

func (m *Memory) GetProfile(ctx context.Context, identityID int64) (voice.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[identityID]
	if !ok || p.Err != nil {
		return voice.Profile{}, fmt.Errorf("%w: profile", voice.ErrNotFound)
	}
	out := p.Profile
	out.Vector = slices.Clone(p.Vector)
	return out, nil
}

// PutProfile writes a profile row directly, bypassing enrollment. It exists
// for fixtures that need specific or damaged rows.
func (m *Memory) PutProfile(p voice.StoredProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.IdentityID] = p
}

/* ===================== SAMPLES ===================== */

func (m *Memory) AddSample(ctx context.Context, s voice.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[s.IdentityID]; !ok {
		return voice.ErrIdentityNotFound
	}
	m.samples = append(m.samples, cloneSample(s))
	return nil
}

// ListSamples returns the identity's samples newest first.
func (m *Memory) ListSamples(ctx context.Context, identityID int64) ([]voice.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []voice.Sample
	for i := len(m.samples) - 1; i >= 0; i-- {
		if m.samples[i].IdentityID == identityID {
			out = append(out, cloneSample(m.samples[i]))
		}
	}
	return out, nil
}

func (m *Memory) GetSample(ctx context.Context, id string) (voice.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.samples {
		if s.ID == id {
			return cloneSample(s), nil
		}
	}
	return voice.Sample{}, voice.ErrSampleNotFound
}

func (m *Memory) DeleteSample(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.samples {
		if s.ID == id {
			m.samples = slices.Delete(m.samples, i, i+1)
			return nil
		}
	}
	return voice.ErrSampleNotFound
}

/* ===================== AUDIT ===================== */

func (m *Memory) AppendEvent(ctx context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEventWrite {
		return fmt.Errorf("insert audit event: %w", errInjected)
	}
	m.events = append(m.events, e)
	return nil
}

// ListEvents returns matching events newest first.
func (m *Memory) ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []audit.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		matched = append(matched, e)
	}
	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// Events returns a copy of the whole audit log in append order.
func (m *Memory) Events() []audit.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

func cloneSample(s voice.Sample) voice.Sample {
	s.Audio = slices.Clone(s.Audio)
	s.Embedding = slices.Clone(s.Embedding)
	return s
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }
