package authflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"voice-auth/internal/audio"
	"voice-auth/internal/audit"
	"voice-auth/internal/auth"
	"voice-auth/internal/authflow"
	"voice-auth/internal/config"
	"voice-auth/internal/enrollment"
	"voice-auth/internal/identify"
	"voice-auth/internal/phrase"
	"voice-auth/internal/security"
	"voice-auth/internal/store"
	"voice-auth/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// The fake decoder carries the raw bytes through as samples so the fake
// extractor and transcriber can key on them.
type fakeDecoder struct{ err error }

func (d fakeDecoder) Decode(_ context.Context, data []byte) (audio.Waveform, error) {
	if d.err != nil {
		return audio.Waveform{}, d.err
	}
	s := make([]int16, len(data))
	for i, b := range data {
		s[i] = int16(b)
	}
	return audio.Waveform{Samples: s, SampleRate: audio.TargetSampleRate}, nil
}

func keyOf(wf audio.Waveform) string {
	b := make([]byte, len(wf.Samples))
	for i, s := range wf.Samples {
		b[i] = byte(s)
	}
	return string(b)
}

type fakeExtractor struct {
	vectors map[string]voice.Embedding
	calls   atomic.Int32
}

func (e *fakeExtractor) Extract(_ context.Context, wf audio.Waveform) (voice.Embedding, error) {
	e.calls.Add(1)
	v, ok := e.vectors[keyOf(wf)]
	if !ok {
		return nil, voice.ErrExtractionFailed
	}
	return v, nil
}

type fakeTranscriber struct{ texts map[string]string }

func (t fakeTranscriber) Transcribe(_ context.Context, wf audio.Waveform, _ string) (string, error) {
	text, ok := t.texts[keyOf(wf)]
	if !ok {
		return "", voice.ErrTranscriptionFailed
	}
	return text, nil
}

type fixture struct {
	svc    *authflow.Service
	mem    *store.Memory
	tokens *auth.Manager
	ext    *fakeExtractor
	alice  voice.Identity
	admin  voice.Identity
	phrase []voice.Phrase
}

const alicePassword = "correct horse battery"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	hasher := security.NewHasher(bcrypt.MinCost)

	var phrases []voice.Phrase
	for _, text := range []string{"My voice is my password", "Open sesame", "Authenticate me by voice"} {
		p, err := mem.AddPhrase(ctx, text)
		require.NoError(t, err)
		phrases = append(phrases, p)
	}
	hash, err := hasher.Hash(alicePassword)
	require.NoError(t, err)
	alice, err := mem.CreateIdentity(ctx, voice.Identity{Username: "alice", PasswordHash: hash, Role: voice.RoleBusinessUser})
	require.NoError(t, err)
	admin, err := mem.CreateIdentity(ctx, voice.Identity{Username: "root", PasswordHash: hash, Role: voice.RoleAdmin})
	require.NoError(t, err)

	auditSvc := audit.NewService(mem)
	mgr, err := enrollment.NewManager(mem, auditSvc, enrollment.Config{SampleCount: 3, Dimension: 2, ModelVersion: "test"})
	require.NoError(t, err)
	eng, err := identify.NewEngine(mem, identify.Config{Dimension: 2, Threshold: 0.5})
	require.NoError(t, err)
	tokens, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Minute})
	require.NoError(t, err)

	ext := &fakeExtractor{vectors: map[string]voice.Embedding{
		"alice-1": {1, 0},
		"alice-2": {1, 0.1},
		"alice-3": {1, -0.1},
		"alice":   {1, 0.05},
		"other":   {0, 1},
	}}
	tr := fakeTranscriber{texts: map[string]string{
		"alice":  "my voice is my password",
		"closed": "open sesame",
		"silent": "   ",
	}}

	svc, err := authflow.New(authflow.Deps{
		Store:       mem,
		Enroller:    mgr,
		Identifier:  eng,
		Phrases:     phrase.NewVerifier(phrase.DefaultThreshold),
		Audit:       auditSvc,
		Decoder:     fakeDecoder{},
		Extractor:   ext,
		Transcriber: tr,
		Tokens:      tokens,
		Passwords:   hasher,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, mem: mem, tokens: tokens, ext: ext, alice: alice, admin: admin, phrase: phrases}
}

func (f *fixture) enrollAlice(t *testing.T) {
	t.Helper()
	_, err := f.svc.Enroll(context.Background(), f.alice.ID, []authflow.Recording{
		{PhraseID: f.phrase[0].ID, Audio: []byte("alice-1")},
		{PhraseID: f.phrase[1].ID, Audio: []byte("alice-2")},
		{PhraseID: f.phrase[2].ID, Audio: []byte("alice-3")},
	})
	require.NoError(t, err)
}

func eventsOf(mem *store.Memory, action audit.Action) []audit.Event {
	var out []audit.Event
	for _, e := range mem.Events() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := authflow.New(authflow.Deps{})
	assert.Error(t, err)
}

func TestEnrollBuildsMeanProfile(t *testing.T) {
	f := newFixture(t)
	f.enrollAlice(t)

	p, err := f.mem.GetProfile(context.Background(), f.alice.ID)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1, 0}, []float32(p.Vector), 1e-6)
	assert.Equal(t, 3, p.SampleCount)
	assert.Len(t, eventsOf(f.mem, audit.ActionVoiceEnroll), 1)
}

func TestEnrollValidatesBeforeExtracting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, f.alice.ID, []authflow.Recording{{PhraseID: f.phrase[0].ID, Audio: []byte("alice-1")}})
	assert.ErrorIs(t, err, voice.ErrInvalidSampleCount)

	_, err = f.svc.Enroll(ctx, f.alice.ID, []authflow.Recording{
		{PhraseID: f.phrase[0].ID, Audio: []byte("alice-1")},
		{PhraseID: 999, Audio: []byte("alice-2")},
		{PhraseID: f.phrase[2].ID, Audio: []byte("alice-3")},
	})
	assert.ErrorIs(t, err, voice.ErrInvalidPhrase)

	_, err = f.svc.Enroll(ctx, f.alice.ID, []authflow.Recording{
		{PhraseID: f.phrase[0].ID, Audio: []byte("alice-1")},
		{PhraseID: f.phrase[1].ID},
		{PhraseID: f.phrase[2].ID, Audio: []byte("alice-3")},
	})
	assert.ErrorIs(t, err, voice.ErrValidation)

	assert.Zero(t, f.ext.calls.Load())
}

func TestEnrollExtractionFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Enroll(context.Background(), f.alice.ID, []authflow.Recording{
		{PhraseID: f.phrase[0].ID, Audio: []byte("alice-1")},
		{PhraseID: f.phrase[1].ID, Audio: []byte("unknown")},
		{PhraseID: f.phrase[2].ID, Audio: []byte("alice-3")},
	})
	require.ErrorIs(t, err, voice.ErrExtractionFailed)

	_, err = f.mem.GetProfile(context.Background(), f.alice.ID)
	assert.ErrorIs(t, err, voice.ErrNotFound)
	samples, err := f.mem.ListSamples(context.Background(), f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestLoginVoiceMatchIssuesTokenAndAudits(t *testing.T) {
	f := newFixture(t)
	f.enrollAlice(t)

	pid := f.phrase[0].ID
	res, err := f.svc.LoginVoice(context.Background(), authflow.VoiceLoginRequest{PhraseID: &pid, Audio: []byte("alice"), IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, identify.OutcomeMatch, res.Outcome)
	assert.Equal(t, f.alice.ID, res.IdentityID)
	assert.Greater(t, res.Confidence, 0.99)
	require.NotEmpty(t, res.Token)

	claims, err := f.tokens.Verify(res.Token, auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, claims.UserID)
	assert.Equal(t, auth.MethodVoice, claims.Method)

	events := eventsOf(f.mem, audit.ActionLoginVoice)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].ActorID)
	assert.Equal(t, f.alice.ID, *events[0].ActorID)
	assert.Equal(t, "10.0.0.1", events[0].IPAddress)
	assert.Contains(t, events[0].Details, "confidence")
	assert.EqualValues(t, pid, events[0].Details["phraseId"])
}

func TestLoginVoiceNoMatchIsNotAudited(t *testing.T) {
	f := newFixture(t)
	f.enrollAlice(t)

	res, err := f.svc.LoginVoice(context.Background(), authflow.VoiceLoginRequest{Audio: []byte("other")})
	require.NoError(t, err)
	assert.Equal(t, identify.OutcomeNoMatch, res.Outcome)
	assert.Empty(t, res.Token)
	assert.Empty(t, eventsOf(f.mem, audit.ActionLoginVoice))
}

func TestLoginVoiceNoProfiles(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.LoginVoice(context.Background(), authflow.VoiceLoginRequest{Audio: []byte("alice")})
	require.NoError(t, err)
	assert.Equal(t, identify.OutcomeNoProfiles, res.Outcome)
	assert.Empty(t, res.Token)
}

func TestLoginVoiceAuditFailureWithholdsToken(t *testing.T) {
	f := newFixture(t)
	f.enrollAlice(t)
	f.mem.FailEventWrite = true

	res, err := f.svc.LoginVoice(context.Background(), authflow.VoiceLoginRequest{Audio: []byte("alice")})
	require.Error(t, err)
	assert.Empty(t, res.Token)
}

func TestLoginVoiceErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LoginVoice(ctx, authflow.VoiceLoginRequest{})
	assert.ErrorIs(t, err, voice.ErrValidation)

	missing := int64(999)
	_, err = f.svc.LoginVoice(ctx, authflow.VoiceLoginRequest{PhraseID: &missing, Audio: []byte("alice")})
	assert.ErrorIs(t, err, voice.ErrNotFound)

	_, err = f.svc.LoginVoice(ctx, authflow.VoiceLoginRequest{Audio: []byte("unknown")})
	assert.ErrorIs(t, err, voice.ErrExtractionFailed)
}

func TestIdentifyAuditsVoiceIdentify(t *testing.T) {
	f := newFixture(t)
	f.enrollAlice(t)

	res, err := f.svc.Identify(context.Background(), authflow.IdentifyRequest{Audio: []byte("alice")})
	require.NoError(t, err)
	assert.Equal(t, identify.OutcomeMatch, res.Outcome)
	assert.Equal(t, "alice", res.Username)
	assert.NotEmpty(t, res.Token)
	assert.Len(t, eventsOf(f.mem, audit.ActionVoiceIdentify), 1)
	assert.Empty(t, eventsOf(f.mem, audit.ActionLoginVoice))
}

func TestVerifyPhrase(t *testing.T) {
	f := newFixture(t)
	ctx := auth.WithClaims(context.Background(), auth.Claims{UserID: f.alice.ID, Role: f.alice.Role})

	res, err := f.svc.VerifyPhrase(ctx, authflow.VerifyRequest{PhraseID: f.phrase[0].ID, Audio: []byte("alice")})
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.InDelta(t, 1.0, res.Score, 1e-9)

	res, err = f.svc.VerifyPhrase(ctx, authflow.VerifyRequest{PhraseID: f.phrase[0].ID, Audio: []byte("closed")})
	require.NoError(t, err)
	assert.False(t, res.Match)

	res, err = f.svc.VerifyPhrase(context.Background(), authflow.VerifyRequest{PhraseID: f.phrase[0].ID, Audio: []byte("silent")})
	require.NoError(t, err)
	assert.False(t, res.Match)
	assert.Zero(t, res.Score)

	events := eventsOf(f.mem, audit.ActionPhraseVerify)
	require.Len(t, events, 3)
	require.NotNil(t, events[0].ActorID)
	assert.Equal(t, f.alice.ID, *events[0].ActorID)
	assert.Nil(t, events[2].ActorID)
	assert.Equal(t, false, events[1].Details["match"])
}

func TestVerifyPhraseAuditFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.mem.FailEventWrite = true

	res, err := f.svc.VerifyPhrase(context.Background(), authflow.VerifyRequest{PhraseID: f.phrase[0].ID, Audio: []byte("alice")})
	require.NoError(t, err)
	assert.True(t, res.Match)
}

func TestVerifyPhraseErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyPhrase(ctx, authflow.VerifyRequest{PhraseID: 999, Audio: []byte("alice")})
	assert.ErrorIs(t, err, voice.ErrPhraseNotFound)

	_, err = f.svc.VerifyPhrase(ctx, authflow.VerifyRequest{PhraseID: f.phrase[0].ID, Audio: []byte("mumble")})
	assert.ErrorIs(t, err, voice.ErrTranscriptionFailed)
	assert.Empty(t, eventsOf(f.mem, audit.ActionPhraseVerify))
}

func TestPasswordLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "ALICE", alicePassword, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, res.Identity.ID)

	claims, err := f.tokens.Verify(res.Token, auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, auth.MethodPassword, claims.Method)

	events := eventsOf(f.mem, audit.ActionLogin)
	require.Len(t, events, 1)
	assert.Equal(t, "password", events[0].Details["method"])

	_, err = f.svc.Login(ctx, "alice", "wrong password", "")
	assert.ErrorIs(t, err, voice.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "nobody", alicePassword, "")
	assert.ErrorIs(t, err, voice.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "", "", "")
	assert.ErrorIs(t, err, voice.ErrValidation)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Register(ctx, "bob", "long enough password", "")
	require.NoError(t, err)
	assert.Equal(t, voice.RoleViewer, id.Role)
	assert.NotEqual(t, "long enough password", id.PasswordHash)

	_, err = f.svc.Register(ctx, "Bob", "long enough password", voice.RoleViewer)
	assert.ErrorIs(t, err, voice.ErrConflict)
	_, err = f.svc.Register(ctx, "carol", "long enough password", "superuser")
	assert.ErrorIs(t, err, voice.ErrValidation)
	_, err = f.svc.Register(ctx, "carol", "short", voice.RoleViewer)
	assert.ErrorIs(t, err, voice.ErrValidation)
}

func TestSamplesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrollAlice(t)

	before, err := f.mem.GetProfile(ctx, f.alice.ID)
	require.NoError(t, err)

	s, err := f.svc.AddSample(ctx, f.alice.ID, nil, []byte("alice"))
	require.NoError(t, err)
	list, err := f.svc.ListSamples(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	bob, err := f.svc.Register(ctx, "bob", "long enough password", voice.RoleViewer)
	require.NoError(t, err)
	err = f.svc.DeleteSample(ctx, auth.Claims{UserID: bob.ID, Role: bob.Role}, s.ID)
	assert.True(t, errors.Is(err, voice.ErrForbidden))

	require.NoError(t, f.svc.DeleteSample(ctx, auth.Claims{UserID: f.alice.ID, Role: f.alice.Role}, s.ID))
	err = f.svc.DeleteSample(ctx, auth.Claims{UserID: f.admin.ID, Role: f.admin.Role}, s.ID)
	assert.ErrorIs(t, err, voice.ErrSampleNotFound)

	list, err = f.svc.ListSamples(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.NoError(t, f.svc.DeleteSample(ctx, auth.Claims{UserID: f.admin.ID, Role: f.admin.Role}, list[0].ID))

	after, err := f.mem.GetProfile(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Vector, after.Vector)
}
