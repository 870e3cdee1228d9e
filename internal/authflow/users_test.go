package authflow_test

import (
	"context"
	"testing"

	"voice-auth/internal/audit"
	"voice-auth/internal/authflow"
	"voice-auth/internal/identify"
	"voice-auth/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIdentitiesFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "Alicia", "pw", voice.RoleViewer)
	require.NoError(t, err)

	page, err := f.svc.ListIdentities(ctx, voice.IdentityFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Users, 3)
	assert.Equal(t, f.alice.ID, page.Users[0].ID)

	page, err = f.svc.ListIdentities(ctx, voice.IdentityFilter{Username: "ALI"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = f.svc.ListIdentities(ctx, voice.IdentityFilter{Username: "ali", Role: voice.RoleViewer})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "Alicia", page.Users[0].Username)

	id := f.admin.ID
	page, err = f.svc.ListIdentities(ctx, voice.IdentityFilter{ID: &id})
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "root", page.Users[0].Username)

	page, err = f.svc.ListIdentities(ctx, voice.IdentityFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Users, 1)
	assert.Equal(t, f.admin.ID, page.Users[0].ID)

	page, err = f.svc.ListIdentities(ctx, voice.IdentityFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.NotNil(t, page.Users)
	assert.Empty(t, page.Users)
}

func TestListIdentitiesRejectsBadFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListIdentities(ctx, voice.IdentityFilter{Limit: -1})
	assert.ErrorIs(t, err, voice.ErrValidation)
	_, err = f.svc.ListIdentities(ctx, voice.IdentityFilter{Role: "superuser"})
	assert.ErrorIs(t, err, voice.ErrValidation)
}

func TestUpdateRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.UpdateRole(ctx, f.alice.ID, voice.RoleDataAnalyst)
	require.NoError(t, err)
	assert.Equal(t, voice.RoleDataAnalyst, got.Role)

	stored, err := f.mem.GetIdentity(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, voice.RoleDataAnalyst, stored.Role)
	assert.Equal(t, f.alice.PasswordHash, stored.PasswordHash)

	_, err = f.svc.UpdateRole(ctx, f.alice.ID, voice.RoleDataAnalyst)
	assert.ErrorIs(t, err, voice.ErrConflict)

	_, err = f.svc.UpdateRole(ctx, f.alice.ID, "")
	assert.ErrorIs(t, err, voice.ErrValidation)
	_, err = f.svc.UpdateRole(ctx, f.alice.ID, "owner")
	assert.ErrorIs(t, err, voice.ErrValidation)

	_, err = f.svc.UpdateRole(ctx, 999, voice.RoleViewer)
	assert.ErrorIs(t, err, voice.ErrIdentityNotFound)
}

func TestDeleteIdentityRemovesVoiceDataButKeepsAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enrollAlice(t)
	_, err := f.svc.AddSample(ctx, f.alice.ID, nil, []byte("alice"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteIdentity(ctx, f.alice.ID))

	_, err = f.mem.GetIdentity(ctx, f.alice.ID)
	assert.ErrorIs(t, err, voice.ErrIdentityNotFound)
	_, err = f.mem.GetProfile(ctx, f.alice.ID)
	assert.ErrorIs(t, err, voice.ErrNotFound)
	samples, err := f.mem.ListSamples(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, samples)

	enrolls := eventsOf(f.mem, audit.ActionVoiceEnroll)
	require.Len(t, enrolls, 1)
	assert.Equal(t, f.alice.ID, *enrolls[0].ActorID)

	res, err := f.svc.Identify(ctx, authflow.IdentifyRequest{Audio: []byte("alice")})
	require.NoError(t, err)
	assert.Equal(t, identify.OutcomeNoProfiles, res.Outcome)

	assert.ErrorIs(t, f.svc.DeleteIdentity(ctx, f.alice.ID), voice.ErrIdentityNotFound)
}
