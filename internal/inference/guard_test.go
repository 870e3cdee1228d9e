package inference

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"voice-auth/internal/audio"
	"voice-auth/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlots struct {
	free     bool
	acquired int
	released int
}

func (f *fakeSlots) Acquire(ctx context.Context) (bool, error) {
	if !f.free {
		return false, nil
	}
	f.acquired++
	return true, nil
}

func (f *fakeSlots) Release(ctx context.Context) error {
	f.released++
	return nil
}

func TestGuard_TimeoutBecomesDependencyTimeout(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "extractor", Timeout: 20 * time.Millisecond}, nil)

	err := g.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, voice.ErrDependencyTimeout)
	require.ErrorIs(t, err, voice.ErrDependency)
}

func TestGuard_CallerCancellationPassesThrough(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "extractor"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Do(ctx, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestGuard_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "transcriber", MaxFailures: 2, OpenTimeout: time.Minute}, nil)
	boom := fmt.Errorf("%w: upstream 500", voice.ErrTranscriptionFailed)

	for i := 0; i < 2; i++ {
		err := g.Do(context.Background(), func(ctx context.Context) error { return boom })
		require.ErrorIs(t, err, voice.ErrTranscriptionFailed)
	}
	assert.Equal(t, "open", g.State())

	called := false
	err := g.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, voice.ErrDependencyBusy)
	assert.False(t, called)
}

func TestGuard_ValidationErrorsDoNotTrip(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "decoder", MaxFailures: 1}, nil)

	err := g.Do(context.Background(), func(ctx context.Context) error { return voice.ErrUnsupportedFormat })
	require.ErrorIs(t, err, voice.ErrUnsupportedFormat)
	assert.Equal(t, "closed", g.State())
}

func TestGuard_Slots(t *testing.T) {
	slots := &fakeSlots{}
	g := NewGuard(GuardConfig{Name: "extractor"}, slots)

	err := g.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, voice.ErrDependencyBusy)

	slots.free = true
	require.NoError(t, g.Do(context.Background(), func(ctx context.Context) error { return nil }))
	err = g.Do(context.Background(), func(ctx context.Context) error { return errors.New("x") })
	require.Error(t, err)
	assert.Equal(t, 2, slots.acquired)
	assert.Equal(t, 2, slots.released)
}

func TestUnconfigured(t *testing.T) {
	u := Unconfigured{Setting: "EXTRACTOR_URL"}
	_, err := u.Extract(context.Background(), audio.Waveform{})
	assert.ErrorIs(t, err, voice.ErrExtractionFailed)
	_, err = u.Transcribe(context.Background(), audio.Waveform{}, "en")
	assert.ErrorIs(t, err, voice.ErrTranscriptionFailed)
}
