package audio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"voice-auth/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n, rate int, freq float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestSniff(t *testing.T) {
	wav, err := Waveform{Samples: []int16{1, 2, 3}, SampleRate: 16000}.WAV()
	require.NoError(t, err)

	cases := []struct {
		name string
		in   []byte
		want Format
	}{
		{"wav", wav, FormatWAV},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x00}, FormatWebM},
		{"ogg", []byte("OggS\x00\x02"), FormatOgg},
		{"flac", []byte("fLaC\x00"), FormatFLAC},
		{"mp3 id3", []byte("ID3\x04"), FormatMP3},
		{"mp3 frame", []byte{0xFF, 0xFB, 0x90}, FormatMP3},
		{"mp4", []byte("\x00\x00\x00\x20ftypisom"), FormatMP4},
		{"text", []byte("hello world"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sniff(tc.in))
		})
	}
}

func TestWAVRoundTripAtTargetRate(t *testing.T) {
	in := Waveform{Samples: sine(1600, TargetSampleRate, 440), SampleRate: TargetSampleRate}
	data, err := in.WAV()
	require.NoError(t, err)

	out, err := WAVDecoder{}.Decode(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, TargetSampleRate, out.SampleRate)
	assert.Equal(t, in.Samples, out.Samples)
	assert.Equal(t, 100*time.Millisecond, out.Duration())
}

func TestWAVDecoderResamples(t *testing.T) {
	in := Waveform{Samples: sine(48000, 48000, 440), SampleRate: 48000}
	data, err := in.WAV()
	require.NoError(t, err)

	out, err := WAVDecoder{}.Decode(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, TargetSampleRate, out.SampleRate)
	assert.NotEmpty(t, out.Samples)
	assert.LessOrEqual(t, len(out.Samples), 16100)
}

func TestWAVDecoderRejectsGarbage(t *testing.T) {
	_, err := WAVDecoder{}.Decode(context.Background(), []byte("not audio at all"))
	require.ErrorIs(t, err, voice.ErrUnsupportedFormat)

	truncated := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
	_, err = WAVDecoder{}.Decode(context.Background(), truncated)
	require.Error(t, err)
	assert.True(t, errors.Is(err, voice.ErrDecode) || errors.Is(err, voice.ErrUnsupportedFormat))
}

type stubDecoder struct{ calls int }

func (s *stubDecoder) Decode(ctx context.Context, data []byte) (Waveform, error) {
	s.calls++
	return Waveform{Samples: []int16{1}, SampleRate: TargetSampleRate}, nil
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	_, err := NewChain(nil).Decode(ctx, nil)
	require.ErrorIs(t, err, voice.ErrUnsupportedFormat)

	_, err = NewChain(nil).Decode(ctx, []byte("OggS\x00\x02"))
	require.ErrorIs(t, err, voice.ErrUnsupportedFormat)

	fb := &stubDecoder{}
	_, err = NewChain(fb).Decode(ctx, []byte("OggS\x00\x02"))
	require.NoError(t, err)
	assert.Equal(t, 1, fb.calls)

	_, err = NewChain(fb).Decode(ctx, []byte("plain text"))
	require.ErrorIs(t, err, voice.ErrUnsupportedFormat)
	assert.Equal(t, 1, fb.calls)
}

func TestWaveformConversions(t *testing.T) {
	w := Waveform{Samples: []int16{0, -32768, 16384}, SampleRate: TargetSampleRate}
	assert.Equal(t, []float32{0, -1, 0.5}, w.Float32())
	assert.Equal(t, []byte{0, 0, 0x00, 0x80, 0x00, 0x40}, w.PCM())

	_, err := Waveform{}.WAV()
	require.Error(t, err)
}

func TestFFmpegDecoderMissingBinary(t *testing.T) {
	_, err := FFmpegDecoder{Path: "/nonexistent/ffmpeg"}.Decode(context.Background(), []byte("OggS"))
	require.ErrorIs(t, err, voice.ErrDecode)
}
