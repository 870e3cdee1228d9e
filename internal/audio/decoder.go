package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"voice-auth/internal/voice"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Decoder turns an encoded recording into a normalized waveform.
//
// Errors wrap voice.ErrUnsupportedFormat when the container is not
// recognized, voice.ErrDecode when a recognized container is unreadable.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (Waveform, error)
}

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVDecoder decodes PCM WAV in process. Any channel count, bit depth and
// sample rate is accepted; the result is always 16 kHz mono.
type WAVDecoder struct{}

func (WAVDecoder) Decode(ctx context.Context, data []byte) (Waveform, error) {
	if Sniff(data) != FormatWAV {
		return Waveform{}, fmt.Errorf("%w: not a wav container", voice.ErrUnsupportedFormat)
	}
	if err := ctx.Err(); err != nil {
		return Waveform{}, err
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Waveform{}, fmt.Errorf("%w: invalid wav file", voice.ErrDecode)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return Waveform{}, fmt.Errorf("%w: wav encoding %d is not pcm", voice.ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: read pcm: %v", voice.ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return Waveform{}, fmt.Errorf("%w: missing wav format", voice.ErrDecode)
	}

	mono := downmix(buf.Data, buf.Format.NumChannels, buf.SourceBitDepth)
	if len(mono) == 0 {
		return Waveform{}, fmt.Errorf("%w: wav has no samples", voice.ErrDecode)
	}
	out, err := Resample(mono, buf.Format.SampleRate, TargetSampleRate)
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: %v", voice.ErrDecode, err)
	}
	return Waveform{Samples: toInt16(out), SampleRate: TargetSampleRate}, nil
}

// downmix averages interleaved channels into normalized mono samples.
func downmix(data []int, channels, bitDepth int) []float64 {
	frames := len(data) / channels
	out := make([]float64, frames)
	scale := math.Ldexp(1, bitDepth-1)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := float64(data[i*channels+c])
			if bitDepth == 8 {
				v -= 128
			}
			sum += v / scale
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Resample converts mono samples in [-1, 1] between sample rates.
func Resample(in []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return out, nil
}

func toInt16(in []float64) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := math.Round(s * 32768)
		switch {
		case v > math.MaxInt16:
			out[i] = math.MaxInt16
		case v < math.MinInt16:
			out[i] = math.MinInt16
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// Chain decodes WAV in process and hands every other recognized container
// to Fallback. With no Fallback only WAV is supported.
type Chain struct {
	WAV      Decoder
	Fallback Decoder
}

func NewChain(fallback Decoder) *Chain {
	return &Chain{WAV: WAVDecoder{}, Fallback: fallback}
}

func (c *Chain) Decode(ctx context.Context, data []byte) (Waveform, error) {
	if len(data) == 0 {
		return Waveform{}, fmt.Errorf("%w: empty audio", voice.ErrUnsupportedFormat)
	}
	switch f := Sniff(data); f {
	case FormatWAV:
		return c.WAV.Decode(ctx, data)
	case FormatUnknown:
		return Waveform{}, fmt.Errorf("%w: unrecognized container", voice.ErrUnsupportedFormat)
	default:
		if c.Fallback == nil {
			return Waveform{}, fmt.Errorf("%w: %s decoding is not enabled", voice.ErrUnsupportedFormat, f)
		}
		return c.Fallback.Decode(ctx, data)
	}
}
