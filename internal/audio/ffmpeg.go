package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"voice-auth/internal/voice"
)

// FFmpegDecoder shells out to ffmpeg for compressed containers (webm, ogg,
// mp3, flac, mp4), asking it for 16 kHz mono s16le on stdout.
type FFmpegDecoder struct {
	Path string
}

func (d FFmpegDecoder) Decode(ctx context.Context, data []byte) (Waveform, error) {
	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ar", fmt.Sprint(TargetSampleRate), "-ac", "1", "-f", "s16le",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Waveform{}, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Waveform{}, fmt.Errorf("%w: ffmpeg: %s", voice.ErrDecode, strings.TrimSpace(stderr.String()))
		}
		return Waveform{}, fmt.Errorf("%w: ffmpeg: %v", voice.ErrDecode, err)
	}

	raw := stdout.Bytes()
	if len(raw) < 2 {
		return Waveform{}, fmt.Errorf("%w: ffmpeg produced no audio", voice.ErrDecode)
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return Waveform{Samples: samples, SampleRate: TargetSampleRate}, nil
}
