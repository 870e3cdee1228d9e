// Package audio turns uploaded recordings into 16 kHz mono PCM16 waveforms,
// the input format of the embedding and transcription collaborators.
package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// TargetSampleRate is the rate every decoded waveform is normalized to.
const TargetSampleRate = 16000

// Waveform is mono signed 16-bit PCM.
type Waveform struct {
	Samples    []int16
	SampleRate int
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// Float32 returns the samples scaled to [-1, 1).
func (w Waveform) Float32() []float32 {
	out := make([]float32, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// PCM returns the samples as little-endian bytes (s16le).
func (w Waveform) PCM() []byte {
	out := make([]byte, 2*len(w.Samples))
	for i, s := range w.Samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// WAV encodes the waveform as a 16-bit mono RIFF/WAVE file.
func (w Waveform) WAV() ([]byte, error) {
	if w.SampleRate <= 0 {
		return nil, errors.New("audio: sample rate must be > 0")
	}
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, w.SampleRate, 16, 1, 1)

	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// memWriteSeeker is the in-memory io.WriteSeeker the WAV encoder needs to
// patch its size headers after writing.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("audio: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
