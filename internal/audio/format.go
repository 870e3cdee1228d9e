package audio

import "bytes"

// Format is a container format recognized from leading magic bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatWebM
	FormatOgg
	FormatMP3
	FormatFLAC
	FormatMP4
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatWebM:
		return "webm"
	case FormatOgg:
		return "ogg"
	case FormatMP3:
		return "mp3"
	case FormatFLAC:
		return "flac"
	case FormatMP4:
		return "mp4"
	default:
		return "unknown"
	}
}

// Sniff identifies the container of b.
func Sniff(b []byte) Format {
	switch {
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")):
		return FormatWAV
	case len(b) >= 4 && bytes.Equal(b[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case len(b) >= 4 && bytes.Equal(b[0:4], []byte("OggS")):
		return FormatOgg
	case len(b) >= 4 && bytes.Equal(b[0:4], []byte("fLaC")):
		return FormatFLAC
	case len(b) >= 3 && bytes.Equal(b[0:3], []byte("ID3")):
		return FormatMP3
	case len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0:
		return FormatMP3
	case len(b) >= 8 && bytes.Equal(b[4:8], []byte("ftyp")):
		return FormatMP4
	default:
		return FormatUnknown
	}
}
