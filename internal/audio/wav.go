package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/maauso/jumpcutter/internal/silence"
)

// Static errors for WAV decoding.
var (
	// ErrInvalidWAV is returned when the input is not a RIFF/WAVE file.
	ErrInvalidWAV = errors.New("not a valid WAV file")
	// ErrUnsupportedBitDepth is returned for PCM bit depths other than 8, 16, 24 or 32.
	ErrUnsupportedBitDepth = errors.New("unsupported WAV bit depth")
)

// DecodeWAV reads an integer PCM WAV stream into a normalised buffer.
func DecodeWAV(r io.ReadSeeker) (silence.Buffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return silence.Buffer{}, ErrInvalidWAV
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return silence.Buffer{}, fmt.Errorf("read PCM buffer: %w", err)
	}

	return normalise(pcm)
}

// normalise scales integer samples into [-1, 1]. 8-bit WAV is unsigned.
func normalise(pcm *goaudio.IntBuffer) (silence.Buffer, error) {
	if pcm == nil || pcm.Format == nil {
		return silence.Buffer{}, ErrInvalidWAV
	}

	depth := pcm.SourceBitDepth
	var offset, scale float64
	switch depth {
	case 8:
		offset, scale = 128, 128
	case 16, 24, 32:
		scale = float64(int64(1) << (depth - 1))
	default:
		return silence.Buffer{}, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, depth)
	}

	data := make([]float64, len(pcm.Data))
	for i, v := range pcm.Data {
		data[i] = (float64(v) - offset) / scale
	}

	return silence.Buffer{
		Data:       data,
		Channels:   pcm.Format.NumChannels,
		SampleRate: pcm.Format.SampleRate,
	}, nil
}
