// Package audio decodes the audio track of a media file into a sample buffer
// for silence detection.
package audio

import (
	"context"

	"github.com/maauso/jumpcutter/internal/silence"
)

// DecodeOpts configures audio extraction.
type DecodeOpts struct {
	// SampleRate resamples the track when positive. Zero keeps the source rate.
	SampleRate int
	// Channels downmixes the track when positive. Zero keeps the source layout.
	Channels int
}

// Decoder defines the interface for reading a media file's audio track.
type Decoder interface {
	// Decode extracts the first audio stream of mediaPath and returns its
	// samples normalised to [-1, 1].
	Decode(ctx context.Context, mediaPath string, opts DecodeOpts) (silence.Buffer, error)
}
