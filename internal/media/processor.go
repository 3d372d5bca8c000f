// Package media provides probing, cutting and joining of audio/video files.
package media

import (
	"context"

	"github.com/maauso/jumpcutter/internal/cut"
)

// Processor defines the interface for the media operations a cut needs.
// Implementations should use ffmpeg or similar tools for media manipulation.
type Processor interface {
	// Probe reads container and stream metadata of a media file.
	Probe(ctx context.Context, path string) (Info, error)

	// RenderPlan writes the kept segments of plan, cut from src, to output.
	// PassThrough segments are copied at normal speed, SpeedUp segments are
	// time-compressed by their speed factor and muted when the segment asks
	// for it. Dropped segments are skipped.
	RenderPlan(ctx context.Context, src string, plan cut.Plan, output string, opts EncodeOpts) error

	// JoinVideos concatenates multiple media files into a single output file.
	// It first attempts a fast copy (no re-encoding) and falls back to re-encoding
	// if the copy fails due to incompatible codecs.
	JoinVideos(ctx context.Context, paths []string, output string) error
}

// Info is the subset of ffprobe output a cut depends on.
type Info struct {
	Duration        float64 `json:"duration"`
	HasVideo        bool    `json:"has_video"`
	FrameRate       float64 `json:"frame_rate,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	HasAudio        bool    `json:"has_audio"`
	AudioChannels   int     `json:"audio_channels,omitempty"`
	AudioSampleRate int     `json:"audio_sample_rate,omitempty"`
}

// EncodeOpts selects the encoder for rendered output.
type EncodeOpts struct {
	// Codec is the ffmpeg video encoder name. Empty means libx264.
	Codec string `json:"codec,omitempty" yaml:"codec"`
	// Bitrate is an ffmpeg bitrate such as "4M". Empty means constant quality.
	Bitrate string `json:"bitrate,omitempty" yaml:"bitrate"`
}

func (o EncodeOpts) codec() string {
	if o.Codec == "" {
		return "libx264"
	}
	return o.Codec
}
