// Package cut turns detected silence intervals into an ordered plan of source
// segments, each marked to be kept, sped up or dropped.
package cut

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/maauso/jumpcutter/internal/silence"
)

// Static errors for plan construction.
var (
	// ErrInvalidDuration is returned when the total clip duration is not a positive number.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrUnknownMode is returned for cut modes other than silent, voiced or both.
	ErrUnknownMode = errors.New("unknown cut mode")
	// ErrInvalidSpeed is returned when the silence speed factor is negative.
	ErrInvalidSpeed = errors.New("invalid silence speed: must not be negative")
)

// Mode selects which parts of the clip a plan keeps.
type Mode string

const (
	// ModeSilent removes (or speeds up) silent parts and keeps the voiced ones.
	ModeSilent Mode = "silent"
	// ModeVoiced keeps only the silent parts.
	ModeVoiced Mode = "voiced"
)

// ModeBoth is the cut value that requests one plan per mode.
const ModeBoth = "both"

// IsValid returns true if the mode is silent or voiced.
func (m Mode) IsValid() bool {
	return m == ModeSilent || m == ModeVoiced
}

// ParseCutMode expands a cut value into the modes to build.
// "both" yields silent then voiced.
func ParseCutMode(s string) ([]Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModeSilent):
		return []Mode{ModeSilent}, nil
	case string(ModeVoiced):
		return []Mode{ModeVoiced}, nil
	case ModeBoth:
		return []Mode{ModeSilent, ModeVoiced}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Treatment says what happens to a source range in the output.
type Treatment int

const (
	// PassThrough copies the range unchanged.
	PassThrough Treatment = iota
	// SpeedUp plays the range Speed times faster.
	SpeedUp
	// Drop omits the range.
	Drop
)

// String returns the lowercase treatment name.
func (t Treatment) String() string {
	switch t {
	case PassThrough:
		return "pass_through"
	case SpeedUp:
		return "speed_up"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("treatment(%d)", int(t))
	}
}

// ErrUnknownTreatment is returned when decoding a treatment name that is not
// pass_through, speed_up or drop.
var ErrUnknownTreatment = errors.New("unknown treatment")

// MarshalText encodes the treatment as its name.
func (t Treatment) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a treatment name written by MarshalText.
func (t *Treatment) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pass_through":
		*t = PassThrough
	case "speed_up":
		*t = SpeedUp
	case "drop":
		*t = Drop
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTreatment, text)
	}
	return nil
}

// Segment is a source range with its treatment.
type Segment struct {
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Treatment Treatment `json:"treatment"`
	// Speed is the playback multiplier for SpeedUp segments.
	Speed int `json:"speed,omitempty"`
	// Mute strips the audio from the segment.
	Mute bool `json:"mute,omitempty"`
}

// Duration returns the source length of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// OutputDuration returns how long the segment lasts in the rendered clip.
func (s Segment) OutputDuration() float64 {
	switch s.Treatment {
	case PassThrough:
		return s.Duration()
	case SpeedUp:
		if s.Speed <= 0 {
			return s.Duration()
		}
		return s.Duration() / float64(s.Speed)
	default:
		return 0
	}
}

// Options holds the plan policies.
type Options struct {
	// MinLoudPartDuration drops loud ranges no longer than this many seconds.
	// The default of -1 keeps everything.
	MinLoudPartDuration float64 `json:"min_loud_part_duration" yaml:"min_loud_part_duration"`
	// SilenceSpeed speeds silent ranges up by this factor instead of
	// dropping them. Zero means silent ranges are dropped.
	SilenceSpeed int `json:"silence_speed,omitempty" yaml:"silence_speed" validate:"gte=0"`
}

// DefaultOptions returns options that keep every loud part and drop silence.
func DefaultOptions() Options {
	return Options{MinLoudPartDuration: -1}
}

// Plan is the ordered segment list for one mode.
type Plan struct {
	Mode     Mode      `json:"mode"`
	Segments []Segment `json:"segments"`
}

// Build derives the plan for mode from the detected intervals.
//
// In silent mode the plan tiles [0, totalDuration): every loud range between
// intervals is kept when longer than MinLoudPartDuration and dropped
// otherwise, every interval is sped up or dropped, and a trailing loud range
// runs to the end of the clip. In voiced mode only non-inverted intervals are
// kept. Ranges without positive length are not emitted.
//
// Interval bounds past totalDuration are clamped to it, since the decoded
// audio can run slightly longer than the probed container duration. An
// inverted interval (Start >= End after edge trimming) is not corrected: in
// silent mode the loud ranges around it overlap by the inversion.
func Build(totalDuration float64, intervals []silence.Interval, mode Mode, opts Options) (Plan, error) {
	if !(totalDuration > 0) || math.IsInf(totalDuration, 0) {
		return Plan{}, fmt.Errorf("%w: got %v", ErrInvalidDuration, totalDuration)
	}
	if opts.SilenceSpeed < 0 {
		return Plan{}, fmt.Errorf("%w: got %d", ErrInvalidSpeed, opts.SilenceSpeed)
	}

	if !mode.IsValid() {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	if mode == ModeVoiced {
		return Plan{Mode: mode, Segments: buildVoiced(totalDuration, intervals)}, nil
	}
	return Plan{Mode: mode, Segments: buildSilent(totalDuration, intervals, opts)}, nil
}

func buildSilent(total float64, intervals []silence.Interval, opts Options) []Segment {
	segments := make([]Segment, 0, 2*len(intervals)+1)
	add := func(s Segment) {
		if s.End > s.Start {
			segments = append(segments, s)
		}
	}

	previousStop := 0.0
	for _, iv := range intervals {
		iv = clamp(iv, total)

		loud := Segment{Start: previousStop, End: iv.Start, Treatment: PassThrough}
		if loud.Duration() <= opts.MinLoudPartDuration {
			loud.Treatment = Drop
		}
		add(loud)

		quiet := Segment{Start: iv.Start, End: iv.End, Treatment: Drop}
		if opts.SilenceSpeed > 0 {
			quiet.Treatment = SpeedUp
			quiet.Speed = opts.SilenceSpeed
			quiet.Mute = true
		}
		add(quiet)

		previousStop = iv.End
	}

	if previousStop < total {
		add(Segment{Start: previousStop, End: total, Treatment: PassThrough})
	}
	return segments
}

func buildVoiced(total float64, intervals []silence.Interval) []Segment {
	segments := make([]Segment, 0, len(intervals))
	for _, iv := range intervals {
		iv = clamp(iv, total)
		if iv.Inverted() {
			continue
		}
		segments = append(segments, Segment{Start: iv.Start, End: iv.End, Treatment: PassThrough})
	}
	return segments
}

// clamp limits both bounds of iv to total.
func clamp(iv silence.Interval, total float64) silence.Interval {
	iv.Start = math.Min(iv.Start, total)
	iv.End = math.Min(iv.End, total)
	return iv
}

// Kept returns the segments that appear in the output, in source order.
func (p Plan) Kept() []Segment {
	kept := make([]Segment, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Treatment != Drop {
			kept = append(kept, s)
		}
	}
	return kept
}

// OutputDuration returns the length of the rendered clip in seconds.
func (p Plan) OutputDuration() float64 {
	var d float64
	for _, s := range p.Segments {
		d += s.OutputDuration()
	}
	return d
}

// Count returns how many segments have the given treatment.
func (p Plan) Count(t Treatment) int {
	n := 0
	for _, s := range p.Segments {
		if s.Treatment == t {
			n++
		}
	}
	return n
}

// Covers reports whether the segments tile [0, total) in order with no gap
// or overlap larger than eps.
func (p Plan) Covers(total, eps float64) bool {
	cursor := 0.0
	for _, s := range p.Segments {
		if math.Abs(s.Start-cursor) > eps || s.End < s.Start {
			return false
		}
		cursor = s.End
	}
	return math.Abs(cursor-total) <= eps
}
