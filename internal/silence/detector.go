// Package silence finds silent intervals in a decoded audio buffer using an
// amplitude threshold with failure tolerance.
package silence

import (
	"errors"
	"fmt"
	"math"
)

// Static errors for buffer preconditions.
var (
	// ErrInvalidSampleRate is returned when the buffer sample rate is not positive.
	ErrInvalidSampleRate = errors.New("invalid sample rate: must be positive")
	// ErrInvalidChannels is returned when the buffer channel count is not positive.
	ErrInvalidChannels = errors.New("invalid channel count: must be positive")
	// ErrMisalignedBuffer is returned when the sample count is not a multiple of the channel count.
	ErrMisalignedBuffer = errors.New("sample count is not a multiple of channel count")
)

// Buffer holds interleaved audio samples in the range [-1, 1].
// A frame is one time index across all channels.
type Buffer struct {
	// Data holds the samples, channel-interleaved.
	Data []float64
	// Channels is the number of interleaved channels.
	Channels int
	// SampleRate is the number of frames per second.
	SampleRate int
}

// Frames returns the number of frames in the buffer.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

func (b Buffer) validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidChannels, b.Channels)
	}
	if len(b.Data)%b.Channels != 0 {
		return fmt.Errorf("%w: %d samples, %d channels", ErrMisalignedBuffer, len(b.Data), b.Channels)
	}
	return nil
}

// Interval is a silent span in seconds from the clip origin.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start. It is negative for inverted intervals.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Inverted reports whether edge trimming collapsed the interval.
func (iv Interval) Inverted() bool {
	return iv.Start >= iv.End
}

// Params configures a detection run.
type Params struct {
	// MagnitudeThresholdRatio scales the buffer's minimum peak magnitude into
	// the silence threshold.
	MagnitudeThresholdRatio float64 `json:"magnitude_threshold_ratio" yaml:"magnitude_threshold_ratio" validate:"gt=0"`
	// DurationThreshold is the minimum silent run length, in seconds.
	DurationThreshold float64 `json:"duration_threshold" yaml:"duration_threshold" validate:"gte=0"`
	// FailureToleranceRatio is the number of seconds of non-silent audio
	// tolerated inside a silent run before it is closed.
	FailureToleranceRatio float64 `json:"failure_tolerance_ratio" yaml:"failure_tolerance_ratio" validate:"gte=0"`
	// SpaceOnEdges is trimmed from both ends of every detected interval, in seconds.
	SpaceOnEdges float64 `json:"space_on_edges" yaml:"space_on_edges" validate:"gte=0"`
}

// DefaultParams returns the default detection parameters.
func DefaultParams() Params {
	return Params{
		MagnitudeThresholdRatio: 0.02,
		DurationThreshold:       0.5,
		FailureToleranceRatio:   0.1,
		SpaceOnEdges:            0.1,
	}
}

// EdgesMayInvert reports whether edge trimming can produce intervals with
// Start > End. Callers should warn about it; detection still proceeds.
func (p Params) EdgesMayInvert() bool {
	return p.SpaceOnEdges >= p.DurationThreshold/2
}

// Detect scans buf once and returns the silent intervals in scan order.
//
// The threshold is global: min(|min(samples)|, max(samples)) scaled by
// MagnitudeThresholdRatio. A frame is silent when every channel is strictly
// below it. Non-silent frames accumulate as failures, and the current run is
// closed once failures reach the tolerance; runs at least DurationThreshold
// long are emitted. A run still open at the end of the buffer is closed at
// the last frame.
//
// After trimming SpaceOnEdges, the interval start is taken as an absolute
// value while the end keeps its sign.
func Detect(buf Buffer, p Params) ([]Interval, error) {
	if err := buf.validate(); err != nil {
		return nil, err
	}

	intervals := make([]Interval, 0)
	frames := buf.Frames()
	if frames == 0 {
		return intervals, nil
	}

	threshold := minMagnitude(buf.Data) * p.MagnitudeThresholdRatio
	rate := float64(buf.SampleRate)
	failureTolerance := rate * p.FailureToleranceRatio
	durationThreshold := rate * p.DurationThreshold

	var silenceCount, failureCount int

	closeout := func(i int) {
		if float64(silenceCount) >= durationThreshold {
			end := float64(i-failureCount) / rate
			start := end - float64(silenceCount)/rate

			start += p.SpaceOnEdges
			end -= p.SpaceOnEdges

			intervals = append(intervals, Interval{Start: math.Abs(start), End: end})
		}
		silenceCount = 0
		failureCount = 0
	}

	for i := 0; i < frames; i++ {
		if frameSilent(buf.Data[i*buf.Channels:(i+1)*buf.Channels], threshold) {
			silenceCount++
		} else {
			failureCount++
		}

		if failureCount > 0 && float64(failureCount) >= failureTolerance {
			closeout(i)
		}
	}

	if silenceCount > 0 {
		closeout(frames - 1)
	}

	return intervals, nil
}

func frameSilent(frame []float64, threshold float64) bool {
	for _, v := range frame {
		if math.Abs(v) >= threshold {
			return false
		}
	}
	return true
}

// minMagnitude returns min(|min(data)|, max(data)).
func minMagnitude(data []float64) float64 {
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return math.Min(math.Abs(lo), hi)
}
