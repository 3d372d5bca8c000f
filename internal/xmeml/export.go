package xmeml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/maauso/jumpcutter/internal/cut"
)

// Static errors for project export.
var (
	// ErrInvalidFrameRate is returned when the source frame rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
	// ErrEmptyPlan is returned when no segment of the plan survives frame rounding.
	ErrEmptyPlan = errors.New("plan has no segments to export")
)

const (
	documentVersion = "4"
	fileID          = "file-1"
)

// Source describes the media the plan was built from.
type Source struct {
	Path            string
	Name            string
	FrameRate       float64
	Width           int
	Height          int
	AudioChannels   int
	AudioSampleRate int
	// Duration of the whole source in seconds.
	Duration float64
}

// Frames converts seconds to frames, truncating.
func Frames(seconds, frameRate float64) int {
	return int(seconds * frameRate)
}

// Export transcribes the kept segments of plan into an xmeml sequence.
func Export(plan cut.Plan, src Source) (*Document, error) {
	if !(src.FrameRate > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidFrameRate, src.FrameRate)
	}

	pathURL, err := fileURL(src.Path)
	if err != nil {
		return nil, err
	}

	name := src.Name
	if name == "" {
		name = filepath.Base(src.Path)
	}

	rate := rateOf(src.FrameRate)
	channels := src.AudioChannels
	if channels < 1 {
		channels = 1
	}

	videoTrack := Track{Enabled: true}
	audioTracks := make([]Track, channels)
	for i := range audioTracks {
		audioTracks[i].Enabled = true
	}

	sourceFrames := Frames(src.Duration, src.FrameRate)
	cursor := 0
	for _, seg := range plan.Kept() {
		in := Frames(seg.Start, src.FrameRate)
		out := Frames(seg.End, src.FrameRate)
		length := out - in
		if seg.Treatment == cut.SpeedUp && seg.Speed > 0 {
			length /= seg.Speed
		}
		if length <= 0 {
			continue
		}

		index := len(videoTrack.ClipItems) + 1
		file := File{ID: fileID}
		if index == 1 {
			file = fullFile(name, pathURL, rate, sourceFrames, src, channels)
		}

		withAudio := !seg.Mute
		links := clipLinks(index, channels, withAudio)

		base := ClipItem{
			Name:     name,
			Enabled:  true,
			Duration: sourceFrames,
			Rate:     rate,
			Start:    cursor,
			End:      cursor + length,
			In:       in,
			Out:      out,
			Links:    links,
		}

		video := base
		video.ID = videoClipID(index)
		video.File = file
		video.Filters = videoFilters(seg)
		videoTrack.ClipItems = append(videoTrack.ClipItems, video)

		if withAudio {
			for ch := 1; ch <= channels; ch++ {
				audio := base
				audio.ID = audioClipID(index, ch)
				audio.File = File{ID: fileID}
				audio.SourceTrack = &SourceTrack{MediaType: "audio", TrackIndex: ch}
				audioTracks[ch-1].ClipItems = append(audioTracks[ch-1].ClipItems, audio)
			}
		}

		cursor += length
	}

	if len(videoTrack.ClipItems) == 0 {
		return nil, ErrEmptyPlan
	}

	doc := &Document{
		Version: documentVersion,
		Sequence: Sequence{
			ID:       "sequence-1",
			Name:     fmt.Sprintf("%s (%s parts cut)", name, plan.Mode),
			Duration: cursor,
			Rate:     rate,
			Media: Media{
				Video: VideoMedia{
					Format: &Format{SampleCharacteristics: SampleCharacteristics{
						Rate:   &rate,
						Width:  src.Width,
						Height: src.Height,
					}},
					Tracks: []Track{videoTrack},
				},
				Audio: AudioMedia{
					NumOutputChannels: channels,
					Format: &Format{SampleCharacteristics: SampleCharacteristics{
						Depth:      16,
						SampleRate: src.AudioSampleRate,
					}},
					Tracks: audioTracks,
				},
			},
		},
	}
	return doc, nil
}

// Encode writes doc with the XML declaration and the xmeml DOCTYPE.
func Encode(w io.Writer, doc *Document) error {
	output, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal xmeml: %w", err)
	}

	xmlContent := xml.Header + "<!DOCTYPE xmeml>\n" + string(output) + "\n"
	if _, err := io.WriteString(w, xmlContent); err != nil {
		return fmt.Errorf("write xmeml: %w", err)
	}
	return nil
}

func rateOf(fps float64) Rate {
	timebase := math.Round(fps)
	return Rate{
		Timebase: int(timebase),
		NTSC:     Bool(math.Abs(fps-timebase) > 1e-3),
	}
}

func fileURL(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve source path: %w", err)
	}
	u := url.URL{Scheme: "file", Host: "localhost", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

func fullFile(name, pathURL string, rate Rate, frames int, src Source, channels int) File {
	r := rate
	return File{
		ID:       fileID,
		Name:     name,
		PathURL:  pathURL,
		Rate:     &r,
		Duration: frames,
		Media: &FileMedia{
			Video: &FileVideo{SampleCharacteristics: SampleCharacteristics{
				Width:  src.Width,
				Height: src.Height,
			}},
			Audio: &FileAudio{
				SampleCharacteristics: SampleCharacteristics{
					Depth:      16,
					SampleRate: src.AudioSampleRate,
				},
				ChannelCount: channels,
			},
		},
	}
}

func videoClipID(index int) string {
	return "clipitem-v" + strconv.Itoa(index)
}

func audioClipID(index, channel int) string {
	return fmt.Sprintf("clipitem-a%d-%d", index, channel)
}

// clipLinks returns the link set shared by every item of one source range.
func clipLinks(index, channels int, withAudio bool) []Link {
	links := []Link{{
		LinkClipRef: videoClipID(index),
		MediaType:   "video",
		TrackIndex:  1,
		ClipIndex:   index,
	}}
	if !withAudio {
		return links
	}
	for ch := 1; ch <= channels; ch++ {
		links = append(links, Link{
			LinkClipRef: audioClipID(index, ch),
			MediaType:   "audio",
			TrackIndex:  ch,
			ClipIndex:   index,
		})
	}
	return links
}

func videoFilters(seg cut.Segment) []Filter {
	filters := []Filter{
		{Effect: basicMotion()},
		{Effect: crop()},
		{Effect: opacity()},
	}
	if seg.Treatment == cut.SpeedUp && seg.Speed > 0 {
		filters = append(filters, Filter{Effect: timeRemap(seg.Speed)})
	}
	return filters
}

func scalar(id, name, lo, hi, value string) Parameter {
	return Parameter{ParameterID: id, Name: name, ValueMin: lo, ValueMax: hi, Value: ParamValue{Text: value}}
}

func point(id, name string) Parameter {
	zero := 0.0
	return Parameter{ParameterID: id, Name: name, Value: ParamValue{Horiz: &zero, Vert: &zero}}
}

func basicMotion() Effect {
	return Effect{
		Name:           "Basic Motion",
		EffectID:       "basic",
		EffectCategory: "motion",
		EffectType:     "motion",
		MediaType:      "video",
		Parameters: []Parameter{
			scalar("scale", "Scale", "0", "1000", "100"),
			scalar("rotation", "Rotation", "-8640", "8640", "0"),
			point("center", "Center"),
			point("centerOffset", "Anchor Point"),
		},
	}
}

func crop() Effect {
	return Effect{
		Name:           "Crop",
		EffectID:       "crop",
		EffectCategory: "motion",
		EffectType:     "motion",
		MediaType:      "video",
		Parameters: []Parameter{
			scalar("left", "left", "0", "100", "0"),
			scalar("right", "right", "0", "100", "0"),
			scalar("top", "top", "0", "100", "0"),
			scalar("bottom", "bottom", "0", "100", "0"),
		},
	}
}

func opacity() Effect {
	return Effect{
		Name:           "Opacity",
		EffectID:       "opacity",
		EffectCategory: "motion",
		EffectType:     "motion",
		MediaType:      "video",
		Parameters: []Parameter{
			scalar("opacity", "opacity", "0", "100", "100"),
		},
	}
}

func timeRemap(speed int) Effect {
	return Effect{
		Name:           "Time Remap",
		EffectID:       "timeremap",
		EffectCategory: "motion",
		EffectType:     "motion",
		MediaType:      "video",
		Parameters: []Parameter{
			scalar("speed", "speed", "-100000", "100000", strconv.Itoa(speed*100)),
		},
	}
}
