// Package xmeml exports a cut plan as an xmeml project file (the interchange
// format read by Final Cut Pro 7 and Premiere Pro), so the cut can be
// finished in an editor instead of being rendered.
package xmeml

import "encoding/xml"

// Bool marshals as TRUE or FALSE.
type Bool bool

// MarshalText implements encoding.TextMarshaler.
func (b Bool) MarshalText() ([]byte, error) {
	if b {
		return []byte("TRUE"), nil
	}
	return []byte("FALSE"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bool) UnmarshalText(text []byte) error {
	*b = string(text) == "TRUE"
	return nil
}

// Document is the xmeml root element.
type Document struct {
	XMLName  xml.Name `xml:"xmeml"`
	Version  string   `xml:"version,attr"`
	Sequence Sequence `xml:"sequence"`
}

// Sequence is the edited timeline.
type Sequence struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name"`
	Duration int    `xml:"duration"`
	Rate     Rate   `xml:"rate"`
	Media    Media  `xml:"media"`
}

// Rate is a frame rate as a whole timebase plus the NTSC flag.
type Rate struct {
	Timebase int  `xml:"timebase"`
	NTSC     Bool `xml:"ntsc"`
}

type Media struct {
	Video VideoMedia `xml:"video"`
	Audio AudioMedia `xml:"audio"`
}

type VideoMedia struct {
	Format *Format `xml:"format,omitempty"`
	Tracks []Track `xml:"track"`
}

type AudioMedia struct {
	NumOutputChannels int     `xml:"numOutputChannels,omitempty"`
	Format            *Format `xml:"format,omitempty"`
	Tracks            []Track `xml:"track"`
}

type Format struct {
	SampleCharacteristics SampleCharacteristics `xml:"samplecharacteristics"`
}

type SampleCharacteristics struct {
	Rate       *Rate `xml:"rate,omitempty"`
	Width      int   `xml:"width,omitempty"`
	Height     int   `xml:"height,omitempty"`
	Depth      int   `xml:"depth,omitempty"`
	SampleRate int   `xml:"samplerate,omitempty"`
}

type Track struct {
	ClipItems []ClipItem `xml:"clipitem"`
	Enabled   Bool       `xml:"enabled"`
	Locked    Bool       `xml:"locked"`
}

// ClipItem places a source range on a track. Start and End are timeline
// frames, In and Out are source frames.
type ClipItem struct {
	ID          string       `xml:"id,attr"`
	Name        string       `xml:"name"`
	Enabled     Bool         `xml:"enabled"`
	Duration    int          `xml:"duration"`
	Rate        Rate         `xml:"rate"`
	Start       int          `xml:"start"`
	End         int          `xml:"end"`
	In          int          `xml:"in"`
	Out         int          `xml:"out"`
	File        File         `xml:"file"`
	SourceTrack *SourceTrack `xml:"sourcetrack,omitempty"`
	Filters     []Filter     `xml:"filter,omitempty"`
	Links       []Link       `xml:"link,omitempty"`
}

// File describes the source media. Only the first reference carries the
// full description; later ones repeat the id alone.
type File struct {
	ID       string     `xml:"id,attr"`
	Name     string     `xml:"name,omitempty"`
	PathURL  string     `xml:"pathurl,omitempty"`
	Rate     *Rate      `xml:"rate,omitempty"`
	Duration int        `xml:"duration,omitempty"`
	Media    *FileMedia `xml:"media,omitempty"`
}

type FileMedia struct {
	Video *FileVideo `xml:"video,omitempty"`
	Audio *FileAudio `xml:"audio,omitempty"`
}

type FileVideo struct {
	SampleCharacteristics SampleCharacteristics `xml:"samplecharacteristics"`
}

type FileAudio struct {
	SampleCharacteristics SampleCharacteristics `xml:"samplecharacteristics"`
	ChannelCount          int                   `xml:"channelcount"`
}

type SourceTrack struct {
	MediaType  string `xml:"mediatype"`
	TrackIndex int    `xml:"trackindex"`
}

type Filter struct {
	Effect Effect `xml:"effect"`
}

type Effect struct {
	Name           string      `xml:"name"`
	EffectID       string      `xml:"effectid"`
	EffectCategory string      `xml:"effectcategory"`
	EffectType     string      `xml:"effecttype"`
	MediaType      string      `xml:"mediatype"`
	Parameters     []Parameter `xml:"parameter"`
}

type Parameter struct {
	ParameterID string     `xml:"parameterid"`
	Name        string     `xml:"name"`
	ValueMin    string     `xml:"valuemin,omitempty"`
	ValueMax    string     `xml:"valuemax,omitempty"`
	Value       ParamValue `xml:"value"`
}

// ParamValue is either a scalar or a horiz/vert point.
type ParamValue struct {
	Text  string   `xml:",chardata"`
	Horiz *float64 `xml:"horiz,omitempty"`
	Vert  *float64 `xml:"vert,omitempty"`
}

// Link ties clip items that belong to the same source range.
type Link struct {
	LinkClipRef string `xml:"linkclipref"`
	MediaType   string `xml:"mediatype"`
	TrackIndex  int    `xml:"trackindex"`
	ClipIndex   int    `xml:"clipindex"`
}
