package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/silence"
)

// ErrInvalidPreset wraps every preset parse or validation failure.
var ErrInvalidPreset = errors.New("config: invalid preset")

// Preset is a named set of detection, plan and encoder settings kept in a
// YAML file, for example:
//
//	params:
//	  magnitude_threshold_ratio: 0.03
//	  duration_threshold: 0.4
//	options:
//	  silence_speed: 4
//	encode:
//	  codec: libx265
//
// Keys left out of the file keep the base values.
type Preset struct {
	Params  silence.Params   `yaml:"params"`
	Options cut.Options      `yaml:"options"`
	Encode  media.EncodeOpts `yaml:"encode"`
}

// Validate checks the parameter ranges of p.
func (p Preset) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPreset, err)
	}
	return nil
}

// LoadPreset reads the YAML preset at path over base.
func LoadPreset(path string, base Preset) (Preset, error) {
	data, err := os.ReadFile(path) // #nosec G304 - preset path comes from the operator
	if err != nil {
		return Preset{}, fmt.Errorf("read preset: %w", err)
	}
	return ParsePreset(data, base)
}

// ParsePreset decodes a YAML preset over base. Unknown keys are rejected.
func ParsePreset(data []byte, base Preset) (Preset, error) {
	p := base

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Preset{}, fmt.Errorf("%w: %w", ErrInvalidPreset, err)
	}

	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	return p, nil
}
