package job

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/silence"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// WithDefaults fills the export kind and mode list when they are unset.
// Zero Params and zero Options are replaced by the library defaults.
func (r Request) WithDefaults() Request {
	c := r.Clone()
	if c.Export == "" {
		c.Export = ExportVideo
	}
	if len(c.Modes) == 0 {
		c.Modes = []cut.Mode{cut.ModeSilent}
	}
	if c.Params == (silence.Params{}) {
		c.Params = silence.DefaultParams()
	}
	if c.Options == (cut.Options{}) {
		c.Options = cut.DefaultOptions()
	}
	return c
}

// Validate checks r after defaults are applied. Params and Options are
// validated as nested structs with their own tags.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// OutputPaths maps each requested mode to the file it is written to.
//
// A single mode writes to base. With several modes every output gets a
// "<stem>_<mode>_parts_cutted<ext>" name next to base. Project files use
// the .xml extension in place of the media one.
func OutputPaths(base string, modes []cut.Mode, export Export) map[cut.Mode]string {
	if export == ExportXML {
		base = strings.TrimSuffix(base, filepath.Ext(base)) + ".xml"
	}

	paths := make(map[cut.Mode]string, len(modes))
	if len(modes) == 1 {
		paths[modes[0]] = base
		return paths
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(filepath.Base(base), ext)
	dir := filepath.Dir(base)
	for _, m := range modes {
		paths[m] = filepath.Join(dir, fmt.Sprintf("%s_%s_parts_cutted%s", stem, m, ext))
	}
	return paths
}

// DefaultOutputPath places the output of a job without an explicit
// destination under dir, named after the input.
func DefaultOutputPath(dir, jobID, inputPath string) string {
	return filepath.Join(dir, jobID+"_"+filepath.Base(inputPath))
}
