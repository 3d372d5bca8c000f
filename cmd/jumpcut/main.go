// Package main provides the jumpcut command, which cuts the silent or voiced
// parts out of a media file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/maauso/jumpcutter/internal/bootstrap"
	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/job"
)

var errMissingPaths = errors.New("both --input and --output are required")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds the parsed command line.
type cliFlags struct {
	set *pflag.FlagSet

	input     string
	output    string
	cut       string
	preset    string
	xml       bool
	pushToS3  bool
	logLevel  string
	logFormat string

	magnitudeThresholdRatio float64
	durationThreshold       float64
	failureToleranceRatio   float64
	spaceOnEdges            float64
	silencePartSpeed        int
	minLoudPartDuration     float64
	codec                   string
	bitrate                 string
}

func newFlags(stderr io.Writer) *cliFlags {
	f := &cliFlags{set: pflag.NewFlagSet("jumpcut", pflag.ContinueOnError)}
	fs := f.set
	fs.SetOutput(stderr)

	fs.StringVarP(&f.input, "input", "i", "", "path to the input media")
	fs.StringVarP(&f.output, "output", "o", "", "path to save the output to")
	fs.StringVarP(&f.cut, "cut", "c", "silent", "cut the silent parts, the voiced parts, or both into two outputs (silent|voiced|both)")
	fs.Float64VarP(&f.magnitudeThresholdRatio, "magnitude-threshold-ratio", "m", 0.02,
		"samples below min(|min(x)|, max(x)) times this ratio count as silence")
	fs.Float64VarP(&f.durationThreshold, "duration-threshold", "d", 0.5, "minimum seconds of silence to cut")
	fs.Float64VarP(&f.failureToleranceRatio, "failure-tolerance-ratio", "f", 0.1,
		"seconds of non-silent audio tolerated inside one second of silence")
	fs.Float64VarP(&f.spaceOnEdges, "space-on-edges", "s", 0.1, "seconds kept on both edges of every silent part")
	fs.IntVarP(&f.silencePartSpeed, "silence-part-speed", "x", 0, "speed silent parts up this many times instead of cutting them")
	fs.Float64VarP(&f.minLoudPartDuration, "min-loud-part-duration", "l", -1, "also cut loud parts no longer than this many seconds")
	fs.StringVar(&f.codec, "codec", "", "ffmpeg video encoder (default libx264)")
	fs.StringVar(&f.bitrate, "bitrate", "", "output video bitrate, for example 4M")
	fs.BoolVar(&f.xml, "xml", false, "write an xmeml project file instead of rendering")
	fs.BoolVar(&f.pushToS3, "push-to-s3", false, "upload the outputs to the configured S3 bucket")
	fs.StringVar(&f.preset, "preset", "", "YAML preset with detection, plan and encoder settings")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	fs.StringVar(&f.logFormat, "log-format", "", "log format (text|json)")

	return f
}

func (f *cliFlags) parse(args []string) error {
	if err := f.set.Parse(args); err != nil {
		return err
	}
	if f.input == "" || f.output == "" {
		return errMissingPaths
	}
	return nil
}

// request builds the job request: base settings, overridden by every flag
// given on the command line.
func (f *cliFlags) request(base config.Preset) (job.Request, error) {
	modes, err := cut.ParseCutMode(f.cut)
	if err != nil {
		return job.Request{}, err
	}

	input, err := filepath.Abs(f.input)
	if err != nil {
		return job.Request{}, fmt.Errorf("resolve input: %w", err)
	}
	output, err := filepath.Abs(f.output)
	if err != nil {
		return job.Request{}, fmt.Errorf("resolve output: %w", err)
	}

	params, opts, enc := base.Params, base.Options, base.Encode
	changed := f.set.Changed
	if changed("magnitude-threshold-ratio") {
		params.MagnitudeThresholdRatio = f.magnitudeThresholdRatio
	}
	if changed("duration-threshold") {
		params.DurationThreshold = f.durationThreshold
	}
	if changed("failure-tolerance-ratio") {
		params.FailureToleranceRatio = f.failureToleranceRatio
	}
	if changed("space-on-edges") {
		params.SpaceOnEdges = f.spaceOnEdges
	}
	if changed("silence-part-speed") {
		opts.SilenceSpeed = f.silencePartSpeed
	}
	if changed("min-loud-part-duration") {
		opts.MinLoudPartDuration = f.minLoudPartDuration
	}
	if changed("codec") {
		enc.Codec = f.codec
	}
	if changed("bitrate") {
		enc.Bitrate = f.bitrate
	}

	export := job.ExportVideo
	if f.xml {
		export = job.ExportXML
	}

	return job.Request{
		InputPath:  input,
		OutputPath: output,
		Modes:      modes,
		Params:     params,
		Options:    opts,
		Export:     export,
		Encode:     enc,
		PushToS3:   f.pushToS3,
	}, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := newFlags(stderr)
	if err := flags.parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.LogFormat = flags.logFormat
	}
	if flags.preset != "" {
		cfg.PresetPath = flags.preset
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLoggerTo(stderr)
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	req, err := flags.request(deps.Defaults)
	if err != nil {
		return err
	}

	printArguments(stdout, req)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := deps.CutService.Run(ctx, req)
	if err != nil {
		return err
	}

	for _, out := range result.Outputs {
		line := fmt.Sprintf("%s: %s (%d segments, %.2fs)", out.Mode, out.Path, out.Segments, out.Duration)
		if out.URL != "" {
			line += " " + out.URL
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}

// printArguments echoes the resolved settings and warns when edge trimming
// can invert intervals.
func printArguments(w io.Writer, req job.Request) {
	modes := make([]string, 0, len(req.Modes))
	for _, m := range req.Modes {
		modes = append(modes, string(m))
	}

	fmt.Fprintln(w, "Running with the arguments:")
	fmt.Fprintf(w, "  input=%s\n", req.InputPath)
	fmt.Fprintf(w, "  output=%s\n", req.OutputPath)
	fmt.Fprintf(w, "  cut=%s\n", strings.Join(modes, ","))
	fmt.Fprintf(w, "  magnitude_threshold_ratio=%g\n", req.Params.MagnitudeThresholdRatio)
	fmt.Fprintf(w, "  duration_threshold=%g\n", req.Params.DurationThreshold)
	fmt.Fprintf(w, "  failure_tolerance_ratio=%g\n", req.Params.FailureToleranceRatio)
	fmt.Fprintf(w, "  space_on_edges=%g\n", req.Params.SpaceOnEdges)
	fmt.Fprintf(w, "  silence_part_speed=%d\n", req.Options.SilenceSpeed)
	fmt.Fprintf(w, "  min_loud_part_duration=%g\n", req.Options.MinLoudPartDuration)
	fmt.Fprintf(w, "  codec=%s\n", req.Encode.Codec)
	fmt.Fprintf(w, "  bitrate=%s\n", req.Encode.Bitrate)
	fmt.Fprintf(w, "  export=%s\n", req.Export)
	fmt.Fprintln(w, strings.Repeat("-", 60))

	if req.Params.EdgesMayInvert() {
		fmt.Fprintln(w, strings.Repeat("*", 60))
		fmt.Fprintln(w, "WARNING:")
		fmt.Fprintln(w, "You have selected space_on_edges >= duration_threshold/2. This may cause overlapping sequences")
		fmt.Fprintln(w, strings.Repeat("*", 60))
	}
}
