package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/maauso/jumpcutter/internal/cut"
)

const (
	defaultSampleRate = 44100
	audioCodec        = "aac"
	audioBitrate      = "128k"
)

// RenderPlan cuts every kept segment of plan out of src into a temporary
// part file, then joins the parts into output. Parts share one encoding so
// the join can usually stream-copy.
func (p *FFmpegProcessor) RenderPlan(ctx context.Context, src string, plan cut.Plan, output string, opts EncodeOpts) (err error) {
	kept := plan.Kept()
	if len(kept) == 0 {
		return ErrNothingToRender
	}

	info, err := p.Probe(ctx, src)
	if err != nil {
		return fmt.Errorf("probe source: %w", err)
	}

	dir, err := os.MkdirTemp(p.tempDir, "jumpcut-render-*")
	if err != nil {
		return fmt.Errorf("create render dir: %w", err)
	}

	parts := make([]string, 0, len(kept))
	defer func() {
		if cerr := removeParts(dir, parts); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	ext := filepath.Ext(output)
	if ext == "" {
		ext = ".mp4"
	}

	for i, seg := range kept {
		part := filepath.Join(dir, fmt.Sprintf("part_%04d%s", i, ext))
		parts = append(parts, part)
		if err := p.runFFmpeg(ctx, segmentArgs(src, info, seg, opts, part)); err != nil {
			return fmt.Errorf("render segment %d [%.3f, %.3f]: %w", i, seg.Start, seg.End, err)
		}
	}

	if err := p.JoinVideos(ctx, parts, output); err != nil {
		return fmt.Errorf("join segments: %w", err)
	}
	return nil
}

// segmentArgs builds the ffmpeg arguments that cut one segment of src into out.
func segmentArgs(src string, info Info, seg cut.Segment, opts EncodeOpts, out string) []string {
	speedUp := seg.Treatment == cut.SpeedUp && seg.Speed > 1
	muted := seg.Mute && info.HasAudio

	args := []string{"-y"}

	// Audio-only muted span: nothing from the source survives.
	if !info.HasVideo && muted {
		args = append(args,
			"-f", "lavfi", "-i", silentSource(info),
			"-t", seconds(seg.OutputDuration()),
		)
		args = append(args, audioOutput(info)...)
		return append(args, out)
	}

	args = append(args,
		"-ss", seconds(seg.Start),
		"-t", seconds(seg.Duration()),
		"-i", src,
	)

	if !info.HasVideo {
		args = append(args, "-vn", "-map", "0:a:0")
		if speedUp {
			args = append(args, "-af", atempoChain(seg.Speed))
		}
		args = append(args, audioOutput(info)...)
		return append(args, out)
	}

	switch {
	case speedUp && muted:
		args = append(args,
			"-f", "lavfi", "-i", silentSource(info),
			"-filter_complex", fmt.Sprintf("[0:v]setpts=PTS/%d[v]", seg.Speed),
			"-map", "[v]", "-map", "1:a:0",
			"-t", seconds(seg.OutputDuration()),
		)
	case speedUp && info.HasAudio:
		args = append(args,
			"-filter_complex", fmt.Sprintf("[0:v]setpts=PTS/%d[v];[0:a]%s[a]", seg.Speed, atempoChain(seg.Speed)),
			"-map", "[v]", "-map", "[a]",
		)
	case speedUp:
		args = append(args,
			"-filter_complex", fmt.Sprintf("[0:v]setpts=PTS/%d[v]", seg.Speed),
			"-map", "[v]",
		)
	case muted:
		args = append(args,
			"-f", "lavfi", "-i", silentSource(info),
			"-map", "0:v:0", "-map", "1:a:0",
			"-t", seconds(seg.Duration()),
		)
	default:
		args = append(args, "-map", "0:v:0")
		if info.HasAudio {
			args = append(args, "-map", "0:a:0")
		}
	}

	args = append(args, videoOutput(info, opts)...)
	if info.HasAudio {
		args = append(args, audioOutput(info)...)
		args = append(args, "-c:a", audioCodec, "-b:a", audioBitrate)
	}
	return append(args, out)
}

func videoOutput(info Info, opts EncodeOpts) []string {
	codec := opts.codec()
	args := []string{"-c:v", codec}
	switch {
	case opts.Bitrate != "":
		args = append(args, "-b:v", opts.Bitrate)
	case codec == "libx264" || codec == "libx265":
		args = append(args, "-preset", "fast", "-crf", "23")
	}
	if info.FrameRate > 0 {
		args = append(args, "-r", strconv.FormatFloat(info.FrameRate, 'f', -1, 64))
	}
	return append(args, "-pix_fmt", "yuv420p")
}

func audioOutput(info Info) []string {
	return []string{
		"-ar", strconv.Itoa(sampleRate(info)),
		"-ac", strconv.Itoa(channels(info)),
	}
}

// silentSource is an anullsrc lavfi input matching the source audio layout.
func silentSource(info Info) string {
	layout := "stereo"
	if channels(info) == 1 {
		layout = "mono"
	}
	return fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d", layout, sampleRate(info))
}

// atempoChain expresses speed as chained atempo filters, each at most 2x.
func atempoChain(speed int) string {
	s := float64(speed)
	var stages []string
	for s > 2 {
		stages = append(stages, "atempo=2")
		s /= 2
	}
	stages = append(stages, "atempo="+strconv.FormatFloat(s, 'f', -1, 64))
	return strings.Join(stages, ",")
}

func sampleRate(info Info) int {
	if info.AudioSampleRate > 0 {
		return info.AudioSampleRate
	}
	return defaultSampleRate
}

func channels(info Info) int {
	if info.AudioChannels == 1 {
		return 1
	}
	return 2
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// removeParts deletes the rendered parts and their directory.
func removeParts(dir string, parts []string) error {
	var result *multierror.Error
	for _, part := range parts {
		if err := os.Remove(part); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
