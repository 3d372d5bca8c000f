package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/maauso/jumpcutter/internal/silence"
)

// FFmpegDecoder implements Decoder by transcoding the audio track to a
// temporary 16-bit PCM WAV with the ffmpeg CLI and decoding that file.
type FFmpegDecoder struct {
	ffmpegPath string
	tempDir    string
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// Temporary WAV files are created in tempDir, or os.TempDir() when empty.
func NewFFmpegDecoder(ffmpegPath, tempDir string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, tempDir: tempDir}
}

// Decode implements Decoder.Decode.
func (d *FFmpegDecoder) Decode(ctx context.Context, mediaPath string, opts DecodeOpts) (silence.Buffer, error) {
	if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
		return silence.Buffer{}, fmt.Errorf("input file does not exist: %s", mediaPath)
	}

	tmp, err := os.CreateTemp(d.tempDir, "jumpcut-audio-*.wav")
	if err != nil {
		return silence.Buffer{}, fmt.Errorf("create temp file: %w", err)
	}
	wavPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(wavPath) }()

	if err := d.extractWAV(ctx, mediaPath, wavPath, opts); err != nil {
		return silence.Buffer{}, fmt.Errorf("extract audio: %w", err)
	}

	f, err := os.Open(wavPath) // #nosec G304 - path created above
	if err != nil {
		return silence.Buffer{}, fmt.Errorf("open extracted audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf, err := DecodeWAV(f)
	if err != nil {
		return silence.Buffer{}, fmt.Errorf("decode extracted audio: %w", err)
	}
	return buf, nil
}

// extractWAV writes the first audio stream of inputPath as pcm_s16le WAV.
func (d *FFmpegDecoder) extractWAV(ctx context.Context, inputPath, outputPath string, opts DecodeOpts) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-i", inputPath,
		"-vn",
		"-map", "0:a:0", // first audio stream only
		"-acodec", "pcm_s16le",
	}
	if opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}
	if opts.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(opts.Channels))
	}
	args = append(args, "-f", "wav", outputPath)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}
	return nil
}
