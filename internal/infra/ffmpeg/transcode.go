package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/polithane/polithane-media-service/internal/domain/entity"
	"go.uber.org/zap"
)

// Fixed output canvas. Every published video and thumbnail has exactly these
// dimensions regardless of source aspect ratio.
const (
	CanvasWidth  = 720
	CanvasHeight = 1280
)

// Transcoder wraps ffmpeg for the two invocation shapes the pipeline uses:
// the full normalization pass over the source, and the single-frame
// thumbnail extraction from the normalized output.
type Transcoder struct {
	encodeTimeout time.Duration
	thumbTimeout  time.Duration
	logger        *zap.Logger
}

func NewTranscoder(encodeTimeout, thumbTimeout time.Duration, logger *zap.Logger) *Transcoder {
	return &Transcoder{
		encodeTimeout: encodeTimeout,
		thumbTimeout:  thumbTimeout,
		logger:        logger,
	}
}

// canvasFilter scales to fit inside the canvas without cropping, pads the
// remainder with black and resets the pixel aspect ratio.
func canvasFilter() string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1",
		CanvasWidth, CanvasHeight, CanvasWidth, CanvasHeight,
	)
}

// buildFilterGraph bakes the metadata rotation into the pixels first, then
// normalizes onto the canvas, so the output's effective rotation is always 0.
func buildFilterGraph(rotationDeg int) string {
	var steps []string
	switch rotationDeg {
	case 90:
		steps = append(steps, "transpose=1")
	case 180:
		steps = append(steps, "hflip", "vflip")
	case 270:
		steps = append(steps, "transpose=2")
	}
	steps = append(steps, canvasFilter())
	return strings.Join(steps, ",")
}

func buildTranscodeArgs(srcPath, dstPath string, probe entity.ProbeResult) []string {
	args := []string{
		"-i", srcPath,
		"-vf", buildFilterGraph(probe.RotationDeg),
		"-metadata:s:v", "rotate=0",
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
	if probe.HasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2")
	} else {
		args = append(args, "-an")
	}
	return append(args, "-y", dstPath)
}

func buildThumbnailArgs(normalizedPath, dstPath string) []string {
	// The input is already upright and on-canvas; the filter is repeated so
	// the thumbnail dimensions match the video even if the source changes.
	return []string{
		"-ss", "0.5",
		"-i", normalizedPath,
		"-frames:v", "1",
		"-vf", canvasFilter(),
		"-q:v", "2",
		"-y", dstPath,
	}
}

func (t *Transcoder) Transcode(ctx context.Context, srcPath, dstPath string, probe entity.ProbeResult) error {
	t.logger.Info("transcoding",
		zap.String("src", srcPath),
		zap.Int("rotation", probe.RotationDeg),
		zap.Bool("has_audio", probe.HasAudio),
	)
	return t.run(ctx, t.encodeTimeout, buildTranscodeArgs(srcPath, dstPath, probe))
}

func (t *Transcoder) Thumbnail(ctx context.Context, normalizedPath, dstPath string) error {
	return t.run(ctx, t.thumbTimeout, buildThumbnailArgs(normalizedPath, dstPath))
}

func (t *Transcoder) run(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.WaitDelay = 5 * time.Second

	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg timed out after %s", timeout)
		}
		return fmt.Errorf("ffmpeg: %w, output: %s", err, tail(out, 512))
	}
	return nil
}

// tail keeps error messages bounded; ffmpeg puts the useful part last.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
