package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/polithane/polithane-media-service/internal/domain/entity"
	"go.uber.org/zap"
)

// Prober wraps ffprobe to extract the orientation and audio metadata the
// pipeline needs from a source file.
type Prober struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewProber(timeout time.Duration, logger *zap.Logger) *Prober {
	return &Prober{timeout: timeout, logger: logger}
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	Tags         map[string]string `json:"tags"`
	SideDataList []struct {
		Rotation *float64 `json:"rotation"`
	} `json:"side_data_list"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

func (p *Prober) Probe(ctx context.Context, srcPath string) (entity.ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		srcPath,
	)
	cmd.WaitDelay = 5 * time.Second

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return entity.ProbeResult{}, fmt.Errorf("ffprobe timed out after %s", p.timeout)
		}
		return entity.ProbeResult{}, fmt.Errorf("ffprobe: %w", err)
	}

	result, err := parseProbeOutput(out)
	if err != nil {
		return entity.ProbeResult{}, err
	}

	p.logger.Debug("probed source",
		zap.String("path", srcPath),
		zap.Int("rotation", result.RotationDeg),
		zap.Bool("has_audio", result.HasAudio),
	)
	return result, nil
}

func parseProbeOutput(raw []byte) (entity.ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return entity.ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := entity.ProbeResult{}
	for _, stream := range out.Streams {
		if stream.CodecType == "audio" {
			result.HasAudio = true
		}
		if stream.CodecType != "video" || result.RotationDeg != 0 {
			continue
		}
		result.RotationDeg = streamRotation(stream)
	}
	return result, nil
}

// streamRotation reads the rotation from the stream's rotate tag or, for
// newer containers, from its display-matrix side data. A display-matrix
// rotation of -90 is the same orientation as a rotate tag of 90, hence the
// sign flip. Missing or unparsable metadata means no rotation.
func streamRotation(stream probeStream) int {
	if v, ok := stream.Tags["rotate"]; ok {
		if deg, err := strconv.ParseFloat(v, 64); err == nil {
			return normalizeRotation(deg)
		}
	}
	for _, sd := range stream.SideDataList {
		if sd.Rotation != nil {
			return normalizeRotation(-*sd.Rotation)
		}
	}
	return 0
}

func normalizeRotation(deg float64) int {
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	switch r {
	case 0, 90, 180, 270:
		return r
	default:
		return 0
	}
}
