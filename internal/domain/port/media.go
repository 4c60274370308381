package port

import (
	"context"

	"github.com/polithane/polithane-media-service/internal/domain/entity"
)

// Prober inspects a local media file with the external probing utility.
type Prober interface {
	Probe(ctx context.Context, srcPath string) (entity.ProbeResult, error)
}

// Transcoder normalizes a source video into the canonical profile and
// derives a thumbnail from the normalized output.
type Transcoder interface {
	Transcode(ctx context.Context, srcPath, dstPath string, probe entity.ProbeResult) error
	Thumbnail(ctx context.Context, normalizedPath, dstPath string) error
}
