package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/polithane/polithane-media-service/internal/domain/entity"
)

// JobStore is the durable queue of media jobs. It is the single source of
// truth for job state; every status transition goes through it.
type JobStore interface {
	// NextQueued returns the oldest queued job, or (nil, nil) when the
	// backlog is empty.
	NextQueued(ctx context.Context) (*entity.MediaJob, error)

	// Claim transitions the job from queued to processing and increments
	// attempts, in a single conditional update. claimed is false when the
	// row was no longer queued, meaning a rival worker won the race.
	// attempts is the post-increment count of the claimed row.
	Claim(ctx context.Context, id uuid.UUID) (attempts int, claimed bool, err error)

	// MarkDone finalizes the job with its published locations and clears
	// last_error.
	MarkDone(ctx context.Context, id uuid.UUID, media entity.PublishedMedia) error

	// Requeue returns a failed job to queued with last_error recorded so a
	// later claim can retry it.
	Requeue(ctx context.Context, id uuid.UUID, lastError string) error

	// MarkError finalizes the job as permanently failed.
	MarkError(ctx context.Context, id uuid.UUID, lastError string) error
}
