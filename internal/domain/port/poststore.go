package port

import (
	"context"

	"github.com/google/uuid"
)

// PostStore reconciles job outcomes into the platform-owned post record.
// All writes are best-effort: the job row stays authoritative and a failed
// or zero-row update never changes the job outcome. A post deleted while
// its video was processing simply makes these updates no-ops.
type PostStore interface {
	// SetMediaReady replaces the first entry of the post's media list with
	// the normalized video URL (later entries preserved), sets the
	// thumbnail, marks media_status ready and clears the processing error.
	SetMediaReady(ctx context.Context, postID uuid.UUID, videoURL, thumbnailURL string) error

	// SetMediaProcessingError marks the post's media as still processing
	// with the failure text attached for the owning UI.
	SetMediaProcessingError(ctx context.Context, postID uuid.UUID, errMsg string) error

	// AuthorEmail resolves the notification address of the post author.
	AuthorEmail(ctx context.Context, userID uuid.UUID) (string, error)
}
