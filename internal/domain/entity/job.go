package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// MediaJob is one persisted video normalization task. Rows are created by the
// upload API and from then on mutated only by this worker.
type MediaJob struct {
	ID     uuid.UUID
	Status JobStatus

	InputBucket string
	InputPath   string

	OutputBucket    string
	OutputPath      string
	OutputPublicURL string

	ThumbnailBucket    string
	ThumbnailPath      string
	ThumbnailPublicURL string

	Attempts  int
	LastError string

	PostID uuid.UUID
	UserID uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublishedMedia holds the storage locations and public addresses of a
// normalized video and its thumbnail after a successful publish.
type PublishedMedia struct {
	OutputBucket    string
	OutputPath      string
	OutputPublicURL string

	ThumbnailBucket    string
	ThumbnailPath      string
	ThumbnailPublicURL string
}

// CanRetry reports whether the job is still under its attempt budget.
// Attempts is incremented by the claim, so a job that just failed its
// max-th attempt is no longer retryable.
func (j *MediaJob) CanRetry(maxAttempts int) bool {
	return j.Attempts < maxAttempts
}

func (j *MediaJob) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusError
}
