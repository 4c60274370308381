package entity

import "github.com/google/uuid"

// MediaStatusEvent is the outbound message published to the media.status
// routing key after every job state change. Consumed by the platform's
// notification fanout; delivery is best-effort.
type MediaStatusEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	PostID       uuid.UUID `json:"post_id"`
	UserID       uuid.UUID `json:"user_id"`
	Status       JobStatus `json:"status"`
	OutputURL    string    `json:"output_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempts     int       `json:"attempts"`
	MaxAttempts  int       `json:"max_attempts"`
}
