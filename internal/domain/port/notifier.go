package port

import "context"

// FailureNotifier tells the video's author that processing permanently
// failed. Best-effort.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, userEmail string, jobID string, errorMsg string) error
}
