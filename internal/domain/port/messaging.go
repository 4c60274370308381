package port

import (
	"context"

	"github.com/polithane/polithane-media-service/internal/domain/entity"
)

// StatusPublisher broadcasts job state changes to the platform. Best-effort.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event entity.MediaStatusEvent) error
}
