package port

import "context"

// MediaStorage is the object storage holding source uploads and published
// outputs.
type MediaStorage interface {
	Download(ctx context.Context, bucket, path, destPath string) error
	Upload(ctx context.Context, bucket, path, srcPath, contentType, cacheControl string) error

	// PublicURL computes the externally addressable URL of an object.
	PublicURL(bucket, path string) string
}
