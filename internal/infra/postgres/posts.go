package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostStore writes the worker's best-effort side effects into the
// platform-owned posts and users tables. Zero rows affected is not an
// error: the post may have been deleted while its video was processing,
// and the job row stays authoritative either way.
type PostStore struct {
	pool *pgxpool.Pool
}

func NewPostStore(pool *pgxpool.Pool) *PostStore {
	return &PostStore{pool: pool}
}

func (s *PostStore) SetMediaReady(ctx context.Context, postID uuid.UUID, videoURL, thumbnailURL string) error {
	// Replace only the first media entry; attachments after it are kept.
	query := `
		UPDATE posts
		SET media_urls = CASE
				WHEN cardinality(media_urls) > 1 THEN ARRAY[$2]::text[] || media_urls[2:]
				ELSE ARRAY[$2]::text[]
			END,
			thumbnail_url = $3,
			media_status = 'ready',
			media_processing_error = NULL,
			media_processed_at = now(),
			updated_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, postID, videoURL, thumbnailURL); err != nil {
		return fmt.Errorf("set post media ready: %w", err)
	}
	return nil
}

func (s *PostStore) SetMediaProcessingError(ctx context.Context, postID uuid.UUID, errMsg string) error {
	query := `
		UPDATE posts
		SET media_status = 'processing',
			media_processing_error = $2,
			updated_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, postID, errMsg); err != nil {
		return fmt.Errorf("set post media error: %w", err)
	}
	return nil
}

func (s *PostStore) AuthorEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var email string
	err := s.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("author email: %w", err)
	}
	return email, nil
}
