package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/polithane/polithane-media-service/internal/domain/entity"
)

// queryTimeout bounds every job-store round trip so a wedged connection
// surfaces as an iteration error instead of stalling the poll loop.
const queryTimeout = 10 * time.Second

type JobStore struct {
	pool *pgxpool.Pool
}

func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

func (s *JobStore) NextQueued(ctx context.Context) (*entity.MediaJob, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, status, input_bucket, input_path,
			output_bucket, output_path, output_public_url,
			thumbnail_bucket, thumbnail_path, thumbnail_public_url,
			attempts, last_error, post_id, user_id, created_at, updated_at
		FROM media_jobs
		WHERE status = 'queued'
		ORDER BY created_at, id
		LIMIT 1`

	job := &entity.MediaJob{}
	var status string
	err := s.pool.QueryRow(ctx, query).Scan(
		&job.ID, &status, &job.InputBucket, &job.InputPath,
		&job.OutputBucket, &job.OutputPath, &job.OutputPublicURL,
		&job.ThumbnailBucket, &job.ThumbnailPath, &job.ThumbnailPublicURL,
		&job.Attempts, &job.LastError, &job.PostID, &job.UserID,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next queued job: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}

// Claim is the one synchronization primitive between worker instances: the
// conditional update succeeds for exactly one of any number of concurrent
// claimers, because the row stops being 'queued' the moment the first
// UPDATE commits. A plain read-then-write would reintroduce the
// double-processing race.
func (s *JobStore) Claim(ctx context.Context, id uuid.UUID) (int, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE media_jobs
		SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status = 'queued'
		RETURNING attempts`

	var attempts int
	err := s.pool.QueryRow(ctx, query, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race to a rival worker.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("claim job: %w", err)
	}
	return attempts, true, nil
}

func (s *JobStore) MarkDone(ctx context.Context, id uuid.UUID, media entity.PublishedMedia) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE media_jobs
		SET status = 'done',
			output_bucket = $2, output_path = $3, output_public_url = $4,
			thumbnail_bucket = $5, thumbnail_path = $6, thumbnail_public_url = $7,
			last_error = '', updated_at = now()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id,
		media.OutputBucket, media.OutputPath, media.OutputPublicURL,
		media.ThumbnailBucket, media.ThumbnailPath, media.ThumbnailPublicURL,
	)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

func (s *JobStore) Requeue(ctx context.Context, id uuid.UUID, lastError string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE media_jobs
		SET status = 'queued', last_error = $2, updated_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

func (s *JobStore) MarkError(ctx context.Context, id uuid.UUID, lastError string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE media_jobs
		SET status = 'error', last_error = $2, updated_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("mark job error: %w", err)
	}
	return nil
}
