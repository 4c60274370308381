package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/polithane/polithane-media-service/internal/domain/entity"
	"github.com/polithane/polithane-media-service/internal/infra/postgres"
	"github.com/polithane/polithane-media-service/internal/infra/storage"
	"github.com/polithane/polithane-media-service/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("polithane"),
		tcpostgres.WithUsername("polithane"),
		tcpostgres.WithPassword("polithane"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// The posts and users tables belong to the platform schema; the worker
	// only updates them, so the test provisions a minimal version.
	_, err = pool.Exec(ctx, `
		CREATE TABLE users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL
		);
		CREATE TABLE posts (
			id UUID PRIMARY KEY,
			media_urls TEXT[] NOT NULL DEFAULT '{}',
			thumbnail_url TEXT,
			media_status TEXT NOT NULL DEFAULT 'processing',
			media_processing_error TEXT,
			media_processed_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	require.NoError(t, err)

	return pool
}

func insertJob(t *testing.T, ctx context.Context, pool *pgxpool.Pool, postID, userID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO media_jobs (id, status, input_bucket, input_path, post_id, user_id)
		VALUES ($1, 'queued', 'uploads', $2, $3, $4)`,
		id, "raw/"+id.String()+".mov", postID, userID,
	)
	require.NoError(t, err)
	return id
}

func TestClaimIsExclusive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := startPostgres(t, ctx)
	jobs := postgres.NewJobStore(pool)
	jobID := insertJob(t, ctx, pool, uuid.New(), uuid.New())

	const rivals = 8
	var wg sync.WaitGroup
	wins := make(chan int, rivals)

	for i := 0; i < rivals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts, claimed, err := jobs.Claim(ctx, jobID)
			assert.NoError(t, err)
			if claimed {
				wins <- attempts
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []int
	for attempts := range wins {
		winners = append(winners, attempts)
	}
	require.Len(t, winners, 1, "exactly one rival may claim a queued job")
	assert.Equal(t, 1, winners[0])
}

func TestNextQueuedReturnsOldest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := startPostgres(t, ctx)
	jobs := postgres.NewJobStore(pool)

	first := insertJob(t, ctx, pool, uuid.New(), uuid.New())
	_, err := pool.Exec(ctx, `UPDATE media_jobs SET created_at = now() - interval '1 minute' WHERE id = $1`, first)
	require.NoError(t, err)
	insertJob(t, ctx, pool, uuid.New(), uuid.New())

	job, err := jobs.NextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first, job.ID)

	// Terminal rows are invisible to the poller.
	_, err = pool.Exec(ctx, `UPDATE media_jobs SET status = 'error'`)
	require.NoError(t, err)
	job, err = jobs.NextQueued(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

// unreachableStorage fails every download, driving the pipeline through its
// retry policy against the real job store.
type unreachableStorage struct{}

func (unreachableStorage) Download(context.Context, string, string, string) error {
	return errors.New("dial tcp: connection refused")
}

func (unreachableStorage) Upload(context.Context, string, string, string, string, string) error {
	return errors.New("dial tcp: connection refused")
}

func (unreachableStorage) PublicURL(bucket, path string) string { return bucket + "/" + path }

type noopProber struct{}

func (noopProber) Probe(context.Context, string) (entity.ProbeResult, error) {
	return entity.ProbeResult{}, nil
}

type noopTranscoder struct{}

func (noopTranscoder) Transcode(context.Context, string, string, entity.ProbeResult) error {
	return nil
}
func (noopTranscoder) Thumbnail(context.Context, string, string) error { return nil }

func TestRetryBoundEndsInError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := startPostgres(t, ctx)
	jobs := postgres.NewJobStore(pool)
	posts := postgres.NewPostStore(pool)

	postID, userID := uuid.New(), uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, email) VALUES ($1, 'author@example.org')`, userID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO posts (id, media_urls) VALUES ($1, ARRAY['pending'])`, postID)
	require.NoError(t, err)
	jobID := insertJob(t, ctx, pool, postID, userID)

	const maxAttempts = 3
	uc := usecase.NewProcessMediaUseCase(
		jobs, posts, unreachableStorage{}, noopProber{}, noopTranscoder{},
		nil, nil,
		zap.NewNop(),
		usecase.ProcessMediaConfig{
			TempDir:         t.TempDir(),
			MaxAttempts:     maxAttempts,
			OutputBucket:    "media",
			ThumbnailBucket: "media",
		},
	)

	for i := 1; i <= maxAttempts; i++ {
		job, err := jobs.NextQueued(ctx)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d should find the job queued", i)

		attempts, claimed, err := jobs.Claim(ctx, job.ID)
		require.NoError(t, err)
		require.True(t, claimed)
		require.Equal(t, i, attempts)

		job.Status = entity.JobStatusProcessing
		job.Attempts = attempts
		_ = uc.Execute(ctx, job)
	}

	var status, lastError string
	var attempts int
	err = pool.QueryRow(ctx,
		`SELECT status, last_error, attempts FROM media_jobs WHERE id = $1`, jobID,
	).Scan(&status, &lastError, &attempts)
	require.NoError(t, err)

	assert.Equal(t, "error", status)
	assert.Equal(t, maxAttempts, attempts)
	assert.Contains(t, lastError, "download:")

	// The post still shows the pending state with the error attached.
	var mediaStatus string
	var procErr *string
	err = pool.QueryRow(ctx,
		`SELECT media_status, media_processing_error FROM posts WHERE id = $1`, postID,
	).Scan(&mediaStatus, &procErr)
	require.NoError(t, err)
	assert.Equal(t, "processing", mediaStatus)
	require.NotNil(t, procErr)
	assert.Contains(t, *procErr, "download:")
}

func TestPostMediaReplacementPreservesTail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := startPostgres(t, ctx)
	posts := postgres.NewPostStore(pool)

	postID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO posts (id, media_urls) VALUES ($1, ARRAY['pending-upload', 'https://img.one', 'https://img.two'])`,
		postID,
	)
	require.NoError(t, err)

	require.NoError(t, posts.SetMediaReady(ctx, postID, "https://cdn/video.mp4", "https://cdn/thumb.jpg"))

	var urls []string
	var mediaStatus string
	err = pool.QueryRow(ctx, `SELECT media_urls, media_status FROM posts WHERE id = $1`, postID).
		Scan(&urls, &mediaStatus)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://cdn/video.mp4", "https://img.one", "https://img.two"}, urls)
	assert.Equal(t, "ready", mediaStatus)

	// A deleted post makes reconciliation a no-op, not a failure.
	require.NoError(t, posts.SetMediaReady(ctx, uuid.New(), "https://cdn/other.mp4", ""))
}

func TestStorageRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })

	endpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := storage.NewStorage(storage.StorageConfig{
		Endpoint:   endpoint,
		AccessKey:  "minioadmin",
		SecretKey:  "minioadmin",
		PublicBase: "http://" + endpoint,
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBuckets(ctx, "media"))

	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake video bytes"), 0o644))

	require.NoError(t, store.Upload(ctx, "media", "u/p/video.mp4", src, "video/mp4", "public, max-age=31536000"))

	dst := filepath.Join(dir, "dst.mp4")
	require.NoError(t, store.Download(ctx, "media", "u/p/video.mp4", dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake video bytes"), got)
}
