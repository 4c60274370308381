package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/polithane/polithane-media-service/internal/domain/entity"
	"github.com/polithane/polithane-media-service/internal/domain/port"
	"github.com/polithane/polithane-media-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProcessMediaUseCase runs the normalization pipeline for one claimed job:
// fetch, probe, transcode, thumbnail, publish, finalize. All stage failures
// are converted into the requeue-or-error decision here; nothing escapes to
// crash the worker.
type ProcessMediaUseCase struct {
	jobs       port.JobStore
	posts      port.PostStore
	storage    port.MediaStorage
	prober     port.Prober
	transcoder port.Transcoder
	publisher  port.StatusPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	cfg        ProcessMediaConfig
}

type ProcessMediaConfig struct {
	TempDir         string
	MaxAttempts     int
	OutputBucket    string
	ThumbnailBucket string
}

func NewProcessMediaUseCase(
	jobs port.JobStore,
	posts port.PostStore,
	storage port.MediaStorage,
	prober port.Prober,
	transcoder port.Transcoder,
	publisher port.StatusPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessMediaConfig,
) *ProcessMediaUseCase {
	return &ProcessMediaUseCase{
		jobs:       jobs,
		posts:      posts,
		storage:    storage,
		prober:     prober,
		transcoder: transcoder,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// Execute processes a job that was already claimed: job.Status is
// processing and job.Attempts reflects the claim. The returned error is for
// loop-level logging only; job state has already been settled either way.
func (uc *ProcessMediaUseCase) Execute(ctx context.Context, job *entity.MediaJob) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessMediaUseCase.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.input_path", job.InputPath),
	)

	log := uc.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("post_id", job.PostID.String()),
		zap.Int("attempt", job.Attempts),
	)

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	if job.InputBucket == "" || job.InputPath == "" {
		return uc.handleFailure(ctx, job, "validate", fmt.Errorf("job has no input location"), log)
	}

	if err := os.MkdirAll(uc.cfg.TempDir, 0o755); err != nil {
		return uc.handleFailure(ctx, job, "workspace", err, log)
	}
	workDir, err := os.MkdirTemp(uc.cfg.TempDir, "job-"+job.ID.String()+"-")
	if err != nil {
		return uc.handleFailure(ctx, job, "workspace", err, log)
	}
	// The workspace is owned by this job alone and must be gone on every
	// exit path, panics included.
	defer os.RemoveAll(workDir)

	totalTimer := time.Now()

	// Fetch
	srcPath := filepath.Join(workDir, "source")
	dlStart := time.Now()
	dlCtx, dlSpan := tracer.Start(ctx, "download")
	err = uc.storage.Download(dlCtx, job.InputBucket, job.InputPath, srcPath)
	dlSpan.End()
	if err != nil {
		return uc.handleFailure(ctx, job, "download", err, log)
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Analyze
	prStart := time.Now()
	prCtx, prSpan := tracer.Start(ctx, "probe")
	probe, err := uc.prober.Probe(prCtx, srcPath)
	prSpan.End()
	if err != nil {
		return uc.handleFailure(ctx, job, "probe", err, log)
	}
	metrics.StageDuration.WithLabelValues("probe").Observe(time.Since(prStart).Seconds())

	// Transcode
	outPath := filepath.Join(workDir, "output.mp4")
	tcStart := time.Now()
	tcCtx, tcSpan := tracer.Start(ctx, "transcode")
	err = uc.transcoder.Transcode(tcCtx, srcPath, outPath, probe)
	tcSpan.End()
	if err != nil {
		return uc.handleFailure(ctx, job, "transcode", err, log)
	}
	metrics.StageDuration.WithLabelValues("transcode").Observe(time.Since(tcStart).Seconds())

	// Thumbnail from the normalized output, so orientation always matches.
	thumbPath := filepath.Join(workDir, "thumbnail.jpg")
	thStart := time.Now()
	thCtx, thSpan := tracer.Start(ctx, "thumbnail")
	err = uc.transcoder.Thumbnail(thCtx, outPath, thumbPath)
	thSpan.End()
	if err != nil {
		return uc.handleFailure(ctx, job, "thumbnail", err, log)
	}
	metrics.StageDuration.WithLabelValues("thumbnail").Observe(time.Since(thStart).Seconds())

	// Publish. A partial publish is a full failure: the retry redoes both
	// uploads under a fresh suffix instead of leaving half a result.
	media, err := uc.publish(ctx, job, outPath, thumbPath)
	if err != nil {
		return uc.handleFailure(ctx, job, "publish", err, log)
	}

	if err := uc.jobs.MarkDone(ctx, job.ID, media); err != nil {
		return uc.handleFailure(ctx, job, "finalize", err, log)
	}
	job.Status = entity.JobStatusDone
	job.LastError = ""

	// Best-effort reconciliation; the job row is already authoritative.
	if err := uc.posts.SetMediaReady(ctx, job.PostID, media.OutputPublicURL, media.ThumbnailPublicURL); err != nil {
		log.Warn("post reconciliation failed", zap.Error(err))
	}
	uc.publishStatus(ctx, job, media, log)

	metrics.JobsProcessedTotal.WithLabelValues("done").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	log.Info("job completed",
		zap.String("output_url", media.OutputPublicURL),
		zap.String("thumbnail_url", media.ThumbnailPublicURL),
		zap.Int("rotation", probe.RotationDeg),
		zap.Bool("has_audio", probe.HasAudio),
	)
	return nil
}

func (uc *ProcessMediaUseCase) publish(ctx context.Context, job *entity.MediaJob, outPath, thumbPath string) (entity.PublishedMedia, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "publish")
	defer span.End()
	start := time.Now()

	// Random+timestamp suffix so retries of the same job never collide.
	base := fmt.Sprintf("%s/%s/%d_%s", job.UserID, job.PostID, time.Now().Unix(), uuid.NewString()[:8])
	videoKey := base + ".mp4"
	thumbKey := base + ".jpg"

	if err := uc.storage.Upload(ctx, uc.cfg.OutputBucket, videoKey, outPath,
		"video/mp4", "public, max-age=31536000, immutable"); err != nil {
		return entity.PublishedMedia{}, fmt.Errorf("upload video: %w", err)
	}
	if err := uc.storage.Upload(ctx, uc.cfg.ThumbnailBucket, thumbKey, thumbPath,
		"image/jpeg", "public, max-age=31536000, immutable"); err != nil {
		return entity.PublishedMedia{}, fmt.Errorf("upload thumbnail: %w", err)
	}

	metrics.StageDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())

	return entity.PublishedMedia{
		OutputBucket:       uc.cfg.OutputBucket,
		OutputPath:         videoKey,
		OutputPublicURL:    uc.storage.PublicURL(uc.cfg.OutputBucket, videoKey),
		ThumbnailBucket:    uc.cfg.ThumbnailBucket,
		ThumbnailPath:      thumbKey,
		ThumbnailPublicURL: uc.storage.PublicURL(uc.cfg.ThumbnailBucket, thumbKey),
	}, nil
}

// handleFailure settles a failed attempt: back to queued while the attempt
// budget lasts, terminal error once it is spent.
func (uc *ProcessMediaUseCase) handleFailure(ctx context.Context, job *entity.MediaJob, stage string, cause error, log *zap.Logger) error {
	errMsg := stage + ": " + cause.Error()
	job.LastError = errMsg

	if job.CanRetry(uc.cfg.MaxAttempts) {
		if err := uc.jobs.Requeue(ctx, job.ID, errMsg); err != nil {
			log.Error("failed to requeue job", zap.Error(err))
			return fmt.Errorf("requeue after %s failure: %w", stage, err)
		}
		job.Status = entity.JobStatusQueued
		metrics.RetriesTotal.Inc()

		// Keep the owning post honest about why its media is still pending.
		if err := uc.posts.SetMediaProcessingError(ctx, job.PostID, errMsg); err != nil {
			log.Warn("post reconciliation failed", zap.Error(err))
		}
		uc.publishStatus(ctx, job, entity.PublishedMedia{}, log)

		log.Warn("job requeued",
			zap.String("stage", stage),
			zap.Error(cause),
			zap.Int("max_attempts", uc.cfg.MaxAttempts),
		)
		return fmt.Errorf("attempt %d/%d failed at %s: %w", job.Attempts, uc.cfg.MaxAttempts, stage, cause)
	}

	if err := uc.jobs.MarkError(ctx, job.ID, errMsg); err != nil {
		log.Error("failed to finalize job as error", zap.Error(err))
		return fmt.Errorf("finalize after %s failure: %w", stage, err)
	}
	job.Status = entity.JobStatusError
	metrics.JobsProcessedTotal.WithLabelValues("error").Inc()

	if err := uc.posts.SetMediaProcessingError(ctx, job.PostID, errMsg); err != nil {
		log.Warn("post reconciliation failed", zap.Error(err))
	}
	uc.publishStatus(ctx, job, entity.PublishedMedia{}, log)
	uc.notifyFailure(ctx, job, errMsg, log)

	log.Error("job permanently failed",
		zap.String("stage", stage),
		zap.Error(cause),
		zap.Int("attempts", job.Attempts),
	)
	return fmt.Errorf("job permanently failed at %s: %w", stage, cause)
}

func (uc *ProcessMediaUseCase) publishStatus(ctx context.Context, job *entity.MediaJob, media entity.PublishedMedia, log *zap.Logger) {
	if uc.publisher == nil {
		return
	}
	event := entity.MediaStatusEvent{
		JobID:        job.ID,
		PostID:       job.PostID,
		UserID:       job.UserID,
		Status:       job.Status,
		OutputURL:    media.OutputPublicURL,
		ThumbnailURL: media.ThumbnailPublicURL,
		ErrorMessage: job.LastError,
		Attempts:     job.Attempts,
		MaxAttempts:  uc.cfg.MaxAttempts,
	}
	if err := uc.publisher.PublishStatus(ctx, event); err != nil {
		log.Warn("failed to publish status event", zap.Error(err))
	}
}

func (uc *ProcessMediaUseCase) notifyFailure(ctx context.Context, job *entity.MediaJob, errMsg string, log *zap.Logger) {
	if uc.notifier == nil {
		return
	}
	email, err := uc.posts.AuthorEmail(ctx, job.UserID)
	if err != nil || email == "" {
		if err != nil {
			log.Warn("failed to resolve author email", zap.Error(err))
		}
		return
	}
	_ = uc.notifier.NotifyFailure(ctx, email, job.ID.String(), errMsg)
}
