package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/polithane/polithane-media-service/internal/domain/port"
	"github.com/polithane/polithane-media-service/internal/infra/config"
	"github.com/polithane/polithane-media-service/internal/infra/email"
	"github.com/polithane/polithane-media-service/internal/infra/ffmpeg"
	"github.com/polithane/polithane-media-service/internal/infra/metrics"
	"github.com/polithane/polithane-media-service/internal/infra/postgres"
	"github.com/polithane/polithane-media-service/internal/infra/rabbitmq"
	"github.com/polithane/polithane-media-service/internal/infra/storage"
	"github.com/polithane/polithane-media-service/internal/infra/tracing"
	"github.com/polithane/polithane-media-service/internal/usecase"
	"github.com/polithane/polithane-media-service/internal/worker"
	"github.com/polithane/polithane-media-service/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting polithane-media-service")

	// A worker without its encoding tools can never do useful work.
	fatalOnErr(ffmpeg.CheckBinaries(), "check external binaries")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(ctx)
		}
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()
	fatalOnErr(pool.Ping(ctx), "ping postgres")

	fatalOnErr(postgres.RunMigrations(cfg.DatabaseURL), "run migrations")

	// Object storage
	store, err := storage.NewStorage(storage.StorageConfig{
		Endpoint:   cfg.StorageEndpoint,
		AccessKey:  cfg.StorageAccessKey,
		SecretKey:  cfg.StorageSecretKey,
		UseSSL:     cfg.StorageUseSSL,
		PublicBase: cfg.StoragePublicBase,
	})
	fatalOnErr(err, "create storage client")
	fatalOnErr(store.EnsureBuckets(ctx, cfg.OutputBucket, cfg.ThumbnailBucket), "ensure buckets")

	// Status events (optional)
	var statusPub port.StatusPublisher
	if cfg.RabbitMQURL != "" {
		rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
		fatalOnErr(err, "connect to rabbitmq")
		defer rmqConn.Close()

		pub, err := rabbitmq.NewStatusPublisher(rmqConn, cfg.RabbitMQExchange)
		fatalOnErr(err, "create status publisher")
		statusPub = pub
	}

	// Failure emails (optional)
	var notifier port.FailureNotifier
	if cfg.SMTPHost != "" {
		notifier = email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)
	}

	jobs := postgres.NewJobStore(pool)
	posts := postgres.NewPostStore(pool)
	prober := ffmpeg.NewProber(cfg.ProbeTimeout, log)
	transcoder := ffmpeg.NewTranscoder(cfg.EncodeTimeout, cfg.ThumbTimeout, log)

	uc := usecase.NewProcessMediaUseCase(
		jobs, posts, store, prober, transcoder,
		statusPub, notifier,
		log,
		usecase.ProcessMediaConfig{
			TempDir:         cfg.TempDir,
			MaxAttempts:     cfg.MaxAttempts,
			OutputBucket:    cfg.OutputBucket,
			ThumbnailBucket: cfg.ThumbnailBucket,
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		poller := worker.NewPoller(jobs, uc, cfg.PollInterval, cfg.MaxAttempts, log.With(zap.Int("poller", i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	log.Info("polithane-media-service started",
		zap.Int("pollers", cfg.WorkerCount),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("max_attempts", cfg.MaxAttempts),
	)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("polithane-media-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
