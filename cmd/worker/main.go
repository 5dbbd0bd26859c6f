package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"renderly/internal/domain"
	"renderly/internal/infra"
	"renderly/internal/infra/credentials"
	"renderly/internal/providers/video"
	"renderly/internal/sqlinline"
	"renderly/internal/storage"
)

const jobPollInterval = 2 * time.Second

type claimedJob struct {
	ID         string
	UserID     string
	ImageRef   string
	Prompt     string
	Resolution string
	Cost       int
}

type jobWorker struct {
	ctx       context.Context
	runner    *infra.SQLRunner
	logger    infra.Logger
	generator video.Generator
	store     *storage.FileStore
	baseURL   string
}

var errNoJobAvailable = errors.New("no job available")

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	storagePath := cfg.StoragePath
	if storagePath == "" {
		storagePath = "./storage"
	}
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if apiKey == "" {
		credStore := credentials.NewStore(runner)
		keyFromStore, err := credStore.GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load api key from store")
		} else {
			apiKey = keyFromStore
		}
	}

	generator, err := video.NewClient(video.Options{
		APIKey:     apiKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure video client")
	}
	if apiKey == "" {
		logger.Warn().Str("model", generator.Model()).Msg("worker: api key missing, using synthetic asset generation")
	}

	worker := &jobWorker{
		ctx:       ctx,
		runner:    runner,
		logger:    logger,
		generator: generator,
		store:     fileStore,
		baseURL:   strings.TrimRight(cfg.StorageBaseURL, "/"),
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *jobWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		j, err := w.claimJob()
		if err != nil {
			if errors.Is(err, errNoJobAvailable) {
				time.Sleep(jobPollInterval)
				continue
			}
			w.logger.Error().Err(err).Msg("worker: failed to claim job")
			time.Sleep(jobPollInterval)
			continue
		}

		w.handleJob(j)
	}
}

func (w *jobWorker) claimJob() (claimedJob, error) {
	row := w.runner.QueryRow(w.ctx, sqlinline.QWorkerClaimJob)
	var j claimedJob
	if err := row.Scan(&j.ID, &j.UserID, &j.ImageRef, &j.Prompt, &j.Resolution, &j.Cost); err != nil {
		if infra.IsNoRows(err) {
			return claimedJob{}, errNoJobAvailable
		}
		return claimedJob{}, err
	}
	return j, nil
}

func (w *jobWorker) handleJob(j claimedJob) {
	w.logger.Info().Str("job_id", j.ID).Str("resolution", j.Resolution).Msg("worker: picked job")

	resultRef, err := w.render(j)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", j.ID).Msg("worker: job failed")
		w.updateStatus(j.ID, domain.JobStatusFailed, "", err.Error())
		return
	}
	w.updateStatus(j.ID, domain.JobStatusCompleted, resultRef, "")
	w.logger.Info().Str("job_id", j.ID).Str("result_ref", resultRef).Msg("worker: job completed")
}

func (w *jobWorker) render(j claimedJob) (string, error) {
	asset, err := w.generator.Generate(w.ctx, video.Request{
		JobID:      j.ID,
		Prompt:     j.Prompt,
		ImageRef:   j.ImageRef,
		Resolution: domain.Resolution(j.Resolution),
	})
	if err != nil {
		return "", fmt.Errorf("generate video: %w", err)
	}

	if len(asset.Data) > 0 {
		key := asset.StorageKey
		if key == "" {
			key = fmt.Sprintf("videos/%s.mp4", j.ID)
		}
		storedKey, err := w.store.Write(w.ctx, key, asset.Data)
		if err != nil {
			return "", fmt.Errorf("store video: %w", err)
		}
		return w.baseURL + "/" + storedKey, nil
	}
	if asset.URL != "" {
		return asset.URL, nil
	}
	return "", errors.New("provider returned empty asset")
}

// updateStatus is guarded SQL: a row the user cancelled while we rendered
// stays cancelled, and the tracker refunds it rather than us.
func (w *jobWorker) updateStatus(jobID string, status domain.JobStatus, resultRef, errMsg string) {
	if _, err := w.runner.Exec(w.ctx, sqlinline.QUpdateJobStatus, jobID, string(status), resultRef, errMsg); err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: update status failed")
	}
}
