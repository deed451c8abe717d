// Package importer runs archive import jobs: staging uploaded zips,
// extracting them, walking their category metadata and folding every media
// item in to the catalog. Jobs are tracked in-memory only; state does not
// survive a restart.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gramvault/gramvault/internal/archive"
	"github.com/gramvault/gramvault/internal/catalog"
	"github.com/gramvault/gramvault/internal/database"
	"github.com/gramvault/gramvault/internal/event"
	"github.com/gramvault/gramvault/internal/ffmpeg"
	"github.com/gramvault/gramvault/internal/metadata"
	"github.com/gramvault/gramvault/pkg/logger"
	"github.com/gramvault/gramvault/pkg/worker"
)

var log = logger.Get("Importer")

type (
	Config struct {
		WorkerCount         int                    `yaml:"workers" env:"IMPORT_WORKERS" env-default:"2" validate:"gte=1"`
		StagingDirPath      string                 `yaml:"staging_dir_path" env:"IMPORT_STAGING_DIR" env-default:"/tmp/gramvault/import"`
		OwnerUsername       string                 `yaml:"owner_username" env:"IMPORT_OWNER_USERNAME" env-required:"true" validate:"required"`
		UnzipTimeoutMinutes int                    `yaml:"unzip_timeout_minutes" env:"IMPORT_UNZIP_TIMEOUT" env-default:"15"`
		Variants            []ffmpeg.VariantConfig `yaml:"variants"`
	}

	// ArchiveUpload is one uploaded zip, already open for reading.
	ArchiveUpload struct {
		Filename string
		Content  io.Reader
	}

	// Service owns the job registry and the worker pool which drains it.
	// StartImport stages synchronously and returns immediately; everything
	// else happens on a pool worker and is observed via snapshots.
	Service struct {
		*sync.Mutex

		config   Config
		db       database.Manager
		eventBus event.EventCoordinator
		pipeline *pipeline
		pool     *worker.WorkerPool

		jobs     map[uuid.UUID]*ImportJob
		jobOrder []uuid.UUID
	}
)

func New(config Config, db database.Manager, eventBus event.EventCoordinator, store CatalogStore, library *catalog.Library, transcoder *ffmpeg.Transcoder, extractor *metadata.Extractor) (*Service, error) {
	if err := os.MkdirAll(config.StagingDirPath, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create import staging dir %s: %w", config.StagingDirPath, err)
	}

	return &Service{
		Mutex:  &sync.Mutex{},
		config: config,
		db:     db,
		pipeline: &pipeline{
			store:      store,
			library:    library,
			transcoder: transcoder,
			extractor:  extractor,
			eventBus:   eventBus,
			variants:   config.Variants,
			owner:      config.OwnerUsername,
		},
		eventBus: eventBus,
		pool:     worker.NewWorkerPool(),
		jobs:     make(map[uuid.UUID]*ImportJob),
	}, nil
}

// Run starts the import worker pool and blocks until the context is
// cancelled. Jobs already claimed by a worker run to completion; queued
// jobs left behind at shutdown are lost with the rest of the registry.
func (service *Service) Run(ctx context.Context) error {
	for i := 0; i < service.config.WorkerCount; i++ {
		label := fmt.Sprintf("import-worker-%d", i)
		if err := service.pool.PushWorker(worker.NewWorker(label, service.workerTask)); err != nil {
			return err
		}
	}

	if err := service.pool.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Emit(logger.STOP, "Import service shutting down, waiting for in-flight jobs...\n")
	service.pool.Close()
	return nil
}

// StartImport stages the uploaded archives in to a job-scoped temp
// directory and registers a queued job for the pool to claim. Only staging
// failures are surfaced to the caller; everything later is job state.
func (service *Service) StartImport(uploads []ArchiveUpload) (uuid.UUID, error) {
	if len(uploads) == 0 {
		return uuid.Nil, fmt.Errorf("no archives provided")
	}

	jobID := uuid.New()
	workDir := filepath.Join(service.config.StagingDirPath, "job-"+jobID.String())
	archiveDir := filepath.Join(workDir, "archives")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("cannot create job staging dir: %w", err)
	}

	archivePaths := make([]string, 0, len(uploads))
	for i, upload := range uploads {
		if !strings.HasSuffix(strings.ToLower(upload.Filename), ".zip") {
			os.RemoveAll(workDir)
			return uuid.Nil, fmt.Errorf("file %s is not a zip archive", upload.Filename)
		}

		destPath := filepath.Join(archiveDir, fmt.Sprintf("archive-%d.zip", i))
		if err := writeStagedArchive(destPath, upload.Content); err != nil {
			os.RemoveAll(workDir)
			return uuid.Nil, fmt.Errorf("failed to stage %s: %w", upload.Filename, err)
		}

		archivePaths = append(archivePaths, destPath)
	}

	job := newImportJob(jobID, workDir, archivePaths)
	job.onUpdate = func() { service.eventBus.Dispatch(event.ImportJobUpdateEvent, jobID) }

	service.Lock()
	service.jobs[jobID] = job
	service.jobOrder = append(service.jobOrder, jobID)
	service.Unlock()

	job.Message(fmt.Sprintf("Staged %d archive(s)", len(archivePaths)))
	job.SetPercent(PercentAfterStaging)

	if err := service.pool.WakeupWorkers(); err != nil {
		log.Emit(logger.WARNING, "Could not wake import workers: %v\n", err)
	}

	log.Emit(logger.NEW, "Import job %s created with %d archive(s)\n", jobID, len(archivePaths))
	return jobID, nil
}

// GetJob returns a snapshot of the job, if known.
func (service *Service) GetJob(id uuid.UUID) (JobSnapshot, bool) {
	service.Lock()
	job, ok := service.jobs[id]
	service.Unlock()

	if !ok {
		return JobSnapshot{}, false
	}

	return job.Snapshot(), true
}

// AllJobs returns snapshots of every known job in creation order.
func (service *Service) AllJobs() []JobSnapshot {
	service.Lock()
	jobs := make([]*ImportJob, 0, len(service.jobOrder))
	for _, id := range service.jobOrder {
		jobs = append(jobs, service.jobs[id])
	}
	service.Unlock()

	snapshots := make([]JobSnapshot, len(jobs))
	for i, job := range jobs {
		snapshots[i] = job.Snapshot()
	}

	return snapshots
}

// workerTask is the pool task: claim one queued job and run it to
// completion. Reporting no work sends the worker back to sleep until the
// next StartImport wakes it.
func (service *Service) workerTask(w worker.Worker) (bool, error) {
	job := service.claimQueuedJob()
	if job == nil {
		return false, nil
	}

	log.Emit(logger.INFO, "Worker %s claimed import job %s\n", w.Label(), job.ID())
	service.runJob(job)
	return true, nil
}

func (service *Service) claimQueuedJob() *ImportJob {
	service.Lock()
	defer service.Unlock()

	for _, id := range service.jobOrder {
		job := service.jobs[id]
		if !job.claimed && job.Snapshot().Stage == StageQueued {
			job.claimed = true
			return job
		}
	}

	return nil
}

// runJob executes one claimed job. Jobs are never cancelled once started;
// the only context bounds are the per-invocation process timeouts.
func (service *Service) runJob(job *ImportJob) {
	ctx := context.Background()

	// The staging directory is removed exactly once, success or failure.
	defer os.RemoveAll(job.workDir)
	defer func() {
		if r := recover(); r != nil {
			log.Emit(logger.ERROR, "Import job %s PANICKED: %v\n", job.ID(), r)
			job.Fail(fmt.Sprintf("import worker crashed: %v", r))
			service.eventBus.Dispatch(event.ImportJobCompleteEvent, job.ID())
		}
	}()

	job.SetStage(StageUnzipping)
	job.Message("Extracting archives")

	extractRoot := filepath.Join(job.workDir, "extracted")
	unzipTimeout := time.Duration(service.config.UnzipTimeoutMinutes) * time.Minute
	for _, archivePath := range job.archivePaths {
		if err := archive.ExtractZip(ctx, archivePath, extractRoot, unzipTimeout); err != nil {
			job.Fail(err.Error())
			service.eventBus.Dispatch(event.ImportJobCompleteEvent, job.ID())
			return
		}
	}

	job.SetStage(StageProcessing)
	discoveries := archive.DiscoverCategories(extractRoot)
	if len(discoveries) == 0 {
		// An archive with nothing recognisable still completes cleanly.
		job.Message("No post/reel/story metadata found in archive")
	} else {
		names := make([]string, len(discoveries))
		for i, discovery := range discoveries {
			names[i] = discovery.Category.String()
		}
		job.Message(fmt.Sprintf("Discovered categories: %s", strings.Join(names, ", ")))
	}
	job.SetPercent(PercentAfterDiscovery)

	linker, err := service.pipeline.run(ctx, job, service.db.GetSqlxDb(), extractRoot, discoveries)
	if err != nil {
		job.Fail(err.Error())
		service.eventBus.Dispatch(event.ImportJobCompleteEvent, job.ID())
		return
	}

	job.SetStage(StageFinalizing)
	job.SetPercent(PercentFinalizing)
	job.Message("Republishing touched catalog entries")
	if err := service.db.WrapTx(func(tx *sqlx.Tx) error { return linker.finalize(tx) }); err != nil {
		job.Fail(err.Error())
		service.eventBus.Dispatch(event.ImportJobCompleteEvent, job.ID())
		return
	}

	job.Message("Import complete")
	job.Complete()
	service.eventBus.Dispatch(event.ImportJobCompleteEvent, job.ID())
	log.Emit(logger.SUCCESS, "Import job %s complete\n", job.ID())
}

func writeStagedArchive(destPath string, content io.Reader) error {
	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, content); err != nil {
		return err
	}

	return dest.Close()
}
