package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heatview/server/internal/jobstore"
	"github.com/heatview/server/internal/logger"
)

// JobManagerConfig contains configuration for the export job manager.
type JobManagerConfig struct {
	MaxConcurrent  int    // Max concurrent export jobs (default 1)
	SQLitePath     string // Path to SQLite database
	RetentionHours int    // Hours to keep finished jobs (default 24)
	CleanupPeriod  time.Duration
}

// JobManager runs export jobs with SQLite persistence.
type JobManager struct {
	cfg      JobManagerConfig
	store    *jobstore.Store
	queue    chan string // job IDs
	running  map[string]context.CancelFunc
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// Executor is called to run the actual export.
	Executor func(ctx context.Context, store *jobstore.Store, jobID string) error
}

// NewJobManager creates a new job manager with SQLite persistence.
func NewJobManager(cfg JobManagerConfig) (*JobManager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = 24
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}

	store, err := jobstore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	jm := &JobManager{
		cfg:     cfg,
		store:   store,
		queue:   make(chan string, 100),
		running: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
	}
	return jm, nil
}

// Store returns the underlying store for direct access.
func (jm *JobManager) Store() *jobstore.Store {
	return jm.store
}

// Start starts the worker goroutines and cleanup ticker. Jobs left over
// from a previous run are recovered: running ones fail, queued ones are
// re-queued.
func (jm *JobManager) Start() {
	if err := jm.store.MarkRunningAsFailed("server restarted"); err != nil {
		logger.Warn("failed to mark running jobs as failed", zap.Error(err))
	}

	queued, err := jm.store.ListQueuedJobs()
	if err != nil {
		logger.Warn("failed to list queued jobs", zap.Error(err))
	} else {
		for _, job := range queued {
			select {
			case jm.queue <- job.ID:
				logger.Info("re-queued export job", zap.String("job", job.ID))
			default:
				logger.Warn("queue full, cannot re-queue job", zap.String("job", job.ID))
			}
		}
	}

	for i := 0; i < jm.cfg.MaxConcurrent; i++ {
		jm.wg.Add(1)
		go jm.worker()
	}

	go jm.cleaner()
}

// Stop stops all workers gracefully.
func (jm *JobManager) Stop() {
	jm.stopOnce.Do(func() {
		close(jm.stopCh)
		close(jm.queue)
		jm.wg.Wait()
		jm.store.Close()
	})
}

func (jm *JobManager) worker() {
	defer jm.wg.Done()
	for jobID := range jm.queue {
		jm.runJob(jobID)
	}
}

func (jm *JobManager) runJob(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())

	jm.mu.Lock()
	jm.running[jobID] = cancel
	jm.mu.Unlock()

	defer func() {
		jm.mu.Lock()
		delete(jm.running, jobID)
		jm.mu.Unlock()
	}()

	if err := jm.store.UpdateJobStarted(jobID); err != nil {
		logger.Warn("failed to mark job as started", zap.String("job", jobID), zap.Error(err))
		return
	}

	var execErr error
	if jm.Executor != nil {
		execErr = jm.Executor(ctx, jm.store, jobID)
	}

	if ctx.Err() == context.Canceled {
		jm.store.UpdateJobStatus(jobID, jobstore.JobStatusCancelled, "cancelled by user")
	} else if execErr != nil {
		jm.store.UpdateJobStatus(jobID, jobstore.JobStatusFailed, execErr.Error())
	} else {
		jm.store.UpdateJobStatus(jobID, jobstore.JobStatusCompleted, "")
	}
}

func (jm *JobManager) cleaner() {
	ticker := time.NewTicker(jm.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.cleanup()
		}
	}
}

func (jm *JobManager) cleanup() {
	deleted, err := jm.store.DeleteExpiredJobs(jm.cfg.RetentionHours)
	if err != nil {
		logger.Warn("export job cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		logger.Info("cleaned up expired export jobs", zap.Int64("deleted", deleted))
	}
}

// Submit creates a new job and enqueues it for execution.
func (jm *JobManager) Submit(params jobstore.ExportParams) (*jobstore.ExportJob, error) {
	job := &jobstore.ExportJob{
		ID:        uuid.NewString(),
		DatasetID: params.DatasetID,
		Status:    jobstore.JobStatusQueued,
		Params:    params,
		CreatedAt: time.Now(),
	}

	if err := jm.store.CreateJob(job); err != nil {
		return nil, err
	}

	select {
	case jm.queue <- job.ID:
	default:
		// Queue full; mark as failed immediately
		jm.store.UpdateJobStatus(job.ID, jobstore.JobStatusFailed, "job queue is full; try again later")
	}

	return job, nil
}

// Get returns a job by ID.
func (jm *JobManager) Get(id string) *jobstore.ExportJob {
	job, err := jm.store.GetJob(id)
	if err != nil {
		logger.Warn("failed to read export job", zap.String("job", id), zap.Error(err))
		return nil
	}
	return job
}

// Cancel attempts to cancel a running or queued job.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	cancel, ok := jm.running[id]
	jm.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	job, err := jm.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status == jobstore.JobStatusQueued {
		jm.store.UpdateJobStatus(id, jobstore.JobStatusCancelled, "cancelled before start")
		return true
	}
	return false
}

// Delete deletes a job and its result.
func (jm *JobManager) Delete(id string) error {
	return jm.store.DeleteJob(id)
}

// NewExportExecutor returns the executor the job manager workers run: it
// replays the submitted view against the dataset and stores the rendered
// output.
func NewExportExecutor(registry *DatasetRegistry) func(ctx context.Context, store *jobstore.Store, jobID string) error {
	return func(ctx context.Context, store *jobstore.Store, jobID string) error {
		job, err := store.GetJob(jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job %s not found", jobID)
		}

		svc := registry.Get(job.Params.DatasetID)
		if svc == nil {
			return fmt.Errorf("dataset %q not loaded", job.Params.DatasetID)
		}

		snap, err := svc.BuildSnapshot(job.Params.TrackIDs, job.Params.SortTrack, job.Params.SortDirection)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		switch job.Params.Format {
		case "csv":
			data, err := svc.ExportCSV(snap)
			if err != nil {
				return err
			}
			return store.SaveResult(jobID, "text/csv", data)
		case "png":
			data, err := svc.RenderExport(snap, job.Params.Width, job.Params.RowHeight)
			if err != nil {
				return err
			}
			return store.SaveResult(jobID, "image/png", data)
		default:
			return fmt.Errorf("unknown export format %q", job.Params.Format)
		}
	}
}
