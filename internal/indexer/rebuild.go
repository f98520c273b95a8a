package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/laguz/internal/meta"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/store"
	"github.com/starford/laguz/internal/tasks"
)

// DefaultRebuildBatch is the number of documents processed per rebuild
// transaction.
const DefaultRebuildBatch = 25

// Exec serializes a unit of store work; the scheduler's Do method is the
// production implementation, keeping rebuild batches on the same chain as
// per-document handlers.
type Exec func(ctx context.Context, fn func(context.Context) error) error

// PassthroughExec runs fn directly, for use before a scheduler exists.
func PassthroughExec(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// Rebuilder performs a full, checkpointed reindex of every indexable note.
// Unlike the incremental path it replaces each batch's task rows outright
// rather than diffing: for a full rebuild, correctness outweighs write
// minimization.
type Rebuilder struct {
	store      store.Store
	meta       *meta.Store
	exec       Exec
	batch      int
	logger     *slog.Logger
	now        func() time.Time
	onProgress func(Job)

	mu      sync.Mutex
	running bool
}

// RebuilderConfig configures a Rebuilder.
type RebuilderConfig struct {
	// BatchSize overrides DefaultRebuildBatch when positive.
	BatchSize int
	// Exec serializes batches against other index maintenance; defaults to
	// PassthroughExec.
	Exec Exec
	// OnProgress, if set, observes every persisted job update.
	OnProgress func(Job)
	Logger     *slog.Logger
}

// NewRebuilder creates a rebuilder over st with checkpoints in m.
func NewRebuilder(st store.Store, m *meta.Store, cfg RebuilderConfig) *Rebuilder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRebuildBatch
	}
	if cfg.Exec == nil {
		cfg.Exec = PassthroughExec
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Rebuilder{
		store:      st,
		meta:       m,
		exec:       cfg.Exec,
		batch:      cfg.BatchSize,
		logger:     cfg.Logger,
		now:        time.Now,
		onProgress: cfg.OnProgress,
	}
}

// Request starts a rebuild in the background unless one is already RUNNING,
// in which case it is a no-op and returns false.
func (r *Rebuilder) Request(ctx context.Context) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debug("rebuild: already running, request ignored")
		return false
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()
		if err := r.Run(ctx); err != nil {
			r.logger.Error("rebuild: failed", slog.String("error", err.Error()))
		}
	}()
	return true
}

// Running reports whether a rebuild is currently executing.
func (r *Rebuilder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// CurrentJob returns the persisted job record, or ok=false when no rebuild
// has ever run.
func (r *Rebuilder) CurrentJob() (Job, bool, error) {
	var job Job
	ok, err := r.meta.GetJSON(keyJob, &job)
	return job, ok, err
}

// MarkNeedsRebuild sets the persisted needs-rebuild flag; the next Run
// clears it on success.
func (r *Rebuilder) MarkNeedsRebuild() error {
	return r.meta.Put(keyNeedsRebuild, []byte("1"))
}

// NeedsRebuild reports the persisted needs-rebuild flag.
func (r *Rebuilder) NeedsRebuild() (bool, error) {
	_, ok, err := r.meta.Get(keyNeedsRebuild)
	return ok, err
}

// Run executes one rebuild attempt synchronously. On a batch error the job
// is marked FAILED with the error message and the last valid checkpoint is
// retained, so a later Run resumes instead of restarting.
func (r *Rebuilder) Run(ctx context.Context) error {
	ids, err := r.store.ListIndexableNoteIDs()
	if err != nil {
		return fmt.Errorf("rebuild: snapshot: %w", err)
	}
	sort.Strings(ids) // ListIndexableNoteIDs sorts already; cheap to assert determinism

	total := len(ids)
	offset := r.resolveOffset(ids, total)

	job := Job{
		ID:        uuid.NewString(),
		Status:    JobRunning,
		Progress:  progress(offset, total),
		StartedAt: r.now(),
	}
	if err := r.putJob(job); err != nil {
		return err
	}

	r.logger.Info("rebuild: started",
		slog.String("job_id", job.ID),
		slog.Int("total", total),
		slog.Int("offset", offset))

	// Only a fresh start may sweep: a resumed run must not delete rows for
	// documents it has not re-processed yet.
	if offset == 0 {
		if err := r.exec(ctx, func(context.Context) error {
			return r.store.DeleteTasksNotIn(ids)
		}); err != nil {
			return r.fail(job, fmt.Errorf("rebuild: orphan sweep: %w", err))
		}
	}

	for offset < total {
		if err := ctx.Err(); err != nil {
			return r.fail(job, fmt.Errorf("rebuild: cancelled: %w", err))
		}

		end := offset + r.batch
		if end > total {
			end = total
		}
		batchIDs := ids[offset:end]

		if err := r.exec(ctx, func(context.Context) error {
			return r.processBatch(batchIDs)
		}); err != nil {
			return r.fail(job, fmt.Errorf("rebuild: batch at %d: %w", offset, err))
		}

		offset = end
		cp := Checkpoint{
			Processed: offset,
			Total:     total,
			LastID:    batchIDs[len(batchIDs)-1],
			Mode:      "full",
		}
		if err := r.meta.PutJSON(keyCheckpoint, cp); err != nil {
			return r.fail(job, fmt.Errorf("rebuild: persist checkpoint: %w", err))
		}
		job.Progress = progress(offset, total)
		job.Cursor = cp.LastID
		if err := r.putJob(job); err != nil {
			return r.fail(job, err)
		}

		// Yield between batches so foreground traffic gets the chain.
		runtime.Gosched()
	}

	if err := r.meta.Delete(keyCheckpoint); err != nil {
		return r.fail(job, fmt.Errorf("rebuild: clear checkpoint: %w", err))
	}
	if err := r.meta.Delete(keyNeedsRebuild); err != nil {
		return r.fail(job, fmt.Errorf("rebuild: clear flag: %w", err))
	}

	job.Status = JobDone
	job.Progress = 1.0
	job.FinishedAt = r.now()
	if err := r.putJob(job); err != nil {
		return err
	}

	r.logger.Info("rebuild: done", slog.String("job_id", job.ID), slog.Int("total", total))
	return nil
}

// processBatch replaces the task rows for one batch of note ids inside a
// single store transaction.
func (r *Rebuilder) processBatch(batchIDs []string) error {
	docs, err := r.store.GetDocuments(batchIDs)
	if err != nil {
		return err
	}

	var rows []models.TaskRow
	for i := range docs {
		rows = append(rows, tasks.Extract(&docs[i])...)
	}
	return r.store.ReplaceTasks(batchIDs, rows, r.now())
}

// resolveOffset maps the persisted checkpoint onto the fresh snapshot.
// The checkpoint is valid only when its recorded total matches the live
// total; otherwise the document set changed and we restart from zero.
// A valid checkpoint resolves through its last-processed id first, then the
// processed count, then zero.
func (r *Rebuilder) resolveOffset(ids []string, total int) int {
	var cp Checkpoint
	ok, err := r.meta.GetJSON(keyCheckpoint, &cp)
	if err != nil {
		r.logger.Warn("rebuild: unreadable checkpoint discarded", slog.String("error", err.Error()))
		return 0
	}
	if !ok {
		return 0
	}
	if cp.Total != total {
		r.logger.Info("rebuild: checkpoint invalidated",
			slog.Int("recorded_total", cp.Total),
			slog.Int("live_total", total))
		return 0
	}

	if cp.LastID != "" {
		if i := sort.SearchStrings(ids, cp.LastID); i < total && ids[i] == cp.LastID {
			return i + 1
		}
	}
	if cp.Processed > 0 && cp.Processed <= total {
		return cp.Processed
	}
	return 0
}

func (r *Rebuilder) fail(job Job, cause error) error {
	job.Status = JobFailed
	job.Error = cause.Error()
	job.FinishedAt = r.now()
	if putErr := r.putJob(job); putErr != nil {
		r.logger.Error("rebuild: persist failed job", slog.String("error", putErr.Error()))
	}
	return cause
}

func (r *Rebuilder) putJob(job Job) error {
	if err := r.meta.PutJSON(keyJob, job); err != nil {
		return fmt.Errorf("rebuild: persist job: %w", err)
	}
	if r.onProgress != nil {
		r.onProgress(job)
	}
	return nil
}

func progress(done, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(done) / float64(total)
}
