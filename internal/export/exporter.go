// Package export writes the content-analysis snapshot consumed by the
// external suggestion step. Exports run in bounded pages, can be resumed by
// job id and are discarded when a newer export supersedes them.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

// SnapshotFile is the name of the completed snapshot inside the export dir.
const SnapshotFile = "snapshot.json"

const defaultPageSize = 200

var (
	// ErrSuperseded is returned when a newer export became current mid-run.
	ErrSuperseded = errors.New("export job superseded by a newer job")
	// ErrJobFinished is returned when resuming a job that is no longer running.
	ErrJobFinished = errors.New("export job is not running")
)

// JobStore persists export job progress.
type JobStore interface {
	StartJob(ctx context.Context, job *domain.ExportJob) error
	GetJob(ctx context.Context, jobID string) (*domain.ExportJob, error)
	SaveProgress(ctx context.Context, jobID string, cursor int64, written int) error
	FinishJob(ctx context.Context, jobID string, status domain.ExportStatus) error
	CurrentJobID(ctx context.Context) (string, error)
}

// Source pages through content records with their link counters.
type Source interface {
	AnalysisPage(ctx context.Context, localRole string, afterID int64, limit int) ([]domain.ContentAnalysis, error)
}

// Config holds exporter settings.
type Config struct {
	Dir       string
	PageSize  int
	LocalRole domain.SiteRole
}

// Exporter runs snapshot exports.
type Exporter struct {
	cfg    Config
	jobs   JobStore
	source Source
	log    infralogger.Logger
	newID  func() string
}

// New creates an exporter.
func New(cfg Config, jobs JobStore, source Source, log infralogger.Logger) *Exporter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Exporter{cfg: cfg, jobs: jobs, source: source, log: log, newID: uuid.NewString}
}

// SnapshotPath is where completed snapshots are written.
func (e *Exporter) SnapshotPath() string {
	return filepath.Join(e.cfg.Dir, SnapshotFile)
}

// Export runs an export to completion. A current job left running by an
// interrupted process is resumed from its saved cursor; otherwise a new job
// is started.
func (e *Exporter) Export(ctx context.Context) (*domain.ExportJob, error) {
	jobID, err := e.interrupted(ctx)
	if err != nil {
		return nil, err
	}
	if jobID != "" {
		return e.Run(ctx, jobID)
	}

	job, err := e.Start(ctx)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, job.JobID)
}

// interrupted returns the id of the current job when it is still running and
// its temp file survives. A running job whose temp file is gone is marked
// failed, since its saved cursor no longer matches anything on disk.
func (e *Exporter) interrupted(ctx context.Context) (string, error) {
	current, err := e.jobs.CurrentJobID(ctx)
	if err != nil {
		return "", fmt.Errorf("read current export job: %w", err)
	}
	if current == "" {
		return "", nil
	}
	job, err := e.jobs.GetJob(ctx, current)
	if err != nil {
		return "", fmt.Errorf("load export job %s: %w", current, err)
	}
	if job.Status != domain.ExportRunning {
		return "", nil
	}

	if _, statErr := os.Stat(job.TempPath); statErr != nil {
		e.log.Warn("Interrupted export lost its temp file, starting over",
			infralogger.String("job_id", job.JobID),
			infralogger.Error(statErr),
		)
		if finishErr := e.jobs.FinishJob(ctx, job.JobID, domain.ExportFailed); finishErr != nil {
			return "", fmt.Errorf("mark export job %s failed: %w", job.JobID, finishErr)
		}
		return "", nil
	}

	e.log.Info("Export resumed",
		infralogger.String("job_id", job.JobID),
		infralogger.Int64("cursor", job.Cursor),
		infralogger.Int("written", job.Written),
	)
	return job.JobID, nil
}

// Start creates a job, makes it current and creates its empty temp file.
func (e *Exporter) Start(ctx context.Context) (*domain.ExportJob, error) {
	if err := os.MkdirAll(e.cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	id := e.newID()
	job := &domain.ExportJob{
		JobID:    id,
		TempPath: filepath.Join(e.cfg.Dir, "export-"+id+".jsonl.tmp"),
	}

	f, err := os.Create(job.TempPath)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	if err = e.jobs.StartJob(ctx, job); err != nil {
		_ = os.Remove(job.TempPath)
		return nil, fmt.Errorf("record export job: %w", err)
	}

	e.log.Info("Export started", infralogger.String("job_id", id))
	return job, nil
}

// Run writes pages from the job's cursor until the source is exhausted, then
// publishes the snapshot. Before every page the job must still be current,
// otherwise its output is discarded and ErrSuperseded returned.
func (e *Exporter) Run(ctx context.Context, jobID string) (*domain.ExportJob, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.ExportRunning {
		return job, ErrJobFinished
	}

	if err = truncateLines(job.TempPath, job.Written); err != nil {
		return nil, e.fail(ctx, job, fmt.Errorf("prepare temp file: %w", err))
	}

	for {
		if err = ctx.Err(); err != nil {
			return job, err
		}

		current, curErr := e.jobs.CurrentJobID(ctx)
		if curErr != nil {
			return job, fmt.Errorf("read current export job: %w", curErr)
		}
		if current != job.JobID {
			return job, e.discard(ctx, job)
		}

		page, pageErr := e.source.AnalysisPage(ctx, string(e.cfg.LocalRole), job.Cursor, e.cfg.PageSize)
		if pageErr != nil {
			return job, fmt.Errorf("load page after %d: %w", job.Cursor, pageErr)
		}
		if len(page) == 0 {
			break
		}

		if err = appendLines(job.TempPath, page); err != nil {
			return nil, e.fail(ctx, job, err)
		}
		job.Cursor = page[len(page)-1].ID
		job.Written += len(page)
		if err = e.jobs.SaveProgress(ctx, job.JobID, job.Cursor, job.Written); err != nil {
			return job, fmt.Errorf("save progress: %w", err)
		}
	}

	if err = publish(job.TempPath, e.SnapshotPath()); err != nil {
		return nil, e.fail(ctx, job, err)
	}
	if err = e.jobs.FinishJob(ctx, job.JobID, domain.ExportCompleted); err != nil {
		return job, fmt.Errorf("finish export job: %w", err)
	}
	job.Status = domain.ExportCompleted

	e.log.Info("Export completed",
		infralogger.String("job_id", job.JobID),
		infralogger.Int("written", job.Written),
	)
	return job, nil
}

func (e *Exporter) discard(ctx context.Context, job *domain.ExportJob) error {
	_ = os.Remove(job.TempPath)
	if err := e.jobs.FinishJob(ctx, job.JobID, domain.ExportDiscarded); err != nil {
		e.log.Warn("Failed to mark export discarded", infralogger.String("job_id", job.JobID), infralogger.Error(err))
	}
	job.Status = domain.ExportDiscarded
	e.log.Info("Export discarded", infralogger.String("job_id", job.JobID))
	return ErrSuperseded
}

func (e *Exporter) fail(ctx context.Context, job *domain.ExportJob, cause error) error {
	_ = os.Remove(job.TempPath)
	if err := e.jobs.FinishJob(ctx, job.JobID, domain.ExportFailed); err != nil {
		e.log.Warn("Failed to mark export failed", infralogger.String("job_id", job.JobID), infralogger.Error(err))
	}
	return cause
}

func appendLines(path string, rows []domain.ContentAnalysis) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range rows {
		if err = enc.Encode(&rows[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", rows[i].ID, err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	return f.Sync()
}

// truncateLines cuts path after its first n lines, dropping output of a page
// whose progress was never saved.
func truncateLines(path string, n int) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	var offset int64
	r := bufio.NewReader(f)
	for range n {
		line, readErr := r.ReadBytes('\n')
		offset += int64(len(line))
		if readErr != nil {
			break
		}
	}
	return f.Truncate(offset)
}

// publish turns the JSON-lines temp file into a JSON array and renames it
// into place, then removes the temp file.
func publish(tempPath, finalPath string) (err error) {
	in, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	defer in.Close()

	partPath := finalPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(partPath)
		}
	}()

	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)

	if _, err = w.WriteString("["); err != nil {
		return err
	}
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !first {
			if _, err = w.WriteString(",\n"); err != nil {
				return err
			}
		}
		first = false
		if _, err = w.Write(line); err != nil {
			return err
		}
	}
	if err = scanner.Err(); err != nil {
		return fmt.Errorf("read temp file: %w", err)
	}
	if _, err = w.WriteString("]\n"); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}

	if err = os.Rename(partPath, finalPath); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	_ = os.Remove(tempPath)
	return nil
}
