package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

type memJobs struct {
	jobs    map[string]*domain.ExportJob
	current string
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[string]*domain.ExportJob{}} }

func (m *memJobs) StartJob(_ context.Context, job *domain.ExportJob) error {
	job.Status = domain.ExportRunning
	cp := *job
	m.jobs[job.JobID] = &cp
	m.current = job.JobID
	return nil
}

func (m *memJobs) GetJob(_ context.Context, id string) (*domain.ExportJob, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) SaveProgress(_ context.Context, id string, cursor int64, written int) error {
	m.jobs[id].Cursor = cursor
	m.jobs[id].Written = written
	return nil
}

func (m *memJobs) FinishJob(_ context.Context, id string, status domain.ExportStatus) error {
	m.jobs[id].Status = status
	return nil
}

func (m *memJobs) CurrentJobID(context.Context) (string, error) { return m.current, nil }

type memSource struct {
	rows   []domain.ContentAnalysis
	calls  int
	onPage func(call int)
}

func (s *memSource) AnalysisPage(_ context.Context, _ string, after int64, limit int) ([]domain.ContentAnalysis, error) {
	s.calls++
	if s.onPage != nil {
		s.onPage(s.calls)
	}
	var out []domain.ContentAnalysis
	for _, r := range s.rows {
		if r.ID > after && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func row(id int64, origin string) domain.ContentAnalysis {
	return domain.ContentAnalysis{
		ContentRecord: domain.ContentRecord{
			ID:       id,
			Origin:   origin,
			NativeID: strconv.FormatInt(id, 10),
			Kind:     domain.KindArticle,
		},
		ActiveLinks: int(id),
	}
}

func newTestExporter(t *testing.T, jobs *memJobs, src *memSource) *Exporter {
	t.Helper()
	e := New(Config{Dir: t.TempDir(), PageSize: 2, LocalRole: domain.RoleBlog}, jobs, src, infralogger.NewNop())
	n := 0
	e.newID = func() string {
		n++
		return "job-" + strconv.Itoa(n)
	}
	return e
}

func readSnapshot(t *testing.T, path string) []domain.ContentAnalysis {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []domain.ContentAnalysis
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func TestExport_WritesAllPagesAndPublishes(t *testing.T) {
	jobs := newMemJobs()
	src := &memSource{rows: []domain.ContentAnalysis{row(1, "local"), row(2, "shop"), row(5, "local")}}
	e := newTestExporter(t, jobs, src)

	job, err := e.Export(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ExportCompleted, job.Status)
	assert.Equal(t, 3, job.Written)
	assert.Equal(t, int64(5), jobs.jobs["job-1"].Cursor)

	rows := readSnapshot(t, e.SnapshotPath())
	want := []string{"1", "2", "5"}
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.NativeID
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot ids mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, rows[2].ActiveLinks)

	_, statErr := os.Stat(job.TempPath)
	assert.True(t, os.IsNotExist(statErr), "temp file should be removed")
}

func TestExport_EmptySourcePublishesEmptyArray(t *testing.T) {
	e := newTestExporter(t, newMemJobs(), &memSource{})

	_, err := e.Export(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readSnapshot(t, e.SnapshotPath()))
}

func TestRun_SupersededJobIsDiscarded(t *testing.T) {
	jobs := newMemJobs()
	src := &memSource{rows: []domain.ContentAnalysis{row(1, "local"), row(2, "local"), row(3, "local")}}
	e := newTestExporter(t, jobs, src)

	first, err := e.Start(context.Background())
	require.NoError(t, err)

	src.onPage = func(call int) {
		if call == 1 {
			jobs.current = "newer"
		}
	}

	_, err = e.Run(context.Background(), first.JobID)
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, domain.ExportDiscarded, jobs.jobs[first.JobID].Status)

	_, statErr := os.Stat(first.TempPath)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(e.SnapshotPath())
	assert.True(t, os.IsNotExist(statErr), "no snapshot should be published")
}

func TestRun_ResumeDropsUnsavedPage(t *testing.T) {
	jobs := newMemJobs()
	src := &memSource{rows: []domain.ContentAnalysis{row(1, "local"), row(2, "local"), row(3, "local")}}
	e := newTestExporter(t, jobs, src)

	job, err := e.Start(context.Background())
	require.NoError(t, err)

	// One saved page plus one page that reached disk without progress.
	require.NoError(t, appendLines(job.TempPath, src.rows[:2]))
	require.NoError(t, jobs.SaveProgress(context.Background(), job.JobID, 2, 2))
	require.NoError(t, appendLines(job.TempPath, src.rows[2:]))

	done, err := e.Run(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 3, done.Written)

	rows := readSnapshot(t, e.SnapshotPath())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{rows[0].NativeID, rows[1].NativeID, rows[2].NativeID})
}

func TestRun_FinishedJobRejected(t *testing.T) {
	jobs := newMemJobs()
	e := newTestExporter(t, jobs, &memSource{})

	job, err := e.Export(context.Background())
	require.NoError(t, err)

	_, err = e.Run(context.Background(), job.JobID)
	assert.ErrorIs(t, err, ErrJobFinished)
}

func TestWriteSnapshot_Scopes(t *testing.T) {
	src := &memSource{rows: []domain.ContentAnalysis{row(1, "local"), row(2, "shop"), row(3, "local")}}
	e := newTestExporter(t, newMemJobs(), src)

	var buf bytes.Buffer
	require.ErrorIs(t, e.WriteSnapshot(&buf, ScopeMerged), ErrNoSnapshot)

	_, err := e.Export(context.Background())
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, e.WriteSnapshot(&buf, ScopeLocal))
	var local []domain.ContentAnalysis
	require.NoError(t, json.Unmarshal(buf.Bytes(), &local))
	require.Len(t, local, 2)
	for _, r := range local {
		assert.Equal(t, "local", r.Origin)
	}

	buf.Reset()
	require.NoError(t, e.WriteSnapshot(&buf, ScopeMerged))
	var merged []domain.ContentAnalysis
	require.NoError(t, json.Unmarshal(buf.Bytes(), &merged))
	assert.Len(t, merged, 3)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeMerged, s)

	s, err = ParseScope("local")
	require.NoError(t, err)
	assert.Equal(t, ScopeLocal, s)

	_, err = ParseScope("everything")
	assert.Error(t, err)
}

func TestTruncateLines_ShortFileKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o600))

	require.NoError(t, truncateLines(path, 5))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))

	require.NoError(t, truncateLines(path, 1))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(data))
}

func TestExport_ResumesInterruptedJob(t *testing.T) {
	jobs := newMemJobs()
	src := &memSource{rows: []domain.ContentAnalysis{row(1, "local"), row(2, "local"), row(3, "shop")}}
	e := newTestExporter(t, jobs, src)

	// A previous process wrote and saved one page, then stopped.
	job, err := e.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, appendLines(job.TempPath, src.rows[:2]))
	require.NoError(t, jobs.SaveProgress(context.Background(), job.JobID, 2, 2))

	done, err := e.Export(context.Background())
	require.NoError(t, err)

	assert.Equal(t, job.JobID, done.JobID)
	assert.Equal(t, domain.ExportCompleted, done.Status)
	assert.Equal(t, 3, done.Written)
	assert.Len(t, jobs.jobs, 1, "no new job is started")
	assert.Equal(t, 2, src.calls, "only pages after the saved cursor are read")

	rows := readSnapshot(t, e.SnapshotPath())
	require.Len(t, rows, 3)
	assert.Equal(t, "3", rows[2].NativeID)
}

func TestExport_LostTempFileStartsOver(t *testing.T) {
	jobs := newMemJobs()
	src := &memSource{rows: []domain.ContentAnalysis{row(1, "local"), row(2, "local")}}
	e := newTestExporter(t, jobs, src)

	stale, err := e.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, jobs.SaveProgress(context.Background(), stale.JobID, 1, 1))
	require.NoError(t, os.Remove(stale.TempPath))

	done, err := e.Export(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "job-2", done.JobID)
	assert.Equal(t, 2, done.Written)
	assert.Equal(t, domain.ExportFailed, jobs.jobs[stale.JobID].Status)
	assert.Len(t, readSnapshot(t, e.SnapshotPath()), 2)
}

func TestExport_FinishedCurrentJobStartsNew(t *testing.T) {
	jobs := newMemJobs()
	e := newTestExporter(t, jobs, &memSource{rows: []domain.ContentAnalysis{row(1, "local")}})

	first, err := e.Export(context.Background())
	require.NoError(t, err)
	second, err := e.Export(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Equal(t, domain.ExportCompleted, second.Status)
}
