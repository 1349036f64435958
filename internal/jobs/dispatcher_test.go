package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetrics(prometheus.NewRegistry())
	return NewDispatcher(nil, m, infralogger.NewNop()), m
}

func TestRunNow_RecordsSuccess(t *testing.T) {
	d, m := newTestDispatcher(t)
	d.Register("index", func(context.Context) (any, error) {
		return map[string]int{"indexed": 3}, nil
	})

	state, err := d.RunNow(context.Background(), "index")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, state.Outcome)
	assert.Equal(t, map[string]int{"indexed": 3}, state.Result)
	assert.False(t, state.Running)
	require.NotNil(t, state.LastStarted)
	require.NotNil(t, state.LastFinished)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("index", "success")), 0)
}

func TestRunNow_RecordsFailureAndPanic(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("broken", func(context.Context) (any, error) { return nil, errors.New("db down") })
	d.Register("panics", func(context.Context) (any, error) { panic("boom") })

	state, err := d.RunNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, state.Outcome)
	assert.Equal(t, "db down", state.Error)

	state, err = d.RunNow(context.Background(), "panics")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, state.Outcome)
	assert.Contains(t, state.Error, "boom")
}

func TestRunNow_UnknownJob(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.ErrorIs(t, d.Enqueue("nope"), ErrUnknownJob)
	assert.ErrorIs(t, d.Schedule("nope", "@hourly"), ErrUnknownJob)
}

func TestRunNow_OverlapIsSkipped(t *testing.T) {
	d, m := newTestDispatcher(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	d.Register("export", func(context.Context) (any, error) {
		close(entered)
		<-release
		return "done", nil
	})

	done := make(chan State)
	go func() {
		s, _ := d.RunNow(context.Background(), "export")
		done <- s
	}()
	<-entered

	skipped, err := d.RunNow(context.Background(), "export")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, skipped.Outcome)
	assert.True(t, skipped.Running)

	close(release)
	first := <-done
	assert.Equal(t, OutcomeSuccess, first.Outcome)

	current, ok := d.State("export")
	require.True(t, ok)
	assert.Equal(t, OutcomeSuccess, current.Outcome)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("export", "skipped")), 0)
}

func TestEnqueue_DrainedInOrderOnce(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var ran []string
	for _, name := range []string{"a", "b"} {
		d.Register(name, func(context.Context) (any, error) {
			ran = append(ran, name)
			return nil, nil
		})
	}

	require.NoError(t, d.Enqueue("b"))
	require.NoError(t, d.Enqueue("a"))
	require.NoError(t, d.Enqueue("b"))

	s, _ := d.State("b")
	assert.True(t, s.Queued)

	d.Drain(context.Background())
	assert.Equal(t, []string{"b", "a"}, ran)

	s, _ = d.State("b")
	assert.False(t, s.Queued)

	d.Drain(context.Background())
	assert.Len(t, ran, 2)
}

func TestSchedule_ValidatesSpec(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("lifecycle", func(context.Context) (any, error) { return nil, nil })

	require.NoError(t, d.Schedule("lifecycle", "@hourly"))
	assert.Error(t, d.Schedule("lifecycle", "every now and then"))

	s, _ := d.State("lifecycle")
	assert.Equal(t, "@hourly", s.Schedule)
}

func TestStates_SortedByName(t *testing.T) {
	d, _ := newTestDispatcher(t)
	for _, n := range []string{"peer_sync", "export", "index"} {
		d.Register(n, func(context.Context) (any, error) { return nil, nil })
	}

	states := d.States()
	require.Len(t, states, 3)
	assert.Equal(t, "export", states[0].Name)
	assert.Equal(t, "peer_sync", states[2].Name)
}

func TestStartStop(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.Error(t, d.Start(context.Background(), "not a spec"))

	d2, _ := newTestDispatcher(t)
	require.NoError(t, d2.Start(context.Background(), "@every 1h"))
	d2.Stop()

	goleak.VerifyNone(t)
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var unlockErrs []error
	locker := NewRedisLocker(client, time.Minute, func(_ string, err error) {
		unlockErrs = append(unlockErrs, err)
	})
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "export")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(lockKeyPrefix+"export"))

	_, ok, err = locker.Acquire(ctx, "export")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	release()
	assert.False(t, mr.Exists(lockKeyPrefix+"export"))

	release2, ok, err := locker.Acquire(ctx, "export")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	release2()
	require.Len(t, unlockErrs, 1)
}

func TestRedisLocker_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	d := NewDispatcher(NewRedisLocker(client, time.Minute, nil), nil, infralogger.NewNop())
	called := false
	d.Register("index", func(context.Context) (any, error) {
		called = true
		return nil, nil
	})

	state, err := d.RunNow(context.Background(), "index")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, state.Outcome)
	assert.Contains(t, state.Error, "acquire lock")
	assert.False(t, called)
}

func TestLocalLocker_ReleaseIsIdempotent(t *testing.T) {
	l := NewLocalLocker()
	release, ok, err := l.Acquire(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, ok)

	release()
	release()

	_, ok, _ = l.Acquire(context.Background(), "x")
	assert.True(t, ok)
}
