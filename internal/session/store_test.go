package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run", SessionFileName)
	sess := &TrainingSession{
		ID:        "test-id",
		Name:      "run",
		Config:    DefaultTrainingConfig(),
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	s, err := Create(path, sess, WithRetries(3, time.Millisecond), WithLogger(logger.Noop()))
	require.NoError(t, err)
	return s
}

func event(iter int, loss float64) MetricEvent {
	return MetricEvent{Iteration: iter, TrainLoss: Float(loss), Timestamp: time.Now()}
}

func TestCreate_PublishesInitialSession(t *testing.T) {
	s := newTestStore(t)

	got, ok := Read(s.Path())
	require.True(t, ok)
	assert.Equal(t, SchemaVersion, got.SchemaVersion)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.EndTime)
	assert.Empty(t, got.Metrics)
	assert.NotNil(t, got.Metrics, "metrics should encode as [] not null")
}

func TestAppend_ReadBackInOrder(t *testing.T) {
	s := newTestStore(t)

	const n = 50
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Append(event(i*10, 3.0-float64(i)*0.01)))
	}

	got, ok := Read(s.Path())
	require.True(t, ok)
	require.Len(t, got.Metrics, n)
	for i, ev := range got.Metrics {
		assert.Equal(t, (i+1)*10, ev.Iteration)
	}
}

func TestAppend_InterleavedReadsNeverTorn(t *testing.T) {
	s := newTestStore(t)
	const n = 200

	var stop atomic.Bool
	var reads atomic.Int64
	var wg sync.WaitGroup
	failures := make(chan string, 16)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				sess, err := Load(s.Path())
				if err != nil {
					failures <- fmt.Sprintf("torn read: %v", err)
					return
				}
				reads.Add(1)
				if len(sess.Metrics) > n {
					failures <- fmt.Sprintf("saw %d events", len(sess.Metrics))
					return
				}
				for i, ev := range sess.Metrics {
					if ev.Iteration != i+1 {
						failures <- fmt.Sprintf("event %d has iteration %d", i, ev.Iteration)
						return
					}
				}
			}
		}()
	}

	for i := 1; i <= n; i++ {
		require.NoError(t, s.Append(event(i, 1.0)))
	}
	stop.Store(true)
	wg.Wait()
	close(failures)

	for f := range failures {
		t.Error(f)
	}
	assert.Positive(t, reads.Load())

	got, ok := Read(s.Path())
	require.True(t, ok)
	assert.Len(t, got.Metrics, n)
}

func TestAmend_ReplacesTailWithSameIteration(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(event(10, 2.0)))
	merged := event(10, 2.0)
	merged.ValLoss = Float(1.9)
	require.NoError(t, s.Amend(merged))
	require.NoError(t, s.Amend(event(20, 1.8)))

	got, ok := Read(s.Path())
	require.True(t, ok)
	require.Len(t, got.Metrics, 2)
	require.NotNil(t, got.Metrics[0].ValLoss)
	assert.InDelta(t, 1.9, *got.Metrics[0].ValLoss, 1e-9)
	assert.Equal(t, 20, got.Metrics[1].Iteration)
}

func TestFinalize_OnlyOnce(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(event(1, 1.0)))

	code := 0
	end := time.Now()
	require.NoError(t, s.Finalize(StatusCompleted, FinalizeOptions{ExitCode: &code}, end))

	err := s.Finalize(StatusFailed, FinalizeOptions{}, end)
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, s.Append(event(2, 1.0)), ErrFinalized)
	assert.ErrorIs(t, s.Amend(event(1, 1.0)), ErrFinalized)

	got, ok := Read(s.Path())
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.EndTime)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 0, *got.ExitCode)
	assert.True(t, got.Terminated())
}

func TestFlush_RetriesTransientErrors(t *testing.T) {
	s := newTestStore(t)

	var calls int
	s.write = func(path string, data []byte) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("device busy")
		}
		return WriteFileAtomic(path, data)
	}

	require.NoError(t, s.Append(event(1, 1.0)))
	assert.Equal(t, 3, calls)
}

func TestFlush_PersistentErrorReturned(t *testing.T) {
	s := newTestStore(t)
	s.write = func(string, []byte) error { return fmt.Errorf("read-only file system") }

	err := s.Append(event(1, 1.0))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrStore))
	assert.Contains(t, err.Error(), "read-only file system")
}

func TestFinalize_RetryableAfterFailedWrite(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(event(1, 1.0)))

	s.write = func(string, []byte) error { return fmt.Errorf("no space left on device") }
	code := 1
	err := s.Finalize(StatusFailed, FinalizeOptions{ExitCode: &code}, time.Now())
	require.Error(t, err)
	assert.False(t, s.Finalized())

	got, ok := Read(s.Path())
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status, "the published file still shows the last good write")

	s.write = WriteFileAtomic
	require.NoError(t, s.Finalize(StatusFailed, FinalizeOptions{ExitCode: &code}, time.Now()))
	assert.True(t, s.Finalized())
	assert.ErrorIs(t, s.Finalize(StatusFailed, FinalizeOptions{}, time.Now()), ErrFinalized)

	got, ok = Read(s.Path())
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.True(t, got.Terminated())
	require.Len(t, got.Metrics, 1)
}

func TestRead_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	_, ok := Read(filepath.Join(dir, "nope.json"))
	assert.False(t, ok)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"id": "x", "metrics": [`), 0644))
	_, ok = Read(bad)
	assert.False(t, ok)
}

func TestRead_IgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), SessionFileName)
	doc := `{"schema_version": 9, "id": "abc", "status": "running", "future_field": {"x": 1},
	"metrics": [{"iteration": 5, "train_loss": 2.5, "new_metric": 7}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	got, ok := Read(path)
	require.True(t, ok)
	assert.Equal(t, "abc", got.ID)
	require.Len(t, got.Metrics, 1)
	assert.Equal(t, 5, got.Metrics[0].Iteration)
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestMerge(t *testing.T) {
	base := MetricEvent{Iteration: 100, TrainLoss: Float(2.0), LearningRate: Float(1e-5)}
	base.Merge(MetricEvent{
		Iteration:       100,
		ValLoss:         Float(1.8),
		CheckpointSaved: true,
		CheckpointPath:  "a/0000100_adapters.safetensors",
		CheckpointPaths: []string{"a/adapters.safetensors", "a/0000100_adapters.safetensors"},
	})

	assert.InDelta(t, 2.0, *base.TrainLoss, 1e-9)
	assert.InDelta(t, 1.8, *base.ValLoss, 1e-9)
	assert.True(t, base.CheckpointSaved)
	assert.Len(t, base.CheckpointPaths, 2)
}
