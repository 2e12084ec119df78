//go:build unix

package supervisor

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/lock"
	"github.com/forgellm/forge/internal/logger"
	"github.com/forgellm/forge/internal/output"
	"github.com/forgellm/forge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTrainer writes a fake trainer. It receives the trainer YAML path as
// $1 and the run directory as $2.
func writeTrainer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainer.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func newTestSupervisor(t *testing.T, script string) (*Supervisor, *logger.BufferLogger, string) {
	t.Helper()
	root := t.TempDir()
	log := logger.NewBufferLogger()
	sup := New(Options{
		SessionsDir:  root,
		Command:      []string{"/bin/sh", script},
		Args:         []string{"{config}", "{output_dir}"},
		Grace:        3 * time.Second,
		WriteRetries: 3,
		WriteBackoff: time.Millisecond,
		DrainTimeout: 2 * time.Second,
		Log:          log,
	})
	return sup, log, root
}

func testConfig() session.TrainingConfig {
	cfg := session.DefaultTrainingConfig()
	cfg.ModelName = "test/tiny-model"
	cfg.MaxIterations = 100
	return cfg
}

func waitDone(t *testing.T, sup *Supervisor) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	st, err := sup.Wait(ctx)
	require.NoError(t, err, "run did not finish in time")
	return st
}

func loadSession(t *testing.T, path string) *session.TrainingSession {
	t.Helper()
	sess, err := session.Load(path)
	require.NoError(t, err)
	return sess
}

const completingTrainer = `test -f "$1" || { echo "missing config $1"; exit 9; }
echo "Loading pretrained model"
echo "Iter 1: Val loss 2.500, Val took 1.2s"
echo "Iter 10: Train loss 2.300, Learning Rate 5.000e-06, It/sec 1.5, Tokens/sec 900.0, Trained Tokens 4096, Peak mem 8.5 GB"
echo "Iter 10: Saved adapter weights to $2/adapters.safetensors and $2/0000010_adapters.safetensors."
echo "garbage line"
exit 0
`

func TestLaunch_CompletesAndRecordsMetrics(t *testing.T) {
	sup, _, root := newTestSupervisor(t, writeTrainer(t, completingTrainer))

	path, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, root))
	assert.Equal(t, session.SessionFileName, filepath.Base(path))

	st := waitDone(t, sup)
	assert.Equal(t, StateCompleted, st.State)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)

	sess := loadSession(t, path)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.NotNil(t, sess.EndTime)
	assert.NotEmpty(t, sess.ID)
	assert.Positive(t, sess.PID)
	assert.Equal(t, "/bin/sh", sess.Command[0])
	require.Len(t, sess.Metrics, 2)
	assert.Equal(t, 1, sess.Metrics[0].Iteration)
	assert.Equal(t, 10, sess.Metrics[1].Iteration)
	assert.True(t, sess.Metrics[1].CheckpointSaved)
	assert.True(t, strings.HasSuffix(sess.Metrics[1].CheckpointPath, "0000010_adapters.safetensors"))

	dir := filepath.Dir(path)
	assert.FileExists(t, filepath.Join(dir, session.TrainerYAMLName))
	assert.NoDirExists(t, filepath.Join(dir, lock.DirName), "lock is released after the run")
}

func TestLaunch_MirrorsRawOutputVerbatim(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, `printf 'raw one\n'
printf 'Iter 5: Train loss 1.5\r\n'
printf 'no newline at end'
`))

	path, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	waitDone(t, sup)

	sess := loadSession(t, path)
	data, err := os.ReadFile(sess.OutputLog)
	require.NoError(t, err)
	assert.Equal(t, "raw one\nIter 5: Train loss 1.5\r\nno newline at end", string(data))
	require.Len(t, sess.Metrics, 1)
	assert.Equal(t, 5, sess.Metrics[0].Iteration)
}

func TestLaunch_EarlyStop(t *testing.T) {
	sup, log, _ := newTestSupervisor(t, writeTrainer(t, `trap 'echo "got TERM"; exit 0' TERM
i=0
for v in 1.0 0.9 0.95 0.96 0.97; do
  i=$((i+10))
  echo "Iter $i: Val loss $v, Val took 0.1s"
done
while :; do sleep 0.05; done
`))

	cfg := testConfig()
	cfg.EnableEarlyStopping = true
	cfg.EarlyStoppingPatience = 3
	cfg.MinLossImprovement = 0.01

	start := time.Now()
	path, err := sup.Launch(context.Background(), cfg)
	require.NoError(t, err)
	st := waitDone(t, sup)

	assert.Equal(t, StateStoppedEarly, st.State)
	assert.Contains(t, st.StopReason, "early stopping")
	assert.Less(t, time.Since(start), 10*time.Second)

	sess := loadSession(t, path)
	assert.Equal(t, session.StatusStoppedEarly, sess.Status)
	assert.Len(t, sess.Metrics, 5)
	assert.True(t, log.Contains("info", "early stop"))

	data, err := os.ReadFile(sess.OutputLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "got TERM", "trainer got a graceful stop")
}

func TestLaunch_FailureKeepsExitCode(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, `echo "Iter 1: Train loss 2.0"
echo "RuntimeError: out of memory"
exit 3
`))

	path, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	st := waitDone(t, sup)

	assert.Equal(t, StateFailed, st.State)
	sess := loadSession(t, path)
	assert.Equal(t, session.StatusFailed, sess.Status)
	require.NotNil(t, sess.ExitCode)
	assert.Equal(t, 3, *sess.ExitCode)
	assert.Equal(t, "exit code 3", sess.Error)
	assert.Len(t, sess.Metrics, 1)
}

func TestLaunch_CommandNotFoundInScript(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, "exec forge-no-such-trainer-xyz\n"))

	path, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	waitDone(t, sup)

	sess := loadSession(t, path)
	assert.Equal(t, session.StatusFailed, sess.Status)
	require.NotNil(t, sess.ExitCode)
	assert.Equal(t, 127, *sess.ExitCode)
	assert.Contains(t, sess.Error, "not found")
}

func TestLaunch_MissingExecutable(t *testing.T) {
	root := t.TempDir()
	sup := New(Options{
		SessionsDir: root,
		Command:     []string{"forge-no-such-trainer-xyz"},
		Log:         logger.Noop(),
	})

	path, err := sup.Launch(context.Background(), testConfig())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrLaunch))
	assert.Equal(t, StateFailed, sup.Status().State)

	sess := loadSession(t, path)
	assert.Equal(t, session.StatusFailed, sess.Status)
	assert.NotNil(t, sess.EndTime)
	assert.NoDirExists(t, filepath.Join(filepath.Dir(path), lock.DirName))
}

func TestLaunch_RejectsWhileRunning(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, `trap 'exit 0' TERM
echo "Iter 1: Train loss 2.0"
while :; do sleep 0.05; done
`))

	first, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, sup.Status().State)

	_, err = sup.Launch(context.Background(), testConfig())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrBusy))
	st := sup.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, first, st.SessionPath, "rejected launch changes nothing")

	assert.ErrorIs(t, sup.Stop("someone-else"), ErrNotOwned)
	require.NoError(t, sup.Stop(""))
	st = waitDone(t, sup)
	assert.Equal(t, StateStoppedEarly, st.State)
	assert.Equal(t, UserStopReason, st.StopReason)

	// Stopping a finished run is a no-op.
	assert.NoError(t, sup.Stop(first))
	assert.NoError(t, sup.Stop(st.SessionName))

	sess := loadSession(t, first)
	assert.Equal(t, session.StatusStoppedEarly, sess.Status)
	assert.Equal(t, UserStopReason, sess.StopReason)
}

func TestLaunch_SameSecondGetsFreshDirectory(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, completingTrainer))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sup.now = func() time.Time { return fixed }

	first, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	waitDone(t, sup)

	second, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	st := waitDone(t, sup)
	assert.Equal(t, StateCompleted, st.State)

	firstName := filepath.Base(filepath.Dir(first))
	secondName := filepath.Base(filepath.Dir(second))
	assert.NotEqual(t, firstName, secondName)
	assert.True(t, strings.HasPrefix(secondName, firstName+"_"))
	assert.Equal(t, secondName, st.SessionName)
	assert.Equal(t, session.StatusCompleted, loadSession(t, first).Status)
	assert.Equal(t, session.StatusCompleted, loadSession(t, second).Status)
}

func TestStop_EndedSessionIsNoOp(t *testing.T) {
	sup, _, root := newTestSupervisor(t, writeTrainer(t, completingTrainer))

	first, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	waitDone(t, sup)
	second, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	waitDone(t, sup)

	// first is no longer the supervisor's current run.
	assert.NoError(t, sup.Stop(first))
	assert.NoError(t, sup.Stop(filepath.Base(filepath.Dir(first))))

	// A supervisor that never launched either run, as after a restart.
	fresh := New(Options{SessionsDir: root, Log: logger.NewBufferLogger()})
	assert.NoError(t, fresh.Stop(second))
	assert.NoError(t, fresh.Stop(filepath.Dir(first)))
	assert.ErrorIs(t, fresh.Stop(""), ErrNotOwned)
	assert.ErrorIs(t, fresh.Stop("no-such-session"), ErrNotOwned)
	assert.Equal(t, StateIdle, fresh.Status().State)
}

func TestStop_UnfinishedForeignSessionNotOwned(t *testing.T) {
	sup, _, root := newTestSupervisor(t, writeTrainer(t, `trap 'exit 0' TERM
echo "Iter 1: Train loss 2.0"
while :; do sleep 0.05; done
`))
	path, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)

	other := New(Options{SessionsDir: root, Log: logger.NewBufferLogger()})
	assert.ErrorIs(t, other.Stop(path), ErrNotOwned)
	assert.Equal(t, StateRunning, sup.Status().State, "a refused stop leaves the run alone")

	require.NoError(t, sup.Stop(path))
	waitDone(t, sup)
	assert.NoError(t, other.Stop(path), "once ended, stopping it is a no-op")
}

func TestLaunch_ContextCancelStops(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, `trap 'exit 0' TERM
while :; do sleep 0.05; done
`))
	ctx, cancel := context.WithCancel(context.Background())
	path, err := sup.Launch(ctx, testConfig())
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	cancel()
	st := waitDone(t, sup)
	assert.Equal(t, StateStoppedEarly, st.State)
	assert.Equal(t, "interrupted", loadSession(t, path).StopReason)
}

func TestLaunch_LockedOutputDir(t *testing.T) {
	sup, _, root := newTestSupervisor(t, writeTrainer(t, completingTrainer))
	dir := filepath.Join(root, "shared")
	require.NoError(t, os.MkdirAll(dir, 0755))
	held, err := lock.TryAcquire(dir, lock.Config{}, "other forge", "")
	require.NoError(t, err)
	defer held.Release()

	cfg := testConfig()
	cfg.OutputDir = dir
	_, err = sup.Launch(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, lock.ErrLocked))
	assert.Equal(t, StateIdle, sup.Status().State)
	assert.NoFileExists(t, filepath.Join(dir, session.SessionFileName))
}

func TestLaunch_ExistingSessionRejected(t *testing.T) {
	sup, _, root := newTestSupervisor(t, writeTrainer(t, completingTrainer))
	dir := filepath.Join(root, "used")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, session.SessionFileName), []byte("{}"), 0644))

	cfg := testConfig()
	cfg.OutputDir = dir
	_, err := sup.Launch(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Equal(t, StateIdle, sup.Status().State)
}

func TestLaunch_InvalidConfig(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, completingTrainer))
	cfg := testConfig()
	cfg.ModelName = ""
	_, err := sup.Launch(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, StateIdle, sup.Status().State)
}

func TestLaunch_DrainTimeoutWithLingeringGrandchild(t *testing.T) {
	sup, log, _ := newTestSupervisor(t, writeTrainer(t, `(sleep 3) &
echo "Iter 1: Train loss 1.0"
exit 0
`))
	sup.opts.DrainTimeout = 200 * time.Millisecond

	start := time.Now()
	path, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	st := waitDone(t, sup)

	assert.Equal(t, StateCompleted, st.State)
	assert.Less(t, time.Since(start), 2500*time.Millisecond)
	assert.True(t, log.Contains("warn", "still open"))
	assert.Len(t, loadSession(t, path).Metrics, 1)
}

func TestLaunch_EchoesFormattedOutput(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, writeTrainer(t, completingTrainer))
	var buf bytes.Buffer
	sup.opts.Echo = &buf
	sup.opts.Formatter = output.NewPassthroughFormatter()

	_, err := sup.Launch(context.Background(), testConfig())
	require.NoError(t, err)
	waitDone(t, sup)

	assert.Contains(t, buf.String(), "Loading pretrained model\n")
	assert.Contains(t, buf.String(), "garbage line\n")
}

func TestSignalOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, session.SessionFileName)
	store, err := session.Create(path, &session.TrainingSession{Name: "run", Status: session.StatusRunning})
	require.NoError(t, err)

	_, err = SignalOwner(path, lock.Config{})
	require.Error(t, err, "no lock means no live owner")
	assert.True(t, errors.IsCode(err, errors.ErrLock))

	require.NoError(t, store.Finalize(session.StatusCompleted, session.FinalizeOptions{}, time.Now()))
	signaled, err := SignalOwner(path, lock.Config{})
	require.NoError(t, err)
	assert.False(t, signaled, "finished sessions need no signal")

	_, err = SignalOwner(filepath.Join(dir, "missing.json"), lock.Config{})
	assert.True(t, errors.IsCode(err, errors.ErrStore))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "stopped_early", StateStoppedEarly.String())
	assert.True(t, StateLaunching.Busy())
	assert.True(t, StateRunning.Busy())
	assert.False(t, StateFailed.Busy())
	assert.Equal(t, StateFailed, stateFor(session.StatusFailed))
}
