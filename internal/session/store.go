package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/logger"
)

const (
	defaultWriteRetries = 3
	defaultRetryBackoff = 50 * time.Millisecond

	readAttempts = 3
	readBackoff  = 20 * time.Millisecond
)

// Store is the single writer for one session file. It keeps the session in
// memory and republishes the whole document on every change, so a reader on
// any process only ever sees a complete file.
//
// A Store is owned by one supervisor goroutine and is not safe for
// concurrent use.
type Store struct {
	path      string
	sess      *TrainingSession
	retries   int
	backoff   time.Duration
	finalized bool
	log       logger.Logger
	write     func(path string, data []byte) error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetries sets the write attempt count and the first backoff delay.
func WithRetries(attempts int, backoff time.Duration) StoreOption {
	return func(s *Store) {
		if attempts > 0 {
			s.retries = attempts
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l logger.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// Create publishes sess at path and returns a Store that owns it from now on.
func Create(path string, sess *TrainingSession, opts ...StoreOption) (*Store, error) {
	s := &Store{
		path:    path,
		sess:    sess,
		retries: defaultWriteRetries,
		backoff: defaultRetryBackoff,
		log:     logger.NewEnvLogger("[session]"),
		write:   WriteFileAtomic,
	}
	for _, opt := range opts {
		opt(s)
	}
	if sess.SchemaVersion == 0 {
		sess.SchemaVersion = SchemaVersion
	}
	if sess.Metrics == nil {
		sess.Metrics = []MetricEvent{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Can't create session directory",
			"Check permissions on "+filepath.Dir(path))
	}
	if err := s.flush(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the session file path.
func (s *Store) Path() string { return s.path }

// Session returns the in-memory session. Callers must treat it as read-only.
func (s *Store) Session() *TrainingSession { return s.sess }

// Append adds ev to the end of the metric list and publishes the session.
func (s *Store) Append(ev MetricEvent) error {
	if s.finalized {
		return ErrFinalized
	}
	s.sess.Metrics = append(s.sess.Metrics, ev)
	return s.flush()
}

// Amend replaces the last event when it has the same iteration as ev and
// appends otherwise.
func (s *Store) Amend(ev MetricEvent) error {
	if s.finalized {
		return ErrFinalized
	}
	if n := len(s.sess.Metrics); n > 0 && s.sess.Metrics[n-1].Iteration == ev.Iteration {
		s.sess.Metrics[n-1] = ev
	} else {
		s.sess.Metrics = append(s.sess.Metrics, ev)
	}
	return s.flush()
}

// Update applies fn to the session header and publishes it. fn must not
// touch Metrics.
func (s *Store) Update(fn func(*TrainingSession)) error {
	if s.finalized {
		return ErrFinalized
	}
	fn(s.sess)
	return s.flush()
}

// Finalize records the end of the run. Once it has been published it is the
// last write for the session and later calls return ErrFinalized; a failed
// publish leaves the store open so Finalize can be called again.
func (s *Store) Finalize(status Status, opts FinalizeOptions, now time.Time) error {
	if s.finalized {
		return ErrFinalized
	}

	end := now
	s.sess.EndTime = &end
	s.sess.Status = status
	s.sess.ExitCode = opts.ExitCode
	s.sess.StopReason = opts.StopReason
	s.sess.Error = opts.Error
	if err := s.flush(); err != nil {
		return err
	}
	s.finalized = true
	return nil
}

// Finalized reports whether Finalize has been called.
func (s *Store) Finalized() bool { return s.finalized }

func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.sess, "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Can't encode session", "")
	}
	data = append(data, '\n')

	delay := s.backoff
	for attempt := 1; ; attempt++ {
		err = s.write(s.path, data)
		if err == nil {
			return nil
		}
		if attempt >= s.retries {
			break
		}
		s.log.Warn("write %s failed (attempt %d/%d): %v", s.path, attempt, s.retries, err)
		time.Sleep(delay)
		delay *= 2
	}
	return errors.WrapWithCode(err, errors.ErrStore,
		fmt.Sprintf("Can't write session file after %d attempts", s.retries),
		"Check free disk space and permissions on "+filepath.Dir(s.path))
}

// WriteFileAtomic writes data to a temp file beside path, syncs it, and
// renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// Load decodes the session file at path in a single attempt.
func Load(path string) (*TrainingSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sess TrainingSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Read returns the last published snapshot at path. A false result means
// "not available yet": the file is absent or could not be decoded after a
// few short retries. It never reports an error.
func Read(path string) (*TrainingSession, bool) {
	for attempt := 0; attempt < readAttempts; attempt++ {
		sess, err := Load(path)
		if err == nil {
			return sess, true
		}
		if os.IsNotExist(err) {
			return nil, false
		}
		time.Sleep(readBackoff)
	}
	return nil, false
}
