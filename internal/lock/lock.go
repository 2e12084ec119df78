package lock

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/logger"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// DirName is the lock directory created inside a run directory.
	DirName = ".forge.lock"
	// InfoFile holds the serialized LockInfo.
	InfoFile = "info.json"
)

// Config controls stale lock detection.
type Config struct {
	// Stale is the age after which a lock is reclaimed regardless of its
	// holder. Zero disables age-based reclamation.
	Stale time.Duration
	Log   logger.Logger
}

// Lock is an acquired run directory lock.
type Lock struct {
	Dir  string
	Info *LockInfo
}

// pidAlive is swapped in tests.
var pidAlive = func(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	if err != nil {
		// Can't tell; treat the holder as alive.
		return true
	}
	return ok
}

// TryAcquire takes the lock for runDir without waiting. mkdir is the atomic
// primitive: exactly one caller can create the directory. A lock whose
// holder died or that is older than cfg.Stale is removed and retried once.
func TryAcquire(runDir string, cfg Config, command, session string) (*Lock, error) {
	log := logger.OrDefault(cfg.Log)
	lockDir := filepath.Join(runDir, DirName)
	info := NewLockInfo(command, session)

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			if werr := writeInfo(lockDir, info); werr != nil {
				_ = os.RemoveAll(lockDir)
				return nil, errors.WrapWithCode(werr, errors.ErrLock,
					"Couldn't write lock info",
					"Check that "+runDir+" is writable")
			}
			log.Debug("acquired lock %s", lockDir)
			return &Lock{Dir: lockDir, Info: info}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrLock,
				"Couldn't create lock directory",
				"Check that "+runDir+" exists and is writable")
		}

		holder, _ := ReadHolder(runDir)
		if attempt == 0 && isStale(lockDir, holder, cfg.Stale) {
			log.Warn("removing stale lock %s held by %s", lockDir, describe(holder))
			if rerr := os.RemoveAll(lockDir); rerr != nil {
				return nil, errors.WrapWithCode(rerr, errors.ErrLock,
					"Couldn't remove stale lock",
					"Remove it by hand: rm -rf "+lockDir)
			}
			continue
		}
		return nil, &errors.Error{
			Code:       errors.ErrLock,
			Message:    fmt.Sprintf("Run is already owned by %s", describe(holder)),
			Suggestion: "Stop it first with: forge stop",
			Cause:      ErrLocked,
		}
	}
	return nil, &errors.Error{
		Code:    errors.ErrLock,
		Message: "Lock was taken while reclaiming a stale one",
		Cause:   ErrLocked,
	}
}

// Release removes the lock directory. Calling it on a nil or already released
// lock is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.Dir == "" {
		return nil
	}
	err := os.RemoveAll(l.Dir)
	l.Dir = ""
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrLock, "Couldn't release lock", "")
	}
	return nil
}

// ReadHolder returns the current holder of runDir's lock. The boolean is false
// when the run is not locked or the info file can't be read.
func ReadHolder(runDir string) (*LockInfo, bool) {
	data, err := os.ReadFile(filepath.Join(runDir, DirName, InfoFile))
	if err != nil {
		return nil, false
	}
	info, err := ParseLockInfo(data)
	if err != nil {
		return nil, false
	}
	return info, true
}

// Held reports whether runDir has a live lock holder.
func Held(runDir string, cfg Config) bool {
	lockDir := filepath.Join(runDir, DirName)
	if _, err := os.Stat(lockDir); err != nil {
		return false
	}
	holder, _ := ReadHolder(runDir)
	return !isStale(lockDir, holder, cfg.Stale)
}

// ForceRelease removes runDir's lock whoever holds it.
func ForceRelease(runDir string) error {
	err := os.RemoveAll(filepath.Join(runDir, DirName))
	if err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.WrapWithCode(err, errors.ErrLock, "Couldn't remove lock", "")
	}
	return nil
}

func writeInfo(lockDir string, info *LockInfo) error {
	data, err := info.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(lockDir, InfoFile), data, 0o644)
}

// isStale decides whether a lock can be reclaimed. Without readable info the
// holder may still be writing it, so only the directory age counts.
func isStale(lockDir string, holder *LockInfo, stale time.Duration) bool {
	if holder == nil {
		st, err := os.Stat(lockDir)
		if err != nil {
			return true
		}
		return stale > 0 && time.Since(st.ModTime()) > stale
	}
	if stale > 0 && holder.Age() > stale {
		return true
	}
	return holder.Local() && !pidAlive(holder.PID)
}

func describe(holder *LockInfo) string {
	if holder == nil {
		return "another process"
	}
	return holder.String()
}
