package lock

import (
	"encoding/json"
	"os"
	"os/user"
	"strconv"
	"time"
)

// LockInfo is written into the lock directory so other processes can see who
// owns a run and how to reach it.
type LockInfo struct {
	User     string    `json:"user"`
	Hostname string    `json:"hostname"`
	Started  time.Time `json:"started"`
	PID      int       `json:"pid"`
	Command  string    `json:"command,omitempty"`
	// Session is the session file the holder is writing.
	Session string `json:"session,omitempty"`
}

// NewLockInfo describes the current process as the holder.
func NewLockInfo(command, session string) *LockInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return &LockInfo{
		User:     username,
		Hostname: hostname,
		Started:  time.Now(),
		PID:      os.Getpid(),
		Command:  command,
		Session:  session,
	}
}

// Age returns how long the lock has been held.
func (li *LockInfo) Age() time.Duration {
	return time.Since(li.Started)
}

// Marshal serializes the lock info to JSON.
func (li *LockInfo) Marshal() ([]byte, error) {
	return json.MarshalIndent(li, "", "  ")
}

// ParseLockInfo deserializes lock info from JSON.
func ParseLockInfo(data []byte) (*LockInfo, error) {
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// String returns a human-readable description of the lock holder.
func (li *LockInfo) String() string {
	return li.User + "@" + li.Hostname + " (pid " + strconv.Itoa(li.PID) + ")"
}

// Local reports whether the holder runs on this host.
func (li *LockInfo) Local() bool {
	hostname, err := os.Hostname()
	return err == nil && hostname == li.Hostname
}
