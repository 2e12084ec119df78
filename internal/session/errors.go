package session

import "errors"

// ErrFinalized is returned by any write after Finalize has run.
var ErrFinalized = errors.New("session already finalized")
