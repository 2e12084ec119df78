package lock

import "errors"

// ErrLocked is returned by TryAcquire when the run is owned by another
// process. Check it with errors.Is.
var ErrLocked = errors.New("lock is held by another process")
