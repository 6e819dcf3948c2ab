package manifest

import "errors"

var (
	// ErrAlreadyActive is returned by New when the process already has a
	// live Manifest.
	ErrAlreadyActive = errors.New("a manifest is already active in this process")

	// ErrScopeUnderflow is returned by ExitScope without a matching EnterScope.
	ErrScopeUnderflow = errors.New("exit scope without matching enter scope")

	// ErrNoRegion is returned by flushes when no shared region is available.
	ErrNoRegion = errors.New("no shared region attached")
)

// SyncError reports a failure of the cross-process synchronization layer.
// Unlike recording and persistence problems, these are returned to the
// caller rather than only logged.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return "lineage sync: " + e.Op + ": " + e.Err.Error()
}

func (e *SyncError) Unwrap() error { return e.Err }
