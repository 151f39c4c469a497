package tracker

import "errors"

var (
	// ErrRootUnavailable indicates that the root process could not be
	// opened at run start. The root is mandatory; this aborts the run.
	ErrRootUnavailable = errors.New("tracker: root process unavailable")
)
