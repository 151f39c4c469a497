package proc

import "errors"

var (
	// ErrNoChildren indicates that /proc/<pid>/task/*/children contained none.
	ErrNoChildren = errors.New("proc: no children")

	// ErrNoComm indicates that /proc/<pid>/comm was empty.
	ErrNoComm = errors.New("proc: no comm")
)
