// Package proc provides the small /proc surface the dirty-page tracker
// needs on Linux: page size, process liveness, command names, and direct
// child discovery.
//
// Child discovery reads /proc/<pid>/task/*/children (kernel 3.5+), which
// lists the immediate children of every thread of the process. Callers that
// want the whole descendant tree layer a BFS on top (see pkg/tracker).
//
// All readers are read-only against /proc and require no privileges beyond
// what the kernel grants for the target process. A process can disappear
// between Exists and a subsequent read; callers must treat read errors as
// "process gone", not as faults.
package proc
