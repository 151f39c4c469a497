// Package tracker samples which memory pages a process (and optionally its
// descendants) has written between fixed-interval ticks.
//
// Two kernel mechanisms are supported behind one reader contract:
//
//   - soft-dirty: read /proc/<pid>/pagemap slices for each writable region
//     and test bit 55 of every 64-bit entry
//     (https://www.kernel.org/doc/Documentation/vm/soft-dirty.txt)
//   - PAGEMAP_SCAN: one ioctl per writable region returning compacted
//     address ranges tagged with page categories (Linux 6.7+)
//
// The backend is probed once when the root process is opened and used for
// the whole run. Both backends reset per-process dirty state through
// /proc/<pid>/clear_refs after reading, so each sample reports only pages
// written since the previous tick.
//
// Tracked processes that exit are retired and never re-added, even if the
// kernel reuses their PID within the run; the interfaces available here
// cannot distinguish a reused PID from the original process.
package tracker
