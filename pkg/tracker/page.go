package tracker

// Page is one dirty-page observation before report formatting.
type Page struct {
	Addr     uint64
	VMAType  string
	Perms    string
	Pathname string
}

// presizeDirty returns the initial capacity for a per-tick dirty-page list.
// totalPages is the writable-region page count, a cheap upper bound; the cap
// keeps one idle tick from allocating for a multi-GB address space.
func presizeDirty(totalPages uint64) int {
	const maxPresize = 4096
	if totalPages > maxPresize {
		return maxPresize
	}
	return int(totalPages)
}
