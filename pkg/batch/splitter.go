// Package batch partitions identifier lists into chunks that fit the
// service's per-request limit.
package batch

import "iter"

// MaxChunkSize is the largest number of identifiers the service accepts in a
// single mapping job.
const MaxChunkSize = 500

// Split returns a lazy sequence of contiguous chunks of ids, each holding at
// most size elements. Chunks are subslices of ids and share its backing
// array. size <= 0 falls back to MaxChunkSize. An empty input yields nothing.
func Split(ids []string, size int) iter.Seq[[]string] {
	if size <= 0 {
		size = MaxChunkSize
	}
	return func(yield func([]string) bool) {
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			if !yield(ids[start:end:end]) {
				return
			}
		}
	}
}

// Count returns the number of chunks Split yields for n identifiers.
func Count(n, size int) int {
	if size <= 0 {
		size = MaxChunkSize
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
