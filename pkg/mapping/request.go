package mapping

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/idmapping-client/pkg/format"
)

// Namespaces used when a request leaves From or To empty.
const (
	DefaultFrom = "UniProtKB_AC-ID"
	DefaultTo   = "UniProtKB-Swiss-Prot"
)

// Request is one mapping call. IDs may exceed the per-job limit; they are
// split into chunks. Duplicates are submitted as given.
type Request struct {
	IDs  []string
	From string
	To   string

	// Fields selects return fields. Empty leaves the service default, the
	// keyword "default" selects the catalog default set. Ignored for targets
	// that do not accept fields.
	Fields []string

	// Format defaults to tsv.
	Format         format.Format
	Compressed     bool
	IncludeIsoform bool
}

// Result is the outcome of Map. ResultSet holds the chunk results
// concatenated in chunk order.
type Result struct {
	ResultSet *format.ResultSet

	// FailedIDs is the canonical failure list: per chunk, the identifiers the
	// service declared failed, or the locally reconciled complement when the
	// service declared none. Chunk order is kept.
	FailedIDs []string

	// UnmatchedIDs is requested - retrieved for every reconciled chunk.
	UnmatchedIDs []string

	// ServiceFailedIDs are the failedIds reported by the service.
	ServiceFailedIDs []string

	// Reconciled is false when at least one successful chunk used a format
	// without identifiers (xml, xlsx).
	Reconciled bool

	Chunks []ChunkReport
}

// ChunkReport describes one chunk pipeline.
type ChunkReport struct {
	Index  int
	JobID  string
	Size   int
	Cached bool
	Err    error
}

// FailedChunks returns the reports of chunks that ended in an error.
func (r *Result) FailedChunks() []ChunkReport {
	var failed []ChunkReport
	for _, c := range r.Chunks {
		if c.Err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}

// ChunkError identifies the chunk a pipeline error came from. It unwraps to
// the underlying categorized error.
type ChunkError struct {
	Index int
	JobID string
	Size  int
	Err   error
}

func (e *ChunkError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("chunk %d (job %s, %d ids): %v", e.Index, e.JobID, e.Size, e.Err)
	}
	return fmt.Sprintf("chunk %d (%d ids): %v", e.Index, e.Size, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// chunkErrors joins the errors of failed chunks in chunk order.
func chunkErrors(reports []ChunkReport) error {
	var errs []error
	for _, c := range reports {
		if c.Err != nil {
			errs = append(errs, &ChunkError{Index: c.Index, JobID: c.JobID, Size: c.Size, Err: c.Err})
		}
	}
	return errors.Join(errs...)
}
