// Package reconcile computes which requested identifiers are missing from a
// result.
package reconcile

import (
	"github.com/Sternrassler/idmapping-client/pkg/format"
)

// Missing returns requested - retrieved, keeping the order (and any
// duplicates) of requested.
func Missing(requested, retrieved []string) []string {
	seen := make(map[string]struct{}, len(retrieved))
	for _, id := range retrieved {
		seen[id] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Outcome holds both failure views for one result set.
type Outcome struct {
	// Unmatched is requested - retrieved, computed locally. Nil when the
	// format does not expose identifiers.
	Unmatched []string

	// Declared lists the identifiers the service itself reported as failed.
	Declared []string

	// Reconciled reports whether Unmatched could be computed.
	Reconciled bool
}

// Failed is the canonical failed-ID list: the service-declared list when it
// is non-empty, otherwise the locally computed complement.
func (o Outcome) Failed() []string {
	if len(o.Declared) > 0 {
		return o.Declared
	}
	return o.Unmatched
}

// Reconcile compares requested against the identifiers present in rs.
func Reconcile(requested []string, rs *format.ResultSet) Outcome {
	out := Outcome{Declared: rs.ServiceFailedIDs}
	retrieved, ok := rs.RetrievedIDs()
	if !ok {
		return out
	}
	out.Reconciled = true
	out.Unmatched = Missing(requested, retrieved)
	return out
}
