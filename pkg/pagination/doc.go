// Package pagination reads the results of a finished mapping job.
//
// The results endpoint returns one page per request and points to the next
// page with a Link header:
//
//	Link: <https://rest.uniprot.org/idmapping/results/abc?cursor=...&size=500>; rel="next"
//
// The fetcher follows that chain until no next link is returned, decoding
// each page with the job's format and merging it into a single ResultSet.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(c)
//	rs, err := fetcher.FetchAll(ctx, handle)
//
// The fetcher:
//   - Applies format, fields, page size and compression to the first request
//   - Decompresses gzip pages before decoding
//   - Reads the declared total from the X-Total-Results header
//   - Reports (fetched, total, failed) after every page
//   - Checks the context before every page request
package pagination
