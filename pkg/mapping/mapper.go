// Package mapping runs identifier mapping requests end to end. Each chunk of
// at most 500 identifiers goes through submit, poll, fetch and reconcile;
// chunk results are concatenated in submission order.
package mapping

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Sternrassler/idmapping-client/pkg/batch"
	"github.com/Sternrassler/idmapping-client/pkg/cache"
	"github.com/Sternrassler/idmapping-client/pkg/catalog"
	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/Sternrassler/idmapping-client/pkg/format"
	"github.com/Sternrassler/idmapping-client/pkg/job"
	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/Sternrassler/idmapping-client/pkg/pagination"
	"github.com/Sternrassler/idmapping-client/pkg/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for chunk pipelines.
var (
	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_chunks_total",
		Help: "Total chunk pipelines by outcome (ok, cached, failed)",
	}, []string{"outcome"})

	chunkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "idmap_chunk_duration_seconds",
		Help:    "Duration of one chunk from submit to reconciled result",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
	})

	idsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idmap_ids_total",
		Help: "Requested identifiers by result (matched, unmatched)",
	}, []string{"result"})
)

// Config holds mapper tuning.
type Config struct {
	// Concurrency bounds how many chunks run at once. 1 runs chunks
	// sequentially.
	Concurrency int

	// PageSize is the results page size.
	PageSize int

	// PollInterval is the sleep between status polls.
	PollInterval time.Duration

	// Stream reads results from the unpaginated stream endpoint.
	Stream bool

	// IsolateChunkErrors keeps running the remaining chunks after one fails.
	// Map then returns the partial Result together with the joined
	// *ChunkError values.
	IsolateChunkErrors bool
}

// DefaultConfig mirrors the sequential reference behavior.
func DefaultConfig() Config {
	return Config{
		Concurrency:  1,
		PageSize:     job.DefaultPageSize,
		PollInterval: job.DefaultPollInterval,
	}
}

// Mapper orchestrates mapping requests. It is safe for concurrent use.
type Mapper struct {
	jobs    *job.Manager
	fetcher *pagination.Fetcher
	catalog *catalog.Catalog
	cache   *cache.Manager
	config  Config
	logger  zerolog.Logger
}

// NewMapper creates a mapper on top of c. Without WithCatalog the embedded
// catalog is used.
func NewMapper(c *client.Client, cfg Config, opts ...Option) (*Mapper, error) {
	s, err := buildSettings(opts)
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = job.DefaultPageSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = job.DefaultPollInterval
	}

	jobOpts := append([]job.Option{job.WithPollInterval(cfg.PollInterval)}, s.jobOpts...)
	return &Mapper{
		jobs:    job.NewManager(c, jobOpts...),
		fetcher: pagination.NewFetcher(c, s.fetchOpts...),
		catalog: s.catalog,
		cache:   s.cache,
		config:  cfg,
		logger:  logging.NewLogger("mapper"),
	}, nil
}

// plan is a validated request, shared read-only by every chunk.
type plan struct {
	from   string
	to     string
	params job.Params
}

func (p plan) cacheKey(ids []string) cache.CacheKey {
	return cache.CacheKey{
		From:           p.from,
		To:             p.to,
		Format:         p.params.Format,
		Fields:         p.params.Fields,
		Compressed:     p.params.Compressed,
		IncludeIsoform: p.params.IncludeIsoform,
		IDs:            ids,
	}
}

// prepare validates req before any network call.
func (m *Mapper) prepare(req Request) (plan, error) {
	if len(req.IDs) == 0 {
		return plan{}, &client.ValidationError{Field: "ids", Value: ""}
	}

	from, to := req.From, req.To
	if from == "" {
		from = DefaultFrom
	}
	if to == "" {
		to = DefaultTo
	}
	if err := m.catalog.ValidateNamespaces(from, to); err != nil {
		return plan{}, err
	}

	f := req.Format
	if f == 0 {
		f = format.Tabular
	}
	if !f.Valid() {
		return plan{}, &client.ValidationError{Field: "format", Value: f.String(), Allowed: format.Names()}
	}

	fields, err := m.catalog.NormalizeFields(req.Fields)
	if err != nil {
		return plan{}, err
	}
	if len(fields) > 0 && !m.catalog.SupportsFields(to) {
		m.logger.Warn().
			Str("to", to).
			Strs("fields", fields).
			Msg("Target does not accept custom fields, retrieving all available fields")
		fields = nil
	}

	return plan{
		from: from,
		to:   to,
		params: job.Params{
			Format:         f,
			Fields:         fields,
			Compressed:     req.Compressed,
			PageSize:       m.config.PageSize,
			IncludeIsoform: req.IncludeIsoform,
		},
	}, nil
}

// Map runs req. Identifier lists above 500 are split into ceil(n/500)
// chunks. Without IsolateChunkErrors the first failing chunk aborts the call
// and its *ChunkError is returned.
func (m *Mapper) Map(ctx context.Context, req Request) (*Result, error) {
	p, err := m.prepare(req)
	if err != nil {
		return nil, err
	}

	chunks := slices.Collect(batch.Split(req.IDs, batch.MaxChunkSize))
	start := time.Now()
	m.logger.Info().
		Str("from", p.from).
		Str("to", p.to).
		Str("format", p.params.Format.String()).
		Int("ids", len(req.IDs)).
		Int("chunks", len(chunks)).
		Msg("Mapping started")

	outcomes := m.runChunks(ctx, p, chunks)

	if !m.config.IsolateChunkErrors {
		if err := firstFailure(outcomes); err != nil {
			return nil, err
		}
	}

	result, err := assemble(p.params.Format, outcomes)
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Int("ids", len(req.IDs)).
		Int("results", result.ResultSet.Len()).
		Int("failed", len(result.FailedIDs)).
		Int("failed_chunks", len(result.FailedChunks())).
		Dur("duration", time.Since(start)).
		Msg("Mapping complete")

	return result, chunkErrors(result.Chunks)
}

// chunkOutcome is the private result of one chunk pipeline.
type chunkOutcome struct {
	index   int
	size    int
	jobID   string
	set     *format.ResultSet
	outcome reconcile.Outcome
	cached  bool
	err     error
}

// runChunk is the Submit -> AwaitReady -> Fetch -> Reconcile pipeline for one
// chunk. It owns its job, handle and merge state.
func (m *Mapper) runChunk(ctx context.Context, p plan, index int, ids []string) chunkOutcome {
	out := chunkOutcome{index: index, size: len(ids)}
	logger := m.logger.With().Int("chunk", index).Int("ids", len(ids)).Logger()
	start := time.Now()

	key := p.cacheKey(ids)
	if entry, ok := m.cached(ctx, key, logger); ok {
		chunksTotal.WithLabelValues("cached").Inc()
		out.jobID = entry.JobID
		out.set = entry.Result
		out.cached = true
		out.outcome = reconcile.Outcome{
			Unmatched:  entry.UnmatchedIDs,
			Declared:   entry.Result.ServiceFailedIDs,
			Reconciled: entry.Reconciled,
		}
		logger.Info().Str("job_id", entry.JobID).Msg("Chunk served from cache")
		return out
	}

	fail := func(err error) chunkOutcome {
		chunksTotal.WithLabelValues("failed").Inc()
		out.err = err
		logger.Error().Err(err).Str("job_id", out.jobID).Msg("Chunk failed")
		return out
	}

	jobID, err := m.jobs.Submit(ctx, p.from, p.to, ids)
	if err != nil {
		return fail(err)
	}
	out.jobID = jobID

	handle, err := m.jobs.AwaitReady(ctx, jobID, p.params)
	if err != nil {
		return fail(err)
	}

	var set *format.ResultSet
	if m.config.Stream {
		set, err = m.fetcher.FetchStream(ctx, *handle)
	} else {
		set, err = m.fetcher.FetchAll(ctx, *handle)
	}
	if err != nil {
		return fail(err)
	}
	out.set = set
	out.outcome = reconcile.Reconcile(ids, set)

	if m.cache != nil {
		entry := cache.NewEntry(jobID, set, out.outcome.Unmatched, out.outcome.Reconciled, m.cache.TTL())
		if err := m.cache.Set(ctx, key, entry); err != nil {
			logger.Warn().Err(err).Msg("Cache store failed")
		}
	}

	chunksTotal.WithLabelValues("ok").Inc()
	chunkDuration.Observe(time.Since(start).Seconds())
	recordIDs(len(ids), out.outcome)
	logger.Info().
		Str("job_id", jobID).
		Int("retrieved", set.Len()).
		Int("failed", len(out.outcome.Failed())).
		Msg("Chunk complete")
	return out
}

// cached looks key up. Cache failures are logged and treated as misses.
func (m *Mapper) cached(ctx context.Context, key cache.CacheKey, logger zerolog.Logger) (*cache.CacheEntry, bool) {
	if m.cache == nil {
		return nil, false
	}
	entry, err := m.cache.Get(ctx, key)
	switch {
	case err == nil:
		return entry, true
	case errors.Is(err, cache.ErrCacheMiss):
	case errors.Is(err, cache.ErrInvalidEntry):
		logger.Warn().Err(err).Msg("Dropped corrupt cache entry")
	default:
		logger.Warn().Err(err).Msg("Cache lookup failed, mapping without cache")
	}
	return nil, false
}

func recordIDs(requested int, o reconcile.Outcome) {
	if !o.Reconciled && len(o.Declared) == 0 {
		return
	}
	failed := len(o.Failed())
	idsTotal.WithLabelValues("unmatched").Add(float64(failed))
	idsTotal.WithLabelValues("matched").Add(float64(max(requested-failed, 0)))
}

// firstFailure picks the error to report when chunk errors are not isolated.
// Chunks cancelled because another chunk failed are passed over in favor of
// the failure itself.
func firstFailure(outcomes []chunkOutcome) error {
	var cancelled *chunkOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.err == nil {
			continue
		}
		if errors.Is(o.err, client.ErrCancelled) {
			if cancelled == nil {
				cancelled = o
			}
			continue
		}
		return &ChunkError{Index: o.index, JobID: o.jobID, Size: o.size, Err: o.err}
	}
	if cancelled != nil {
		return &ChunkError{Index: cancelled.index, JobID: cancelled.jobID, Size: cancelled.size, Err: cancelled.err}
	}
	return nil
}

// assemble concatenates successful chunks in chunk order.
func assemble(f format.Format, outcomes []chunkOutcome) (*Result, error) {
	result := &Result{Reconciled: true}
	sets := make([]*format.ResultSet, 0, len(outcomes))
	succeeded := 0

	for _, o := range outcomes {
		result.Chunks = append(result.Chunks, ChunkReport{
			Index:  o.index,
			JobID:  o.jobID,
			Size:   o.size,
			Cached: o.cached,
			Err:    o.err,
		})
		if o.err != nil {
			continue
		}
		succeeded++
		sets = append(sets, o.set)
		result.FailedIDs = append(result.FailedIDs, o.outcome.Failed()...)
		result.UnmatchedIDs = append(result.UnmatchedIDs, o.outcome.Unmatched...)
		result.ServiceFailedIDs = append(result.ServiceFailedIDs, o.outcome.Declared...)
		if !o.outcome.Reconciled {
			result.Reconciled = false
		}
	}
	if succeeded == 0 {
		result.Reconciled = false
	}

	set, err := format.Concat(f, sets...)
	if err != nil {
		return nil, err
	}
	result.ResultSet = set
	return result, nil
}
