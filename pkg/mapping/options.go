package mapping

import (
	"github.com/Sternrassler/idmapping-client/pkg/cache"
	"github.com/Sternrassler/idmapping-client/pkg/catalog"
	"github.com/Sternrassler/idmapping-client/pkg/job"
	"github.com/Sternrassler/idmapping-client/pkg/pagination"
)

// Option configures a Mapper or Searcher.
type Option func(*settings)

type settings struct {
	catalog   *catalog.Catalog
	cache     *cache.Manager
	jobOpts   []job.Option
	fetchOpts []pagination.Option
}

// WithCatalog replaces the embedded namespace and field catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *settings) {
		s.catalog = c
	}
}

// WithCache stores finished chunk results in Redis and serves repeated
// chunks from it. Ignored by Searcher.
func WithCache(c *cache.Manager) Option {
	return func(s *settings) {
		s.cache = c
	}
}

// WithJobOptions passes options to the job manager, e.g. job.WithWaitFunc.
func WithJobOptions(opts ...job.Option) Option {
	return func(s *settings) {
		s.jobOpts = append(s.jobOpts, opts...)
	}
}

// WithProgress sets the sink receiving per-page progress.
func WithProgress(sink pagination.ProgressSink) Option {
	return func(s *settings) {
		s.fetchOpts = append(s.fetchOpts, pagination.WithProgress(sink))
	}
}

func buildSettings(opts []Option) (settings, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.catalog == nil {
		c, err := catalog.Default()
		if err != nil {
			return settings{}, err
		}
		s.catalog = c
	}
	return s, nil
}
