package main

import (
	"context"
	"io"

	"github.com/Sternrassler/idmapping-client/pkg/cache"
	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/Sternrassler/idmapping-client/pkg/config"
	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/Sternrassler/idmapping-client/pkg/mapping"
	"github.com/Sternrassler/idmapping-client/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries state shared by the subcommands.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  zerolog.Logger
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	cfgFile string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.New(), stdin: stdin, stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:          "idmap",
		Short:        "Map identifiers between namespaces with the ID mapping service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (toml, yaml or json)")
	flags.String("api-url", client.DefaultBaseURL, "Base URL of the REST API")
	flags.Duration("poll-interval", mapping.DefaultConfig().PollInterval, "Sleep between job status polls")
	flags.Int("concurrency", mapping.DefaultConfig().Concurrency, "Chunks processed in parallel")
	flags.String("redis-addr", "", "Redis address for the result cache (empty disables it)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "Human-readable logs")

	for key, flag := range map[string]string{
		"api.url":             "api-url",
		"job.poll_interval":   "poll-interval",
		"mapping.concurrency": "concurrency",
		"redis.addr":          "redis-addr",
		"metrics.addr":        "metrics-addr",
		"log.level":           "log-level",
		"log.pretty":          "log-pretty",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(newMapCmd(a), newSearchCmd(a), newVersionCmd(a))
	return cmd
}

// load resolves configuration once flags are parsed.
func (a *app) load() error {
	if a.cfgFile != "" {
		if err := config.ReadFile(a.v, a.cfgFile); err != nil {
			return err
		}
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.Logging()
	lc.Output = a.stderr
	logging.Setup(lc)
	a.logger = logging.NewLogger("cli")
	return nil
}

// newClient builds the transport from configuration.
func (a *app) newClient() (*client.Client, error) {
	return client.New(a.cfg.Client())
}

// newCache connects the optional result cache. The returned close func is
// never nil.
func (a *app) newCache(ctx context.Context) (*cache.Manager, func()) {
	opts := a.cfg.RedisOptions()
	if opts == nil {
		return nil, func() {}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		a.logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, running without cache")
		rdb.Close()
		return nil, func() {}
	}
	return cache.NewManager(rdb, a.cfg.Redis.TTL), func() { rdb.Close() }
}

// serveMetrics starts the metrics endpoint for the lifetime of ctx.
func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr); err != nil {
			a.logger.Warn().Err(err).Msg("Metrics endpoint stopped")
		}
	}()
}
