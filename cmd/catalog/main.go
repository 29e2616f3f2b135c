// Command catalog is an offline-aware client for the content catalog API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/mmcdole/catalog/internal/cache"
	"github.com/mmcdole/catalog/internal/config"
	"github.com/mmcdole/catalog/internal/content"
	"github.com/mmcdole/catalog/internal/logging"
	"github.com/mmcdole/catalog/internal/network"
	"github.com/mmcdole/catalog/internal/store"
	"github.com/mmcdole/catalog/internal/telemetry"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI is the command line grammar.
type CLI struct {
	Config  string           `help:"Config file (default: ~/.config/catalog/config.yaml)." short:"c" type:"path"`
	Version kong.VersionFlag `help:"Print version and exit." short:"v"`

	Shows      ShowsCmd      `cmd:"" help:"List shows."`
	Show       ShowCmd       `cmd:"" help:"Show one show."`
	Episodes   EpisodesCmd   `cmd:"" help:"List episodes."`
	Episode    EpisodeCmd    `cmd:"" help:"Show one episode with its hosts and guests."`
	Streams    StreamsCmd    `cmd:"" help:"List live streams."`
	Stream     StreamCmd     `cmd:"" help:"Show one stream (requires network)."`
	People     PeopleCmd     `cmd:"" help:"List people (requires network)."`
	Person     PersonCmd     `cmd:"" help:"Show one person (requires network)."`
	Status     StatusCmd     `cmd:"" help:"Show connectivity and cache status."`
	Cellular   CellularCmd   `cmd:"" help:"Allow or forbid media over cellular data."`
	ClearCache ClearCacheCmd `cmd:"" name:"clear-cache" help:"Remove every cached entity."`
	Watch      WatchCmd      `cmd:"" help:"Follow connectivity changes and optionally serve metrics."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("catalog"),
		kong.Description("Browse the content catalog, online or from cache."),
		kong.Vars{"version": "catalog " + Version},
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cli.Config, kctx.Command() == "watch" && cli.Watch.MetricsAddr != "")
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}

	err = kctx.Run(a)
	a.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+describeError(err)))
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	ctx     context.Context
	cfg     *config.Config
	logger  *slog.Logger
	kv      *store.KV
	cache   *cache.Manager
	probe   *network.Probe
	monitor *network.Monitor
	svc     *content.Service
	out     *renderer
	closers []func()
}

func newApp(ctx context.Context, configFile string, prometheus bool) (*app, error) {
	cfg, v, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Setup logger
	logger, logFile, err := logging.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = logging.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Info("starting catalog", "version", Version)

	a := &app{ctx: ctx, cfg: cfg, logger: logger, out: newRenderer(os.Stdout)}
	if logFile != nil {
		a.closers = append(a.closers, func() { _ = logFile.Close() })
	}

	shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "catalog",
		ServiceVersion:   Version,
		OTLPEndpoint:     cfg.Metrics.OTLPEndpoint,
		EnablePrometheus: cfg.Metrics.Prometheus || prometheus,
	})
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	} else {
		a.closers = append(a.closers, func() { _ = shutdown(context.Background()) })
	}

	kv, err := store.NewKV(cfg.Cache.Dir, cfg.API.BaseURL, store.WithQuota(cfg.Cache.QuotaBytes))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	a.kv = kv
	a.closers = append(a.closers, func() { _ = kv.Close() })

	a.cache = cache.New(kv, logger,
		cache.WithNamespace(cfg.Cache.Namespace),
		cache.WithMaxEntrySize(cfg.Cache.MaxEntrySize),
		cache.WithExpiry(cfg.Cache.Expiry),
	)

	a.probe = network.NewProbe(network.ProbeConfig{
		URL:      cfg.ProbeURL(),
		Timeout:  cfg.Network.ProbeTimeout,
		Interval: cfg.Network.PollInterval,
	}, logger)
	a.monitor = network.NewMonitor(ctx, a.probe, config.NewPreferenceStore(v, true), logger)
	a.closers = append(a.closers, a.monitor.Close)

	client := content.NewClient(content.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		AppID:   cfg.API.AppID,
		AppKey:  cfg.API.AppKey,
		Timeout: cfg.API.Timeout,
	}, logger)

	var opts []content.ServiceOption
	for entity, d := range cfg.Freshness() {
		opts = append(opts, content.WithFreshness(entity, d))
	}
	a.svc = content.NewService(client, a.cache, a.monitor, logger, opts...)

	return a, nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
