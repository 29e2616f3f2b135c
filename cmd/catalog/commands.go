package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/mmcdole/catalog/internal/telemetry"
	"golang.org/x/net/netutil"
)

// ShowsCmd lists shows.
type ShowsCmd struct{}

func (c *ShowsCmd) Run(a *app) error {
	shows, err := a.svc.GetShows(a.ctx)
	if err != nil {
		return err
	}
	a.out.shows(shows)
	return nil
}

// ShowCmd prints one show.
type ShowCmd struct {
	ID int `arg:"" help:"Show ID."`
}

func (c *ShowCmd) Run(a *app) error {
	show, err := a.svc.GetShowByID(a.ctx, c.ID)
	if err != nil {
		return err
	}
	a.out.show(show)
	return nil
}

// EpisodesCmd lists episodes.
type EpisodesCmd struct{}

func (c *EpisodesCmd) Run(a *app) error {
	episodes, err := a.svc.GetEpisodes(a.ctx)
	if err != nil {
		return err
	}
	a.out.episodes(episodes)
	return nil
}

// EpisodeCmd prints one episode.
type EpisodeCmd struct {
	ID int `arg:"" help:"Episode ID."`
}

func (c *EpisodeCmd) Run(a *app) error {
	ep, err := a.svc.GetEpisodeByID(a.ctx, c.ID)
	if err != nil {
		return err
	}
	a.out.episode(ep)
	return nil
}

// StreamsCmd lists streams.
type StreamsCmd struct{}

func (c *StreamsCmd) Run(a *app) error {
	streams, err := a.svc.GetStreams(a.ctx)
	if err != nil {
		return err
	}
	a.out.streams(streams)
	return nil
}

// StreamCmd prints one stream and whether it may be played right now.
type StreamCmd struct {
	ID int `arg:"" help:"Stream ID."`
}

func (c *StreamCmd) Run(a *app) error {
	stream, err := a.svc.GetStreamByID(a.ctx, c.ID)
	if err != nil {
		return err
	}
	a.out.stream(stream, a.monitor.CanPlayMedia())
	return nil
}

// PeopleCmd lists people.
type PeopleCmd struct{}

func (c *PeopleCmd) Run(a *app) error {
	people, err := a.svc.GetPeople(a.ctx)
	if err != nil {
		return err
	}
	a.out.people(people)
	return nil
}

// PersonCmd prints one person.
type PersonCmd struct {
	ID int `arg:"" help:"Person ID."`
}

func (c *PersonCmd) Run(a *app) error {
	person, err := a.svc.GetPersonByID(a.ctx, c.ID)
	if err != nil {
		return err
	}
	a.out.person(person)
	return nil
}

// StatusCmd reports connectivity and what the cache can serve fresh.
type StatusCmd struct{}

func (c *StatusCmd) Run(a *app) error {
	state := a.monitor.State()
	online := a.monitor.IsOnline(a.ctx)

	shows, showsFresh := a.svc.CachedShows(a.ctx)
	episodes, episodesFresh := a.svc.CachedEpisodes(a.ctx)
	streams, streamsFresh := a.svc.CachedStreams(a.ctx)

	a.out.status(statusView{
		State:     state,
		Online:    online,
		CanPlay:   a.monitor.CanPlayMedia(),
		CacheDir:  a.cfg.Cache.Dir,
		UsedBytes: a.kv.Used(),
		Quota:     a.cfg.Cache.QuotaBytes,
		Fresh: []freshLine{
			{Entity: domain.EntityShows, Count: len(shows), Fresh: showsFresh},
			{Entity: domain.EntityEpisodes, Count: len(episodes), Fresh: episodesFresh},
			{Entity: domain.EntityStreams, Count: len(streams), Fresh: streamsFresh},
		},
	})
	return nil
}

// CellularCmd toggles the cellular data preference.
type CellularCmd struct {
	State string `arg:"" enum:"on,off" help:"on or off."`
}

func (c *CellularCmd) Run(a *app) error {
	allowed := c.State == "on"
	err := a.monitor.UpdateCellularSetting(allowed)
	a.out.cellular(allowed, a.monitor.CanPlayMedia())
	if err != nil {
		return fmt.Errorf("preference applied but not saved: %w", err)
	}
	return nil
}

// ClearCacheCmd empties the cache namespace.
type ClearCacheCmd struct{}

func (c *ClearCacheCmd) Run(a *app) error {
	if err := a.svc.ClearCache(); err != nil {
		return err
	}
	a.out.success("Cache cleared")
	return nil
}

// WatchCmd follows connectivity until interrupted.
type WatchCmd struct {
	MetricsAddr string `help:"Serve Prometheus metrics on this address (e.g. :9090)." name:"metrics-addr"`
	MaxConns    int    `help:"Maximum concurrent metrics connections." default:"16"`
}

func (c *WatchCmd) Run(a *app) error {
	unsubscribe := a.monitor.AddListener(func(state domain.ConnectivityState) {
		a.out.transition(time.Now(), state)
	})
	defer unsubscribe()

	a.out.transition(time.Now(), a.monitor.State())

	errCh := make(chan error, 2)
	if c.MetricsAddr != "" {
		ln, err := net.Listen("tcp", c.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", c.MetricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.PrometheusHandler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		defer srv.Close()

		a.logger.Info("serving metrics", "addr", ln.Addr().String())
		go func() {
			if err := srv.Serve(netutil.LimitListener(ln, c.MaxConns)); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	go func() { errCh <- a.probe.Run(a.ctx) }()

	err := <-errCh
	if errors.Is(err, a.ctx.Err()) {
		return nil
	}
	return err
}

// describeError turns catalog failures into short user-facing text.
func describeError(err error) string {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrNetworkUnavailable):
		return "offline and nothing cached for this request"
	case errors.Is(err, domain.ErrUsageLimitExceeded):
		return "API usage limits are exceeded; try again later"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "the API returned an unexpected response"
	case errors.As(err, &upstream) && upstream.StatusCode == 0:
		return "could not reach the API: " + err.Error()
	default:
		return err.Error()
	}
}
