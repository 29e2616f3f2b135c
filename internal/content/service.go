// Package content fetches catalog entities with a shared online/offline
// protocol: fetch and cache when online, serve the cache when offline.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/mmcdole/catalog/internal/cache"
	"github.com/mmcdole/catalog/internal/domain"
	"github.com/mmcdole/catalog/internal/telemetry"
)

// API performs authenticated GET requests.
type API interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Connectivity answers whether a fetch may be attempted.
type Connectivity interface {
	IsOnline(ctx context.Context) bool
}

// Service orchestrates API client + cache operations.
type Service struct {
	api       API
	cache     *cache.Manager
	network   Connectivity
	freshness map[domain.EntityType]time.Duration
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFreshness sets the freshness window for one entity type's Cached* reads.
func WithFreshness(entity domain.EntityType, d time.Duration) ServiceOption {
	return func(s *Service) { s.freshness[entity] = d }
}

// NewService creates a new content service.
func NewService(api API, c *cache.Manager, network Connectivity, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		api:       api,
		cache:     c,
		network:   network,
		freshness: make(map[domain.EntityType]time.Duration),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// request describes one fetch. An empty cacheKey means the result is never
// cached and the fetch fails outright when offline.
type request struct {
	entity   domain.EntityType
	path     string
	query    url.Values
	env      envelope
	cacheKey string
}

func fetch[T any](ctx context.Context, s *Service, r request, prepare func(context.Context, T) T) (T, error) {
	var zero T
	entity := string(r.entity)

	if !s.network.IsOnline(ctx) {
		if r.cacheKey == "" {
			telemetry.RecordFetch(ctx, entity, "error")
			return zero, fmt.Errorf("%w: %s are not available offline", domain.ErrNetworkUnavailable, entity)
		}
		var cached T
		if s.cache.Get(ctx, r.cacheKey, &cached, cache.IgnoreExpiry()) {
			s.logger.Debug("offline, serving cache", "key", r.cacheKey)
			telemetry.RecordFetch(ctx, entity, "cache")
			return cached, nil
		}
		telemetry.RecordFetch(ctx, entity, "error")
		return zero, fmt.Errorf("%w: %s", domain.ErrNetworkUnavailable, entity)
	}

	body, err := s.api.Get(ctx, r.path, r.query)
	if err != nil {
		s.logger.Error("failed to fetch", "entity", entity, "path", r.path, "error", err)
		telemetry.RecordFetch(ctx, entity, "error")
		return zero, fmt.Errorf("fetching %s: %w", entity, err)
	}

	v, err := decodeEnvelope[T](body, r.env)
	if err != nil {
		s.logger.Error("unexpected response", "entity", entity, "path", r.path, "error", err)
		telemetry.RecordFetch(ctx, entity, "error")
		return zero, err
	}

	if prepare != nil {
		v = prepare(ctx, v)
	}
	if r.cacheKey != "" {
		s.cache.Save(ctx, r.cacheKey, v)
	}

	telemetry.RecordFetch(ctx, entity, "network")
	s.logger.Debug("fetched", "entity", entity, "path", r.path)
	return v, nil
}

func (s *Service) listRequest(entity domain.EntityType, cached bool) request {
	r := request{entity: entity, path: "/" + string(entity), env: listOf(entity)}
	if cached {
		r.cacheKey = s.cache.ListKey(entity)
	}
	return r
}

func (s *Service) itemRequest(entity domain.EntityType, id int, cached bool) request {
	r := request{entity: entity, path: "/" + string(entity) + "/" + strconv.Itoa(id), env: itemOf(entity)}
	if cached {
		r.cacheKey = s.cache.ItemKey(entity, id)
	}
	return r
}

// === Shows ===

func (s *Service) GetShows(ctx context.Context) ([]domain.Show, error) {
	return fetch[[]domain.Show](ctx, s, s.listRequest(domain.EntityShows, true), nil)
}

func (s *Service) GetShowByID(ctx context.Context, id int) (*domain.Show, error) {
	show, err := fetch[domain.Show](ctx, s, s.itemRequest(domain.EntityShows, id, true), nil)
	if err != nil {
		return nil, err
	}
	return &show, nil
}

// === Episodes ===

func (s *Service) GetEpisodes(ctx context.Context) ([]domain.Episode, error) {
	return fetch[[]domain.Episode](ctx, s, s.listRequest(domain.EntityEpisodes, true), nil)
}

// GetEpisodeByID fetches an episode with its people embedded. When the API
// embeds none, the parent show's hosts are merged in on a best-effort basis.
func (s *Service) GetEpisodeByID(ctx context.Context, id int) (*domain.Episode, error) {
	r := s.itemRequest(domain.EntityEpisodes, id, true)
	r.query = url.Values{"embed": []string{"people"}}

	ep, err := fetch[domain.Episode](ctx, s, r, s.enrichWithHosts)
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

func (s *Service) enrichWithHosts(ctx context.Context, ep domain.Episode) domain.Episode {
	if ep.HasPeople() || ep.ShowID == 0 {
		return ep
	}

	path := "/shows/" + strconv.Itoa(ep.ShowID)
	body, err := s.api.Get(ctx, path, url.Values{"embed": []string{"hosts"}})
	if err != nil {
		s.logger.Warn("failed to fetch show hosts", "episodeID", ep.ID, "showID", ep.ShowID, "error", err)
		return ep
	}
	show, err := decodeEnvelope[domain.Show](body, itemOf(domain.EntityShows))
	if err != nil {
		s.logger.Warn("unexpected show hosts response", "episodeID", ep.ID, "showID", ep.ShowID, "error", err)
		return ep
	}
	if show.Embedded != nil {
		ep.MergePeople(show.Embedded.Hosts)
	}
	return ep
}

// === Streams ===

func (s *Service) GetStreams(ctx context.Context) ([]domain.Stream, error) {
	return fetch[[]domain.Stream](ctx, s, s.listRequest(domain.EntityStreams, true), nil)
}

// GetStreamByID is never served from cache; a stale live stream is useless.
func (s *Service) GetStreamByID(ctx context.Context, id int) (*domain.Stream, error) {
	stream, err := fetch[domain.Stream](ctx, s, s.itemRequest(domain.EntityStreams, id, false), nil)
	if err != nil {
		return nil, err
	}
	return &stream, nil
}

// === People (not cached) ===

func (s *Service) GetPeople(ctx context.Context) ([]domain.Person, error) {
	return fetch[[]domain.Person](ctx, s, s.listRequest(domain.EntityPeople, false), nil)
}

func (s *Service) GetPersonByID(ctx context.Context, id int) (*domain.Person, error) {
	person, err := fetch[domain.Person](ctx, s, s.itemRequest(domain.EntityPeople, id, false), nil)
	if err != nil {
		return nil, err
	}
	return &person, nil
}

// ClearCache removes every cached entity.
func (s *Service) ClearCache() error {
	return s.cache.ClearAll()
}
