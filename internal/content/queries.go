package content

import (
	"context"

	"github.com/mmcdole/catalog/internal/cache"
	"github.com/mmcdole/catalog/internal/domain"
)

// Cache-only reads. They never touch the network and honor the entity's
// freshness window, so a false result means "refresh before trusting".

func (s *Service) CachedShows(ctx context.Context) ([]domain.Show, bool) {
	var shows []domain.Show
	ok := s.cache.Get(ctx, s.cache.ListKey(domain.EntityShows), &shows, s.maxAge(domain.EntityShows)...)
	return shows, ok
}

func (s *Service) CachedShow(ctx context.Context, id int) (*domain.Show, bool) {
	var show domain.Show
	if !s.cache.Get(ctx, s.cache.ItemKey(domain.EntityShows, id), &show, s.maxAge(domain.EntityShows)...) {
		return nil, false
	}
	return &show, true
}

func (s *Service) CachedEpisodes(ctx context.Context) ([]domain.Episode, bool) {
	var episodes []domain.Episode
	ok := s.cache.Get(ctx, s.cache.ListKey(domain.EntityEpisodes), &episodes, s.maxAge(domain.EntityEpisodes)...)
	return episodes, ok
}

func (s *Service) CachedEpisode(ctx context.Context, id int) (*domain.Episode, bool) {
	var ep domain.Episode
	if !s.cache.Get(ctx, s.cache.ItemKey(domain.EntityEpisodes, id), &ep, s.maxAge(domain.EntityEpisodes)...) {
		return nil, false
	}
	return &ep, true
}

func (s *Service) CachedStreams(ctx context.Context) ([]domain.Stream, bool) {
	var streams []domain.Stream
	ok := s.cache.Get(ctx, s.cache.ListKey(domain.EntityStreams), &streams, s.maxAge(domain.EntityStreams)...)
	return streams, ok
}

// InvalidateEpisodes drops every cached episode detail, keeping the list.
func (s *Service) InvalidateEpisodes() error {
	return s.cache.ClearPrefix(s.cache.Namespace() + domain.EntityEpisodes.Singular() + "_")
}

func (s *Service) maxAge(entity domain.EntityType) []cache.ReadOption {
	if d, ok := s.freshness[entity]; ok && d > 0 {
		return []cache.ReadOption{cache.MaxAge(d)}
	}
	return nil
}
