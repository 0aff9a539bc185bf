package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/cache"
	"soundstorm/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit        = 25
	DefaultPopularQuery = "top songs 2024"

	// artistFanout bounds concurrent lookups during artist aggregation
	artistFanout = 4
)

// Options tunes a Service.
type Options struct {
	Limit        int
	PopularQuery string
	CacheTTL     time.Duration
}

// Service answers the browse queries of the client on top of a Provider.
type Service struct {
	provider     Provider
	cache        *cache.TrackCache
	limit        int
	popularQuery string
	logger       *logrus.Logger
}

// ArtistTracks groups the tracks resolved for one artist name.
type ArtistTracks struct {
	Name   string         `json:"name"`
	Tracks []models.Track `json:"tracks"`
}

// NewService creates a catalog service. A zero CacheTTL disables result caching.
func NewService(provider Provider, opts Options, logger *logrus.Logger) *Service {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.PopularQuery == "" {
		opts.PopularQuery = DefaultPopularQuery
	}

	s := &Service{
		provider:     provider,
		limit:        opts.Limit,
		popularQuery: opts.PopularQuery,
		logger:       logger,
	}
	if opts.CacheTTL > 0 {
		s.cache = cache.NewTrackCache(opts.CacheTTL)
	}
	return s
}

// Close releases the result cache.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// Popular returns the seed list shown on the home view.
func (s *Service) Popular(ctx context.Context) ([]models.Track, error) {
	return s.query(ctx, s.popularQuery)
}

// Search runs a free-text search. A blank term yields no results and no request.
func (s *Service) Search(ctx context.Context, term string) ([]models.Track, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []models.Track{}, nil
	}
	return s.query(ctx, term)
}

// Genres lists the browsable genres.
func (s *Service) Genres() []string {
	return Genres()
}

// Genre returns tracks for one entry of the genre table.
func (s *Service) Genre(ctx context.Context, genre string) ([]models.Track, error) {
	q, ok := GenreQuery(genre)
	if !ok {
		return nil, apperrors.NotFound("genre", genre)
	}
	return s.query(ctx, q)
}

// Artist returns tracks whose artist name matches name exactly. The provider
// has no artist-id query, so the search is by name and filtered here.
func (s *Service) Artist(ctx context.Context, name string) ([]models.Track, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Invalid("name", "artist name is required")
	}

	tracks, err := s.query(ctx, name)
	if err != nil {
		return nil, err
	}

	matched := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ArtistName == name {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// Artists resolves every name independently and concurrently. A failed lookup
// is logged and skipped; the rest keep the input order.
func (s *Service) Artists(ctx context.Context, names []string) []ArtistTracks {
	results := make([]*ArtistTracks, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(artistFanout)

	for i, name := range names {
		g.Go(func() error {
			tracks, err := s.Artist(gctx, name)
			if err != nil {
				s.logger.WithError(err).WithField("artist", name).Warn("Skipping artist lookup")
				return nil
			}
			results[i] = &ArtistTracks{Name: strings.TrimSpace(name), Tracks: tracks}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ArtistTracks, 0, len(names))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// query fetches and normalizes term, consulting the cache first.
func (s *Service) query(ctx context.Context, term string) ([]models.Track, error) {
	key := fmt.Sprintf("%s|%d", strings.ToLower(term), s.limit)
	if s.cache != nil {
		if tracks, ok := s.cache.GetTracks(key); ok {
			return tracks, nil
		}
	}

	raws, err := s.provider.Search(ctx, term, s.limit)
	if err != nil {
		var netErr *apperrors.NetworkError
		if !errors.As(err, &netErr) {
			err = &apperrors.NetworkError{Op: "search", Err: err}
		}
		return nil, err
	}

	tracks := NormalizeAll(raws)
	if s.cache != nil {
		s.cache.SetTracks(key, tracks)
	}
	return tracks, nil
}

// Playable drops tracks without a preview source, for building playback queues.
func Playable(tracks []models.Track) []models.Track {
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Playable() {
			out = append(out, t)
		}
	}
	return out
}
