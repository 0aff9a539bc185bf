// Package library owns the per-session personal collections: favorites,
// recently played and user playlists.
//
// Every mutation builds new slices and maps and swaps them in; a value returned
// by an earlier call is never modified afterwards.
package library

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"soundstorm/internal/apperrors"
	"soundstorm/pkg/models"
)

// RecentlyPlayedLimit caps the recently played list.
const RecentlyPlayedLimit = 20

// playlistSeq hands out process-unique playlist ids.
var playlistSeq atomic.Int64

// Store holds one signed-in user's collections.
type Store struct {
	mu        sync.RWMutex
	favorites []models.Track
	recent    []models.Track
	playlists map[int]models.Playlist
	now       func() time.Time
}

// NewStore creates an empty library.
func NewStore() *Store {
	return &Store{
		favorites: []models.Track{},
		recent:    []models.Track{},
		playlists: make(map[int]models.Playlist),
		now:       time.Now,
	}
}

// ToggleFavorite removes track from favorites if present, appends it otherwise,
// and returns the new favorites list.
func (s *Store) ToggleFavorite(track models.Track) []models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := models.IndexOf(s.favorites, track.ID); i >= 0 {
		s.favorites = slices.Delete(slices.Clone(s.favorites), i, i+1)
	} else {
		next := make([]models.Track, len(s.favorites), len(s.favorites)+1)
		copy(next, s.favorites)
		s.favorites = append(next, track)
	}
	return slices.Clip(s.favorites)
}

// IsFavorite reports whether a track with id is a favorite.
func (s *Store) IsFavorite(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.IndexOf(s.favorites, id) >= 0
}

// Favorites returns favorites in insertion order.
func (s *Store) Favorites() []models.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clip(s.favorites)
}

// RecordRecentlyPlayed moves track to the front of the recently played list,
// dropping any older entry with the same id and anything past the cap.
func (s *Store) RecordRecentlyPlayed(track models.Track) []models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Track, 0, RecentlyPlayedLimit)
	next = append(next, track)
	for _, t := range s.recent {
		if len(next) == RecentlyPlayedLimit {
			break
		}
		if t.ID != track.ID {
			next = append(next, t)
		}
	}
	s.recent = next
	return slices.Clip(s.recent)
}

// RecentlyPlayed returns the most-recent-first history.
func (s *Store) RecentlyPlayed() []models.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clip(s.recent)
}

// CreatePlaylist allocates an empty playlist. The name must not be blank.
func (s *Store) CreatePlaylist(name string) (models.Playlist, error) {
	name, err := validatePlaylistName(name)
	if err != nil {
		return models.Playlist{}, err
	}

	playlist := models.Playlist{
		ID:        int(playlistSeq.Add(1)),
		Name:      name,
		Tracks:    []models.Track{},
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clonePlaylists()
	next[playlist.ID] = playlist
	s.playlists = next
	return playlist, nil
}

// RenamePlaylist changes a playlist's name under the same rule as CreatePlaylist.
func (s *Store) RenamePlaylist(playlistID int, name string) (models.Playlist, error) {
	name, err := validatePlaylistName(name)
	if err != nil {
		return models.Playlist{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.playlists[playlistID]
	if !ok {
		return models.Playlist{}, apperrors.NotFound("playlist", playlistID)
	}
	playlist.Name = name

	next := s.clonePlaylists()
	next[playlistID] = playlist
	s.playlists = next
	return playlist, nil
}

// AddTrackToPlaylist appends track unless the playlist already holds its id.
func (s *Store) AddTrackToPlaylist(playlistID int, track models.Track) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.playlists[playlistID]
	if !ok {
		return models.Playlist{}, apperrors.NotFound("playlist", playlistID)
	}
	if playlist.Contains(track.ID) {
		return playlist, nil
	}

	tracks := make([]models.Track, len(playlist.Tracks), len(playlist.Tracks)+1)
	copy(tracks, playlist.Tracks)
	playlist.Tracks = slices.Clip(append(tracks, track))

	next := s.clonePlaylists()
	next[playlistID] = playlist
	s.playlists = next
	return playlist, nil
}

// RemoveTrackFromPlaylist drops the track with trackID from the playlist.
func (s *Store) RemoveTrackFromPlaylist(playlistID, trackID int) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playlist, ok := s.playlists[playlistID]
	if !ok {
		return models.Playlist{}, apperrors.NotFound("playlist", playlistID)
	}
	i := models.IndexOf(playlist.Tracks, trackID)
	if i < 0 {
		return models.Playlist{}, apperrors.NotFound("track", trackID)
	}
	playlist.Tracks = slices.Clip(slices.Delete(slices.Clone(playlist.Tracks), i, i+1))

	next := s.clonePlaylists()
	next[playlistID] = playlist
	s.playlists = next
	return playlist, nil
}

// DeletePlaylist removes a playlist and returns the remaining ones.
func (s *Store) DeletePlaylist(playlistID int) (map[int]models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[playlistID]; !ok {
		return nil, apperrors.NotFound("playlist", playlistID)
	}

	next := s.clonePlaylists()
	delete(next, playlistID)
	s.playlists = next
	return s.clonePlaylists(), nil
}

// Playlist returns one playlist by id.
func (s *Store) Playlist(playlistID int) (models.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	playlist, ok := s.playlists[playlistID]
	if !ok {
		return models.Playlist{}, apperrors.NotFound("playlist", playlistID)
	}
	return playlist, nil
}

// Playlists returns all playlists ordered by id (creation order).
func (s *Store) Playlists() []models.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// clonePlaylists copies the id map (must be called with lock held). Playlist
// values share their track slices, which are never written in place.
func (s *Store) clonePlaylists() map[int]models.Playlist {
	next := make(map[int]models.Playlist, len(s.playlists)+1)
	for id, p := range s.playlists {
		next[id] = p
	}
	return next
}

func validatePlaylistName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Invalid("name", "playlist name is required")
	}
	if len(name) > 255 {
		return "", apperrors.Invalid("name", "playlist name too long (max 255 characters)")
	}
	return name, nil
}
