package server

import (
	"net/http"
	"strings"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/session"
	"soundstorm/pkg/models"
)

const maxQueryLength = 1000

type tracksResponse struct {
	Tracks []models.Track `json:"tracks"`
}

// handlePopular returns the seeded popular listing.
func (ms *MusicServer) handlePopular(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	tracks, err := ms.catalog.Popular(r.Context())
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, tracksResponse{Tracks: tracks})
}

// handleSearch runs a free-text catalog search. A blank query yields no tracks.
func (ms *MusicServer) handleSearch(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	q := r.URL.Query().Get("q")
	if err := validateSearchQuery(q); err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	tracks, err := ms.catalog.Search(r.Context(), q)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, tracksResponse{Tracks: tracks})
}

func (ms *MusicServer) handleGenres(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	ms.respondJSON(w, http.StatusOK, map[string][]string{"genres": ms.catalog.Genres()})
}

func (ms *MusicServer) handleGenre(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	tracks, err := ms.catalog.Genre(r.Context(), r.PathValue("genre"))
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, tracksResponse{Tracks: tracks})
}

func (ms *MusicServer) handleArtist(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	name := r.PathValue("name")
	if err := validateSearchQuery(name); err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	tracks, err := ms.catalog.Artist(r.Context(), name)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, tracksResponse{Tracks: tracks})
}

// handleArtists resolves every ?name= independently; failed names are left out.
func (ms *MusicServer) handleArtists(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	names := r.URL.Query()["name"]
	if len(names) == 0 {
		ms.respondWithError(w, r, apperrors.Invalid("name", "at least one artist name is required"))
		return
	}
	for _, n := range names {
		if err := validateSearchQuery(n); err != nil {
			ms.respondWithError(w, r, err)
			return
		}
	}

	ms.respondJSON(w, http.StatusOK, map[string]any{"artists": ms.catalog.Artists(r.Context(), names)})
}

// validateSearchQuery validates search query parameters
func validateSearchQuery(query string) error {
	if len(query) > maxQueryLength {
		return apperrors.Invalid("q", "search query too long (max 1000 characters)")
	}
	if strings.Contains(query, "\x00") {
		return apperrors.Invalid("q", "search query contains invalid characters")
	}
	return nil
}
