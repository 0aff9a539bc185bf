package server

import (
	"net/http"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/session"
	"soundstorm/pkg/models"
)

type playlistsResponse struct {
	Playlists []models.Playlist `json:"playlists"`
}

type playlistRequest struct {
	Name string `json:"name"`
}

// decodeTrack reads a Track body and requires a positive id.
func decodeTrack(r *http.Request) (models.Track, error) {
	var track models.Track
	if err := decodeJSON(r, &track); err != nil {
		return models.Track{}, err
	}
	if track.ID <= 0 {
		return models.Track{}, apperrors.Invalid("id", "must be positive")
	}
	return track, nil
}

func (ms *MusicServer) handleGetFavorites(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.respondJSON(w, http.StatusOK, tracksResponse{Tracks: s.Library.Favorites()})
}

// handleToggleFavorite adds the track when absent and removes it when present.
func (ms *MusicServer) handleToggleFavorite(w http.ResponseWriter, r *http.Request, s *session.Session) {
	track, err := decodeTrack(r)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	favorites := s.Library.ToggleFavorite(track)
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"tracks":   favorites,
		"favorite": models.IndexOf(favorites, track.ID) >= 0,
	})
}

func (ms *MusicServer) handleGetRecent(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.respondJSON(w, http.StatusOK, tracksResponse{Tracks: s.Library.RecentlyPlayed()})
}

func (ms *MusicServer) handleGetPlaylists(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.respondJSON(w, http.StatusOK, playlistsResponse{Playlists: s.Library.Playlists()})
}

func (ms *MusicServer) handleCreatePlaylist(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	playlist, err := s.Library.CreatePlaylist(req.Name)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusCreated, playlist)
}

func (ms *MusicServer) handleGetPlaylist(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	playlist, err := s.Library.Playlist(id)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, playlist)
}

func (ms *MusicServer) handleRenamePlaylist(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	playlist, err := s.Library.RenamePlaylist(id, req.Name)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, playlist)
}

func (ms *MusicServer) handleDeletePlaylist(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	if _, err := s.Library.DeletePlaylist(id); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, playlistsResponse{Playlists: s.Library.Playlists()})
}

func (ms *MusicServer) handleAddTrackToPlaylist(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	track, err := decodeTrack(r)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	playlist, err := s.Library.AddTrackToPlaylist(id, track)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, playlist)
}

func (ms *MusicServer) handleRemoveTrackFromPlaylist(w http.ResponseWriter, r *http.Request, s *session.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	trackID, err := pathID(r, "trackId")
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	playlist, err := s.Library.RemoveTrackFromPlaylist(id, trackID)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, playlist)
}
