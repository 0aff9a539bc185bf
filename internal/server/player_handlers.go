package server

import (
	"net/http"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/session"
	"soundstorm/pkg/models"
)

// loadRequest starts playback. An omitted or null queue keeps the current
// queue; an empty array clears it.
type loadRequest struct {
	Track models.Track    `json:"track"`
	Queue *[]models.Track `json:"queue,omitempty"`
}

// handleGetPlayerState returns the current player state
func (ms *MusicServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.respondJSON(w, http.StatusOK, s.Player.Snapshot())
}

// playerCommand runs cmd against the session's controller and answers with the resulting state.
func (ms *MusicServer) playerCommand(w http.ResponseWriter, r *http.Request, s *session.Session, cmd func() error) {
	if err := cmd(); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, s.Player.Snapshot())
}

func (ms *MusicServer) handleLoad(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req loadRequest
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	if req.Track.ID <= 0 {
		ms.respondWithError(w, r, apperrors.Invalid("track.id", "must be positive"))
		return
	}

	var queue []models.Track
	if req.Queue != nil {
		queue = *req.Queue
		if queue == nil {
			queue = []models.Track{}
		}
	}
	ms.playerCommand(w, r, s, func() error { return s.Player.Load(req.Track, queue) })
}

func (ms *MusicServer) handlePlay(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.playerCommand(w, r, s, s.Player.Play)
}

func (ms *MusicServer) handlePause(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.playerCommand(w, r, s, s.Player.Pause)
}

func (ms *MusicServer) handleNext(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.playerCommand(w, r, s, s.Player.Next)
}

func (ms *MusicServer) handlePrevious(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ms.playerCommand(w, r, s, s.Player.Previous)
}

func (ms *MusicServer) handleSeek(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		Seconds *int `json:"seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	if req.Seconds == nil {
		ms.respondWithError(w, r, apperrors.Invalid("seconds", "is required"))
		return
	}
	ms.playerCommand(w, r, s, func() error { return s.Player.Seek(*req.Seconds) })
}

func (ms *MusicServer) handleVolume(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	if req.Volume == nil {
		ms.respondWithError(w, r, apperrors.Invalid("volume", "is required"))
		return
	}
	ms.playerCommand(w, r, s, func() error { return s.Player.SetVolume(*req.Volume) })
}

func (ms *MusicServer) handleMute(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.playerCommand(w, r, s, func() error { return s.Player.SetMuted(req.Muted) })
}

// handleSleep sets or (with zero minutes) cancels the sleep timer.
func (ms *MusicServer) handleSleep(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.playerCommand(w, r, s, func() error { return s.Player.SetSleepTimer(req.Minutes) })
}

func (ms *MusicServer) handleAutoPlay(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.playerCommand(w, r, s, func() error { return s.Player.SetAutoPlay(req.Enabled) })
}
