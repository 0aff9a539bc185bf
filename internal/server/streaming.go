package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"soundstorm/internal/session"
)

const keepAliveInterval = 25 * time.Second

// setupSSE prepares w for a server-sent event stream.
func setupSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, nil
}

func (ms *MusicServer) sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		ms.logger.WithError(err).Error("SSE marshal error")
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handlePlayerEvents streams every published player state until the client
// disconnects or the session ends.
func (ms *MusicServer) handlePlayerEvents(w http.ResponseWriter, r *http.Request, s *session.Session) {
	flusher, err := setupSSE(w)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	states := s.Player.Subscribe()
	defer s.Player.Unsubscribe(states)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				ms.sendEvent(w, flusher, "closed", map[string]string{"reason": "session ended"})
				return
			}
			if err := ms.sendEvent(w, flusher, "state", st); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
