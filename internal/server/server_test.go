package server

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/auth"
	"soundstorm/internal/catalog"
	"soundstorm/internal/config"
	"soundstorm/internal/controller"
	"soundstorm/internal/media"
	"soundstorm/internal/player"
	"soundstorm/internal/session"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// previewWAV is a 10 second 8 kHz mono 8-bit clip.
func previewWAV() []byte {
	n := 80000
	buf := make([]byte, 44+n)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+n))
	copy(buf[8:16], "WAVEfmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], 8000)
	binary.LittleEndian.PutUint32(buf[28:32], 8000)
	binary.LittleEndian.PutUint16(buf[32:34], 1)
	binary.LittleEndian.PutUint16(buf[34:36], 8)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(n))
	return buf
}

// fakeITunes answers /search like the iTunes Search API and serves previews.
func fakeITunes(t *testing.T) *httptest.Server {
	t.Helper()
	wav := previewWAV()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/preview/") {
			w.Write(wav)
			return
		}
		term := r.URL.Query().Get("term")
		if term == "boom" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"resultCount":2,"results":[
			{"trackId":101,"trackName":"First","artistName":"Band","collectionName":"LP","trackTimeMillis":215000,
			 "previewUrl":"%[1]s/preview/101.wav","artworkUrl100":"http://img/100x100bb.jpg"},
			{"trackId":102,"trackName":"Second","artistName":"Band feat. Guest","trackTimeMillis":180999,
			 "previewUrl":"%[1]s/preview/102.wav"}]}`, srv.URL)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	ms     *MusicServer
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	upstream := fakeITunes(t)
	cfg := config.DefaultConfig()
	cfg.Logging.RequestLogging = true

	catalogSvc := catalog.NewService(
		catalog.NewITunesClient(catalog.WithBaseURL(upstream.URL), catalog.WithRateLimit(0), catalog.WithLogger(logger)),
		catalog.Options{Limit: 25, CacheTTL: time.Minute},
		logger,
	)
	t.Cleanup(catalogSvc.Close)

	registry := auth.NewRegistry(bcrypt.MinCost)
	entry := logrus.NewEntry(logger)
	sessions := session.NewManager(func() media.Backend {
		return media.NewHeadless(media.WithLogger(entry))
	}, session.Options{
		Duration: time.Hour,
		Player:   controller.Options{Volume: 0.7, AutoPlay: true},
	}, entry)
	t.Cleanup(sessions.Close)

	ms := NewMusicServer(cfg, Deps{
		Catalog:  catalogSvc,
		Auth:     auth.NewService(registry, logger),
		Registry: registry,
		Sessions: sessions,
	}, logger)

	srv := httptest.NewServer(ms.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{ms: ms, server: srv, client: srv.Client()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

// signIn registers Bob1 and returns the session cookie.
func (e *testEnv) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	creds := map[string]string{"username": "Bob1", "email": "bob@example.com", "password": "Secret!"}
	if resp, body := e.do(t, http.MethodPost, "/api/auth/register", creds, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", resp.StatusCode, body)
	}
	resp, body := e.do(t, http.MethodPost, "/api/auth/login", creds, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d body=%s", resp.StatusCode, body)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "soundstorm_session" {
			return c
		}
	}
	t.Fatal("login set no session cookie")
	return nil
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	h := decode[HealthStatus](t, body)
	if h.Status != "healthy" || h.Sessions != 0 {
		t.Errorf("health = %+v", h)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"username": "bo", "email": "bob.example.com", "password": "secret"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[errorResponse](t, body)
	for _, field := range []string{"username", "email", "password"} {
		if got.Fields[field] == "" {
			t.Errorf("missing message for %s in %+v", field, got.Fields)
		}
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "Nobody", "password": "Secret!"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	paths := []string{"/api/catalog/popular", "/api/library/favorites", "/api/player/state"}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodGet, p, nil, nil)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantTracks int
	}{
		{"popular", "/api/catalog/popular", http.StatusOK, 2},
		{"search", "/api/catalog/search?q=band", http.StatusOK, 2},
		{"blank search", "/api/catalog/search?q=%20%20", http.StatusOK, 0},
		{"genre", "/api/catalog/genres/rock", http.StatusOK, 2},
		{"unknown genre", "/api/catalog/genres/polka", http.StatusNotFound, 0},
		{"exact artist", "/api/catalog/artists/Band", http.StatusOK, 1},
		{"upstream failure", "/api/catalog/search?q=boom", http.StatusBadGateway, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, tt.path, nil, cookie)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d body=%s", resp.StatusCode, body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[tracksResponse](t, body)
			if len(got.Tracks) != tt.wantTracks {
				t.Errorf("tracks = %d, want %d", len(got.Tracks), tt.wantTracks)
			}
		})
	}

	_, body := env.do(t, http.MethodGet, "/api/catalog/search?q=band", nil, cookie)
	first := decode[tracksResponse](t, body).Tracks[0]
	if first.DurationSeconds != 215 || first.ArtworkLargeURL != "http://img/600x600bb.jpg" {
		t.Errorf("normalized track = %+v", first)
	}
}

func TestArtistsAggregation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	resp, body := env.do(t, http.MethodGet, "/api/catalog/artists?name=Band&name=boom", nil, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[struct {
		Artists []catalog.ArtistTracks `json:"artists"`
	}](t, body)
	if len(got.Artists) != 1 || got.Artists[0].Name != "Band" {
		t.Errorf("artists = %+v", got.Artists)
	}
}

func TestLibraryRoutes(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)
	track := map[string]any{"id": 101, "title": "First", "artistName": "Band"}

	resp, body := env.do(t, http.MethodPost, "/api/library/favorites/toggle", track, cookie)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"favorite":true`) {
		t.Fatalf("toggle status=%d body=%s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/api/library/playlists", map[string]string{"name": "  "}, cookie)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank playlist name status = %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/api/library/playlists", map[string]string{"name": "Road Trip"}, cookie)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", resp.StatusCode, body)
	}
	created := decode[struct {
		ID int `json:"id"`
	}](t, body)
	base := fmt.Sprintf("/api/library/playlists/%d", created.ID)

	for i := 0; i < 2; i++ {
		resp, body = env.do(t, http.MethodPost, base+"/tracks", track, cookie)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("add status = %d body=%s", resp.StatusCode, body)
		}
	}
	if n := strings.Count(string(body), `"id":101`); n != 1 {
		t.Errorf("track appears %d times after adding twice", n)
	}

	resp, _ = env.do(t, http.MethodDelete, base+"/tracks/999", nil, cookie)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("remove missing track status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, base+"/tracks/101", nil, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("remove track status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPut, base, map[string]string{"name": "Commute"}, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rename status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, base, nil, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, base, nil, cookie)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/library/playlists/abc", nil, cookie)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d", resp.StatusCode)
	}
}

func waitForState(t *testing.T, env *testEnv, cookie *http.Cookie, cond func(player.State) bool) player.State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, body := env.do(t, http.MethodGet, "/api/player/state", nil, cookie)
		st := decode[player.State](t, body)
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out; last state %s", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlayerRoutes(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	_, body := env.do(t, http.MethodGet, "/api/catalog/popular", nil, cookie)
	tracks := decode[tracksResponse](t, body).Tracks

	resp, body := env.do(t, http.MethodPost, "/api/player/load", map[string]any{"track": tracks[1], "queue": tracks}, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load status = %d body=%s", resp.StatusCode, body)
	}
	st := waitForState(t, env, cookie, func(st player.State) bool {
		return st.Status == player.StatusPlaying && st.DurationSeconds == 10
	})
	if st.CurrentIndex != 1 || st.Track.ID != 102 {
		t.Errorf("state = %+v", st)
	}

	_, body = env.do(t, http.MethodGet, "/api/library/recent", nil, cookie)
	if recent := decode[tracksResponse](t, body).Tracks; len(recent) != 1 || recent[0].ID != 102 {
		t.Errorf("recent = %+v", recent)
	}

	_, body = env.do(t, http.MethodPost, "/api/player/volume", map[string]float64{"volume": 1.5}, cookie)
	if got := decode[player.State](t, body).Volume; got != 1 {
		t.Errorf("volume = %v", got)
	}

	_, body = env.do(t, http.MethodPost, "/api/player/pause", nil, cookie)
	if got := decode[player.State](t, body).Status; got != player.StatusPaused {
		t.Errorf("status after pause = %s", got)
	}

	_, body = env.do(t, http.MethodPost, "/api/player/seek", map[string]int{"seconds": 4}, cookie)
	if got := decode[player.State](t, body).PositionSeconds; got != 4 {
		t.Errorf("position after seek = %d", got)
	}

	_, body = env.do(t, http.MethodPost, "/api/player/sleep", map[string]int{"minutes": 15}, cookie)
	if got := decode[player.State](t, body).SleepTimerMinutes; got != 15 {
		t.Errorf("sleep = %d", got)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/player/sleep", map[string]int{"minutes": -5}, cookie)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative sleep status = %d", resp.StatusCode)
	}

	env.do(t, http.MethodPost, "/api/player/next", nil, cookie)
	waitForState(t, env, cookie, func(st player.State) bool {
		return st.Track != nil && st.Track.ID == 101 && st.CurrentIndex == 0
	})

	resp, _ = env.do(t, http.MethodPost, "/api/player/load", map[string]any{"track": map[string]int{"id": 0}}, cookie)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("load without track id status = %d", resp.StatusCode)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	resp, _ := env.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/player/state", nil, cookie)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("state after logout status = %d", resp.StatusCode)
	}
}

func TestPlayerEventsStream(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/player/events", nil)
	req.AddCookie(cookie)
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before first state")
			}
			if strings.HasPrefix(line, "data: ") {
				st := decode[player.State](t, []byte(strings.TrimPrefix(line, "data: ")))
				if st.Status != player.StatusIdle {
					t.Errorf("first streamed status = %s", st.Status)
				}
				return
			}
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperrors.Invalid("x", "bad"), http.StatusBadRequest},
		{"not found", apperrors.NotFound("playlist", 3), http.StatusNotFound},
		{"network", &apperrors.NetworkError{Op: "search", Err: errors.New("down")}, http.StatusBadGateway},
		{"playback", &apperrors.PlaybackError{TrackID: 1, Err: errors.New("x")}, http.StatusConflict},
		{"wrapped", fmt.Errorf("ctx: %w", apperrors.NotFound("genre", "polka")), http.StatusNotFound},
		{"closed controller", controller.ErrClosed, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0B"},
		{512, "< 1KB"},
		{2048, "2KB"},
		{3 << 20, "3MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
