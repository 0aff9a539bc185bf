package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"soundstorm/internal/apperrors"

	"github.com/sirupsen/logrus"
)

const (
	// PreviewLength caps the duration of a catalog preview clip.
	PreviewLength = 30 * time.Second

	defaultMaxPreviewBytes = 20 << 20
)

var (
	errNoPreview  = errors.New("track has no preview url")
	errSuperseded = errors.New("load superseded")
)

// Headless is a Backend that fetches and probes preview clips and runs the
// transport against the wall clock without producing audio output. It backs
// the server when no audio device is attached.
type Headless struct {
	client   *http.Client
	maxBytes int64
	logger   *logrus.Entry
	events   chan Event
	done     chan struct{}

	mu        sync.Mutex
	latest    uint64
	cur       *transport
	closeOnce sync.Once
}

type transport struct {
	attempt  uint64
	duration time.Duration
	offset   time.Duration
	started  time.Time // zero while paused
	timer    *time.Timer
	gen      uint64
}

// HeadlessOption configures a Headless backend.
type HeadlessOption func(*Headless)

// WithHTTPClient sets the client used to fetch previews.
func WithHTTPClient(c *http.Client) HeadlessOption {
	return func(h *Headless) { h.client = c }
}

// WithMaxPreviewBytes caps the size of a fetched preview.
func WithMaxPreviewBytes(n int64) HeadlessOption {
	return func(h *Headless) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(l *logrus.Entry) HeadlessOption {
	return func(h *Headless) { h.logger = l }
}

// NewHeadless creates a Headless backend.
func NewHeadless(opts ...HeadlessOption) *Headless {
	h := &Headless{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: defaultMaxPreviewBytes,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Events returns the event stream.
func (h *Headless) Events() <-chan Event {
	return h.events
}

// Load fetches and probes the preview of src.Track, then starts the transport.
func (h *Headless) Load(ctx context.Context, src Source) error {
	h.mu.Lock()
	h.latest = src.Attempt
	h.stopLocked()
	h.mu.Unlock()

	track := src.Track
	if track.PreviewURL == "" {
		return &apperrors.PlaybackError{TrackID: track.ID, Err: errNoPreview}
	}

	data, err := h.fetch(ctx, track.PreviewURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &apperrors.PlaybackError{TrackID: track.ID, Err: err}
	}

	duration := h.duration(track.ID, data)
	if duration <= 0 {
		duration = min(time.Duration(track.DurationSeconds)*time.Second, PreviewLength)
	}
	if duration <= 0 {
		duration = PreviewLength
	}

	h.mu.Lock()
	if err := ctx.Err(); err != nil {
		h.mu.Unlock()
		return err
	}
	if h.latest != src.Attempt {
		h.mu.Unlock()
		return errSuperseded
	}
	h.cur = &transport{attempt: src.Attempt, duration: duration}
	h.mu.Unlock()

	h.emit(Event{Kind: EventMetadata, Attempt: src.Attempt, Duration: duration})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil || h.cur.attempt != src.Attempt {
		return errSuperseded
	}
	h.resumeLocked()

	h.logger.WithFields(logrus.Fields{
		"attempt":  src.Attempt,
		"track_id": track.ID,
		"duration": duration,
	}).Debug("Preview loaded")
	return nil
}

func (h *Headless) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &apperrors.NetworkError{Op: "fetch preview", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &apperrors.NetworkError{
			Op:  "fetch preview",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, &apperrors.NetworkError{Op: "read preview", Err: err}
	}
	if int64(len(data)) > h.maxBytes {
		return nil, fmt.Errorf("preview exceeds %d bytes", h.maxBytes)
	}
	return data, nil
}

func (h *Headless) duration(trackID int, data []byte) time.Duration {
	probe, err := ProbeAudio(data)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"track_id": trackID,
			"format":   probe.Format,
			"error":    err.Error(),
		}).Debug("Failed to probe preview duration")
		return 0
	}
	h.logger.WithFields(logrus.Fields{
		"track_id": trackID,
		"format":   probe.Format,
		"title":    probe.Title,
		"artist":   probe.Artist,
		"duration": probe.Duration,
	}).Debug("Probed preview")
	return probe.Duration
}

// Play resumes the transport, restarting from zero when it sits at the end.
func (h *Headless) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return ErrNoSource
	}
	if h.cur.offset >= h.cur.duration {
		h.cur.offset = 0
	}
	h.resumeLocked()
	return nil
}

// Pause freezes the transport at its current position.
func (h *Headless) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return ErrNoSource
	}
	h.cur.offset = h.positionLocked()
	h.cur.started = time.Time{}
	h.disarmLocked()
	return nil
}

// Seek moves the transport, clamped to the source duration.
func (h *Headless) Seek(position time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return ErrNoSource
	}
	h.cur.offset = min(max(position, 0), h.cur.duration)
	if !h.cur.started.IsZero() {
		h.resumeLocked()
	}
	return nil
}

// Stop discards the current source.
func (h *Headless) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

// SetVolume has no output to drive; the level is only logged.
func (h *Headless) SetVolume(level float64) {
	h.logger.WithField("level", level).Debug("Output level changed")
}

// Position returns the transport position.
func (h *Headless) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur == nil {
		return 0
	}
	return h.positionLocked()
}

// Close stops the transport and releases the event stream.
func (h *Headless) Close() error {
	h.closeOnce.Do(func() {
		h.Stop()
		close(h.done)
	})
	return nil
}

func (h *Headless) positionLocked() time.Duration {
	pos := h.cur.offset
	if !h.cur.started.IsZero() {
		pos += time.Since(h.cur.started)
	}
	return min(pos, h.cur.duration)
}

func (h *Headless) resumeLocked() {
	h.disarmLocked()
	h.cur.started = time.Now()
	attempt, gen := h.cur.attempt, h.cur.gen
	h.cur.timer = time.AfterFunc(h.cur.duration-h.cur.offset, func() {
		h.finish(attempt, gen)
	})
}

func (h *Headless) disarmLocked() {
	h.cur.gen++
	if h.cur.timer != nil {
		h.cur.timer.Stop()
		h.cur.timer = nil
	}
}

func (h *Headless) stopLocked() {
	if h.cur == nil {
		return
	}
	h.disarmLocked()
	h.cur = nil
}

func (h *Headless) finish(attempt, gen uint64) {
	h.mu.Lock()
	if h.cur == nil || h.cur.attempt != attempt || h.cur.gen != gen {
		h.mu.Unlock()
		return
	}
	h.cur.offset = h.cur.duration
	h.cur.started = time.Time{}
	h.cur.timer = nil
	h.mu.Unlock()

	h.emit(Event{Kind: EventEnded, Attempt: attempt})
}

func (h *Headless) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}
