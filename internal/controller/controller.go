// Package controller runs a playback session against a media backend.
//
// All state changes happen on one goroutine. Public methods hand a closure to
// that goroutine and wait for it to run; media events, load results and timer
// callbacks are funnelled through the same loop, so transitions never race.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/media"
	"soundstorm/internal/player"
	"soundstorm/pkg/models"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("controller closed")

// MaxSleepTimerMinutes bounds SetSleepTimer.
const MaxSleepTimerMinutes = 24 * 60

// History receives every track that begins playback.
type History interface {
	RecordRecentlyPlayed(track models.Track) []models.Track
}

// Options configures a Controller.
type Options struct {
	Volume           float64
	AutoPlay         bool
	ProgressInterval time.Duration
	Clock            Clock
	Logger           *logrus.Entry
}

// Controller owns one playback session.
type Controller struct {
	session  *player.Session
	backend  media.Backend
	history  History
	clock    Clock
	logger   *logrus.Entry
	interval time.Duration

	cmds    chan command
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// owned by the loop goroutine
	ctx        context.Context
	cancel     context.CancelFunc
	cancelLoad context.CancelFunc
	ticker     Ticker
	sleepTimer Timer
	sleepGen   uint64
	published  uint64

	current atomic.Pointer[player.State]

	listenersMu sync.Mutex
	listeners   map[chan player.State]struct{}
}

// New creates a controller and starts its loop.
func New(backend media.Backend, history History, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		session:   player.NewSession(opts.Volume, opts.AutoPlay),
		backend:   backend,
		history:   history,
		clock:     opts.Clock,
		logger:    opts.Logger,
		interval:  opts.ProgressInterval,
		cmds:      make(chan command),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[chan player.State]struct{}),
	}
	st := c.session.State()
	c.current.Store(&st)
	c.published = c.session.Version()
	c.backend.SetVolume(st.EffectiveVolume())

	go c.run()
	return c
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() player.State {
	return *c.current.Load()
}

// Load plays track, replacing the queue unless queue is nil. An empty
// non-nil queue clears it. Loading the current track toggles pause.
func (c *Controller) Load(track models.Track, queue []models.Track) error {
	return c.do(func() {
		c.execute(c.session.Load(track, queue))
	})
}

// Play resumes, restarts an ended track, or retries a failed load.
func (c *Controller) Play() error {
	return c.do(func() {
		c.execute(c.session.Play())
	})
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	return c.do(func() {
		if c.session.Pause() {
			c.execute(player.Command{Action: player.ActionPause})
		}
	})
}

// Next plays the following queue entry.
func (c *Controller) Next() error {
	return c.do(func() {
		c.execute(c.session.Next())
	})
}

// Previous plays the preceding queue entry.
func (c *Controller) Previous() error {
	return c.do(func() {
		c.execute(c.session.Previous())
	})
}

// Seek moves playback to seconds, clamped to the track duration. Seeking is
// ignored until the duration is known.
func (c *Controller) Seek(seconds int) error {
	return c.do(func() {
		pos, ok := c.session.Seek(seconds)
		if !ok {
			return
		}
		if err := c.backend.Seek(time.Duration(pos) * time.Second); err != nil {
			c.logger.WithError(err).Debug("Backend rejected seek")
		}
	})
}

// SetVolume sets the stored volume, clamped to [0,1].
func (c *Controller) SetVolume(v float64) error {
	return c.do(func() {
		c.session.SetVolume(v)
		c.applyVolume()
	})
}

// SetMuted mutes or unmutes output without touching the stored volume.
func (c *Controller) SetMuted(muted bool) error {
	return c.do(func() {
		c.session.SetMuted(muted)
		c.applyVolume()
	})
}

// SetAutoPlay controls advancing to the next track when one ends.
func (c *Controller) SetAutoPlay(on bool) error {
	return c.do(func() {
		c.session.SetAutoPlay(on)
	})
}

// SetSleepTimer pauses playback after minutes. It replaces any pending timer;
// zero cancels.
func (c *Controller) SetSleepTimer(minutes int) error {
	if minutes < 0 || minutes > MaxSleepTimerMinutes {
		return apperrors.Invalid("minutes", "must be between 0 and 1440")
	}
	return c.do(func() {
		c.armSleepTimer(minutes)
	})
}

// Subscribe returns a channel receiving every published state. Slow
// subscribers miss intermediate states but always get the latest.
func (c *Controller) Subscribe() <-chan player.State {
	ch := make(chan player.State, 8)
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	if c.listeners == nil {
		close(ch)
		return ch
	}
	ch <- c.Snapshot()
	c.listeners[ch] = struct{}{}
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (c *Controller) Unsubscribe(ch <-chan player.State) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for l := range c.listeners {
		if l == ch {
			delete(c.listeners, l)
			close(l)
			return
		}
	}
}

// Close stops playback, resets the session, closes subscriber channels and
// releases the backend.
func (c *Controller) Close() error {
	var err error
	c.once.Do(func() {
		close(c.quit)
		<-c.stopped
		err = c.backend.Close()
	})
	return err
}

// command is a closure run on the loop. done, when set, is closed once the
// resulting state has been published.
type command struct {
	fn   func()
	done chan struct{}
}

func (c *Controller) do(fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmds <- command{fn: fn, done: done}:
	case <-c.quit:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrClosed
	}
}

// post queues fn without waiting. It is used from goroutines other than the loop.
func (c *Controller) post(fn func()) {
	select {
	case c.cmds <- command{fn: fn}:
	case <-c.quit:
	}
}

func (c *Controller) run() {
	defer close(c.stopped)

	events := c.backend.Events()
	for {
		var tick <-chan time.Time
		if c.ticker != nil {
			tick = c.ticker.C()
		}

		var done chan struct{}
		select {
		case cmd := <-c.cmds:
			cmd.fn()
			done = cmd.done
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		case <-tick:
			c.sampleProgress()
		case <-c.quit:
			c.teardown()
			return
		}

		c.syncTicker()
		c.publish()
		if done != nil {
			close(done)
		}
	}
}

func (c *Controller) execute(cmd player.Command) {
	switch cmd.Action {
	case player.ActionBegin:
		c.begin(cmd)
	case player.ActionResume:
		if err := c.backend.Play(); err != nil {
			c.sourceFailed(cmd.Attempt, err)
		}
	case player.ActionPause:
		if err := c.backend.Pause(); err != nil {
			c.logger.WithError(err).Debug("Backend rejected pause")
		}
	case player.ActionRestart:
		if err := c.backend.Seek(0); err == nil {
			err = c.backend.Play()
			if err != nil {
				c.sourceFailed(cmd.Attempt, err)
			}
		} else {
			c.sourceFailed(cmd.Attempt, err)
		}
	}
}

// begin starts a playback attempt. The backend work runs off the loop and
// reports back through post; a newer attempt cancels the older one.
func (c *Controller) begin(cmd player.Command) {
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.backend.Stop()
	c.history.RecordRecentlyPlayed(cmd.Track)

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelLoad = cancel

	c.logger.WithFields(logrus.Fields{
		"attempt":  cmd.Attempt,
		"track_id": cmd.Track.ID,
		"title":    cmd.Track.Title,
	}).Debug("Beginning playback")

	go func() {
		err := c.backend.Load(ctx, media.Source{Attempt: cmd.Attempt, Track: cmd.Track})
		c.post(func() { c.settle(cmd, err) })
	}()
}

func (c *Controller) settle(cmd player.Command, err error) {
	if err == nil {
		if c.session.LoadSucceeded(cmd.Attempt) {
			c.cancelLoad = nil
			c.applyVolume()
			if c.session.State().Status == player.StatusPaused {
				c.execute(player.Command{Action: player.ActionPause, Attempt: cmd.Attempt})
				c.logger.Info("Sleep timer paused playback")
			}
		}
		return
	}

	var perr *apperrors.PlaybackError
	if !errors.As(err, &perr) {
		perr = &apperrors.PlaybackError{TrackID: cmd.Track.ID, Err: err}
	}
	if !c.session.LoadFailed(cmd.Attempt, perr) {
		return
	}
	c.cancelLoad = nil
	c.logger.WithFields(logrus.Fields{
		"attempt":  cmd.Attempt,
		"track_id": cmd.Track.ID,
		"error":    err.Error(),
	}).Warn("Playback failed to start")
}

func (c *Controller) sourceFailed(attempt uint64, err error) {
	track := c.session.State().Track
	if track == nil {
		return
	}
	perr := &apperrors.PlaybackError{TrackID: track.ID, Err: err}
	if c.session.SourceFailed(attempt, perr) {
		c.logger.WithFields(logrus.Fields{
			"attempt":  attempt,
			"track_id": track.ID,
			"error":    err.Error(),
		}).Warn("Playback source failed")
	}
}

func (c *Controller) handleEvent(ev media.Event) {
	switch ev.Kind {
	case media.EventMetadata:
		c.session.MetadataReady(ev.Attempt, seconds(ev.Duration))
	case media.EventProgress:
		c.session.Progress(ev.Attempt, seconds(ev.Position))
	case media.EventEnded:
		advance, ok := c.session.Ended(ev.Attempt)
		if ok && advance {
			c.execute(c.session.Next())
		}
	case media.EventError:
		c.sourceFailed(ev.Attempt, ev.Err)
	}
}

func (c *Controller) sampleProgress() {
	c.session.Progress(c.session.Attempt(), seconds(c.backend.Position()))
}

// syncTicker keeps the progress ticker running exactly while playing.
func (c *Controller) syncTicker() {
	playing := c.session.State().Status == player.StatusPlaying
	switch {
	case playing && c.ticker == nil:
		c.ticker = c.clock.NewTicker(c.interval)
	case !playing && c.ticker != nil:
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) armSleepTimer(minutes int) {
	if c.sleepTimer != nil {
		c.sleepTimer.Stop()
		c.sleepTimer = nil
	}
	c.sleepGen++
	c.session.SetSleepTimer(minutes)
	if minutes == 0 {
		return
	}

	gen := c.sleepGen
	c.sleepTimer = c.clock.AfterFunc(time.Duration(minutes)*time.Minute, func() {
		c.post(func() { c.sleepFired(gen) })
	})
}

func (c *Controller) sleepFired(gen uint64) {
	if gen != c.sleepGen {
		return
	}
	c.sleepTimer = nil
	if c.session.SleepFired() {
		c.execute(player.Command{Action: player.ActionPause})
		c.logger.Info("Sleep timer paused playback")
	}
}

func (c *Controller) applyVolume() {
	c.backend.SetVolume(c.session.State().EffectiveVolume())
}

func (c *Controller) teardown() {
	c.cancel()
	if c.sleepTimer != nil {
		c.sleepTimer.Stop()
		c.sleepTimer = nil
	}
	c.sleepGen++
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.backend.Stop()
	c.session.Reset()
	c.publish()

	c.listenersMu.Lock()
	for l := range c.listeners {
		close(l)
	}
	c.listeners = nil
	c.listenersMu.Unlock()
}

func (c *Controller) publish() {
	v := c.session.Version()
	if v == c.published {
		return
	}
	c.published = v
	st := c.session.State()
	c.current.Store(&st)

	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for l := range c.listeners {
		select {
		case l <- st:
		default:
			// drop the oldest queued state so the newest one always lands
			select {
			case <-l:
			default:
			}
			select {
			case l <- st:
			default:
			}
		}
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
