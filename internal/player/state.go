// Package player implements the playback session state machine. It is pure
// and synchronous: it decides transitions and tells the caller what the media
// side has to do, but never touches media or timers itself.
package player

import (
	"math"
	"slices"
	"time"

	"soundstorm/pkg/models"
)

// Status of the transport.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

// State is an immutable snapshot of the session.
type State struct {
	Queue             []models.Track `json:"queue"`
	CurrentIndex      int            `json:"currentIndex"`
	Track             *models.Track  `json:"track,omitempty"`
	Status            Status         `json:"status"`
	PositionSeconds   int            `json:"positionSeconds"`
	DurationSeconds   int            `json:"durationSeconds"`
	Volume            float64        `json:"volume"` // 0.0 to 1.0
	Muted             bool           `json:"muted"`
	SleepTimerMinutes int            `json:"sleepTimerMinutes"`
	AutoPlay          bool           `json:"autoPlay"`
	LastError         string         `json:"lastError,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// EffectiveVolume is the output level: zero while muted, the stored volume otherwise.
func (s State) EffectiveVolume() float64 {
	if s.Muted {
		return 0
	}
	return s.Volume
}

// Action tells the caller which media operation a transition needs.
type Action int

const (
	ActionNone    Action = iota
	ActionBegin          // stop the current source and begin playback of Command.Track
	ActionResume         // resume the loaded source
	ActionPause          // pause the loaded source
	ActionRestart        // seek the loaded source to zero and resume
)

// Command is the media work resulting from a transition.
type Command struct {
	Action  Action
	Attempt uint64
	Track   models.Track
}

// Session is the playback state machine. It is not safe for concurrent use;
// the owning controller serializes every call.
type Session struct {
	state       State
	attempt     uint64
	sourceReady bool
	pauseOnLoad bool
	version     uint64
	now         func() time.Time
}

// NewSession creates an idle session.
func NewSession(volume float64, autoPlay bool) *Session {
	s := &Session{now: time.Now}
	s.state = State{
		Queue:        []models.Track{},
		CurrentIndex: -1,
		Status:       StatusIdle,
		Volume:       clampVolume(volume, 1.0),
		AutoPlay:     autoPlay,
	}
	s.touch()
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	st := s.state
	st.Queue = slices.Clip(st.Queue)
	if st.Track != nil {
		t := *st.Track
		st.Track = &t
	}
	return st
}

// Attempt is the id of the newest begin-playback attempt.
func (s *Session) Attempt() uint64 {
	return s.attempt
}

// Version increases on every mutation.
func (s *Session) Version() uint64 {
	return s.version
}

// Load starts track. Loading the current track again pauses it while it plays
// and resumes it while paused. A nil queue keeps the existing queue.
func (s *Session) Load(track models.Track, queue []models.Track) Command {
	if cur := s.state.Track; cur != nil && cur.SameAs(track) {
		switch s.state.Status {
		case StatusPlaying:
			s.Pause()
			return Command{Action: ActionPause, Attempt: s.attempt}
		case StatusPaused:
			if s.sourceReady {
				return s.Play()
			}
		}
	}

	if queue != nil {
		s.state.Queue = slices.Clip(slices.Clone(queue))
	}
	return s.begin(track, models.IndexOf(s.state.Queue, track.ID))
}

// Next moves to the following queue entry, wrapping at the end.
func (s *Session) Next() Command {
	return s.step(1)
}

// Previous moves to the preceding queue entry, wrapping at the start.
func (s *Session) Previous() Command {
	return s.step(-1)
}

func (s *Session) step(delta int) Command {
	n := len(s.state.Queue)
	if n == 0 {
		return Command{}
	}
	i := mod(s.state.CurrentIndex+delta, n)
	return s.begin(s.state.Queue[i], i)
}

func (s *Session) begin(track models.Track, index int) Command {
	s.attempt++
	s.sourceReady = false
	s.pauseOnLoad = false
	s.state.Track = &track
	s.state.CurrentIndex = index
	s.state.PositionSeconds = 0
	s.state.DurationSeconds = 0
	s.state.Status = StatusLoading
	s.state.LastError = ""
	s.touch()
	return Command{Action: ActionBegin, Attempt: s.attempt, Track: track}
}

// LoadSucceeded moves the attempt's Loading state to Playing, or to Paused
// when the sleep timer fired during the load. It reports false for a
// superseded attempt, whose result must be discarded.
func (s *Session) LoadSucceeded(attempt uint64) bool {
	if attempt != s.attempt || s.state.Status != StatusLoading {
		return false
	}
	s.sourceReady = true
	s.state.Status = StatusPlaying
	if s.pauseOnLoad {
		s.pauseOnLoad = false
		s.state.Status = StatusPaused
	}
	s.touch()
	return true
}

// LoadFailed parks the session in Paused with the error recorded. Play retries the load.
func (s *Session) LoadFailed(attempt uint64, err error) bool {
	if attempt != s.attempt || s.state.Status != StatusLoading {
		return false
	}
	s.fail(err)
	return true
}

// SourceFailed records a media failure of the loaded source.
func (s *Session) SourceFailed(attempt uint64, err error) bool {
	if attempt != s.attempt || s.state.Track == nil {
		return false
	}
	s.fail(err)
	return true
}

func (s *Session) fail(err error) {
	s.sourceReady = false
	s.pauseOnLoad = false
	s.state.Status = StatusPaused
	if err != nil {
		s.state.LastError = err.Error()
	}
	s.touch()
}

// Play resumes a paused source, restarts an ended one, or retries a failed load.
func (s *Session) Play() Command {
	switch s.state.Status {
	case StatusPaused:
		if !s.sourceReady {
			return s.begin(*s.state.Track, s.state.CurrentIndex)
		}
		s.state.Status = StatusPlaying
		s.touch()
		return Command{Action: ActionResume, Attempt: s.attempt}
	case StatusEnded:
		s.state.Status = StatusPlaying
		s.state.PositionSeconds = 0
		s.touch()
		return Command{Action: ActionRestart, Attempt: s.attempt}
	}
	return Command{}
}

// Pause stops a playing transport. It reports whether anything changed.
func (s *Session) Pause() bool {
	if s.state.Status != StatusPlaying {
		return false
	}
	s.state.Status = StatusPaused
	s.touch()
	return true
}

// Seek clamps seconds to [0, duration] and moves the position. It is refused
// until the duration is known.
func (s *Session) Seek(seconds int) (int, bool) {
	switch s.state.Status {
	case StatusIdle, StatusLoading:
		return 0, false
	}
	if s.state.DurationSeconds <= 0 {
		return 0, false
	}

	seconds = min(max(seconds, 0), s.state.DurationSeconds)
	s.state.PositionSeconds = seconds
	if s.state.Status == StatusEnded && seconds < s.state.DurationSeconds {
		s.state.Status = StatusPaused
	}
	s.touch()
	return seconds, true
}

// SetVolume clamps v to [0,1]. NaN leaves the volume unchanged.
func (s *Session) SetVolume(v float64) float64 {
	s.state.Volume = clampVolume(v, s.state.Volume)
	s.touch()
	return s.state.Volume
}

// SetMuted changes the mute flag; the stored volume is kept.
func (s *Session) SetMuted(muted bool) {
	s.state.Muted = muted
	s.touch()
}

// SetAutoPlay controls whether the end of a track advances the queue.
func (s *Session) SetAutoPlay(on bool) {
	s.state.AutoPlay = on
	s.touch()
}

// SetSleepTimer records the pending timer length; 0 means none.
func (s *Session) SetSleepTimer(minutes int) {
	s.state.SleepTimerMinutes = max(minutes, 0)
	s.touch()
}

// SleepFired clears the timer and pauses. A load in flight is paused as soon
// as it succeeds. It reports whether a playing transport was paused.
func (s *Session) SleepFired() bool {
	s.state.SleepTimerMinutes = 0
	if s.state.Status == StatusLoading {
		s.pauseOnLoad = true
	}
	paused := s.Pause()
	s.touch()
	return paused
}

// MetadataReady records the duration reported by the media side.
func (s *Session) MetadataReady(attempt uint64, durationSeconds int) bool {
	if attempt != s.attempt || s.state.Track == nil {
		return false
	}
	s.state.DurationSeconds = max(durationSeconds, 0)
	s.state.PositionSeconds = min(s.state.PositionSeconds, s.state.DurationSeconds)
	s.touch()
	return true
}

// Progress records a sampled position while playing.
func (s *Session) Progress(attempt uint64, positionSeconds int) bool {
	if attempt != s.attempt || s.state.Status != StatusPlaying {
		return false
	}
	positionSeconds = max(positionSeconds, 0)
	if s.state.DurationSeconds > 0 {
		positionSeconds = min(positionSeconds, s.state.DurationSeconds)
	}
	if positionSeconds == s.state.PositionSeconds {
		return false
	}
	s.state.PositionSeconds = positionSeconds
	s.touch()
	return true
}

// Ended moves Playing to Ended with the position held at the end. The first
// result tells the caller to advance the queue (auto play).
func (s *Session) Ended(attempt uint64) (advance bool, ok bool) {
	if attempt != s.attempt || s.state.Status != StatusPlaying {
		return false, false
	}
	s.state.Status = StatusEnded
	s.state.PositionSeconds = s.state.DurationSeconds
	s.touch()
	return s.state.AutoPlay, true
}

// Reset returns the session to Idle and invalidates any in-flight attempt.
func (s *Session) Reset() {
	s.attempt++
	s.sourceReady = false
	s.pauseOnLoad = false
	s.state.Queue = []models.Track{}
	s.state.CurrentIndex = -1
	s.state.Track = nil
	s.state.Status = StatusIdle
	s.state.PositionSeconds = 0
	s.state.DurationSeconds = 0
	s.state.SleepTimerMinutes = 0
	s.state.LastError = ""
	s.touch()
}

func (s *Session) touch() {
	s.version++
	s.state.UpdatedAt = s.now()
}

func clampVolume(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return min(max(v, 0), 1)
}

func mod(i, n int) int {
	return ((i % n) + n) % n
}
