// Package media drives audio sources for the playback controller.
package media

import (
	"context"
	"errors"
	"time"

	"soundstorm/pkg/models"
)

// ErrNoSource is returned by transport calls made before a source is loaded.
var ErrNoSource = errors.New("no source loaded")

// Source is one begin-playback attempt.
type Source struct {
	Attempt uint64
	Track   models.Track
}

// EventKind identifies a media event.
type EventKind int

const (
	EventMetadata EventKind = iota + 1 // duration known
	EventProgress
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMetadata:
		return "metadata"
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is emitted by a Backend. Attempt ties it to the Source that produced it.
type Event struct {
	Kind     EventKind
	Attempt  uint64
	Duration time.Duration
	Position time.Duration
	Err      error
}

// Backend plays one source at a time.
//
// Load replaces whatever source was active and begins playback once the
// source is ready. A Load whose context is cancelled, or which has been
// superseded by a later Load, must not start playback.
type Backend interface {
	Load(ctx context.Context, src Source) error
	Play() error
	Pause() error
	Seek(position time.Duration) error
	Stop()
	SetVolume(level float64)
	Position() time.Duration
	Events() <-chan Event
	Close() error
}
