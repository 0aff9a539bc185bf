package models

import "time"

// DefaultAlbumTitle is shown for tracks the provider lists without a collection.
const DefaultAlbumTitle = "Single"

// Track represents a playable catalog entry. Identity is the provider id only.
type Track struct {
	ID              int    `json:"id"`
	Title           string `json:"title"`
	ArtistName      string `json:"artistName"`
	AlbumTitle      string `json:"albumTitle"`
	DurationSeconds int    `json:"durationSeconds"`
	PreviewURL      string `json:"previewUrl,omitempty"`
	ArtworkSmallURL string `json:"artworkSmallUrl,omitempty"`
	ArtworkLargeURL string `json:"artworkLargeUrl,omitempty"`
}

// SameAs reports whether both values refer to the same provider track.
func (t Track) SameAs(other Track) bool {
	return t.ID == other.ID
}

// Playable reports whether the track has a preview source.
func (t Track) Playable() bool {
	return t.PreviewURL != ""
}

// IndexOf returns the position of the first track with the given id, or -1.
func IndexOf(tracks []Track, id int) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Playlist represents a user-created playlist
type Playlist struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Tracks    []Track   `json:"tracks"`
	CreatedAt time.Time `json:"createdAt"`
}

// Contains reports whether the playlist already holds a track with this id.
func (p Playlist) Contains(id int) bool {
	return IndexOf(p.Tracks, id) >= 0
}
