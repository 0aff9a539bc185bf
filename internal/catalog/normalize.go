package catalog

import (
	"regexp"
	"strings"

	"soundstorm/pkg/models"
)

const largeArtworkToken = "600x600"

// artworkToken matches the resolution segment in provider artwork URLs ("100x100bb.jpg").
var artworkToken = regexp.MustCompile(`\d+x\d+`)

// RawTrack is one record as returned by the catalog provider's search endpoint.
type RawTrack struct {
	TrackID         int    `json:"trackId"`
	TrackName       string `json:"trackName"`
	ArtistName      string `json:"artistName"`
	CollectionName  string `json:"collectionName,omitempty"`
	ArtworkURL100   string `json:"artworkUrl100,omitempty"`
	PreviewURL      string `json:"previewUrl,omitempty"`
	TrackTimeMillis int64  `json:"trackTimeMillis,omitempty"`
	PrimaryGenre    string `json:"primaryGenreName,omitempty"`
}

// Normalize maps a provider record to a canonical Track. It never fails:
// missing fields become defaults and the caller decides what to filter.
func Normalize(raw RawTrack) models.Track {
	track := models.Track{
		ID:              raw.TrackID,
		Title:           strings.TrimSpace(raw.TrackName),
		ArtistName:      strings.TrimSpace(raw.ArtistName),
		AlbumTitle:      strings.TrimSpace(raw.CollectionName),
		PreviewURL:      raw.PreviewURL,
		ArtworkSmallURL: raw.ArtworkURL100,
	}

	if track.AlbumTitle == "" {
		track.AlbumTitle = models.DefaultAlbumTitle
	}
	if raw.TrackTimeMillis > 0 {
		track.DurationSeconds = int(raw.TrackTimeMillis / 1000)
	}
	if raw.ArtworkURL100 != "" {
		track.ArtworkLargeURL = LargeArtworkURL(raw.ArtworkURL100)
	}

	return track
}

// NormalizeAll maps every record, preserving order.
func NormalizeAll(raws []RawTrack) []models.Track {
	tracks := make([]models.Track, 0, len(raws))
	for _, raw := range raws {
		tracks = append(tracks, Normalize(raw))
	}
	return tracks
}

// LargeArtworkURL swaps the last resolution token of small for 600x600.
// URLs without a token are returned unchanged.
func LargeArtworkURL(small string) string {
	locs := artworkToken.FindAllStringIndex(small, -1)
	if len(locs) == 0 {
		return small
	}
	last := locs[len(locs)-1]
	return small[:last[0]] + largeArtworkToken + small[last[1]:]
}
