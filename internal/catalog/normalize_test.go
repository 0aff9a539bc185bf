package catalog

import (
	"testing"

	"soundstorm/pkg/models"
)

func TestNormalize(t *testing.T) {
	raw := RawTrack{
		TrackID:         1440857781,
		TrackName:       "Blinding Lights",
		ArtistName:      "The Weeknd",
		CollectionName:  "After Hours",
		ArtworkURL100:   "https://is1-ssl.mzstatic.com/image/thumb/Music115/v4/ab/cd/source/100x100bb.jpg",
		PreviewURL:      "https://audio-ssl.itunes.apple.com/preview.m4a",
		TrackTimeMillis: 200040,
	}

	track := Normalize(raw)

	if track.ID != raw.TrackID {
		t.Errorf("expected id %d, got %d", raw.TrackID, track.ID)
	}
	if track.DurationSeconds != 200 {
		t.Errorf("expected floor(200040/1000)=200, got %d", track.DurationSeconds)
	}
	if track.AlbumTitle != "After Hours" {
		t.Errorf("expected album title, got %q", track.AlbumTitle)
	}
	want := "https://is1-ssl.mzstatic.com/image/thumb/Music115/v4/ab/cd/source/600x600bb.jpg"
	if track.ArtworkLargeURL != want {
		t.Errorf("expected large artwork %q, got %q", want, track.ArtworkLargeURL)
	}
	if track.ArtworkSmallURL != raw.ArtworkURL100 {
		t.Errorf("expected small artwork to be kept, got %q", track.ArtworkSmallURL)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	track := Normalize(RawTrack{TrackID: 7, TrackName: "Loose Demo", ArtistName: "Someone"})

	if track.DurationSeconds != 0 {
		t.Errorf("expected zero duration for missing field, got %d", track.DurationSeconds)
	}
	if track.AlbumTitle != models.DefaultAlbumTitle {
		t.Errorf("expected default album %q, got %q", models.DefaultAlbumTitle, track.AlbumTitle)
	}
	if track.ArtworkSmallURL != "" || track.ArtworkLargeURL != "" {
		t.Errorf("expected absent artwork, got %q / %q", track.ArtworkSmallURL, track.ArtworkLargeURL)
	}
	if track.Playable() {
		t.Error("expected track without preview to be unplayable")
	}
}

func TestLargeArtworkURL(t *testing.T) {
	tests := []struct {
		name  string
		small string
		want  string
	}{
		{"standard token", ".../100x100bb.jpg", ".../600x600bb.jpg"},
		{"other resolution", "https://a/b/60x60bb.png", "https://a/b/600x600bb.png"},
		{"only last token replaced", "https://a/1x1/100x100bb.jpg", "https://a/1x1/600x600bb.jpg"},
		{"no token falls back", "https://a/b/cover.jpg", "https://a/b/cover.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LargeArtworkURL(tt.small); got != tt.want {
				t.Errorf("LargeArtworkURL(%q) = %q, want %q", tt.small, got, tt.want)
			}
		})
	}
}
