package catalog

import (
	"sort"
	"strings"
)

// genreQueries maps a browsable genre to the search term sent to the provider.
var genreQueries = map[string]string{
	"pop":        "pop hits",
	"rock":       "rock classics",
	"hip-hop":    "hip hop",
	"electronic": "electronic dance",
	"jazz":       "jazz standards",
	"classical":  "classical music",
	"country":    "country hits",
	"r&b":        "r&b soul",
}

// Genres lists the browsable genres in stable order.
func Genres() []string {
	names := make([]string, 0, len(genreQueries))
	for name := range genreQueries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenreQuery returns the provider query for genre (case-insensitive).
func GenreQuery(genre string) (string, bool) {
	q, ok := genreQueries[strings.ToLower(strings.TrimSpace(genre))]
	return q, ok
}
