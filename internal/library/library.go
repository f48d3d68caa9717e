// Package library defines the contract Marquee uses to talk to media
// library managers (Radarr for movies, Sonarr for TV).
package library

import (
	"context"
	"strconv"

	"github.com/zulandar/marquee/internal/models"
)

// Result is a normalized search hit from a library manager.
type Result struct {
	MediaType models.MediaType `json:"mediaType"`
	Title     string           `json:"title"`
	Year      int              `json:"year,omitempty"`
	TmdbID    int              `json:"tmdbId"`
	TvdbID    int              `json:"tvdbId,omitempty"`
	Overview  string           `json:"overview,omitempty"`
	PosterURL string           `json:"posterUrl,omitempty"`
	// LibraryID is the manager's own id when the item is already in the library.
	LibraryID int  `json:"libraryId,omitempty"`
	InLibrary bool `json:"inLibrary"`
	// Anime is set for series the manager classifies as anime.
	Anime   bool `json:"anime,omitempty"`
	Seasons int  `json:"seasons,omitempty"`
}

// DisplayTitle returns "Title (Year)" or just the title when the year is unknown.
func (r Result) DisplayTitle() string {
	if r.Year > 0 {
		return r.Title + " (" + strconv.Itoa(r.Year) + ")"
	}
	return r.Title
}

// AddOptions control how an item is added to a library.
type AddOptions struct {
	QualityProfileID int
	RootFolder       string
	Tags             []int
	// Monitor is the season-monitor scope for series ("all", "future", ...).
	Monitor string
}

// Added is the manager's acknowledgement of an add call.
type Added struct {
	ID    int
	Title string
}

// Manager is one library manager instance.
type Manager interface {
	// Search looks up candidates by free-text term.
	Search(ctx context.Context, term string) ([]Result, error)
	// LookupByCatalogID resolves a TMDB id; nil when the manager knows nothing.
	LookupByCatalogID(ctx context.Context, tmdbID int) (*Result, error)
	// Add sends the item to the manager and returns its library id.
	Add(ctx context.Context, r Result, opts AddOptions) (Added, error)
	// InLibrary reports whether the catalog id is already managed.
	InLibrary(ctx context.Context, tmdbID int) (bool, error)
	// HasFile reports whether the managed item (by library id) has been downloaded.
	HasFile(ctx context.Context, libraryID int) (bool, error)
}

// MonitorOption is one season-monitor choice offered to the user.
type MonitorOption struct {
	Value string
	Label string
}

// MonitorOptions is the ordered menu shown in awaiting_season_selection.
var MonitorOptions = []MonitorOption{
	{Value: "all", Label: "All seasons"},
	{Value: "future", Label: "Future episodes only"},
	{Value: "firstSeason", Label: "First season only"},
	{Value: "latestSeason", Label: "Latest season only"},
	{Value: "missing", Label: "Missing episodes"},
}
