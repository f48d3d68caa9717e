package arr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
)

// Sonarr is a library.Manager for TV series.
type Sonarr struct {
	c *client
}

var _ library.Manager = (*Sonarr)(nil)

// NewSonarr creates a Sonarr client.
func NewSonarr(baseURL, apiKey string, opts ...Option) (*Sonarr, error) {
	c, err := newClient("sonarr", baseURL, apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Sonarr{c: c}, nil
}

type sonarrSeason struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
}

type sonarrStatistics struct {
	EpisodeFileCount int `json:"episodeFileCount"`
}

type sonarrSeries struct {
	ID         int              `json:"id,omitempty"`
	Title      string           `json:"title"`
	Year       int              `json:"year"`
	TvdbID     int              `json:"tvdbId"`
	TmdbID     int              `json:"tmdbId"`
	Overview   string           `json:"overview,omitempty"`
	SeriesType string           `json:"seriesType,omitempty"`
	Genres     []string         `json:"genres,omitempty"`
	Images     []image          `json:"images,omitempty"`
	Seasons    []sonarrSeason   `json:"seasons,omitempty"`
	Statistics sonarrStatistics `json:"statistics"`
}

func (s sonarrSeries) result() library.Result {
	anime := s.SeriesType == "anime"
	for _, g := range s.Genres {
		if g == "Anime" {
			anime = true
		}
	}
	seasons := 0
	for _, season := range s.Seasons {
		if season.SeasonNumber > 0 {
			seasons++
		}
	}
	return library.Result{
		MediaType: models.MediaTVShow,
		Title:     s.Title,
		Year:      s.Year,
		TmdbID:    s.TmdbID,
		TvdbID:    s.TvdbID,
		Overview:  s.Overview,
		PosterURL: posterURL(s.Images),
		LibraryID: s.ID,
		InLibrary: s.ID > 0,
		Anime:     anime,
		Seasons:   seasons,
	}
}

// Search runs /series/lookup. Series without a TMDB id cannot be joined
// against the request ledger and are skipped.
func (s *Sonarr) Search(ctx context.Context, term string) ([]library.Result, error) {
	var series []sonarrSeries
	if err := s.c.get(ctx, "/api/v3/series/lookup", url.Values{"term": {term}}, &series); err != nil {
		return nil, err
	}
	out := make([]library.Result, 0, len(series))
	for _, ser := range series {
		if ser.TmdbID == 0 {
			continue
		}
		out = append(out, ser.result())
	}
	return out, nil
}

// LookupByCatalogID uses the "tmdb:<id>" lookup term.
func (s *Sonarr) LookupByCatalogID(ctx context.Context, tmdbID int) (*library.Result, error) {
	var series []sonarrSeries
	term := "tmdb:" + strconv.Itoa(tmdbID)
	if err := s.c.get(ctx, "/api/v3/series/lookup", url.Values{"term": {term}}, &series); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, ser := range series {
		if ser.TmdbID == tmdbID {
			res := ser.result()
			return &res, nil
		}
	}
	return nil, nil
}

type sonarrAddOptions struct {
	Monitor                  string `json:"monitor"`
	SearchForMissingEpisodes bool   `json:"searchForMissingEpisodes"`
}

type sonarrAddRequest struct {
	Title            string           `json:"title"`
	TvdbID           int              `json:"tvdbId"`
	QualityProfileID int              `json:"qualityProfileId"`
	RootFolderPath   string           `json:"rootFolderPath"`
	SeriesType       string           `json:"seriesType"`
	SeasonFolder     bool             `json:"seasonFolder"`
	Monitored        bool             `json:"monitored"`
	Tags             []int            `json:"tags"`
	AddOptions       sonarrAddOptions `json:"addOptions"`
}

// Add posts the series to /series with the requested monitor scope.
func (s *Sonarr) Add(ctx context.Context, res library.Result, opts library.AddOptions) (library.Added, error) {
	if opts.RootFolder == "" {
		return library.Added{}, fmt.Errorf("sonarr: add %q: root folder required", res.Title)
	}
	if res.TvdbID == 0 {
		return library.Added{}, fmt.Errorf("sonarr: add %q: tvdb id required", res.Title)
	}
	monitor := opts.Monitor
	if monitor == "" {
		monitor = "all"
	}
	seriesType := "standard"
	if res.Anime {
		seriesType = "anime"
	}
	tags := opts.Tags
	if tags == nil {
		tags = []int{}
	}
	body := sonarrAddRequest{
		Title:            res.Title,
		TvdbID:           res.TvdbID,
		QualityProfileID: opts.QualityProfileID,
		RootFolderPath:   opts.RootFolder,
		SeriesType:       seriesType,
		SeasonFolder:     true,
		Monitored:        true,
		Tags:             tags,
		AddOptions: sonarrAddOptions{
			Monitor:                  monitor,
			SearchForMissingEpisodes: true,
		},
	}
	var created sonarrSeries
	if err := s.c.post(ctx, "/api/v3/series", body, &created); err != nil {
		return library.Added{}, err
	}
	return library.Added{ID: created.ID, Title: created.Title}, nil
}

// InLibrary scans /series for the tmdb id.
func (s *Sonarr) InLibrary(ctx context.Context, tmdbID int) (bool, error) {
	var series []sonarrSeries
	if err := s.c.get(ctx, "/api/v3/series", nil, &series); err != nil {
		return false, err
	}
	for _, ser := range series {
		if ser.TmdbID == tmdbID {
			return true, nil
		}
	}
	return false, nil
}

// HasFile reports whether any episode file exists for the series.
func (s *Sonarr) HasFile(ctx context.Context, libraryID int) (bool, error) {
	var ser sonarrSeries
	if err := s.c.get(ctx, "/api/v3/series/"+strconv.Itoa(libraryID), nil, &ser); err != nil {
		return false, err
	}
	return ser.Statistics.EpisodeFileCount > 0, nil
}
