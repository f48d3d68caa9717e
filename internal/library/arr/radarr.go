package arr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
)

// Radarr is a library.Manager for movies.
type Radarr struct {
	c *client
}

var _ library.Manager = (*Radarr)(nil)

// NewRadarr creates a Radarr client.
func NewRadarr(baseURL, apiKey string, opts ...Option) (*Radarr, error) {
	c, err := newClient("radarr", baseURL, apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Radarr{c: c}, nil
}

type radarrMovie struct {
	ID       int     `json:"id,omitempty"`
	Title    string  `json:"title"`
	Year     int     `json:"year"`
	TmdbID   int     `json:"tmdbId"`
	Overview string  `json:"overview,omitempty"`
	Images   []image `json:"images,omitempty"`
	HasFile  bool    `json:"hasFile"`
}

func (m radarrMovie) result() library.Result {
	return library.Result{
		MediaType: models.MediaMovie,
		Title:     m.Title,
		Year:      m.Year,
		TmdbID:    m.TmdbID,
		Overview:  m.Overview,
		PosterURL: posterURL(m.Images),
		LibraryID: m.ID,
		InLibrary: m.ID > 0,
	}
}

// Search runs /movie/lookup.
func (r *Radarr) Search(ctx context.Context, term string) ([]library.Result, error) {
	var movies []radarrMovie
	if err := r.c.get(ctx, "/api/v3/movie/lookup", url.Values{"term": {term}}, &movies); err != nil {
		return nil, err
	}
	out := make([]library.Result, 0, len(movies))
	for _, m := range movies {
		if m.TmdbID == 0 {
			continue
		}
		out = append(out, m.result())
	}
	return out, nil
}

// LookupByCatalogID runs /movie/lookup/tmdb.
func (r *Radarr) LookupByCatalogID(ctx context.Context, tmdbID int) (*library.Result, error) {
	var m radarrMovie
	err := r.c.get(ctx, "/api/v3/movie/lookup/tmdb", url.Values{"tmdbId": {strconv.Itoa(tmdbID)}}, &m)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if m.TmdbID == 0 {
		return nil, nil
	}
	res := m.result()
	return &res, nil
}

type radarrAddOptions struct {
	SearchForMovie bool `json:"searchForMovie"`
}

type radarrAddRequest struct {
	Title            string           `json:"title"`
	Year             int              `json:"year,omitempty"`
	TmdbID           int              `json:"tmdbId"`
	QualityProfileID int              `json:"qualityProfileId"`
	RootFolderPath   string           `json:"rootFolderPath"`
	Monitored        bool             `json:"monitored"`
	MinimumAvail     string           `json:"minimumAvailability"`
	Tags             []int            `json:"tags"`
	AddOptions       radarrAddOptions `json:"addOptions"`
}

// Add posts the movie to /movie and triggers a search.
func (r *Radarr) Add(ctx context.Context, res library.Result, opts library.AddOptions) (library.Added, error) {
	if opts.RootFolder == "" {
		return library.Added{}, fmt.Errorf("radarr: add %q: root folder required", res.Title)
	}
	tags := opts.Tags
	if tags == nil {
		tags = []int{}
	}
	body := radarrAddRequest{
		Title:            res.Title,
		Year:             res.Year,
		TmdbID:           res.TmdbID,
		QualityProfileID: opts.QualityProfileID,
		RootFolderPath:   opts.RootFolder,
		Monitored:        true,
		MinimumAvail:     "released",
		Tags:             tags,
		AddOptions:       radarrAddOptions{SearchForMovie: true},
	}
	var created radarrMovie
	if err := r.c.post(ctx, "/api/v3/movie", body, &created); err != nil {
		return library.Added{}, err
	}
	return library.Added{ID: created.ID, Title: created.Title}, nil
}

// InLibrary queries /movie?tmdbId=.
func (r *Radarr) InLibrary(ctx context.Context, tmdbID int) (bool, error) {
	var movies []radarrMovie
	if err := r.c.get(ctx, "/api/v3/movie", url.Values{"tmdbId": {strconv.Itoa(tmdbID)}}, &movies); err != nil {
		return false, err
	}
	return len(movies) > 0, nil
}

// HasFile reads /movie/{id}.
func (r *Radarr) HasFile(ctx context.Context, libraryID int) (bool, error) {
	var m radarrMovie
	if err := r.c.get(ctx, "/api/v3/movie/"+strconv.Itoa(libraryID), nil, &m); err != nil {
		return false, err
	}
	return m.HasFile, nil
}
