package arr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
)

func TestNewRadarr_Validation(t *testing.T) {
	if _, err := NewRadarr("", "key"); err == nil || !strings.Contains(err.Error(), "base url") {
		t.Errorf("expected base url error, got %v", err)
	}
	if _, err := NewRadarr("http://x", " "); err == nil || !strings.Contains(err.Error(), "api key") {
		t.Errorf("expected api key error, got %v", err)
	}
}

func TestRadarr_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/movie/lookup" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.URL.Query().Get("term"); got != "inception" {
			t.Errorf("term = %q", got)
		}
		w.Write([]byte(`[
			{"title":"Inception","year":2010,"tmdbId":27205,"images":[{"coverType":"poster","remoteUrl":"http://img/p.jpg"}]},
			{"title":"Inception: The Cobol Job","year":2010,"tmdbId":64956,"id":7},
			{"title":"No Catalog","year":1999}
		]`))
	}))
	defer srv.Close()

	r, err := NewRadarr(srv.URL+"/", "secret")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	results, err := r.Search(context.Background(), "inception")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].MediaType != models.MediaMovie || results[0].TmdbID != 27205 {
		t.Errorf("first = %+v", results[0])
	}
	if results[0].PosterURL != "http://img/p.jpg" {
		t.Errorf("poster = %q", results[0].PosterURL)
	}
	if results[0].InLibrary {
		t.Error("first should not be in library")
	}
	if !results[1].InLibrary || results[1].LibraryID != 7 {
		t.Errorf("second = %+v, want in library id 7", results[1])
	}
}

func TestRadarr_LookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	r, _ := NewRadarr(srv.URL, "k")
	res, err := r.LookupByCatalogID(context.Background(), 1)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
}

func TestRadarr_AddPostsBody(t *testing.T) {
	var got radarrAddRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/movie" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42,"title":"Inception","tmdbId":27205}`))
	}))
	defer srv.Close()

	r, _ := NewRadarr(srv.URL, "k")
	added, err := r.Add(context.Background(),
		library.Result{Title: "Inception", Year: 2010, TmdbID: 27205},
		library.AddOptions{QualityProfileID: 4, RootFolder: "/movies", Tags: []int{2}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID != 42 {
		t.Errorf("added id = %d, want 42", added.ID)
	}
	if got.TmdbID != 27205 || got.QualityProfileID != 4 || got.RootFolderPath != "/movies" {
		t.Errorf("body = %+v", got)
	}
	if !got.Monitored || !got.AddOptions.SearchForMovie {
		t.Errorf("expected monitored with search, got %+v", got)
	}
}

func TestRadarr_AddRequiresRootFolder(t *testing.T) {
	r, _ := NewRadarr("http://unused", "k")
	if _, err := r.Add(context.Background(), library.Result{Title: "X"}, library.AddOptions{}); err == nil {
		t.Fatal("expected error without root folder")
	}
}

func TestRadarr_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, _ := NewRadarr(srv.URL, "k")
	_, err := r.Search(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Errorf("error = %v, want StatusError 500", err)
	}
	if IsNotFound(err) {
		t.Error("500 should not be reported as not found")
	}
}

func TestRadarr_HasFileAndInLibrary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/movie/42":
			w.Write([]byte(`{"id":42,"hasFile":true}`))
		case "/api/v3/movie":
			if r.URL.Query().Get("tmdbId") == "27205" {
				w.Write([]byte(`[{"id":42}]`))
				return
			}
			w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r, _ := NewRadarr(srv.URL, "k")
	ctx := context.Background()
	if ok, err := r.HasFile(ctx, 42); err != nil || !ok {
		t.Errorf("HasFile = %v, %v; want true", ok, err)
	}
	if ok, _ := r.InLibrary(ctx, 27205); !ok {
		t.Error("expected 27205 in library")
	}
	if ok, _ := r.InLibrary(ctx, 1); ok {
		t.Error("expected 1 not in library")
	}
}

func TestSonarr_SearchFlagsAnime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"title":"Cowboy Bebop","year":1998,"tvdbId":76885,"tmdbId":30991,"seriesType":"anime",
			 "seasons":[{"seasonNumber":0},{"seasonNumber":1}]},
			{"title":"The Wire","year":2002,"tvdbId":79126,"tmdbId":1438,
			 "seasons":[{"seasonNumber":1},{"seasonNumber":2},{"seasonNumber":3}]},
			{"title":"Unmapped","tvdbId":5}
		]`))
	}))
	defer srv.Close()

	s, _ := NewSonarr(srv.URL, "k")
	results, err := s.Search(context.Background(), "x")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Anime || results[0].Seasons != 1 {
		t.Errorf("bebop = %+v, want anime with 1 season", results[0])
	}
	if results[1].Anime || results[1].Seasons != 3 {
		t.Errorf("wire = %+v, want regular with 3 seasons", results[1])
	}
	if results[1].MediaType != models.MediaTVShow {
		t.Errorf("media type = %q", results[1].MediaType)
	}
}

func TestSonarr_LookupByCatalogID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("term"); got != "tmdb:1438" {
			t.Errorf("term = %q", got)
		}
		w.Write([]byte(`[{"title":"The Wire","tvdbId":79126,"tmdbId":1438}]`))
	}))
	defer srv.Close()

	s, _ := NewSonarr(srv.URL, "k")
	res, err := s.LookupByCatalogID(context.Background(), 1438)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res == nil || res.TvdbID != 79126 {
		t.Fatalf("lookup = %+v", res)
	}
}

func TestSonarr_AddUsesMonitorAndSeriesType(t *testing.T) {
	var got sonarrAddRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":9,"title":"Cowboy Bebop"}`))
	}))
	defer srv.Close()

	s, _ := NewSonarr(srv.URL, "k")
	added, err := s.Add(context.Background(),
		library.Result{Title: "Cowboy Bebop", TvdbID: 76885, TmdbID: 30991, Anime: true},
		library.AddOptions{RootFolder: "/anime", Monitor: "firstSeason"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID != 9 {
		t.Errorf("id = %d", added.ID)
	}
	if got.SeriesType != "anime" || got.AddOptions.Monitor != "firstSeason" || got.RootFolderPath != "/anime" {
		t.Errorf("body = %+v", got)
	}
	if got.Tags == nil {
		t.Error("tags should encode as an empty list")
	}
}

func TestSonarr_AddRequiresTvdb(t *testing.T) {
	s, _ := NewSonarr("http://unused", "k")
	_, err := s.Add(context.Background(), library.Result{Title: "X"}, library.AddOptions{RootFolder: "/tv"})
	if err == nil || !strings.Contains(err.Error(), "tvdb") {
		t.Fatalf("expected tvdb error, got %v", err)
	}
}

func TestSonarr_HasFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":9,"statistics":{"episodeFileCount":3}}`))
	}))
	defer srv.Close()

	s, _ := NewSonarr(srv.URL, "k")
	ok, err := s.HasFile(context.Background(), 9)
	if err != nil || !ok {
		t.Errorf("HasFile = %v, %v", ok, err)
	}
}
