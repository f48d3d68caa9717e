package library

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-memory Manager used by tests across packages. It matches
// search terms by case-insensitive substring of the title.
type Fake struct {
	mu        sync.Mutex
	Catalog   []Result
	SearchErr error
	AddErr    error
	Adds      []FakeAdd
	Lookups   int
	nextID    int
	files     map[int]bool
}

// FakeAdd records one Add call.
type FakeAdd struct {
	Result  Result
	Options AddOptions
}

// Search returns catalog entries whose title contains term.
func (f *Fake) Search(ctx context.Context, term string) ([]Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	term = strings.ToLower(strings.TrimSpace(term))
	var out []Result
	for _, r := range f.Catalog {
		if strings.Contains(strings.ToLower(r.Title), term) {
			out = append(out, r)
		}
	}
	return out, nil
}

// LookupByCatalogID returns the catalog entry with the tmdb id.
func (f *Fake) LookupByCatalogID(ctx context.Context, tmdbID int) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lookups++
	for _, r := range f.Catalog {
		if r.TmdbID == tmdbID {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

// Add records the call and marks the catalog entry as in-library.
func (f *Fake) Add(ctx context.Context, r Result, opts AddOptions) (Added, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		return Added{}, f.AddErr
	}
	f.nextID++
	f.Adds = append(f.Adds, FakeAdd{Result: r, Options: opts})
	for i := range f.Catalog {
		if f.Catalog[i].TmdbID == r.TmdbID {
			f.Catalog[i].InLibrary = true
			f.Catalog[i].LibraryID = f.nextID
		}
	}
	return Added{ID: f.nextID, Title: r.Title}, nil
}

// InLibrary reports whether Add has been called for the tmdb id or the
// catalog entry was seeded as in-library.
func (f *Fake) InLibrary(ctx context.Context, tmdbID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.Catalog {
		if r.TmdbID == tmdbID {
			return r.InLibrary, nil
		}
	}
	return false, nil
}

// HasFile reports whether SetHasFile marked the library id as downloaded.
func (f *Fake) HasFile(ctx context.Context, libraryID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[libraryID], nil
}

// SetHasFile marks a library id as downloaded.
func (f *Fake) SetHasFile(libraryID int, has bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = make(map[int]bool)
	}
	f.files[libraryID] = has
}

// AddCount returns the number of successful Add calls.
func (f *Fake) AddCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Adds)
}
