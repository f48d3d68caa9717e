// Package services holds the hot-swappable set of external collaborators the
// conversation handler uses: library managers, the parser and add defaults.
package services

import (
	"sync/atomic"

	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/parser"
)

// DefaultMaxResults caps how many search results are offered.
const DefaultMaxResults = 5

// AddDefaults are the library add options per kind of item.
type AddDefaults struct {
	Movie library.AddOptions
	TV    library.AddOptions
	// Anime applies to series the user confirms as anime. An empty
	// RootFolder disables the anime question.
	Anime library.AddOptions
}

// AnimeEnabled reports whether anime series get their own root folder.
func (d AddDefaults) AnimeEnabled() bool { return d.Anime.RootFolder != "" }

// Set is one immutable configuration of services. A nil manager means that
// library is not configured.
type Set struct {
	Movies     library.Manager
	TV         library.Manager
	Parser     parser.Parser
	Defaults   AddDefaults
	MaxResults int
}

// Manager returns the library for media type mt.
func (s *Set) Manager(mt models.MediaType) library.Manager {
	if mt == models.MediaTVShow {
		return s.TV
	}
	return s.Movies
}

// Container publishes the current Set. Readers take a snapshot once per
// turn so a reload never changes services mid-turn.
type Container struct {
	cur atomic.Pointer[Set]
}

// NewContainer creates a Container holding set.
func NewContainer(set *Set) *Container {
	c := &Container{}
	c.Swap(set)
	return c
}

// Current returns the active Set.
func (c *Container) Current() *Set {
	return c.cur.Load()
}

// Swap installs set and returns the previous one. Missing fields are
// defaulted: a nil parser becomes parser.Rules.
func (c *Container) Swap(set *Set) *Set {
	if set == nil {
		set = &Set{}
	}
	cp := *set
	if cp.Parser == nil {
		cp.Parser = parser.Rules{}
	}
	if cp.MaxResults <= 0 {
		cp.MaxResults = DefaultMaxResults
	}
	return c.cur.Swap(&cp)
}
