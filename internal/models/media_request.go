package models

import "time"

// MediaType distinguishes movies from TV shows.
type MediaType string

const (
	MediaMovie  MediaType = "movie"
	MediaTVShow MediaType = "tv_show"
)

// Valid reports whether m is a known media type.
func (m MediaType) Valid() bool {
	return m == MediaMovie || m == MediaTVShow
}

// Label returns a human-friendly name ("movie", "TV show").
func (m MediaType) Label() string {
	switch m {
	case MediaMovie:
		return "movie"
	case MediaTVShow:
		return "TV show"
	default:
		return string(m)
	}
}

// System returns the library manager responsible for m.
func (m MediaType) System() ExternalSystem {
	if m == MediaTVShow {
		return SystemSonarr
	}
	return SystemRadarr
}

// RequestStatus tracks a MediaRequest through to completion.
type RequestStatus string

const (
	StatusPending     RequestStatus = "pending"
	StatusDownloading RequestStatus = "downloading"
	StatusCompleted   RequestStatus = "completed"
	StatusFailed      RequestStatus = "failed"
)

// Terminal reports whether no further transition is expected.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ExternalSystem names a library manager that assigns its own ids.
type ExternalSystem string

const (
	SystemRadarr ExternalSystem = "radarr"
	SystemSonarr ExternalSystem = "sonarr"
)

// MediaRequest is one successful add-to-library action. TmdbID is the
// cross-system join key; RadarrID/SonarrID are filled in once the library
// manager accepts the item.
type MediaRequest struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	MediaType   MediaType     `gorm:"size:16;not null;index:idx_tmdb_type" json:"mediaType"`
	Title       string        `gorm:"size:256;not null" json:"title"`
	Year        *int          `json:"year"`
	TmdbID      int           `gorm:"not null;index:idx_tmdb_type" json:"tmdbId"`
	TvdbID      *int          `json:"tvdbId"`
	RadarrID    *int          `gorm:"index" json:"radarrId"`
	SonarrID    *int          `gorm:"index" json:"sonarrId"`
	RequestedBy string        `gorm:"size:128;not null;index" json:"requestedBy"`
	RequestedAt time.Time     `gorm:"index" json:"requestedAt"`
	Status      RequestStatus `gorm:"size:16;default:pending;index" json:"status"`
}

// ExternalID returns the id assigned by the given system, if any.
func (r *MediaRequest) ExternalID(system ExternalSystem) *int {
	switch system {
	case SystemRadarr:
		return r.RadarrID
	case SystemSonarr:
		return r.SonarrID
	}
	return nil
}

// Clone returns a deep copy so callers never alias ledger-owned state.
func (r *MediaRequest) Clone() *MediaRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Year = cloneInt(r.Year)
	c.TvdbID = cloneInt(r.TvdbID)
	c.RadarrID = cloneInt(r.RadarrID)
	c.SonarrID = cloneInt(r.SonarrID)
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
