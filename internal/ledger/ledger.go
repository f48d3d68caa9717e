// Package ledger is the durable record of every media request. It is the
// single writer of the request collection; everything else reads through
// its query methods.
package ledger

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
)

// DefaultRetentionDays is how long terminal requests are kept.
const DefaultRetentionDays = 30

// Opts configures a Ledger.
type Opts struct {
	Backend Backend
	Now     func() time.Time
	NewID   func() string
}

// Entry is the input to Record.
type Entry struct {
	MediaType   models.MediaType
	Title       string
	Year        *int
	TmdbID      int
	RequestedBy identity.ID
	TvdbID      *int
	RadarrID    *int
	SonarrID    *int
}

type catalogKey struct {
	tmdbID    int
	mediaType models.MediaType
}

// Ledger holds every MediaRequest in memory, indexed by id, external id,
// catalog id and requester. Mutations persist the full snapshot before
// returning; a failed persist leaves memory unchanged.
type Ledger struct {
	mu      sync.RWMutex
	backend Backend
	now     func() time.Time
	newID   func() string

	byID        map[string]*models.MediaRequest
	byExternal  map[models.ExternalSystem]map[int]string
	byCatalog   map[catalogKey]map[string]struct{}
	byRequester map[string]map[string]struct{}
}

// New loads the ledger from its backend.
func New(opts Opts) (*Ledger, error) {
	if opts.Backend == nil {
		return nil, errors.New("ledger: backend is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	l := &Ledger{
		backend:     opts.Backend,
		now:         opts.Now,
		newID:       opts.NewID,
		byID:        make(map[string]*models.MediaRequest),
		byExternal:  make(map[models.ExternalSystem]map[int]string),
		byCatalog:   make(map[catalogKey]map[string]struct{}),
		byRequester: make(map[string]map[string]struct{}),
	}

	reqs, err := opts.Backend.Load()
	if err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}
	for _, r := range reqs {
		if r == nil || r.ID == "" {
			log.Printf("ledger: skipping request without id")
			continue
		}
		if !r.Status.Valid() {
			r.Status = models.StatusPending
		}
		l.byID[r.ID] = r.Clone()
		l.index(l.byID[r.ID])
	}
	return l, nil
}

func (l *Ledger) index(r *models.MediaRequest) {
	for _, sys := range []models.ExternalSystem{models.SystemRadarr, models.SystemSonarr} {
		if id := r.ExternalID(sys); id != nil {
			if l.byExternal[sys] == nil {
				l.byExternal[sys] = make(map[int]string)
			}
			l.byExternal[sys][*id] = r.ID
		}
	}
	key := catalogKey{r.TmdbID, r.MediaType}
	if l.byCatalog[key] == nil {
		l.byCatalog[key] = make(map[string]struct{})
	}
	l.byCatalog[key][r.ID] = struct{}{}
	if l.byRequester[r.RequestedBy] == nil {
		l.byRequester[r.RequestedBy] = make(map[string]struct{})
	}
	l.byRequester[r.RequestedBy][r.ID] = struct{}{}
}

func (l *Ledger) unindex(r *models.MediaRequest) {
	for _, sys := range []models.ExternalSystem{models.SystemRadarr, models.SystemSonarr} {
		if id := r.ExternalID(sys); id != nil && l.byExternal[sys][*id] == r.ID {
			delete(l.byExternal[sys], *id)
		}
	}
	key := catalogKey{r.TmdbID, r.MediaType}
	delete(l.byCatalog[key], r.ID)
	if len(l.byCatalog[key]) == 0 {
		delete(l.byCatalog, key)
	}
	delete(l.byRequester[r.RequestedBy], r.ID)
	if len(l.byRequester[r.RequestedBy]) == 0 {
		delete(l.byRequester, r.RequestedBy)
	}
}

// snapshot returns the stored requests minus skip, plus extra, ordered by
// requestedAt. Caller holds l.mu.
func (l *Ledger) snapshot(skip map[string]bool, extra ...*models.MediaRequest) []*models.MediaRequest {
	out := make([]*models.MediaRequest, 0, len(l.byID)+len(extra))
	for id, r := range l.byID {
		if skip[id] {
			continue
		}
		out = append(out, r)
	}
	out = append(out, extra...)
	sortByRequestedAt(out)
	return out
}

func sortByRequestedAt(reqs []*models.MediaRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].RequestedAt.Equal(reqs[j].RequestedAt) {
			return reqs[i].RequestedAt.Before(reqs[j].RequestedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
}

// replace persists next in place of the stored request with the same id,
// then swaps it into memory. Caller holds l.mu for writing.
func (l *Ledger) replace(next *models.MediaRequest) error {
	cur := l.byID[next.ID]
	if err := l.backend.Save(l.snapshot(map[string]bool{next.ID: true}, next)); err != nil {
		return fmt.Errorf("ledger: persist: %w", err)
	}
	l.unindex(cur)
	l.byID[next.ID] = next
	l.index(next)
	return nil
}

// Record creates a pending request and persists it. There is no duplicate
// check here; callers query FindByCatalogID first.
func (l *Ledger) Record(e Entry) (*models.MediaRequest, error) {
	if !e.MediaType.Valid() {
		return nil, fmt.Errorf("ledger: record: invalid media type %q", e.MediaType)
	}
	r := &models.MediaRequest{
		ID:          l.newID(),
		MediaType:   e.MediaType,
		Title:       e.Title,
		Year:        e.Year,
		TmdbID:      e.TmdbID,
		TvdbID:      e.TvdbID,
		RadarrID:    e.RadarrID,
		SonarrID:    e.SonarrID,
		RequestedBy: e.RequestedBy.String(),
		RequestedAt: l.now(),
		Status:      models.StatusPending,
	}
	r = r.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byID[r.ID]; exists {
		return nil, fmt.Errorf("ledger: record: duplicate id %s", r.ID)
	}
	if err := l.backend.Save(l.snapshot(nil, r)); err != nil {
		return nil, fmt.Errorf("ledger: persist: %w", err)
	}
	l.byID[r.ID] = r
	l.index(r)
	return r.Clone(), nil
}

// Get returns the request with id, or nil.
func (l *Ledger) Get(id string) *models.MediaRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byID[id].Clone()
}

// FindByExternalID looks a request up by the id a library manager assigned.
func (l *Ledger) FindByExternalID(system models.ExternalSystem, externalID int) *models.MediaRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byExternal[system][externalID]
	if !ok {
		return nil
	}
	return l.byID[id].Clone()
}

// FindByCatalogID returns the most recent request for tmdbID. An empty
// mediaType matches either kind.
func (l *Ledger) FindByCatalogID(tmdbID int, mediaType models.MediaType) *models.MediaRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()

	types := []models.MediaType{mediaType}
	if mediaType == "" {
		types = []models.MediaType{models.MediaMovie, models.MediaTVShow}
	}
	var best *models.MediaRequest
	for _, mt := range types {
		for id := range l.byCatalog[catalogKey{tmdbID, mt}] {
			r := l.byID[id]
			if best == nil || r.RequestedAt.After(best.RequestedAt) ||
				(r.RequestedAt.Equal(best.RequestedAt) && r.ID > best.ID) {
				best = r
			}
		}
	}
	return best.Clone()
}

// FindPending returns every pending or downloading request.
func (l *Ledger) FindPending() []*models.MediaRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.MediaRequest
	for _, r := range l.byID {
		if !r.Status.Terminal() {
			out = append(out, r.Clone())
		}
	}
	sortByRequestedAt(out)
	return out
}

// FindByRequester returns every request made by userID, oldest first.
func (l *Ledger) FindByRequester(userID identity.ID) []*models.MediaRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.MediaRequest
	for id := range l.byRequester[userID.String()] {
		out = append(out, l.byID[id].Clone())
	}
	sortByRequestedAt(out)
	return out
}

// All returns every request, oldest first.
func (l *Ledger) All() []*models.MediaRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.MediaRequest, 0, len(l.byID))
	for _, r := range l.byID {
		out = append(out, r.Clone())
	}
	sortByRequestedAt(out)
	return out
}

// Len returns the number of stored requests.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// UpdateStatus sets the status of request id. It reports false for an
// unknown id. Transition order is not enforced.
func (l *Ledger) UpdateStatus(id string, status models.RequestStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("ledger: update status: invalid status %q", status)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.byID[id]
	if !ok {
		return false, nil
	}
	if cur.Status == status {
		return true, nil
	}
	next := cur.Clone()
	next.Status = status
	if err := l.replace(next); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateExternalID attaches the library manager's id to request id. It
// reports false for an unknown id.
func (l *Ledger) UpdateExternalID(id string, system models.ExternalSystem, externalID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.byID[id]
	if !ok {
		return false, nil
	}
	next := cur.Clone()
	switch system {
	case models.SystemRadarr:
		next.RadarrID = models.IntPtr(externalID)
	case models.SystemSonarr:
		next.SonarrID = models.IntPtr(externalID)
	default:
		return false, fmt.Errorf("ledger: update external id: unknown system %q", system)
	}
	if err := l.replace(next); err != nil {
		return false, err
	}
	return true, nil
}

// Prune removes terminal requests older than maxAgeDays (by requestedAt)
// and returns how many were removed. Pending and downloading requests are
// never pruned. Nothing is written when nothing is removed.
func (l *Ledger) Prune(maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultRetentionDays
	}
	cutoff := l.now().AddDate(0, 0, -maxAgeDays)

	l.mu.Lock()
	defer l.mu.Unlock()
	doomed := make(map[string]bool)
	for id, r := range l.byID {
		if r.Status.Terminal() && r.RequestedAt.Before(cutoff) {
			doomed[id] = true
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if err := l.backend.Save(l.snapshot(doomed)); err != nil {
		return 0, fmt.Errorf("ledger: persist: %w", err)
	}
	for id := range doomed {
		l.unindex(l.byID[id])
		delete(l.byID, id)
	}
	return len(doomed), nil
}
