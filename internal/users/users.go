// Package users is the user directory: who may talk to Marquee, which
// platform identities belong to whom, and per-user quota counters.
package users

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
)

// Opts configures a Directory.
type Opts struct {
	Backend Backend
	// Seed users come from configuration. Profile fields overwrite stored
	// values; stored quota counters are kept.
	Seed []models.User
}

// Directory indexes users by id and by platform identity.
type Directory struct {
	mu         sync.RWMutex
	backend    Backend
	byID       map[string]*models.User
	byIdentity map[identity.ID]string
}

// New loads stored users, merges the seed list and persists the result.
func New(opts Opts) (*Directory, error) {
	if opts.Backend == nil {
		return nil, errors.New("users: backend is required")
	}
	d := &Directory{
		backend:    opts.Backend,
		byID:       make(map[string]*models.User),
		byIdentity: make(map[identity.ID]string),
	}

	stored, err := opts.Backend.Load()
	if err != nil {
		return nil, fmt.Errorf("users: load: %w", err)
	}
	for _, u := range stored {
		if u == nil || u.ID == "" {
			continue
		}
		d.byID[u.ID] = u.Clone()
	}

	for i := range opts.Seed {
		seed := opts.Seed[i].Clone()
		if seed.ID == "" {
			return nil, fmt.Errorf("users: seed user %d has no id", i)
		}
		if cur, ok := d.byID[seed.ID]; ok {
			seed.Counters = cur.Counters
		}
		d.byID[seed.ID] = seed
	}

	d.reindex()
	if len(opts.Seed) > 0 {
		if err := d.backend.Save(d.snapshot()); err != nil {
			return nil, fmt.Errorf("users: persist seed: %w", err)
		}
	}
	return d, nil
}

// reindex rebuilds the identity index. Caller holds d.mu or owns d.
func (d *Directory) reindex() {
	d.byIdentity = make(map[identity.ID]string)
	for _, id := range d.sortedIDs() {
		u := d.byID[id]
		for platform, raw := range u.Identities {
			pid, err := identity.Build(identity.Platform(platform), raw)
			if err != nil {
				log.Printf("users: user %s: skipping identity %s:%s: %v", u.ID, platform, raw, err)
				continue
			}
			if owner, taken := d.byIdentity[pid]; taken && owner != u.ID {
				log.Printf("users: identity %s claimed by %s and %s; keeping %s", pid, owner, u.ID, owner)
				continue
			}
			d.byIdentity[pid] = u.ID
		}
	}
}

func (d *Directory) sortedIDs() []string {
	ids := make([]string, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *Directory) snapshot() []*models.User {
	out := make([]*models.User, 0, len(d.byID))
	for _, id := range d.sortedIDs() {
		out = append(out, d.byID[id])
	}
	return out
}

// IsAuthorized reports whether the platform identity belongs to a known user.
func (d *Directory) IsAuthorized(id identity.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byIdentity[id]
	return ok
}

// GetUser returns a copy of the user owning the platform identity, or nil.
func (d *Directory) GetUser(id identity.ID) *models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	uid, ok := d.byIdentity[id]
	if !ok {
		return nil
	}
	return d.byID[uid].Clone()
}

// Get returns a copy of the user with the given directory id, or nil.
func (d *Directory) Get(userID string) *models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byID[userID].Clone()
}

// All returns every user ordered by id.
func (d *Directory) All() []*models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.User, 0, len(d.byID))
	for _, u := range d.snapshot() {
		out = append(out, u.Clone())
	}
	return out
}

// Save stores u, replacing any user with the same id, and persists the
// directory. On persist failure the previous state is kept.
func (d *Directory) Save(u *models.User) error {
	if u == nil || u.ID == "" {
		return errors.New("users: save: user id is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, had := d.byID[u.ID]
	d.byID[u.ID] = u.Clone()
	if err := d.backend.Save(d.snapshot()); err != nil {
		if had {
			d.byID[u.ID] = prev
		} else {
			delete(d.byID, u.ID)
		}
		return fmt.Errorf("users: persist: %w", err)
	}
	d.reindex()
	return nil
}
