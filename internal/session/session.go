// Package session holds the per-user conversation state that bridges one
// search, select and confirm exchange across several inbound messages.
package session

import (
	"sync"
	"time"

	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/library"
)

// DefaultTimeout is the idle window after which a session is discarded.
const DefaultTimeout = 5 * time.Minute

// State is a conversation state.
type State string

const (
	StateIdle                      State = "idle"
	StateAwaitingSelection         State = "awaiting_selection"
	StateAwaitingConfirmation      State = "awaiting_confirmation"
	StateAwaitingAnimeConfirmation State = "awaiting_anime_confirmation"
	StateAwaitingSeasonSelection   State = "awaiting_season_selection"
)

// Session is one user's dialog state. Values returned by Store are copies.
type Session struct {
	UserID         identity.ID
	Platform       identity.Platform
	State          State
	PendingResults []library.Result
	SelectedMedia  *library.Result
	// Anime records the anime/regular decision for the selected series.
	Anime        bool
	LastActivity time.Time
}

func (s *Session) clone() Session {
	out := *s
	if s.PendingResults != nil {
		out.PendingResults = append([]library.Result(nil), s.PendingResults...)
	}
	if s.SelectedMedia != nil {
		sel := *s.SelectedMedia
		out.SelectedMedia = &sel
	}
	return out
}

// StoreOpts configures a Store.
type StoreOpts struct {
	Timeout time.Duration
	Now     func() time.Time
}

// Store is an in-memory map of sessions keyed by user id.
type Store struct {
	mu       sync.Mutex
	sessions map[identity.ID]*Session
	timeout  time.Duration
	now      func() time.Time
}

// NewStore creates a Store. Zero-valued options fall back to DefaultTimeout
// and time.Now.
func NewStore(opts StoreOpts) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		sessions: make(map[identity.ID]*Session),
		timeout:  opts.Timeout,
		now:      opts.Now,
	}
}

// Timeout returns the configured idle window.
func (s *Store) Timeout() time.Duration { return s.timeout }

// touch returns the live session for userID, replacing it with a fresh idle
// one if it has expired, and refreshes lastActivity. Caller holds s.mu.
func (s *Store) touch(userID identity.ID) *Session {
	now := s.now()
	sess, ok := s.sessions[userID]
	if !ok || now.Sub(sess.LastActivity) >= s.timeout {
		sess = &Session{
			UserID:   userID,
			Platform: userID.Platform(),
			State:    StateIdle,
		}
		s.sessions[userID] = sess
	}
	sess.LastActivity = now
	return sess
}

// Get returns a copy of the user's session, creating or replacing it as
// needed. It never fails.
func (s *Store) Get(userID identity.ID) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch(userID).clone()
}

// SetState moves the session to state without touching results or selection.
func (s *Store) SetState(userID identity.ID, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(userID).State = state
}

// SetPendingResults stores search results and moves to awaiting_selection.
func (s *Store) SetPendingResults(userID identity.ID, results []library.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.touch(userID)
	sess.PendingResults = append([]library.Result(nil), results...)
	sess.SelectedMedia = nil
	sess.Anime = false
	sess.State = StateAwaitingSelection
}

// SetSelectedMedia records the picked item and moves to awaiting_confirmation.
func (s *Store) SetSelectedMedia(userID identity.ID, item library.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.touch(userID)
	sess.SelectedMedia = &item
	sess.Anime = item.Anime
	sess.State = StateAwaitingConfirmation
}

// SetAnime records the anime/regular decision and moves to
// awaiting_season_selection.
func (s *Store) SetAnime(userID identity.ID, anime bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.touch(userID)
	sess.Anime = anime
	sess.State = StateAwaitingSeasonSelection
}

// Reset returns the session to idle and clears results and selection.
func (s *Store) Reset(userID identity.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.touch(userID)
	sess.State = StateIdle
	sess.PendingResults = nil
	sess.SelectedMedia = nil
	sess.Anime = false
}

// Delete removes the session entirely.
func (s *Store) Delete(userID identity.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Sweep evicts sessions idle past the timeout and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) >= s.timeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of sessions held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
