// Package quota enforces per-user request limits over a rolling period.
package quota

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/marquee/internal/models"
)

// Period is the window over which counters accumulate.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// ParsePeriod validates a configured period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Daily, Weekly, Monthly:
		return p, nil
	}
	return "", fmt.Errorf("quota: unknown period %q", s)
}

// Policy is the configured limit set. A limit of 0 means unlimited.
type Policy struct {
	Period       Period
	MovieLimit   int
	TVLimit      int
	ExemptAdmins bool
}

// Limit returns the limit for mediaType.
func (p Policy) Limit(mediaType models.MediaType) int {
	if mediaType == models.MediaTVShow {
		return p.TVLimit
	}
	return p.MovieLimit
}

// NextReset returns the first period boundary strictly after last, in
// last's location. Daily boundaries fall on midnight, weekly on Monday
// midnight, monthly on the first of the month.
func (p Policy) NextReset(last time.Time) time.Time {
	y, m, d := last.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, last.Location())
	switch p.Period {
	case Daily:
		return midnight.AddDate(0, 0, 1)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, last.Location()).AddDate(0, 1, 0)
	default:
		// Days until next Monday; a Monday rolls to the following one.
		offset := (8 - int(midnight.Weekday())) % 7
		if offset == 0 {
			offset = 7
		}
		return midnight.AddDate(0, 0, offset)
	}
}

// Saver reads and persists user records by directory id.
type Saver interface {
	Get(userID string) *models.User
	Save(u *models.User) error
}

// AccountantOpts configures an Accountant.
type AccountantOpts struct {
	Policy Policy
	Users  Saver
	Now    func() time.Time
}

// Accountant applies a Policy to user counters.
type Accountant struct {
	mu     sync.Mutex
	policy Policy
	users  Saver
	now    func() time.Time
}

// NewAccountant creates an Accountant.
func NewAccountant(opts AccountantOpts) (*Accountant, error) {
	if opts.Users == nil {
		return nil, errors.New("quota: users is required")
	}
	if opts.Policy.Period == "" {
		opts.Policy.Period = Weekly
	}
	if _, err := ParsePeriod(string(opts.Policy.Period)); err != nil {
		return nil, err
	}
	if opts.Policy.MovieLimit < 0 || opts.Policy.TVLimit < 0 {
		return nil, errors.New("quota: limits must not be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Accountant{policy: opts.Policy, users: opts.Users, now: opts.Now}, nil
}

// Policy returns the active policy.
func (a *Accountant) Policy() Policy { return a.policy }

// rollover resets counters if the period boundary has passed. It reports
// whether anything changed.
func (a *Accountant) rollover(u *models.User, now time.Time) bool {
	if !u.Counters.LastReset.IsZero() && now.Before(a.policy.NextReset(u.Counters.LastReset)) {
		return false
	}
	u.Counters = models.QuotaCounters{LastReset: now}
	return true
}

func (a *Accountant) exempt(u *models.User) bool {
	return a.policy.ExemptAdmins && u.Admin
}

// current returns the stored copy of u, so counter changes made through
// another linked identity are not overwritten. Users unknown to the store
// are used as given.
func (a *Accountant) current(u *models.User) *models.User {
	if stored := a.users.Get(u.ID); stored != nil {
		return stored
	}
	return u.Clone()
}

// CheckAndConsume resets the user's counters if the period has rolled over,
// then checks and increments the counter for mediaType. Counters are read
// from the store, persisted when they change and copied back into u. A
// false result with nil error means the user is over quota.
func (a *Accountant) CheckAndConsume(u *models.User, mediaType models.MediaType) (bool, error) {
	if u == nil {
		return false, errors.New("quota: user is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current(u)
	changed := a.rollover(cur, a.now())

	allowed := true
	if !a.exempt(cur) {
		limit := a.policy.Limit(mediaType)
		counter := counterFor(cur, mediaType)
		if limit > 0 && *counter >= limit {
			allowed = false
		} else {
			*counter++
			changed = true
		}
	}

	if changed {
		if err := a.users.Save(cur); err != nil {
			return false, fmt.Errorf("quota: save %s: %w", u.ID, err)
		}
	}
	u.Counters = cur.Counters
	return allowed, nil
}

// Refund gives back one unit consumed by CheckAndConsume, used when the
// library add that followed it failed. Only the stored counter is lowered.
func (a *Accountant) Refund(u *models.User, mediaType models.MediaType) error {
	if u == nil {
		return errors.New("quota: user is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current(u)
	if a.exempt(cur) {
		return nil
	}
	counter := counterFor(cur, mediaType)
	if *counter == 0 {
		u.Counters = cur.Counters
		return nil
	}
	*counter--
	if err := a.users.Save(cur); err != nil {
		return fmt.Errorf("quota: save %s: %w", u.ID, err)
	}
	u.Counters = cur.Counters
	return nil
}

// Usage describes one media type's standing for a user.
type Usage struct {
	Used      int
	Limit     int
	Unlimited bool
}

// Remaining reports usage for both media types without consuming anything.
// Counters from an expired period read as zero.
func (a *Accountant) Remaining(u *models.User) (movies, tv Usage) {
	c := u.Counters
	if c.LastReset.IsZero() || !a.now().Before(a.policy.NextReset(c.LastReset)) {
		c = models.QuotaCounters{}
	}
	unlimited := a.exempt(u)
	movies = Usage{Used: c.Movies, Limit: a.policy.MovieLimit, Unlimited: unlimited || a.policy.MovieLimit == 0}
	tv = Usage{Used: c.TVShows, Limit: a.policy.TVLimit, Unlimited: unlimited || a.policy.TVLimit == 0}
	return movies, tv
}

func counterFor(u *models.User, mediaType models.MediaType) *int {
	if mediaType == models.MediaTVShow {
		return &u.Counters.TVShows
	}
	return &u.Counters.Movies
}
