// Package conversation runs the per-user request dialog: search, pick,
// confirm, and for series the anime and season questions, ending in a
// library add and a ledger record.
package conversation

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/ledger"
	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/parser"
	"github.com/zulandar/marquee/internal/quota"
	"github.com/zulandar/marquee/internal/relay"
	"github.com/zulandar/marquee/internal/services"
	"github.com/zulandar/marquee/internal/session"
)

// UserDirectory resolves platform identities to users.
type UserDirectory interface {
	IsAuthorized(id identity.ID) bool
	GetUser(id identity.ID) *models.User
}

// RequestLedger is the subset of the ledger the dialog reads and writes.
type RequestLedger interface {
	Record(e ledger.Entry) (*models.MediaRequest, error)
	FindByCatalogID(tmdbID int, mediaType models.MediaType) *models.MediaRequest
	FindByRequester(userID identity.ID) []*models.MediaRequest
	FindPending() []*models.MediaRequest
}

// QuotaAccountant enforces request limits.
type QuotaAccountant interface {
	CheckAndConsume(u *models.User, mediaType models.MediaType) (bool, error)
	Refund(u *models.User, mediaType models.MediaType) error
	Remaining(u *models.User) (movies, tv quota.Usage)
	Policy() quota.Policy
}

// HandlerOpts configures a Handler.
type HandlerOpts struct {
	Users    UserDirectory
	Ledger   RequestLedger
	Quota    QuotaAccountant
	Sessions *session.Store
	Services *services.Container
}

// Handler implements relay.Handler.
type Handler struct {
	users    UserDirectory
	ledger   RequestLedger
	quota    QuotaAccountant
	sessions *session.Store
	services *services.Container

	mu    sync.Mutex
	turns map[identity.ID]*sync.Mutex
}

var _ relay.Handler = (*Handler)(nil)

// New creates a Handler.
func New(opts HandlerOpts) (*Handler, error) {
	switch {
	case opts.Users == nil:
		return nil, errors.New("conversation: users is required")
	case opts.Ledger == nil:
		return nil, errors.New("conversation: ledger is required")
	case opts.Quota == nil:
		return nil, errors.New("conversation: quota is required")
	case opts.Sessions == nil:
		return nil, errors.New("conversation: sessions is required")
	case opts.Services == nil:
		return nil, errors.New("conversation: services is required")
	}
	return &Handler{
		users:    opts.Users,
		ledger:   opts.Ledger,
		quota:    opts.Quota,
		sessions: opts.Sessions,
		services: opts.Services,
		turns:    make(map[identity.ID]*sync.Mutex),
	}, nil
}

// lockUser serialises turns for one user. Only authorised users get a
// mutex, so the map is bounded by the directory size.
func (h *Handler) lockUser(id identity.ID) func() {
	h.mu.Lock()
	m, ok := h.turns[id]
	if !ok {
		m = &sync.Mutex{}
		h.turns[id] = m
	}
	h.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// turn carries the per-turn snapshot of collaborators.
type turn struct {
	id   identity.ID
	set  *services.Set
	sess session.Session
}

// Handle runs one conversation turn for userID.
func (h *Handler) Handle(ctx context.Context, userID identity.ID, text string) relay.Response {
	if !h.users.IsAuthorized(userID) {
		log.Printf("conversation: refused unauthorized user %s", userID)
		return reply(msgUnauthorized)
	}
	unlock := h.lockUser(userID)
	defer unlock()

	t := turn{id: userID, set: h.services.Current(), sess: h.sessions.Get(userID)}
	in, err := t.set.Parser.Parse(ctx, text, parser.Context{
		State:      t.sess.State,
		NumResults: len(t.sess.PendingResults),
	})
	if err != nil {
		log.Printf("conversation: parse for %s: %v", userID, err)
		return reply(msgGenericError)
	}

	switch in.Action {
	case parser.ActionHelp:
		return reply(helpText())
	case parser.ActionCancel:
		return h.cancel(t)
	case parser.ActionStatus:
		return h.status(t)
	case parser.ActionPending:
		return h.pending(t)
	case parser.ActionSearch:
		return h.search(ctx, t, in)
	case parser.ActionSelect:
		if t.sess.State == session.StateAwaitingSelection {
			return h.selectResult(t, in.Index)
		}
	case parser.ActionConfirm:
		if t.sess.State == session.StateAwaitingConfirmation {
			return h.confirm(ctx, t)
		}
	case parser.ActionAnime:
		if t.sess.State == session.StateAwaitingAnimeConfirmation {
			h.sessions.SetAnime(userID, in.Anime)
			return reply(seasonMenu(t.sess.SelectedMedia))
		}
	case parser.ActionMonitor:
		if t.sess.State == session.StateAwaitingSeasonSelection {
			return h.monitor(ctx, t, in.Monitor)
		}
	}
	return reply(reprompt(t.sess))
}

func (h *Handler) cancel(t turn) relay.Response {
	h.sessions.Reset(t.id)
	if t.sess.State == session.StateIdle {
		return reply(msgNothingToCancel)
	}
	return reply(msgCancelled)
}

func (h *Handler) search(ctx context.Context, t turn, in parser.Intent) relay.Response {
	types := []models.MediaType{models.MediaMovie, models.MediaTVShow}
	if in.MediaType != "" {
		types = []models.MediaType{in.MediaType}
	}

	var lists [][]library.Result
	for _, mt := range types {
		mgr := t.set.Manager(mt)
		if mgr == nil {
			continue
		}
		results, err := mgr.Search(ctx, in.Query)
		if err != nil {
			log.Printf("conversation: %s search %q for %s: %v", mt.System(), in.Query, t.id, err)
			h.sessions.Reset(t.id)
			return reply(msgGenericError)
		}
		for i := range results {
			if results[i].MediaType == "" {
				results[i].MediaType = mt
			}
		}
		lists = append(lists, filterYear(results, in.Year))
	}
	if len(lists) == 0 {
		h.sessions.Reset(t.id)
		return reply(notConfigured(in.MediaType))
	}

	results := interleave(lists, t.set.MaxResults)
	if len(results) == 0 {
		h.sessions.Reset(t.id)
		return reply(noResults(in.Query))
	}
	h.sessions.SetPendingResults(t.id, results)
	return reply(resultList(in.Query, results))
}

// filterYear keeps results from year. When none match, the unfiltered list
// is kept since catalog years are often off by one.
func filterYear(results []library.Result, year int) []library.Result {
	if year == 0 {
		return results
	}
	var out []library.Result
	for _, r := range results {
		if r.Year == year {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return results
	}
	return out
}

// interleave alternates between the lists so a search across both
// libraries shows hits from each, capped at limit.
func interleave(lists [][]library.Result, limit int) []library.Result {
	var out []library.Result
	for i := 0; len(out) < limit; i++ {
		added := false
		for _, l := range lists {
			if i < len(l) && len(out) < limit {
				out = append(out, l[i])
				added = true
			}
		}
		if !added {
			break
		}
	}
	return out
}

func (h *Handler) selectResult(t turn, index int) relay.Response {
	n := len(t.sess.PendingResults)
	if index < 1 || index > n {
		return reply(pickRange(n))
	}
	r := t.sess.PendingResults[index-1]
	if r.InLibrary {
		h.sessions.Reset(t.id)
		return reply(alreadyInLibrary(r))
	}
	h.sessions.SetSelectedMedia(t.id, r)
	resp := reply(confirmPrompt(r))
	if r.PosterURL != "" {
		resp.MediaURLs = []string{r.PosterURL}
	}
	return resp
}

func (h *Handler) confirm(ctx context.Context, t turn) relay.Response {
	sel := t.sess.SelectedMedia
	if sel == nil {
		h.sessions.Reset(t.id)
		return reply(msgGenericError)
	}
	if prev := h.ledger.FindByCatalogID(sel.TmdbID, sel.MediaType); prev != nil && prev.Status != models.StatusFailed {
		h.sessions.Reset(t.id)
		return reply(alreadyRequested(prev))
	}

	if sel.MediaType != models.MediaTVShow {
		return h.add(ctx, t, *sel, t.set.Defaults.Movie)
	}
	if sel.Anime && t.set.Defaults.AnimeEnabled() {
		h.sessions.SetState(t.id, session.StateAwaitingAnimeConfirmation)
		return reply(animePrompt(*sel))
	}
	h.sessions.SetAnime(t.id, false)
	return reply(seasonMenu(sel))
}

func (h *Handler) monitor(ctx context.Context, t turn, value string) relay.Response {
	sel := t.sess.SelectedMedia
	if sel == nil {
		h.sessions.Reset(t.id)
		return reply(msgGenericError)
	}
	opts := t.set.Defaults.TV
	if t.sess.Anime && t.set.Defaults.AnimeEnabled() {
		opts = t.set.Defaults.Anime
	}
	opts.Monitor = value
	return h.add(ctx, t, *sel, opts)
}

// add spends quota, sends the item to its library and records the request.
// The quota unit is refunded when the library rejects the add.
func (h *Handler) add(ctx context.Context, t turn, item library.Result, opts library.AddOptions) relay.Response {
	defer h.sessions.Reset(t.id)

	mgr := t.set.Manager(item.MediaType)
	if mgr == nil {
		return reply(notConfigured(item.MediaType))
	}
	u := h.users.GetUser(t.id)
	if u == nil {
		return reply(msgUnauthorized)
	}

	ok, err := h.quota.CheckAndConsume(u, item.MediaType)
	if err != nil {
		log.Printf("conversation: quota for %s: %v", t.id, err)
		return reply(msgGenericError)
	}
	if !ok {
		return reply(quotaExceeded(item.MediaType, h.quota.Policy()))
	}

	added, err := mgr.Add(ctx, item, opts)
	if err != nil {
		log.Printf("conversation: %s add %q (tmdb %d) for %s: %v", item.MediaType.System(), item.Title, item.TmdbID, t.id, err)
		if rerr := h.quota.Refund(u, item.MediaType); rerr != nil {
			log.Printf("conversation: refund for %s: %v", t.id, rerr)
		}
		return reply(msgGenericError)
	}

	entry := ledger.Entry{
		MediaType:   item.MediaType,
		Title:       item.Title,
		TmdbID:      item.TmdbID,
		RequestedBy: t.id,
	}
	if item.Year > 0 {
		entry.Year = models.IntPtr(item.Year)
	}
	if item.TvdbID > 0 {
		entry.TvdbID = models.IntPtr(item.TvdbID)
	}
	if item.MediaType == models.MediaTVShow {
		entry.SonarrID = models.IntPtr(added.ID)
	} else {
		entry.RadarrID = models.IntPtr(added.ID)
	}
	if _, err := h.ledger.Record(entry); err != nil {
		// The library already has the item; only the completion notice is lost.
		log.Printf("conversation: record %q for %s: %v", item.Title, t.id, err)
	}
	log.Printf("conversation: %s added %q (tmdb %d) to %s as %d", t.id, item.Title, item.TmdbID, item.MediaType.System(), added.ID)
	return reply(addedText(item))
}

func (h *Handler) status(t turn) relay.Response {
	u := h.users.GetUser(t.id)
	if u == nil {
		return reply(msgUnauthorized)
	}
	movies, tv := h.quota.Remaining(u)
	return reply(statusText(h.ledger.FindByRequester(t.id), movies, tv, h.quota.Policy().Period))
}

func (h *Handler) pending(t turn) relay.Response {
	u := h.users.GetUser(t.id)
	if u == nil || !u.Admin {
		return reply(msgAdminOnly)
	}
	return reply(pendingText(h.ledger.FindPending()))
}

func reply(text string) relay.Response {
	return relay.Response{Text: strings.TrimSpace(text)}
}
