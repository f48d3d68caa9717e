// Package tracker moves requests through pending, downloading and
// completed as library managers report progress, and notifies requesters
// on completion.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
)

// Webhook event types sent by Radarr and Sonarr.
const (
	EventGrab            = "Grab"
	EventDownload        = "Download"
	EventDownloadFailure = "DownloadFailure"
	EventImportFailure   = "ImportFailure"
	EventTest            = "Test"
)

// Ledger is the subset of the request ledger the tracker uses.
type Ledger interface {
	Get(id string) *models.MediaRequest
	FindByExternalID(system models.ExternalSystem, externalID int) *models.MediaRequest
	FindByCatalogID(tmdbID int, mediaType models.MediaType) *models.MediaRequest
	FindPending() []*models.MediaRequest
	UpdateStatus(id string, status models.RequestStatus) (bool, error)
	UpdateExternalID(id string, system models.ExternalSystem, externalID int) (bool, error)
}

// Notifier tells a requester their media is ready.
type Notifier interface {
	NotifyComplete(ctx context.Context, req *models.MediaRequest) bool
}

// Libraries resolves the manager for a media type; nil when unconfigured.
type Libraries interface {
	Manager(mt models.MediaType) library.Manager
}

// Event is one webhook callback from a library manager.
type Event struct {
	System     models.ExternalSystem
	Type       string
	ExternalID int
	// TmdbID lets the tracker adopt requests recorded before the manager
	// assigned its id.
	TmdbID int
	Title  string
}

// Opts configures a Tracker.
type Opts struct {
	Ledger   Ledger
	Notifier Notifier
	// Libraries returns the current library set for Reconcile.
	Libraries func() Libraries
}

// Tracker applies webhook events and reconciliation results to the ledger.
type Tracker struct {
	ledger    Ledger
	notifier  Notifier
	libraries func() Libraries
}

// New creates a Tracker.
func New(opts Opts) (*Tracker, error) {
	if opts.Ledger == nil {
		return nil, errors.New("tracker: ledger is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("tracker: notifier is required")
	}
	return &Tracker{ledger: opts.Ledger, notifier: opts.Notifier, libraries: opts.Libraries}, nil
}

// OnDownloadComplete marks req completed and notifies the requester. A
// request that is already completed is left alone so a repeated webhook
// does not notify twice. It reports whether the status changed.
func (t *Tracker) OnDownloadComplete(ctx context.Context, req *models.MediaRequest) (bool, error) {
	if req == nil {
		return false, errors.New("tracker: request is required")
	}
	if cur := t.ledger.Get(req.ID); cur != nil {
		req = cur
	}
	if req.Status == models.StatusCompleted {
		return false, nil
	}
	ok, err := t.ledger.UpdateStatus(req.ID, models.StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("tracker: complete %s: %w", req.ID, err)
	}
	if !ok {
		log.Printf("tracker: request %s is gone; skipping completion", req.ID)
		return false, nil
	}
	req.Status = models.StatusCompleted
	log.Printf("tracker: %q completed", req.Title)
	t.notifier.NotifyComplete(ctx, req)
	return true, nil
}

// HandleEvent applies one webhook event. Unknown requests and event types
// are not errors; it reports whether a request was updated.
func (t *Tracker) HandleEvent(ctx context.Context, ev Event) (bool, error) {
	if ev.Type == EventTest {
		log.Printf("tracker: %s test webhook received", ev.System)
		return false, nil
	}
	req := t.resolve(ev)
	if req == nil {
		log.Printf("tracker: %s %s for unknown item %d (%q)", ev.System, ev.Type, ev.ExternalID, ev.Title)
		return false, nil
	}

	switch ev.Type {
	case EventGrab:
		if req.Status.Terminal() {
			return false, nil
		}
		return t.setStatus(req, models.StatusDownloading)
	case EventDownload:
		return t.OnDownloadComplete(ctx, req)
	case EventDownloadFailure, EventImportFailure:
		if req.Status == models.StatusCompleted {
			return false, nil
		}
		return t.setStatus(req, models.StatusFailed)
	}
	log.Printf("tracker: ignoring %s event %q", ev.System, ev.Type)
	return false, nil
}

// resolve finds the request for ev by external id, then by catalog id. A
// catalog match adopts the external id for later events.
func (t *Tracker) resolve(ev Event) *models.MediaRequest {
	if ev.ExternalID > 0 {
		if req := t.ledger.FindByExternalID(ev.System, ev.ExternalID); req != nil {
			return req
		}
	}
	if ev.TmdbID <= 0 {
		return nil
	}
	mt := models.MediaMovie
	if ev.System == models.SystemSonarr {
		mt = models.MediaTVShow
	}
	req := t.ledger.FindByCatalogID(ev.TmdbID, mt)
	if req == nil {
		return nil
	}
	if ev.ExternalID > 0 && req.ExternalID(ev.System) == nil {
		if _, err := t.ledger.UpdateExternalID(req.ID, ev.System, ev.ExternalID); err != nil {
			log.Printf("tracker: attach %s id %d to %s: %v", ev.System, ev.ExternalID, req.ID, err)
		}
	}
	return req
}

func (t *Tracker) setStatus(req *models.MediaRequest, status models.RequestStatus) (bool, error) {
	if req.Status == status {
		return false, nil
	}
	ok, err := t.ledger.UpdateStatus(req.ID, status)
	if err != nil {
		return false, fmt.Errorf("tracker: set %s to %s: %w", req.ID, status, err)
	}
	if ok {
		log.Printf("tracker: %q is now %s", req.Title, status)
	}
	return ok, nil
}

// Reconcile asks each library whether pending requests have their files,
// catching completions whose webhook was missed. It returns how many
// requests it completed. Per-request failures are logged and skipped.
func (t *Tracker) Reconcile(ctx context.Context) (int, error) {
	if t.libraries == nil {
		return 0, nil
	}
	libs := t.libraries()
	if libs == nil {
		return 0, nil
	}
	completed := 0
	for _, req := range t.ledger.FindPending() {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		extID := req.ExternalID(req.MediaType.System())
		if extID == nil {
			continue
		}
		mgr := libs.Manager(req.MediaType)
		if mgr == nil {
			continue
		}
		has, err := mgr.HasFile(ctx, *extID)
		if err != nil {
			log.Printf("tracker: reconcile %q: %v", req.Title, err)
			continue
		}
		if !has {
			continue
		}
		ok, err := t.OnDownloadComplete(ctx, req)
		if err != nil {
			log.Printf("tracker: reconcile %q: %v", req.Title, err)
			continue
		}
		if ok {
			completed++
		}
	}
	if completed > 0 {
		log.Printf("tracker: reconcile completed %d request(s)", completed)
	}
	return completed, nil
}
