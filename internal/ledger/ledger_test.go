package ledger

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/zulandar/marquee/internal/db"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/models"
)

// memBackend records saves and can be told to fail.
type memBackend struct {
	saved   []*models.MediaRequest
	saves   int
	failErr error
	initial []*models.MediaRequest
}

func (b *memBackend) Load() ([]*models.MediaRequest, error) { return b.initial, nil }

func (b *memBackend) Save(reqs []*models.MediaRequest) error {
	if b.failErr != nil {
		return b.failErr
	}
	b.saves++
	b.saved = reqs
	return nil
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestLedger(t *testing.T, b Backend) (*Ledger, *testClock) {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	n := 0
	l, err := New(Opts{
		Backend: b,
		Now:     clk.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("req-%03d", n)
		},
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l, clk
}

var alice = identity.ID("sms:+15551234567")

func inception() Entry {
	return Entry{
		MediaType:   models.MediaMovie,
		Title:       "Inception",
		Year:        models.IntPtr(2010),
		TmdbID:      27205,
		RequestedBy: alice,
	}
}

func TestNew_RequiresBackend(t *testing.T) {
	if _, err := New(Opts{}); err == nil {
		t.Fatal("expected error without backend")
	}
}

func TestRecord_ThenFindByCatalogIDIsPending(t *testing.T) {
	b := &memBackend{}
	l, _ := newTestLedger(t, b)

	r, err := l.Record(inception())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if r.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", r.Status)
	}
	got := l.FindByCatalogID(27205, "")
	if got == nil || got.ID != r.ID || got.Status != models.StatusPending {
		t.Fatalf("FindByCatalogID = %+v", got)
	}
	if b.saves != 1 || len(b.saved) != 1 {
		t.Errorf("saves = %d, saved = %d; want 1, 1", b.saves, len(b.saved))
	}
}

func TestRecord_DefaultIDIsUUID(t *testing.T) {
	l, err := New(Opts{Backend: &memBackend{}})
	if err != nil {
		t.Fatal(err)
	}
	r, err := l.Record(inception())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(r.ID) != 36 {
		t.Errorf("id = %q, want uuid", r.ID)
	}
}

func TestRecord_InvalidMediaType(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	e := inception()
	e.MediaType = "album"
	if _, err := l.Record(e); err == nil {
		t.Fatal("expected error for invalid media type")
	}
}

func TestRecord_PersistFailureLeavesLedgerUnchanged(t *testing.T) {
	b := &memBackend{failErr: errors.New("disk full")}
	l, _ := newTestLedger(t, b)
	if _, err := l.Record(inception()); err == nil {
		t.Fatal("expected persist error")
	}
	if l.Len() != 0 {
		t.Errorf("len = %d, want 0 after failed persist", l.Len())
	}
	if l.FindByCatalogID(27205, "") != nil {
		t.Error("failed record should not be indexed")
	}
}

func TestUpdateStatus_CompletedLeavesFindPending(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	r, _ := l.Record(inception())
	other, _ := l.Record(Entry{MediaType: models.MediaMovie, Title: "Heat", TmdbID: 949, RequestedBy: alice})

	ok, err := l.UpdateStatus(r.ID, models.StatusCompleted)
	if err != nil || !ok {
		t.Fatalf("UpdateStatus = %v, %v", ok, err)
	}
	pending := l.FindPending()
	if len(pending) != 1 || pending[0].ID != other.ID {
		t.Errorf("pending = %+v, want only %s", pending, other.ID)
	}
}

func TestFindPending_IncludesDownloading(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	r, _ := l.Record(inception())
	l.UpdateStatus(r.ID, models.StatusDownloading)
	if got := len(l.FindPending()); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
	l.UpdateStatus(r.ID, models.StatusFailed)
	if got := len(l.FindPending()); got != 0 {
		t.Errorf("pending after failed = %d, want 0", got)
	}
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	b := &memBackend{}
	l, _ := newTestLedger(t, b)
	ok, err := l.UpdateStatus("nope", models.StatusCompleted)
	if err != nil || ok {
		t.Errorf("UpdateStatus = %v, %v; want false, nil", ok, err)
	}
	if b.saves != 0 {
		t.Errorf("saves = %d, want 0", b.saves)
	}
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	r, _ := l.Record(inception())
	if _, err := l.UpdateStatus(r.ID, "lost"); err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestUpdateStatus_PersistFailureRollsBack(t *testing.T) {
	b := &memBackend{}
	l, _ := newTestLedger(t, b)
	r, _ := l.Record(inception())

	b.failErr = errors.New("disk full")
	if ok, err := l.UpdateStatus(r.ID, models.StatusCompleted); err == nil || ok {
		t.Fatalf("UpdateStatus = %v, %v; want false, error", ok, err)
	}
	if got := l.Get(r.ID).Status; got != models.StatusPending {
		t.Errorf("status = %q, want pending after rollback", got)
	}
}

func TestFindByCatalogID_DistinguishesMediaType(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	movie, _ := l.Record(Entry{MediaType: models.MediaMovie, Title: "Shogun", TmdbID: 100, RequestedBy: alice})
	show, _ := l.Record(Entry{MediaType: models.MediaTVShow, Title: "Shogun", TmdbID: 100, RequestedBy: alice})

	gotMovie := l.FindByCatalogID(100, models.MediaMovie)
	gotShow := l.FindByCatalogID(100, models.MediaTVShow)
	if gotMovie == nil || gotMovie.ID != movie.ID {
		t.Errorf("movie = %+v, want %s", gotMovie, movie.ID)
	}
	if gotShow == nil || gotShow.ID != show.ID {
		t.Errorf("show = %+v, want %s", gotShow, show.ID)
	}
	if gotMovie != nil && gotShow != nil && gotMovie.ID == gotShow.ID {
		t.Error("expected distinct requests")
	}
}

func TestFindByCatalogID_Missing(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	if got := l.FindByCatalogID(1, models.MediaMovie); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestUpdateExternalID_IndexesForLookup(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	r, _ := l.Record(inception())

	if l.FindByExternalID(models.SystemRadarr, 42) != nil {
		t.Fatal("unexpected hit before update")
	}
	ok, err := l.UpdateExternalID(r.ID, models.SystemRadarr, 42)
	if err != nil || !ok {
		t.Fatalf("UpdateExternalID = %v, %v", ok, err)
	}
	got := l.FindByExternalID(models.SystemRadarr, 42)
	if got == nil || got.ID != r.ID {
		t.Fatalf("FindByExternalID = %+v", got)
	}
	if l.FindByExternalID(models.SystemSonarr, 42) != nil {
		t.Error("sonarr lookup should not match a radarr id")
	}

	// Reassigning drops the stale index entry.
	l.UpdateExternalID(r.ID, models.SystemRadarr, 43)
	if l.FindByExternalID(models.SystemRadarr, 42) != nil {
		t.Error("stale external id still indexed")
	}
}

func TestUpdateExternalID_UnknownIDAndSystem(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	if ok, err := l.UpdateExternalID("nope", models.SystemRadarr, 1); ok || err != nil {
		t.Errorf("unknown id = %v, %v; want false, nil", ok, err)
	}
	r, _ := l.Record(inception())
	if _, err := l.UpdateExternalID(r.ID, "plex", 1); err == nil {
		t.Error("expected error for unknown system")
	}
}

func TestFindByRequester(t *testing.T) {
	l, clk := newTestLedger(t, &memBackend{})
	bob := identity.ID("discord:42")
	first, _ := l.Record(inception())
	clk.t = clk.t.Add(time.Hour)
	l.Record(Entry{MediaType: models.MediaMovie, Title: "Heat", TmdbID: 949, RequestedBy: bob})
	clk.t = clk.t.Add(time.Hour)
	third, _ := l.Record(Entry{MediaType: models.MediaTVShow, Title: "The Wire", TmdbID: 1438, RequestedBy: alice})

	got := l.FindByRequester(alice)
	if len(got) != 2 {
		t.Fatalf("requests = %d, want 2", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != third.ID {
		t.Errorf("order = [%s %s], want oldest first", got[0].ID, got[1].ID)
	}
}

func TestPrune_OnlyOldTerminal(t *testing.T) {
	b := &memBackend{}
	l, clk := newTestLedger(t, b)
	start := clk.t

	oldDone, _ := l.Record(Entry{MediaType: models.MediaMovie, Title: "Old done", TmdbID: 1, RequestedBy: alice})
	l.UpdateStatus(oldDone.ID, models.StatusCompleted)
	oldFailed, _ := l.Record(Entry{MediaType: models.MediaMovie, Title: "Old failed", TmdbID: 2, RequestedBy: alice})
	l.UpdateStatus(oldFailed.ID, models.StatusFailed)
	oldPending, _ := l.Record(Entry{MediaType: models.MediaMovie, Title: "Old pending", TmdbID: 3, RequestedBy: alice})

	clk.t = start.Add(80 * 24 * time.Hour)
	recentDone, _ := l.Record(Entry{MediaType: models.MediaMovie, Title: "Recent", TmdbID: 4, RequestedBy: alice})
	l.UpdateStatus(recentDone.ID, models.StatusCompleted)

	clk.t = start.Add(90 * 24 * time.Hour)
	removed, err := l.Prune(30)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if l.Get(oldPending.ID) == nil {
		t.Error("90-day-old pending request must be retained")
	}
	if l.Get(recentDone.ID) == nil {
		t.Error("recent completed request must be retained")
	}
	if l.Get(oldDone.ID) != nil || l.Get(oldFailed.ID) != nil {
		t.Error("old terminal requests should be pruned")
	}
	if l.FindByCatalogID(1, "") != nil {
		t.Error("pruned request still indexed")
	}
	if len(b.saved) != 2 {
		t.Errorf("persisted snapshot = %d requests, want 2", len(b.saved))
	}
}

func TestPrune_NothingRemovedSkipsWrite(t *testing.T) {
	b := &memBackend{}
	l, _ := newTestLedger(t, b)
	l.Record(inception())
	before := b.saves

	removed, err := l.Prune(30)
	if err != nil || removed != 0 {
		t.Fatalf("prune = %d, %v", removed, err)
	}
	if b.saves != before {
		t.Errorf("saves = %d, want %d (no write)", b.saves, before)
	}
}

func TestPrune_DefaultRetention(t *testing.T) {
	l, clk := newTestLedger(t, &memBackend{})
	r, _ := l.Record(inception())
	l.UpdateStatus(r.ID, models.StatusCompleted)
	clk.t = clk.t.Add(31 * 24 * time.Hour)
	if removed, _ := l.Prune(0); removed != 1 {
		t.Errorf("removed = %d, want 1 with default retention", removed)
	}
}

func TestQueriesReturnCopies(t *testing.T) {
	l, _ := newTestLedger(t, &memBackend{})
	r, _ := l.Record(inception())
	r.Title = "mutated"
	*l.Get(r.ID).Year = 1999
	got := l.Get(r.ID)
	if got.Title != "Inception" || *got.Year != 2010 {
		t.Errorf("ledger state mutated through returned value: %+v", got)
	}
}

func TestJSONBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.json")
	b, err := NewJSONBackend(path)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	l, _ := newTestLedger(t, b)
	r, _ := l.Record(inception())
	l.UpdateExternalID(r.ID, models.SystemRadarr, 42)
	l.UpdateStatus(r.ID, models.StatusDownloading)

	b2, _ := NewJSONBackend(path)
	reloaded, err := New(Opts{Backend: b2})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.FindByExternalID(models.SystemRadarr, 42)
	if got == nil || got.Status != models.StatusDownloading || got.Title != "Inception" {
		t.Fatalf("reloaded = %+v", got)
	}
	if got.RequestedBy != alice.String() {
		t.Errorf("requestedBy = %q", got.RequestedBy)
	}
}

func TestGormBackend_RoundTrip(t *testing.T) {
	gormDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "marquee.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b, err := NewGormBackend(gormDB)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}

	l, clk := newTestLedger(t, b)
	movie, _ := l.Record(inception())
	clk.t = clk.t.Add(time.Minute)
	show, _ := l.Record(Entry{MediaType: models.MediaTVShow, Title: "The Wire", TmdbID: 1438, TvdbID: models.IntPtr(79126), RequestedBy: alice})
	l.UpdateExternalID(show.ID, models.SystemSonarr, 9)
	l.UpdateStatus(movie.ID, models.StatusCompleted)

	reloaded, err := New(Opts{Backend: b})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("len = %d, want 2", reloaded.Len())
	}
	if got := reloaded.FindByExternalID(models.SystemSonarr, 9); got == nil || *got.TvdbID != 79126 {
		t.Errorf("sonarr lookup = %+v", got)
	}
	if got := reloaded.Get(movie.ID); got == nil || got.Status != models.StatusCompleted {
		t.Errorf("movie = %+v", got)
	}
}

func TestNewGormBackend_NilDB(t *testing.T) {
	if _, err := NewGormBackend(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}
