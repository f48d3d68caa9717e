package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/marquee/internal/config"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/ledger"
	"github.com/zulandar/marquee/internal/library"
	"github.com/zulandar/marquee/internal/models"
	"github.com/zulandar/marquee/internal/parser"
	"github.com/zulandar/marquee/internal/relay"
	"github.com/zulandar/marquee/internal/server"
	"github.com/zulandar/marquee/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var bob = identity.ID("telegram:777")

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	yaml := fmt.Sprintf(`
data_dir: %s
server:
  port: %d
notifications:
  webhook_secret: s3cret
users:
  - id: bob
    name: Bob
    identities:
      telegram: "777"
%s`, t.TempDir(), freePort(t), extra)
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

type fixture struct {
	app    *App
	movies *library.Fake
	pusher *relay.MockPusher
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		movies: &library.Fake{Catalog: []library.Result{
			{MediaType: models.MediaMovie, Title: "Inception", Year: 2010, TmdbID: 27205},
		}},
		pusher: relay.NewMockPusher(identity.Telegram),
	}
	a, err := New(Opts{
		Config:   cfg,
		Out:      new(strings.Builder),
		Adapters: []relay.Adapter{f.pusher},
		NewServices: func(c *config.Config) (*services.Set, error) {
			return &services.Set{Movies: f.movies, Parser: parser.Rules{}, MaxResults: c.Requests.MaxResults}, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Stores().Close() })
	f.app = a
	return f
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Opts{}); err == nil || !strings.Contains(err.Error(), "config is required") {
		t.Errorf("err = %v", err)
	}
}

func TestNew_ServicesError(t *testing.T) {
	_, err := New(Opts{
		Config:      testConfig(t, ""),
		NewServices: func(*config.Config) (*services.Set, error) { return nil, fmt.Errorf("boom") },
	})
	if err == nil {
		t.Fatal("expected services error")
	}
}

func TestApp_RequestThroughCompletion(t *testing.T) {
	f := newFixture(t, testConfig(t, ""))
	ctx := context.Background()

	if got := f.app.Dispatch(ctx, bob, "find Inception").Text; !strings.Contains(got, "Inception (2010)") {
		t.Fatalf("search reply = %q", got)
	}
	f.app.Dispatch(ctx, bob, "1")
	if got := f.app.Dispatch(ctx, bob, "yes").Text; !strings.Contains(got, "Added Inception") {
		t.Fatalf("confirm reply = %q", got)
	}

	reqs := f.app.Stores().Ledger.FindByRequester(bob)
	if len(reqs) != 1 || reqs[0].RadarrID == nil {
		t.Fatalf("ledger = %+v", reqs)
	}
	radarrID := *reqs[0].RadarrID

	engine, err := server.NewEngine(f.app.server)
	if err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf(`{"eventType":"Download","movie":{"id":%d,"title":"Inception","tmdbId":27205}}`, radarrID)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/radarr", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.SecretHeader, "s3cret")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook status = %d body=%s", w.Code, w.Body.String())
	}

	pushed := f.pusher.AllPushed()
	if len(pushed) != 1 || pushed[0].RawUserID != "777" || !strings.Contains(pushed[0].Response.Text, "Inception") {
		t.Errorf("pushed = %+v", pushed)
	}
	if got := f.app.Stores().Ledger.Get(reqs[0].ID); got.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestApp_StatusReportsComponents(t *testing.T) {
	f := newFixture(t, testConfig(t, ""))
	st := f.app.status()
	if st["radarr"] != true || st["sonarr"] != false {
		t.Errorf("library flags = %v/%v", st["radarr"], st["sonarr"])
	}
	if p, _ := st["platforms"].([]string); len(p) != 1 || p[0] != "telegram" {
		t.Errorf("platforms = %v", st["platforms"])
	}
}

func TestApp_ReloadSwapsServices(t *testing.T) {
	f := newFixture(t, testConfig(t, ""))
	before := f.app.services.Current()

	next := testConfig(t, "requests:\n  max_results: 9\n")
	f.app.Reload(next)
	if got := f.app.services.Current(); got == before || got.MaxResults != 9 {
		t.Errorf("MaxResults = %d, want 9 after reload", got.MaxResults)
	}
}

func TestApp_ReloadKeepsServicesOnError(t *testing.T) {
	f := newFixture(t, testConfig(t, ""))
	before := f.app.services.Current()
	f.app.newServices = func(*config.Config) (*services.Set, error) { return nil, fmt.Errorf("bad radarr") }
	f.app.Reload(testConfig(t, ""))
	if f.app.services.Current() != before {
		t.Error("failed reload replaced the service set")
	}
}

func TestRun_HoldsLockUntilCancelled(t *testing.T) {
	cfg := testConfig(t, "")
	f := newFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.app.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		l, err := Lock(cfg.DataDir)
		if err != nil {
			return true
		}
		l.Unlock()
		return false
	})
	waitFor(t, 2*time.Second, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Server.Port))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	l, err := Lock(cfg.DataDir)
	if err != nil {
		t.Fatalf("lock after shutdown: %v", err)
	}
	l.Unlock()
	if !f.pusher.Closed() {
		t.Error("adapter not closed on shutdown")
	}
}

func TestLock_SecondHolderFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	l, err := Lock(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Unlock()
	if _, err := Lock(dir); err == nil || !strings.Contains(err.Error(), "another mq instance") {
		t.Errorf("second lock err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFile)); err != nil {
		t.Errorf("lock file: %v", err)
	}
}

func TestOpenStores_JSON(t *testing.T) {
	cfg := testConfig(t, "")
	s, err := OpenStores(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if u := s.Users.GetUser(bob); u == nil || u.Name != "Bob" {
		t.Errorf("seeded user = %+v", u)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, UsersFile)); err != nil {
		t.Errorf("users snapshot not written: %v", err)
	}
}

func TestOpenStores_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mq.db")
	cfg := testConfig(t, fmt.Sprintf("storage:\n  driver: sqlite\n  path: %s\n", path))
	s, err := OpenStores(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if u := s.Users.GetUser(bob); u == nil {
		t.Fatal("seeded user missing")
	}
	if _, err := s.Ledger.Record(ledgerEntry()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenStores(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Ledger.Len() != 1 {
		t.Errorf("Len after reopen = %d, want 1", reopened.Ledger.Len())
	}
}

func ledgerEntry() ledger.Entry {
	return ledger.Entry{MediaType: models.MediaMovie, Title: "Inception", TmdbID: 27205, RequestedBy: bob}
}

func TestBuildServices(t *testing.T) {
	cfg := testConfig(t, `
radarr:
  url: http://radarr:7878
  api_key: k
  quality_profile_id: 1
  root_folder: /movies
sonarr:
  url: http://sonarr:8989
  api_key: k
  quality_profile_id: 2
  root_folder: /tv
  anime_root_folder: /anime
parser:
  kind: anthropic
  api_key: sk-test
`)
	set, err := BuildServices(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set.Movies.(*library.Cached); !ok {
		t.Errorf("Movies = %T, want *library.Cached", set.Movies)
	}
	if _, ok := set.TV.(*library.Cached); !ok {
		t.Errorf("TV = %T, want *library.Cached", set.TV)
	}
	if _, ok := set.Parser.(*parser.Anthropic); !ok {
		t.Errorf("Parser = %T, want *parser.Anthropic", set.Parser)
	}
	if !set.Defaults.AnimeEnabled() || set.Defaults.Anime.QualityProfileID != 2 {
		t.Errorf("anime defaults = %+v", set.Defaults.Anime)
	}
	if set.Defaults.Movie.RootFolder != "/movies" {
		t.Errorf("movie defaults = %+v", set.Defaults.Movie)
	}
}

func TestBuildServices_Unconfigured(t *testing.T) {
	set, err := BuildServices(testConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if set.Movies != nil || set.TV != nil {
		t.Error("managers should be nil when unconfigured")
	}
	if _, ok := set.Parser.(parser.Rules); !ok {
		t.Errorf("Parser = %T, want parser.Rules", set.Parser)
	}
}

func TestBuildAdapters(t *testing.T) {
	cfg := testConfig(t, `
platforms:
  sms:
    enabled: true
    account_sid: AC1
    auth_token: tok
    from_number: "+15550000000"
  discord:
    enabled: true
    bot_token: dtok
`)
	adapters, txt, err := buildAdapters(cfg.Platforms)
	if err != nil {
		t.Fatal(err)
	}
	if len(adapters) != 2 || txt == nil {
		t.Fatalf("adapters = %d, sms = %v", len(adapters), txt)
	}
	if adapters[0].Platform() != identity.SMS || adapters[1].Platform() != identity.Discord {
		t.Errorf("platforms = %s, %s", adapters[0].Platform(), adapters[1].Platform())
	}
}
