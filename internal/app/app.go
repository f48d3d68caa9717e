// Package app builds every Marquee component from a config and runs them as
// one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/zulandar/marquee/internal/config"
	"github.com/zulandar/marquee/internal/conversation"
	"github.com/zulandar/marquee/internal/identity"
	"github.com/zulandar/marquee/internal/notify"
	"github.com/zulandar/marquee/internal/quota"
	"github.com/zulandar/marquee/internal/relay"
	"github.com/zulandar/marquee/internal/scheduler"
	"github.com/zulandar/marquee/internal/server"
	"github.com/zulandar/marquee/internal/services"
	"github.com/zulandar/marquee/internal/session"
	"github.com/zulandar/marquee/internal/tracker"
)

// stopGrace is added to the drain timeout when bounding shutdown.
const stopGrace = 5 * time.Second

// Opts configures an App.
type Opts struct {
	Config *config.Config
	// ConfigPath is watched for changes when set.
	ConfigPath string
	Out        io.Writer // defaults to os.Stdout

	// Adapters replaces the adapters built from the platforms section.
	Adapters []relay.Adapter
	// NewServices replaces BuildServices, for both startup and reloads.
	NewServices func(*config.Config) (*services.Set, error)
}

// App is a fully wired Marquee process.
type App struct {
	cfg         *config.Config
	configPath  string
	out         io.Writer
	newServices func(*config.Config) (*services.Set, error)

	stores    *Stores
	sessions  *session.Store
	services  *services.Container
	quota     *quota.Accountant
	router    *relay.Router
	handler   *conversation.Handler
	notifier  *notify.Dispatcher
	tracker   *tracker.Tracker
	scheduler *scheduler.Scheduler
	server    server.Opts
}

// New builds every component, then wires the cross references: the router
// gets the conversation handler and the notifier sends through the router.
func New(opts Opts) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	newServices := opts.NewServices
	if newServices == nil {
		newServices = BuildServices
	}
	a := &App{cfg: cfg, configPath: opts.ConfigPath, out: out, newServices: newServices}

	set, err := newServices(cfg)
	if err != nil {
		return nil, err
	}
	a.services = services.NewContainer(set)

	adapters := opts.Adapters
	if adapters == nil {
		built, txt, err := buildAdapters(cfg.Platforms)
		if err != nil {
			return nil, err
		}
		adapters = built
		if txt != nil {
			a.server.SMSInbound = txt.InboundHandler()
		}
	}

	period, err := quota.ParsePeriod(cfg.Quota.Period)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.stores, err = OpenStores(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.build(cfg, adapters, period); err != nil {
		a.stores.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, adapters []relay.Adapter, period quota.Period) error {
	var err error
	a.quota, err = quota.NewAccountant(quota.AccountantOpts{
		Policy: quota.Policy{
			Period:       period,
			MovieLimit:   cfg.Quota.MovieLimit,
			TVLimit:      cfg.Quota.TVLimit,
			ExemptAdmins: *cfg.Quota.ExemptAdmins,
		},
		Users: a.stores.Users,
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.sessions = session.NewStore(session.StoreOpts{Timeout: cfg.SessionTimeout()})

	a.router = relay.NewRouter(relay.RouterOpts{DrainTimeout: cfg.DrainTimeout(), Out: a.out})
	for _, ad := range adapters {
		a.router.RegisterAdapter(ad)
	}

	a.notifier, err = notify.NewDispatcher(notify.DispatcherOpts{
		Enabled:       *cfg.Notifications.Enabled,
		Template:      cfg.Notifications.Template,
		WebhookSecret: cfg.Notifications.WebhookSecret,
		Users:         a.stores.Users,
		Sender:        a.router,
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.handler, err = conversation.New(conversation.HandlerOpts{
		Users:    a.stores.Users,
		Ledger:   a.stores.Ledger,
		Quota:    a.quota,
		Sessions: a.sessions,
		Services: a.services,
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.router.SetHandler(a.handler)

	a.tracker, err = tracker.New(tracker.Opts{
		Ledger:    a.stores.Ledger,
		Notifier:  a.notifier,
		Libraries: func() tracker.Libraries { return a.services.Current() },
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	jobs := []scheduler.Job{
		scheduler.SweepJob(a.sessions, cfg.SweepInterval()),
		scheduler.PruneJob(a.stores.Ledger, cfg.Requests.PruneCron, cfg.Requests.RetentionDays),
	}
	if d := cfg.ReconcileInterval(); d > 0 {
		jobs = append(jobs, scheduler.ReconcileJob(a.tracker, d))
	}
	a.scheduler, err = scheduler.New(scheduler.Opts{Jobs: jobs, Out: a.out})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.server.Port = cfg.Server.Port
	a.server.APIToken = cfg.Server.APIToken
	a.server.Dispatcher = a.router
	a.server.Events = a.tracker
	a.server.Secret = a.notifier
	a.server.Status = a.status
	a.server.Out = a.out
	return nil
}

// Dispatch runs one conversation turn without a platform adapter.
func (a *App) Dispatch(ctx context.Context, userID identity.ID, text string) relay.Response {
	return a.router.Dispatch(ctx, userID, text)
}

// Stores returns the persistent stores.
func (a *App) Stores() *Stores { return a.stores }

// Reload rebuilds the service set from cfg and swaps it in. Turns already
// running keep the set they started with.
func (a *App) Reload(cfg *config.Config) {
	set, err := a.newServices(cfg)
	if err != nil {
		log.Printf("app: reload: %v", err)
		return
	}
	a.services.Swap(set)
	fmt.Fprintf(a.out, "Services reloaded\n")
}

func (a *App) status() map[string]any {
	var platforms []string
	for _, p := range identity.Platforms {
		if ad, ok := a.router.Adapter(p); ok && ad.Enabled() {
			platforms = append(platforms, string(p))
		}
	}
	set := a.services.Current()
	return map[string]any{
		"platforms": platforms,
		"sessions":  a.sessions.Len(),
		"requests":  a.stores.Ledger.Len(),
		"radarr":    set.Movies != nil,
		"sonarr":    set.TV != nil,
	}
}

// Run takes the single-instance lock and runs the router, scheduler, HTTP
// server and config watcher until ctx is cancelled or the server fails.
// On the way out it stops timers, drains in-flight turns and closes storage.
func (a *App) Run(ctx context.Context) error {
	lock, err := Lock(a.cfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	defer a.stores.Close()

	fmt.Fprintf(a.out, "Marquee starting...\n")
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.router.Start(runCtx); err != nil {
		return fmt.Errorf("app: start relay: %w", err)
	}
	a.scheduler.Start()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(runCtx, a.server) }()

	watchDone := make(chan struct{})
	if a.configPath != "" {
		go func() {
			defer close(watchDone)
			if err := config.Watch(runCtx, a.configPath, config.DefaultDebounce, a.Reload); err != nil {
				log.Printf("app: config watch: %v", err)
			}
		}()
	} else {
		close(watchDone)
	}
	fmt.Fprintf(a.out, "Marquee online\n")

	var runErr error
	select {
	case <-ctx.Done():
		cancel()
		runErr = <-serverErr
	case runErr = <-serverErr:
		cancel()
	}
	fmt.Fprintf(a.out, "Marquee shutting down...\n")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.cfg.DrainTimeout()+stopGrace)
	defer stopCancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		log.Printf("app: %v", err)
	}
	if err := a.router.Stop(stopCtx); err != nil {
		log.Printf("app: %v", err)
	}
	<-watchDone
	fmt.Fprintf(a.out, "Marquee stopped\n")
	return runErr
}
