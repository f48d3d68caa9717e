// Package scheduler runs Marquee's periodic housekeeping: session eviction,
// request pruning and download reconciliation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// specParser accepts 5-field expressions and descriptors such as "@every 2m".
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled task.
type Job struct {
	Name string
	// Spec is a 5-field cron expression or a descriptor ("@every 5m").
	Spec string
	Run  func(ctx context.Context) error
}

// Every returns a Spec that fires at a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Opts configures a Scheduler.
type Opts struct {
	Jobs     []Job
	Location *time.Location
	Out      io.Writer // defaults to os.Stdout
}

// Scheduler wraps a cron runner. Overlapping runs of one job are skipped
// and panics are recovered.
type Scheduler struct {
	cron *cron.Cron
	out  io.Writer

	ctx    context.Context
	cancel context.CancelFunc
	ids    map[string]cron.EntryID
}

// New validates every job and registers it.
func New(opts Opts) (*Scheduler, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := cron.PrintfLogger(log.Default())
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		out: out,
		ids: make(map[string]cron.EntryID),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var errs []error
	for _, j := range opts.Jobs {
		if err := s.add(j); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.cancel()
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func (s *Scheduler) add(j Job) error {
	if j.Name == "" {
		return errors.New("scheduler: job name is required")
	}
	if j.Run == nil {
		return fmt.Errorf("scheduler: job %s: run is required", j.Name)
	}
	if _, dup := s.ids[j.Name]; dup {
		return fmt.Errorf("scheduler: job %s: duplicate name", j.Name)
	}
	sched, err := specParser.Parse(j.Spec)
	if err != nil {
		return fmt.Errorf("scheduler: job %s: invalid spec %q: %w", j.Name, j.Spec, err)
	}
	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.run(j) }))
	s.ids[j.Name] = id
	return nil
}

func (s *Scheduler) run(j Job) {
	start := time.Now()
	if err := j.Run(s.ctx); err != nil {
		log.Printf("scheduler: %s: %v", j.Name, err)
		return
	}
	if d := time.Since(start); d > time.Second {
		log.Printf("scheduler: %s took %s", j.Name, d.Round(time.Millisecond))
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		fmt.Fprintf(s.out, "Scheduler: %s next at %s\n", s.nameOf(e.ID), e.Next.Format(time.RFC3339))
	}
}

func (s *Scheduler) nameOf(id cron.EntryID) string {
	for name, eid := range s.ids {
		if eid == id {
			return name
		}
	}
	return "?"
}

// Next returns the next fire time of the named job, or the zero time.
func (s *Scheduler) Next(name string) time.Time {
	id, ok := s.ids[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Stop stops scheduling new runs and waits for running jobs until ctx is
// done. Jobs see their context canceled once ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}
