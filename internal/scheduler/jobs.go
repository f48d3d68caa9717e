package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Job names.
const (
	JobSweep     = "session-sweep"
	JobPrune     = "request-prune"
	JobReconcile = "request-reconcile"
)

// Sweeper evicts idle sessions.
type Sweeper interface {
	Sweep() int
}

// Pruner removes old terminal requests.
type Pruner interface {
	Prune(maxAgeDays int) (int, error)
}

// Reconciler checks pending requests against the libraries.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// SweepJob evicts expired sessions every interval.
func SweepJob(s Sweeper, interval time.Duration) Job {
	return Job{
		Name: JobSweep,
		Spec: Every(interval),
		Run: func(ctx context.Context) error {
			if n := s.Sweep(); n > 0 {
				log.Printf("scheduler: evicted %d idle session(s)", n)
			}
			return nil
		},
	}
}

// PruneJob drops terminal requests older than retentionDays on spec.
func PruneJob(p Pruner, spec string, retentionDays int) Job {
	return Job{
		Name: JobPrune,
		Spec: spec,
		Run: func(ctx context.Context) error {
			n, err := p.Prune(retentionDays)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			if n > 0 {
				log.Printf("scheduler: pruned %d request(s) older than %d days", n, retentionDays)
			}
			return nil
		},
	}
}

// ReconcileJob polls pending requests every interval.
func ReconcileJob(r Reconciler, interval time.Duration) Job {
	return Job{
		Name: JobReconcile,
		Spec: Every(interval),
		Run: func(ctx context.Context) error {
			_, err := r.Reconcile(ctx)
			return err
		},
	}
}
