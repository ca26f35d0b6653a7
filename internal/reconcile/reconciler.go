// Package reconcile recomputes quota usage counters from the thread log.
// Commits during normal operation are incremental; drift can creep in when a
// commit fails after its message was already appended. The reconciler is the
// periodic correction: it sums the token usage recorded on agent messages and
// rewrites each user's counters from that ground truth.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/predictgate-dev/predictgate/pkg/quota"
	"github.com/predictgate-dev/predictgate/pkg/thread"
)

// DefaultSchedule runs the reconciler once an hour.
const DefaultSchedule = "0 * * * *"

// Reconciler periodically rewrites quota usage from thread history.
type Reconciler struct {
	threads  thread.Store
	quotas   quota.Store
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a reconciler. An empty schedule uses DefaultSchedule.
func New(threads thread.Store, quotas quota.Store, schedule string) *Reconciler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Reconciler{
		threads:  threads,
		quotas:   quotas,
		schedule: schedule,
	}
}

// Start schedules periodic reconciliation. It returns once the schedule is
// registered; runs happen on the cron's own goroutine.
func (r *Reconciler) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := r.ReconcileAll(ctx); err != nil {
			log.Printf("reconcile: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register reconcile schedule %q: %w", r.schedule, err)
	}

	c.Start()
	r.cron = c
	log.Printf("reconcile: scheduled with %q", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}

// ReconcileAll recomputes usage for every user that owns at least one thread.
// A thread is attributed to the user who authored its first user message;
// token sums come from the usage recorded on agent messages.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	sessions, err := r.threads.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	usage := make(map[string]quota.Usage)
	for _, sessionID := range sessions {
		msgs, err := r.threads.Read(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("read thread %s: %w", sessionID, err)
		}

		userID := threadOwner(msgs)
		if userID == "" {
			continue
		}

		u := usage[userID]
		for _, msg := range msgs {
			if msg.Author.Kind != thread.AuthorAgent || msg.Tokens == nil {
				continue
			}
			u.InputTokens += msg.Tokens.InputTokens
			u.OutputTokens += msg.Tokens.OutputTokens
		}
		usage[userID] = u
	}

	for userID, u := range usage {
		if err := r.quotas.SetUsage(ctx, userID, u); err != nil {
			return fmt.Errorf("set usage for %s: %w", userID, err)
		}
	}

	log.Printf("reconcile: rewrote usage for %d users across %d sessions", len(usage), len(sessions))
	return nil
}

func threadOwner(msgs []*thread.Message) string {
	for _, msg := range msgs {
		if msg.Author.Kind == thread.AuthorUser {
			return msg.Author.ID
		}
	}
	return ""
}
