// Package scheduler fires a job on a cron schedule, one run at a time.
//
// Triggers that arrive while the job is running are coalesced into a single
// queued run. A scheduled trigger that waited longer than the misfire grace
// time is dropped instead of run late.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron"
)

var triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedreader_scheduler_triggers_total",
	Help: "Scheduler triggers by outcome",
}, []string{"outcome"})

type (
	// Job is invoked once per accepted trigger. ctx is cancelled when the
	// scheduler stops; the scheduler waits for the job to return.
	Job func(ctx context.Context)

	// Schedule yields the next activation after the given time.
	// cron.Schedule satisfies it.
	Schedule interface {
		Next(time.Time) time.Time
	}

	Config struct {
		// Crontab is a standard five field cron expression.
		Crontab      string
		MisfireGrace time.Duration
	}

	trigger struct {
		at     time.Time
		manual bool
	}
)

type Scheduler struct {
	schedule Schedule
	grace    time.Duration
	job      Job
	now      func() time.Time

	// Holds at most one queued run.
	pending chan trigger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Scheduler)

// WithSchedule replaces the parsed crontab.
func WithSchedule(s Schedule) Option {
	return func(sch *Scheduler) {
		sch.schedule = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(sch *Scheduler) {
		sch.now = now
	}
}

func New(cfg Config, job Job, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		grace:   cfg.MisfireGrace,
		job:     job,
		now:     time.Now,
		pending: make(chan trigger, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.schedule == nil {
		schedule, err := cron.ParseStandard(cfg.Crontab)
		if err != nil {
			return nil, fmt.Errorf("error parsing crontab %q: %w", cfg.Crontab, err)
		}
		s.schedule = schedule
	}

	return s, nil
}

// Trigger queues a run outside the schedule. It never blocks; if a run is
// already queued the two are merged.
func (s *Scheduler) Trigger() {
	s.enqueue(trigger{at: s.now(), manual: true})
}

// Run fires the job until ctx is cancelled, then waits for an in-flight job
// to return.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.work(ctx)
	}()

	s.tick(ctx)
	wg.Wait()

	return nil
}

// Start runs the scheduler in the background until Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.done)
}

// Stop cancels a scheduler started with Start and waits for it, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("error waiting for scheduler to stop: %w", ctx.Err())
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for {
		next := s.schedule.Next(s.now())
		if next.IsZero() {
			<-ctx.Done()
			return
		}

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.enqueue(trigger{at: next})
		}
	}
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.pending:
			if s.missed(t) {
				triggersTotal.WithLabelValues("misfire").Inc()
				slog.WarnContext(ctx, "skipping late trigger",
					"scheduled_at", t.at,
					"grace", s.grace,
				)
				continue
			}

			triggersTotal.WithLabelValues("run").Inc()
			s.job(ctx)
		}
	}
}

// enqueue puts t in the pending slot, replacing whatever waits there.
func (s *Scheduler) enqueue(t trigger) {
	for {
		select {
		case s.pending <- t:
			return
		default:
		}

		select {
		case old := <-s.pending:
			triggersTotal.WithLabelValues("coalesced").Inc()
			slog.Debug("coalescing queued trigger", "scheduled_at", old.at)
			// Keep a manual request manual so it can't be dropped as late.
			t.manual = t.manual || old.manual
		default:
		}
	}
}

// missed reports whether a scheduled trigger waited past the grace time.
func (s *Scheduler) missed(t trigger) bool {
	if t.manual || s.grace <= 0 {
		return false
	}

	return s.now().Sub(t.at) > s.grace
}
