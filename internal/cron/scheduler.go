// Package cron fires scheduled operator directives into the agents'
// strategic planning ("focus on mining tonight" at 22:00).
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/voxmind/internal/config"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// DirectiveSink receives fired directives. Implemented by the per-agent
// brains.
type DirectiveSink interface {
	QueueDirective(text string)
}

// Config holds the dependencies for the directive scheduler.
type Config struct {
	Directives []config.Directive
	Sinks      map[string]DirectiveSink // agent name -> sink
	Logger     *slog.Logger
	Interval   time.Duration // tick interval; defaults to 1 minute if zero
}

type entry struct {
	schedule cronlib.Schedule
	expr     string
	text     string
	agent    string // empty targets all sinks
	nextRun  time.Time
}

// Scheduler ticks at a fixed interval and fires directives whose cron
// schedule has come due since the last tick.
type Scheduler struct {
	entries  []*entry
	sinks    map[string]DirectiveSink
	logger   *slog.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewScheduler parses the configured directives and builds a Scheduler.
// A directive with an unparsable schedule is a configuration error.
func NewScheduler(cfg Config) (*Scheduler, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		sinks:    cfg.Sinks,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
	start := s.now()
	for _, d := range cfg.Directives {
		sched, err := cronParser.Parse(d.Schedule)
		if err != nil {
			return nil, fmt.Errorf("directive %q: parse schedule %q: %w", d.Text, d.Schedule, err)
		}
		s.entries = append(s.entries, &entry{
			schedule: sched,
			expr:     d.Schedule,
			text:     d.Text,
			agent:    d.Agent,
			nextRun:  sched.Next(start),
		})
	}
	return s, nil
}

// Start begins the scheduler loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("directive scheduler started", "directives", len(s.entries), "interval", s.interval)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("directive scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires every entry whose next run time has passed and advances it.
func (s *Scheduler) tick() {
	now := s.now()
	for _, e := range s.entries {
		if now.Before(e.nextRun) {
			continue
		}
		s.fire(e)
		e.nextRun = e.schedule.Next(now)
	}
}

func (s *Scheduler) fire(e *entry) {
	if e.agent != "" {
		sink, ok := s.sinks[e.agent]
		if !ok {
			s.logger.Warn("directive targets unknown agent", "agent", e.agent, "text", e.text)
			return
		}
		sink.QueueDirective(e.text)
	} else {
		for _, sink := range s.sinks {
			sink.QueueDirective(e.text)
		}
	}
	s.logger.Info("directive fired", "schedule", e.expr, "agent", e.agent, "text", e.text)
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
