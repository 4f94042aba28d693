package cron

import (
	"testing"
	"time"

	"github.com/basket/voxmind/internal/config"
)

type recordingSink struct {
	texts []string
}

func (r *recordingSink) QueueDirective(text string) {
	r.texts = append(r.texts, text)
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2025, 6, 1, 21, 30, 0, 0, time.UTC)
	next, err := NextRunTime("0 22 * * *", after)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextRunTime_InvalidExpression(t *testing.T) {
	if _, err := NextRunTime("not a cron", time.Now()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler(Config{
		Directives: []config.Directive{{Schedule: "bogus", Text: "mine"}},
	})
	if err == nil {
		t.Fatal("expected error for unparsable schedule")
	}
}

func TestTick_FiresDueDirectiveToNamedAgent(t *testing.T) {
	miner := &recordingSink{}
	scout := &recordingSink{}
	s, err := NewScheduler(Config{
		Directives: []config.Directive{
			{Schedule: "0 22 * * *", Text: "focus on mining tonight", Agent: "miner"},
		},
		Sinks: map[string]DirectiveSink{"miner": miner, "scout": scout},
	})
	if err != nil {
		t.Fatal(err)
	}

	clock := time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.entries[0].nextRun = time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)

	// Before the scheduled time nothing fires.
	s.tick()
	if len(miner.texts) != 0 {
		t.Fatalf("fired early: %v", miner.texts)
	}

	clock = time.Date(2025, 6, 1, 22, 0, 30, 0, time.UTC)
	s.tick()
	if len(miner.texts) != 1 || miner.texts[0] != "focus on mining tonight" {
		t.Fatalf("miner got %v", miner.texts)
	}
	if len(scout.texts) != 0 {
		t.Fatalf("scout should not receive targeted directive, got %v", scout.texts)
	}

	// The entry advances to the next day; an immediate re-tick is a no-op.
	s.tick()
	if len(miner.texts) != 1 {
		t.Fatalf("directive fired twice: %v", miner.texts)
	}
	if got, want := s.entries[0].nextRun, time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("nextRun = %v, want %v", got, want)
	}
}

func TestTick_BroadcastsWhenAgentEmpty(t *testing.T) {
	miner := &recordingSink{}
	scout := &recordingSink{}
	s, err := NewScheduler(Config{
		Directives: []config.Directive{
			{Schedule: "*/5 * * * *", Text: "regroup at home"},
		},
		Sinks: map[string]DirectiveSink{"miner": miner, "scout": scout},
	})
	if err != nil {
		t.Fatal(err)
	}

	fireAt := s.entries[0].nextRun
	s.now = func() time.Time { return fireAt }
	s.tick()

	if len(miner.texts) != 1 || len(scout.texts) != 1 {
		t.Fatalf("broadcast miss: miner=%v scout=%v", miner.texts, scout.texts)
	}
}
