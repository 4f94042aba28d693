package channels

import (
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/voxmind/internal/bus"
)

type recordingSink struct {
	from []string
	text []string
	paid []bool
}

func (r *recordingSink) QueueChat(from, text string, paid bool) {
	r.from = append(r.from, from)
	r.text = append(r.text, text)
	r.paid = append(r.paid, paid)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newMessage(userID int64, userName, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: userID, UserName: userName},
		Chat: &tgbotapi.Chat{ID: userID},
	}
}

func TestParseAgentPrefix(t *testing.T) {
	cases := []struct {
		in, agent, rest string
	}{
		{"hello everyone", "", "hello everyone"},
		{"@miner go dig", "miner", "go dig"},
		{"@miner", "miner", ""},
		{"@miner   trim me  ", "miner", "trim me"},
	}
	for _, c := range cases {
		agent, rest := parseAgentPrefix(c.in)
		if agent != c.agent || rest != c.rest {
			t.Errorf("parseAgentPrefix(%q) = %q, %q; want %q, %q", c.in, agent, rest, c.agent, c.rest)
		}
	}
}

func TestHandleMessage_RoutesToNamedAgent(t *testing.T) {
	miner := &recordingSink{}
	scout := &recordingSink{}
	ch := NewTelegramChannel("tok", []int64{7}, nil,
		map[string]ChatSink{"miner": miner, "scout": scout}, bus.New(), discardLogger())

	ch.handleMessage(newMessage(7, "alice", "@miner bring me iron"))

	if len(miner.text) != 1 || miner.text[0] != "bring me iron" {
		t.Fatalf("miner got %v", miner.text)
	}
	if len(scout.text) != 0 {
		t.Fatalf("scout should not receive routed message, got %v", scout.text)
	}
	if miner.from[0] != "alice" {
		t.Fatalf("from = %q", miner.from[0])
	}
}

func TestHandleMessage_BroadcastsWithoutPrefix(t *testing.T) {
	miner := &recordingSink{}
	scout := &recordingSink{}
	ch := NewTelegramChannel("tok", []int64{7}, nil,
		map[string]ChatSink{"miner": miner, "scout": scout}, bus.New(), discardLogger())

	ch.handleMessage(newMessage(7, "alice", "good morning bots"))

	if len(miner.text) != 1 || len(scout.text) != 1 {
		t.Fatalf("broadcast miss: miner=%v scout=%v", miner.text, scout.text)
	}
}

func TestHandleMessage_PaidSenderFlag(t *testing.T) {
	miner := &recordingSink{}
	ch := NewTelegramChannel("tok", []int64{7, 8}, []string{"Alice"},
		map[string]ChatSink{"miner": miner}, bus.New(), discardLogger())

	// Paid matching is case-insensitive on the sender name.
	ch.handleMessage(newMessage(7, "alice", "build a tower"))
	ch.handleMessage(newMessage(8, "bob", "build a tower too"))

	if len(miner.paid) != 2 || !miner.paid[0] || miner.paid[1] {
		t.Fatalf("paid flags = %v", miner.paid)
	}
}

func TestHandleMessage_IgnoresEmptyAfterPrefix(t *testing.T) {
	miner := &recordingSink{}
	ch := NewTelegramChannel("tok", []int64{7}, nil,
		map[string]ChatSink{"miner": miner}, bus.New(), discardLogger())

	ch.handleMessage(newMessage(7, "alice", "@miner"))
	ch.handleMessage(newMessage(7, "alice", "   "))

	if len(miner.text) != 0 {
		t.Fatalf("empty messages should be dropped, got %v", miner.text)
	}
}
