package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/voxmind/internal/bus"
)

// TelegramChannel bridges a Telegram bot to the agents. Incoming
// messages from allow-listed users become viewer chat; outgoing agent
// chat lines are relayed back to every chat that has messaged the bot.
type TelegramChannel struct {
	token       string
	allowedIDs  map[int64]struct{}
	paidSenders map[string]struct{}
	sinks       map[string]ChatSink
	eventBus    *bus.Bus
	logger      *slog.Logger
	bot         *tgbotapi.BotAPI

	chatMu  sync.Mutex
	chatIDs map[int64]struct{}
}

// NewTelegramChannel creates a Telegram channel routing into the given
// sinks, keyed by agent name. Senders listed in paidSenders get their
// messages queued at paid priority.
func NewTelegramChannel(token string, allowedIDs []int64, paidSenders []string, sinks map[string]ChatSink, eventBus *bus.Bus, logger *slog.Logger) *TelegramChannel {
	allowed := make(map[int64]struct{})
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	paid := make(map[string]struct{})
	for _, name := range paidSenders {
		paid[strings.ToLower(name)] = struct{}{}
	}
	return &TelegramChannel{
		token:       token,
		allowedIDs:  allowed,
		paidSenders: paid,
		sinks:       sinks,
		eventBus:    eventBus,
		logger:      logger,
		chatIDs:     make(map[int64]struct{}),
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}

	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	if t.eventBus != nil {
		go t.relayOutgoing(ctx)
	}

	// Reconnection loop with exponential backoff.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2x the long-poll timeout (stall
// detection). Returns nil on context cancellation, or an error to trigger
// reconnection.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5
	// minutes the connection is likely dead (the library blocks rather
	// than closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			// Reset stall timer on every received update (including empty long-poll returns).
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message == nil {
				continue
			}
			if _, ok := t.allowedIDs[update.Message.From.ID]; !ok {
				t.logger.Warn("telegram access denied", "user_id", update.Message.From.ID, "user_name", update.Message.From.UserName)
				continue
			}
			t.handleMessage(update.Message)

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	content := strings.TrimSpace(msg.Text)
	if content == "" {
		return
	}

	t.chatMu.Lock()
	t.chatIDs[msg.Chat.ID] = struct{}{}
	t.chatMu.Unlock()

	from := senderName(msg)
	_, paid := t.paidSenders[strings.ToLower(from)]

	agent, rest := parseAgentPrefix(content)
	if rest == "" {
		return
	}
	if agent != "" {
		sink, ok := t.sinks[agent]
		if !ok {
			t.reply(msg.Chat.ID, "No such agent: "+agent)
			return
		}
		sink.QueueChat(from, rest, paid)
		return
	}
	for _, sink := range t.sinks {
		sink.QueueChat(from, rest, paid)
	}
}

// parseAgentPrefix splits an optional "@agent message" prefix. A message
// without a prefix targets every agent.
func parseAgentPrefix(content string) (agent, rest string) {
	if !strings.HasPrefix(content, "@") {
		return "", content
	}
	parts := strings.SplitN(content, " ", 2)
	agent = strings.TrimPrefix(parts[0], "@")
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return agent, rest
}

func senderName(msg *tgbotapi.Message) string {
	if msg.From.UserName != "" {
		return msg.From.UserName
	}
	if msg.From.FirstName != "" {
		return msg.From.FirstName
	}
	return "viewer"
}

// relayOutgoing forwards the agents' outgoing chat lines to every chat
// that has messaged the bot.
func (t *TelegramChannel) relayOutgoing(ctx context.Context) {
	sub := t.eventBus.Subscribe(bus.TopicChatMessage)
	defer t.eventBus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			chat, ok := ev.Payload.(bus.ChatEvent)
			if !ok || !chat.Outgoing {
				continue
			}
			line := fmt.Sprintf("[%s] %s", chat.Agent, chat.Text)
			t.chatMu.Lock()
			ids := make([]int64, 0, len(t.chatIDs))
			for id := range t.chatIDs {
				ids = append(ids, id)
			}
			t.chatMu.Unlock()
			for _, id := range ids {
				t.reply(id, line)
			}
		}
	}
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram reply", "error", err)
	}
}
