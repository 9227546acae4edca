package useCases

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
	"github.com/larriantoniy/tg_license_bot/internal/ports"
)

// AutoReplier отвечает языковой моделью на сообщения, которые никто не забрал.
// Поток обмена отключает его для своих событий.
type AutoReplier struct {
	log    *slog.Logger
	sender ports.MessageSender
	neuro  ports.NeuroProcessor

	mu          sync.Mutex
	lastReplyAt map[int64]time.Time
	minInterval time.Duration

	wg sync.WaitGroup
}

func NewAutoReplier(
	log *slog.Logger,
	sender ports.MessageSender,
	neuro ports.NeuroProcessor,
	minInterval time.Duration,
) *AutoReplier {
	return &AutoReplier{
		log:         log,
		sender:      sender,
		neuro:       neuro,
		lastReplyAt: make(map[int64]time.Time),
		minInterval: minInterval,
	}
}

// Handle decides on the dispatcher goroutine and answers in the background,
// so a slow model never delays replies routed to flows.
func (a *AutoReplier) Handle(ctx context.Context, ev *domain.Event) {
	if ev.Stopped() || !ev.AutoReplyAllowed() {
		return
	}
	msg := ev.Message
	if !a.takeSlot(msg.ChatID) {
		a.log.Debug("Skip auto reply: rate limit", "chat_id", msg.ChatID)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reply(ctx, &msg)
	}()
}

// Wait blocks until in-flight replies are sent.
func (a *AutoReplier) Wait() {
	a.wg.Wait()
}

func (a *AutoReplier) reply(ctx context.Context, msg *domain.Message) {
	replyText, err := a.neuro.GetReply(ctx, msg)
	if err != nil {
		a.log.Error("GetReply", "error", err)
		return
	}
	replyText = strings.TrimSpace(replyText)
	if replyText == "" {
		a.log.Info("Skip auto reply: empty LLM response")
		return
	}

	if err := a.sender.SendMessage(ctx, msg.ChatID, replyText); err != nil {
		a.log.Error("Send auto reply", "chat_id", msg.ChatID, "error", err)
	}
}

// takeSlot: не чаще одного ответа в minInterval на чат
func (a *AutoReplier) takeSlot(chatID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if last, ok := a.lastReplyAt[chatID]; ok && now.Sub(last) < a.minInterval {
		return false
	}
	a.lastReplyAt[chatID] = now
	return true
}
