package useCases

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
	"github.com/larriantoniy/tg_license_bot/internal/metrics"
	"github.com/larriantoniy/tg_license_bot/internal/ports"
	"github.com/larriantoniy/tg_license_bot/internal/presenter"
	"github.com/larriantoniy/tg_license_bot/internal/validation"
)

// Тексты, которые видит пользователь
const (
	MsgAskDeviceID   = "please send the device id"
	MsgAskDays       = "please send the number of days"
	MsgInProgress    = "an exchange is already in progress"
	MsgBadDeviceID   = "device id format invalid"
	MsgBadDays       = "day count invalid"
	MsgTimeout       = "timeout"
	MsgRequestFailed = "request failed"
)

const (
	rejectPreview     = 400
	releaseTimeout    = 5 * time.Second
	defaultWaitPeriod = 300 * time.Second
)

type FlowConfig struct {
	MaxDays     int
	WaitTimeout time.Duration
}

// Controller drives the two-step exchange flow: device id, day count,
// remote exchange, rendered answer. One goroutine per running flow.
type Controller struct {
	log       *slog.Logger
	sender    ports.MessageSender
	exchanger ports.Exchanger
	registry  ports.SessionRegistry
	router    *Router
	metrics   *metrics.Flow
	cfg       FlowConfig

	wg sync.WaitGroup
}

func NewController(
	log *slog.Logger,
	sender ports.MessageSender,
	exchanger ports.Exchanger,
	registry ports.SessionRegistry,
	router *Router,
	m *metrics.Flow,
	cfg FlowConfig,
) *Controller {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitPeriod
	}
	return &Controller{
		log:       log,
		sender:    sender,
		exchanger: exchanger,
		registry:  registry,
		router:    router,
		metrics:   m,
		cfg:       cfg,
	}
}

// Start runs on the dispatcher goroutine: it takes the session key and spawns
// the flow. The returned state is AwaitingDeviceID when a flow was started.
func (c *Controller) Start(ctx context.Context, ev *domain.Event) domain.State {
	// автоответ LLM не должен влезать в диалог
	ev.DisableAutoReply()

	sess := domain.NewSession(ev.Message)
	log := c.log.With("flow_id", sess.ID, "key", sess.Key)

	ok, err := c.registry.TryAcquire(ctx, sess)
	if err != nil {
		log.Error("acquire session key", "error", err)
		c.reply(ctx, log, sess.ChatID, MsgRequestFailed)
		c.metrics.Outcome(domain.StateTransportFailed)
		return domain.StateTransportFailed
	}
	if !ok {
		log.Info("exchange already in progress")
		c.reply(ctx, log, sess.ChatID, MsgInProgress)
		c.metrics.Outcome(domain.StateRejected)
		return domain.StateRejected
	}

	slot, err := c.router.Reserve(sess.Key)
	if err != nil {
		log.Error("reserve reply slot", "error", err)
		c.release(ctx, sess, log)
		c.reply(ctx, log, sess.ChatID, MsgInProgress)
		c.metrics.Outcome(domain.StateRejected)
		return domain.StateRejected
	}

	c.metrics.Started()
	log.Info("flow started", "sender_id", ev.Message.SenderID)

	// после go сессию трогает только горутина потока
	sess.State = domain.StateAwaitingDeviceID
	c.wg.Add(1)
	go c.run(ctx, sess, slot, log)

	return domain.StateAwaitingDeviceID
}

// Wait blocks until every running flow reached a terminal state.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context, sess *domain.Session, slot *Slot, log *slog.Logger) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("flow panicked", "panic", r, "state", sess.State)
			sess.State = domain.StateTransportFailed
		}

		slot.Close()
		c.release(ctx, sess, log)

		c.metrics.Outcome(sess.State)
		c.metrics.ObserveFlow(time.Since(sess.StartedAt))
		log.Info("flow finished", "state", sess.State)
	}()

	sess.State = c.execute(ctx, sess, slot, log)
}

// release снимает ключ в реестре; ctx может быть уже отменён при остановке
func (c *Controller) release(ctx context.Context, sess *domain.Session, log *slog.Logger) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := c.registry.Release(relCtx, sess); err != nil {
		log.Error("release session key", "error", err)
	}
}

func (c *Controller) execute(ctx context.Context, sess *domain.Session, slot *Slot, log *slog.Logger) domain.State {
	device, ok := c.ask(ctx, sess, slot, log, MsgAskDeviceID)
	if !ok {
		return sess.State
	}
	if !validation.LooksLikeEncodedDeviceID(device) {
		log.Info("device id rejected")
		c.reply(ctx, log, sess.ChatID, MsgBadDeviceID)
		return domain.StateValidationFailed
	}
	sess.DeviceToken = device

	sess.State = domain.StateAwaitingDays
	rawDays, ok := c.ask(ctx, sess, slot, log, MsgAskDays)
	if !ok {
		return sess.State
	}
	// ответы собраны, повторный триггер во время обмена получит "already in progress"
	slot.Close()

	days, valid := validation.ParsePositiveBoundedInt(rawDays, c.cfg.MaxDays)
	if !valid {
		log.Info("day count rejected", "input", domain.Truncate(rawDays, 32))
		c.reply(ctx, log, sess.ChatID, MsgBadDays)
		return domain.StateValidationFailed
	}
	sess.Days = days

	sess.State = domain.StateExchanging
	return c.exchange(ctx, sess, log)
}

// ask sends prompt and waits for the next message with the session key.
// On failure it sets the terminal state on sess and returns false.
func (c *Controller) ask(ctx context.Context, sess *domain.Session, slot *Slot, log *slog.Logger, prompt string) (string, bool) {
	c.reply(ctx, log, sess.ChatID, prompt)

	msg, err := slot.Next(ctx, c.cfg.WaitTimeout)
	if err != nil {
		awaiting := sess.State
		sess.State = domain.StateTimeout
		if errors.Is(err, ErrWaitTimeout) {
			log.Info("reply wait timed out", "awaiting", awaiting)
			c.reply(ctx, log, sess.ChatID, MsgTimeout)
		} else {
			log.Info("reply wait cancelled", "error", err)
		}
		return "", false
	}
	return strings.TrimSpace(msg.Text), true
}

func (c *Controller) exchange(ctx context.Context, sess *domain.Session, log *slog.Logger) domain.State {
	started := time.Now()
	resp, err := c.exchanger.Exchange(ctx, domain.ExchangeRequest{
		DeviceToken: sess.DeviceToken,
		Days:        sess.Days,
	})
	c.metrics.ObserveExchange(time.Since(started), err)

	if err != nil {
		log.Error("exchange request failed", "error", err, "days", sess.Days)
		c.reply(ctx, log, sess.ChatID, MsgRequestFailed)
		return domain.StateTransportFailed
	}

	if !resp.IsObject || !resp.OK {
		short := domain.Truncate(resp.Raw, rejectPreview)
		log.Warn("exchange rejected by service", "body", short)
		c.reply(ctx, log, sess.ChatID, short)
		return domain.StateRejected
	}

	// сначала информация об устройстве, потом отдельным сообщением только лицензия
	c.reply(ctx, log, sess.ChatID, presenter.RenderDeviceInfo(resp.SystemInfo, resp.ExpireMillis))
	c.reply(ctx, log, sess.ChatID, resp.License)

	log.Info("license issued", "days", sess.Days, "android_id", resp.SystemInfo.AndroidID)
	return domain.StateSuccess
}

func (c *Controller) reply(ctx context.Context, log *slog.Logger, chatID int64, text string) {
	// отправка не должна зависеть от отмены потока
	if err := c.sender.SendMessage(context.WithoutCancel(ctx), chatID, text); err != nil {
		log.Error("send message", "chat_id", chatID, "error", err)
	}
}
