package useCases

import (
	"context"
	"log/slog"
	"strings"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// Handler: звено цепочки обработки входящих событий
type Handler interface {
	Handle(ctx context.Context, ev *domain.Event)
}

type HandlerFunc func(ctx context.Context, ev *domain.Event)

func (f HandlerFunc) Handle(ctx context.Context, ev *domain.Event) { f(ctx, ev) }

type TriggerConfig struct {
	Keyword           string
	Aliases           []string
	AllowPlainTrigger bool
}

// Dispatcher routes inbound messages in order: awaited replies first, then
// flow triggers, then the remaining handlers for unclaimed events.
type Dispatcher struct {
	log      *slog.Logger
	router   *Router
	flows    *Controller
	keyword  string
	plain    bool
	triggers map[string]struct{}
	handlers []Handler
}

func NewDispatcher(log *slog.Logger, router *Router, flows *Controller, cfg TriggerConfig, handlers ...Handler) *Dispatcher {
	triggers := make(map[string]struct{}, len(cfg.Aliases)+2)
	if cfg.Keyword != "" {
		triggers[cfg.Keyword] = struct{}{}
		triggers["/"+cfg.Keyword] = struct{}{}
	}
	for _, a := range cfg.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			triggers[a] = struct{}{}
		}
	}

	return &Dispatcher{
		log:      log,
		router:   router,
		flows:    flows,
		keyword:  cfg.Keyword,
		plain:    cfg.AllowPlainTrigger,
		triggers: triggers,
		handlers: handlers,
	}
}

// IsTrigger reports whether the trimmed text starts a flow.
func (d *Dispatcher) IsTrigger(text string) bool {
	if text == d.keyword && !d.plain {
		return false
	}
	_, ok := d.triggers[text]
	return ok
}

// Dispatch processes one event synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *domain.Event) {
	// ждущий поток забирает любое следующее сообщение своего ключа
	if d.router.Deliver(ev) {
		d.log.Debug("reply routed to flow", "key", ev.Message.SessionKey())
		return
	}

	text := strings.TrimSpace(ev.Message.Text)
	if text == "" {
		return
	}

	if d.IsTrigger(text) {
		ev.DisableAutoReply()
		ev.StopPropagation()
		d.flows.Start(ctx, ev)
		return
	}

	for _, h := range d.handlers {
		if ev.Stopped() {
			return
		}
		h.Handle(ctx, ev)
	}
}

// Run dispatches messages until in is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, in <-chan domain.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, domain.NewEvent(msg))
		}
	}
}

// Wait blocks until running flows and background handlers are done.
func (d *Dispatcher) Wait() {
	d.flows.Wait()
	for _, h := range d.handlers {
		if w, ok := h.(interface{ Wait() }); ok {
			w.Wait()
		}
	}
}
