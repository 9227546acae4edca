package useCases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/larriantoniy/tg_license_bot/internal/adapters/registry"
	"github.com/larriantoniy/tg_license_bot/internal/domain"
	"github.com/larriantoniy/tg_license_bot/internal/metrics"
	"github.com/larriantoniy/tg_license_bot/internal/ports"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type recordingSender struct {
	ch chan sentMessage
}

func newRecordingSender() *recordingSender {
	return &recordingSender{ch: make(chan sentMessage, 64)}
}

func (s *recordingSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.ch <- sentMessage{ChatID: chatID, Text: text}
	return nil
}

func (s *recordingSender) next(t *testing.T) sentMessage {
	t.Helper()
	select {
	case m := <-s.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("expected an outbound message")
		return sentMessage{}
	}
}

func (s *recordingSender) nextText(t *testing.T) string {
	t.Helper()
	return s.next(t).Text
}

func (s *recordingSender) none(t *testing.T) {
	t.Helper()
	select {
	case m := <-s.ch:
		t.Fatalf("unexpected outbound message %q", m.Text)
	default:
	}
}

type fakeExchanger struct {
	mu    sync.Mutex
	calls []domain.ExchangeRequest
	fn    func(ctx context.Context, req domain.ExchangeRequest) (*domain.ExchangeResponse, error)
}

func (f *fakeExchanger) Exchange(ctx context.Context, req domain.ExchangeRequest) (*domain.ExchangeResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeExchanger) Calls() []domain.ExchangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ExchangeRequest(nil), f.calls...)
}

func okExchanger() *fakeExchanger {
	return &fakeExchanger{fn: func(context.Context, domain.ExchangeRequest) (*domain.ExchangeResponse, error) {
		return domain.ParseExchangeResponse([]byte(`{"ok":true,"system_info":{"androidId":"abc123"},"expire":0,"license":"LIC"}`))
	}}
}

type failingRegistry struct{}

func (failingRegistry) TryAcquire(context.Context, *domain.Session) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (failingRegistry) Release(context.Context, *domain.Session) error { return nil }

type harness struct {
	sender     *recordingSender
	registry   ports.SessionRegistry
	router     *Router
	prom       *prometheus.Registry
	metrics    *metrics.Flow
	flows      *Controller
	dispatcher *Dispatcher
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	flow     FlowConfig
	trigger  TriggerConfig
	registry ports.SessionRegistry
	handlers func(sender ports.MessageSender) []Handler
}

func withWaitTimeout(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.flow.WaitTimeout = d }
}

func withPlainTrigger(allowed bool) harnessOption {
	return func(c *harnessConfig) { c.trigger.AllowPlainTrigger = allowed }
}

func withRegistry(reg ports.SessionRegistry) harnessOption {
	return func(c *harnessConfig) { c.registry = reg }
}

func withHandlers(fn func(sender ports.MessageSender) []Handler) harnessOption {
	return func(c *harnessConfig) { c.handlers = fn }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, exch ports.Exchanger, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		flow: FlowConfig{MaxDays: 3650, WaitTimeout: 2 * time.Second},
		trigger: TriggerConfig{
			Keyword:           "授权",
			Aliases:           []string{"license", "auth"},
			AllowPlainTrigger: true,
		},
		registry: registry.NewMemoryRegistry(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	h := &harness{
		sender:   newRecordingSender(),
		registry: cfg.registry,
		router:   NewRouter(),
		prom:     prometheus.NewRegistry(),
	}
	h.metrics = metrics.NewFlow(h.prom)
	h.flows = NewController(discardLogger(), h.sender, exch, h.registry, h.router, h.metrics, cfg.flow)

	var handlers []Handler
	if cfg.handlers != nil {
		handlers = cfg.handlers(h.sender)
	}
	h.dispatcher = NewDispatcher(discardLogger(), h.router, h.flows, cfg.trigger, handlers...)
	t.Cleanup(h.dispatcher.Wait)
	return h
}

func (h *harness) send(chatID int64, text string) *domain.Event {
	ev := domain.NewEvent(domain.Message{ChatID: chatID, SenderID: chatID * 10, Text: text})
	h.dispatcher.Dispatch(context.Background(), ev)
	return ev
}

func (h *harness) active(t *testing.T, chatID int64) bool {
	t.Helper()
	return keyHeld(t, h.registry, domain.Message{ChatID: chatID}.SessionKey())
}

// outcomes читает flow_outcomes_total{state} из реестра метрик
func (h *harness) outcomes(t *testing.T, state domain.State) float64 {
	t.Helper()
	families, err := h.prom.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "license_exchange_flow_outcomes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "state" && lp.GetValue() == string(state) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// keyHeld проверяет ключ пробным захватом и сразу его отпускает
func keyHeld(t *testing.T, reg ports.SessionRegistry, key string) bool {
	t.Helper()
	ctx := context.Background()
	check := &domain.Session{ID: "held-check", Key: key}
	ok, err := reg.TryAcquire(ctx, check)
	require.NoError(t, err)
	if ok {
		require.NoError(t, reg.Release(ctx, check))
	}
	return !ok
}

// reserved сообщает, закреплён ли key за каким-то потоком в роутере
func reserved(r *Router, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[key]
	return ok
}
