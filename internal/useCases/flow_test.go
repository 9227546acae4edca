package useCases

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larriantoniy/tg_license_bot/internal/adapters/exchange"
	"github.com/larriantoniy/tg_license_bot/internal/domain"
	"github.com/larriantoniy/tg_license_bot/internal/presenter"
)

func exchangeServer(t *testing.T, handler http.HandlerFunc) *exchange.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return exchange.NewClient(server.URL, time.Second, discardLogger())
}

func TestFlow_Success(t *testing.T) {
	client := exchangeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "QUJDRA==", body["deviceBase64"])
		assert.Equal(t, float64(30), body["days"])

		fmt.Fprint(w, `{"ok": true, "system_info": {"androidId":"abc123","manufacturer":"Acme","model":"X1","product":"x1prod"}, "expire": 1700000000000, "license": "LIC-XYZ"}`)
	})
	h := newHarness(t, client)

	ev := h.send(1, "license")
	assert.True(t, ev.Stopped())
	assert.False(t, ev.AutoReplyAllowed())
	assert.Equal(t, sentMessage{ChatID: 1, Text: MsgAskDeviceID}, h.sender.next(t))
	assert.True(t, h.active(t, 1))

	h.send(1, "QUJDRA==")
	assert.Equal(t, MsgAskDays, h.sender.nextText(t))

	h.send(1, "30")
	info := h.sender.nextText(t)
	for _, want := range []string{"abc123", "Acme", "X1", "x1prod"} {
		assert.Contains(t, info, want)
	}
	assert.Contains(t, info, time.UnixMilli(1700000000000).Local().Format("2006-01-02 15:04:05 MST"))
	assert.Equal(t, presenter.RenderDeviceInfo(domain.SystemInfo{
		AndroidID: "abc123", Manufacturer: "Acme", Model: "X1", Product: "x1prod",
	}, 1700000000000), info)

	assert.Equal(t, "LIC-XYZ", h.sender.nextText(t))

	h.flows.Wait()
	h.sender.none(t)
	assert.False(t, h.active(t, 1))
	assert.Equal(t, float64(1), h.outcomes(t, domain.StateSuccess))
}

func TestFlow_Triggers(t *testing.T) {
	tests := []struct {
		text  string
		plain bool
		want  bool
	}{
		{"授权", true, true},
		{"/授权", true, true},
		{"license", true, true},
		{"auth", true, true},
		{"  auth  ", true, true},
		{"授权", false, false},
		{"/授权", false, true},
		{"license", false, true},
		{"License", true, false},
		{"license please", true, false},
		{"", true, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q plain=%v", tt.text, tt.plain), func(t *testing.T) {
			h := newHarness(t, okExchanger(), withPlainTrigger(tt.plain), withWaitTimeout(20*time.Millisecond))

			h.send(1, tt.text)
			if tt.want {
				assert.Equal(t, MsgAskDeviceID, h.sender.nextText(t))
				assert.Equal(t, MsgTimeout, h.sender.nextText(t))
			}
			h.flows.Wait()
			h.sender.none(t)
		})
	}
}

func TestFlow_ConcurrentStartRejected(t *testing.T) {
	h := newHarness(t, okExchanger())

	h.send(1, "license")
	require.Equal(t, MsgAskDeviceID, h.sender.nextText(t))

	// повторный запуск с тем же ключом, минуя роутер
	ev := domain.NewEvent(domain.Message{ChatID: 1, Text: "license"})
	state := h.flows.Start(context.Background(), ev)
	assert.Equal(t, domain.StateRejected, state)
	assert.Equal(t, MsgInProgress, h.sender.nextText(t))

	// исходный поток не тронут и продолжает ждать ответ
	assert.True(t, reserved(h.router, "chat:1"))
	assert.True(t, h.active(t, 1))

	h.send(1, "QUJDRA==")
	assert.Equal(t, MsgAskDays, h.sender.nextText(t))
	h.send(1, "7")
	h.sender.nextText(t)
	assert.Equal(t, "LIC", h.sender.nextText(t))

	h.flows.Wait()
	assert.False(t, h.active(t, 1))
	assert.Equal(t, float64(1), h.outcomes(t, domain.StateRejected))
}

func TestFlow_StartReturnsBeforeFlowsExpire(t *testing.T) {
	h := newHarness(t, okExchanger(), withWaitTimeout(time.Nanosecond))

	const chats = 20
	for i := int64(1); i <= chats; i++ {
		ev := domain.NewEvent(domain.Message{ChatID: i, Text: "license"})
		assert.Equal(t, domain.StateAwaitingDeviceID, h.flows.Start(context.Background(), ev))
	}

	h.flows.Wait()
	for i := int64(1); i <= chats; i++ {
		assert.False(t, h.active(t, i))
		assert.False(t, reserved(h.router, domain.Message{ChatID: i}.SessionKey()))
	}
	assert.Equal(t, float64(chats), h.outcomes(t, domain.StateTimeout))
}

func TestFlow_ReplyBeforeSecondPromptIsKept(t *testing.T) {
	exch := okExchanger()
	h := newHarness(t, exch)

	h.send(1, "license")
	require.Equal(t, MsgAskDeviceID, h.sender.nextText(t))

	// оба ответа подряд, не дожидаясь второй подсказки
	first := h.send(1, "QUJDRA==")
	second := h.send(1, "30")
	assert.True(t, first.Stopped())
	assert.True(t, second.Stopped())
	assert.False(t, second.AutoReplyAllowed())

	assert.Equal(t, MsgAskDays, h.sender.nextText(t))
	h.sender.nextText(t)
	assert.Equal(t, "LIC", h.sender.nextText(t))

	h.flows.Wait()
	assert.Equal(t, []domain.ExchangeRequest{{DeviceToken: "QUJDRA==", Days: 30}}, exch.Calls())
	assert.False(t, reserved(h.router, "chat:1"))
}

func TestFlow_TriggerDuringExchangeRejected(t *testing.T) {
	release := make(chan struct{})
	exch := &fakeExchanger{fn: func(ctx context.Context, req domain.ExchangeRequest) (*domain.ExchangeResponse, error) {
		<-release
		return domain.ParseExchangeResponse([]byte(`{"ok":true,"license":"LIC"}`))
	}}
	h := newHarness(t, exch)

	h.send(1, "license")
	h.sender.nextText(t)
	h.send(1, "QUJDRA==")
	h.sender.nextText(t)
	h.send(1, "10")

	require.Eventually(t, func() bool { return len(exch.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	ev := h.send(1, "auth")
	assert.True(t, ev.Stopped())
	assert.Equal(t, MsgInProgress, h.sender.nextText(t))

	close(release)
	h.sender.nextText(t)
	assert.Equal(t, "LIC", h.sender.nextText(t))
	h.flows.Wait()
	assert.Len(t, exch.Calls(), 1)
}

func TestFlow_InvalidDeviceID(t *testing.T) {
	exch := okExchanger()
	h := newHarness(t, exch)

	h.send(1, "license")
	h.sender.nextText(t)
	h.send(1, "not base64!")
	assert.Equal(t, MsgBadDeviceID, h.sender.nextText(t))

	h.flows.Wait()
	h.sender.none(t)
	assert.False(t, h.active(t, 1))
	assert.Empty(t, exch.Calls())
}

func TestFlow_InvalidDays(t *testing.T) {
	for _, days := range []string{"0", "-5", "999999", "abc"} {
		t.Run(days, func(t *testing.T) {
			exch := okExchanger()
			h := newHarness(t, exch)

			h.send(1, "license")
			h.sender.nextText(t)
			h.send(1, "QUJDRA==")
			h.sender.nextText(t)
			h.send(1, days)
			assert.Equal(t, MsgBadDays, h.sender.nextText(t))

			h.flows.Wait()
			assert.False(t, h.active(t, 1))
			assert.Empty(t, exch.Calls())
			assert.Equal(t, float64(1), h.outcomes(t, domain.StateValidationFailed))
		})
	}
}

func TestFlow_ValuesSentToExchange(t *testing.T) {
	exch := okExchanger()
	h := newHarness(t, exch)

	h.send(1, "license")
	h.sender.nextText(t)
	h.send(1, "  QUJDRA==  ")
	h.sender.nextText(t)
	h.send(1, " 3650 ")
	h.sender.nextText(t)
	h.sender.nextText(t)
	h.flows.Wait()

	assert.Equal(t, []domain.ExchangeRequest{{DeviceToken: "QUJDRA==", Days: 3650}}, exch.Calls())
}

func TestFlow_TimeoutFirstPrompt(t *testing.T) {
	h := newHarness(t, okExchanger(), withWaitTimeout(30*time.Millisecond))

	h.send(1, "license")
	assert.Equal(t, MsgAskDeviceID, h.sender.nextText(t))
	assert.Equal(t, MsgTimeout, h.sender.nextText(t))

	h.flows.Wait()
	assert.False(t, h.active(t, 1))
	assert.False(t, reserved(h.router, "chat:1"))

	// тот же ключ сразу может начать заново
	h.send(1, "license")
	assert.Equal(t, MsgAskDeviceID, h.sender.nextText(t))
	assert.Equal(t, MsgTimeout, h.sender.nextText(t))
	h.flows.Wait()
	assert.Equal(t, float64(2), h.outcomes(t, domain.StateTimeout))
}

func TestFlow_TimeoutSecondPrompt(t *testing.T) {
	exch := okExchanger()
	h := newHarness(t, exch, withWaitTimeout(50*time.Millisecond))

	h.send(1, "license")
	h.sender.nextText(t)
	h.send(1, "QUJDRA==")
	assert.Equal(t, MsgAskDays, h.sender.nextText(t))
	assert.Equal(t, MsgTimeout, h.sender.nextText(t))

	h.flows.Wait()
	assert.False(t, h.active(t, 1))
	assert.Empty(t, exch.Calls())
}

func TestFlow_OtherConversationDoesNotResume(t *testing.T) {
	h := newHarness(t, okExchanger())

	h.send(1, "license")
	h.sender.nextText(t)

	ev := h.send(2, "QUJDRA==")
	assert.False(t, ev.Stopped())
	h.sender.none(t)
	assert.True(t, reserved(h.router, "chat:1"))

	h.send(1, "QUJDRA==")
	assert.Equal(t, sentMessage{ChatID: 1, Text: MsgAskDays}, h.sender.next(t))
	h.send(1, "1")
	h.sender.nextText(t)
	h.sender.nextText(t)
	h.flows.Wait()
}

func TestFlow_IndependentConversations(t *testing.T) {
	h := newHarness(t, okExchanger())

	h.send(1, "license")
	assert.Equal(t, sentMessage{ChatID: 1, Text: MsgAskDeviceID}, h.sender.next(t))
	h.send(2, "auth")
	assert.Equal(t, sentMessage{ChatID: 2, Text: MsgAskDeviceID}, h.sender.next(t))

	h.send(2, "bad id!")
	assert.Equal(t, sentMessage{ChatID: 2, Text: MsgBadDeviceID}, h.sender.next(t))

	h.send(1, "QUJDRA==")
	assert.Equal(t, sentMessage{ChatID: 1, Text: MsgAskDays}, h.sender.next(t))
	h.send(1, "abc")
	assert.Equal(t, sentMessage{ChatID: 1, Text: MsgBadDays}, h.sender.next(t))

	h.flows.Wait()
	assert.False(t, h.active(t, 1))
	assert.False(t, h.active(t, 2))
}

func TestFlow_RequestFailed(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"http 500": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"ok":true}`)
		},
		"invalid json": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok": tru`)
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, exchangeServer(t, handler))

			h.send(1, "license")
			h.sender.nextText(t)
			h.send(1, "QUJDRA==")
			h.sender.nextText(t)
			h.send(1, "30")
			assert.Equal(t, MsgRequestFailed, h.sender.nextText(t))

			h.flows.Wait()
			h.sender.none(t)
			assert.False(t, h.active(t, 1))
			assert.Equal(t, float64(1), h.outcomes(t, domain.StateTransportFailed))
		})
	}
}

func TestFlow_RejectedByService(t *testing.T) {
	body := `{"ok":false,"reason":"` + strings.Repeat("я", 500) + `"}`
	client := exchangeServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})
	h := newHarness(t, client)

	h.send(1, "license")
	h.sender.nextText(t)
	h.send(1, "QUJDRA==")
	h.sender.nextText(t)
	h.send(1, "30")

	got := h.sender.nextText(t)
	assert.Equal(t, string([]rune(body)[:400]), got)

	h.flows.Wait()
	h.sender.none(t)
	assert.False(t, h.active(t, 1))
}

func TestFlow_NonObjectResponse(t *testing.T) {
	client := exchangeServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `["LIC"]`)
	})
	h := newHarness(t, client)

	h.send(1, "license")
	h.sender.nextText(t)
	h.send(1, "QUJDRA==")
	h.sender.nextText(t)
	h.send(1, "30")

	assert.Equal(t, `["LIC"]`, h.sender.nextText(t))
	h.flows.Wait()
	assert.Equal(t, float64(1), h.outcomes(t, domain.StateRejected))
}

func TestFlow_PanicReleasesKey(t *testing.T) {
	exch := &fakeExchanger{fn: func(context.Context, domain.ExchangeRequest) (*domain.ExchangeResponse, error) {
		panic("boom")
	}}
	h := newHarness(t, exch)

	h.send(1, "license")
	h.sender.nextText(t)
	h.send(1, "QUJDRA==")
	h.sender.nextText(t)
	h.send(1, "30")

	h.flows.Wait()
	assert.False(t, h.active(t, 1))
	assert.Equal(t, float64(1), h.outcomes(t, domain.StateTransportFailed))
}

func TestFlow_RegistryUnavailable(t *testing.T) {
	h := newHarness(t, okExchanger(), withRegistry(failingRegistry{}))

	h.send(1, "license")
	assert.Equal(t, MsgRequestFailed, h.sender.nextText(t))
	assert.False(t, reserved(h.router, "chat:1"))
}

func TestFlow_ContextCancelled(t *testing.T) {
	h := newHarness(t, okExchanger())
	ctx, cancel := context.WithCancel(context.Background())

	h.dispatcher.Dispatch(ctx, domain.NewEvent(domain.Message{ChatID: 1, Text: "license"}))
	assert.Equal(t, MsgAskDeviceID, h.sender.nextText(t))

	cancel()
	h.flows.Wait()

	h.sender.none(t)
	assert.False(t, h.active(t, 1))
	assert.False(t, reserved(h.router, "chat:1"))
}
