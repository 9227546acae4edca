package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExchangeResponse_NotObject(t *testing.T) {
	for _, body := range []string{`[1,2]`, `"ok"`, `42`, `null`, `true`} {
		resp, err := ParseExchangeResponse([]byte(body))
		require.NoError(t, err, body)
		assert.False(t, resp.IsObject, body)
		assert.False(t, resp.OK, body)
		assert.Equal(t, body, resp.Raw)
	}
}

func TestParseExchangeResponse_Invalid(t *testing.T) {
	for _, body := range []string{``, `{`, `{"ok":true}}`, `{"ok":true} x`, `nope`} {
		_, err := ParseExchangeResponse([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidJSON, body)
	}
}

func TestParseExchangeResponse_Truthiness(t *testing.T) {
	tests := map[string]bool{
		`{"ok": true}`:    true,
		`{"ok": 1}`:       true,
		`{"ok": "yes"}`:   true,
		`{"ok": [0]}`:     true,
		`{"ok": false}`:   false,
		`{"ok": 0}`:       false,
		`{"ok": 0.0}`:     false,
		`{"ok": ""}`:      false,
		`{"ok": null}`:    false,
		`{"ok": {}}`:      false,
		`{"license": "x"}`: false,
	}
	for body, want := range tests {
		resp, err := ParseExchangeResponse([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, resp.OK, body)
	}
}

func TestParseExchangeResponse_Fields(t *testing.T) {
	body := `{"ok":true,"system_info":{"androidId":"a1","manufacturer":0,"model":null,"product":12},"expire":1.7e12,"license":"L"}`

	resp, err := ParseExchangeResponse([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, SystemInfo{AndroidID: "a1", Product: "12"}, resp.SystemInfo)
	assert.Equal(t, int64(1700000000000), resp.ExpireMillis)
	assert.Equal(t, "L", resp.License)
}

func TestParseExchangeResponse_Defaults(t *testing.T) {
	resp, err := ParseExchangeResponse([]byte(`{"ok":true,"system_info":"junk","expire":"soon"}`))
	require.NoError(t, err)

	assert.Equal(t, SystemInfo{}, resp.SystemInfo)
	assert.Zero(t, resp.ExpireMillis)
	assert.Empty(t, resp.License)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "при", Truncate("привет", 3))
}

func TestMessageSessionKey(t *testing.T) {
	assert.Equal(t, "chat:42", Message{ChatID: 42, SenderID: 7}.SessionKey())
	assert.Equal(t, "chat:-100500", Message{ChatID: -100500}.SessionKey())
	assert.Equal(t, "user:7", Message{SenderID: 7}.SessionKey())
}
