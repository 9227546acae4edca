package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"unicode/utf8"
)

var ErrInvalidJSON = errors.New("invalid JSON")

// ExchangeRequest: тело запроса к сервису выдачи лицензий
type ExchangeRequest struct {
	DeviceToken string `json:"deviceBase64"`
	Days        int    `json:"days"`
}

// SystemInfo: сведения об устройстве из ответа сервиса
type SystemInfo struct {
	AndroidID    string
	Manufacturer string
	Model        string
	Product      string
}

// ExchangeResponse is the service answer decoded once, up front.
// Callers must check OK before trusting SystemInfo, ExpireMillis or License.
type ExchangeResponse struct {
	IsObject     bool
	OK           bool
	SystemInfo   SystemInfo
	ExpireMillis int64
	License      string

	// Raw: исходный текст тела, показывается пользователю при отказе
	Raw string
}

// ParseExchangeResponse decodes a JSON body of any shape. It fails only when
// the body is not JSON at all; a non-object body yields IsObject == false.
func ParseExchangeResponse(body []byte) (*ExchangeResponse, error) {
	// json.Valid отсекает и мусор после первого значения
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}

	resp := &ExchangeResponse{Raw: string(body)}

	obj, ok := data.(map[string]any)
	if !ok {
		return resp, nil
	}
	resp.IsObject = true
	resp.OK = truthy(obj["ok"])

	if info, ok := obj["system_info"].(map[string]any); ok {
		resp.SystemInfo = SystemInfo{
			AndroidID:    field(info, "androidId"),
			Manufacturer: field(info, "manufacturer"),
			Model:        field(info, "model"),
			Product:      field(info, "product"),
		}
	}
	resp.ExpireMillis = millis(obj["expire"])
	if lic, present := obj["license"]; present {
		resp.License = stringify(lic)
	}

	return resp, nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func field(m map[string]any, key string) string {
	v := m[key]
	if !truthy(v) {
		return ""
	}
	return stringify(v)
}

func millis(v any) int64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil || f >= 9.2e18 || f <= -9.2e18 {
		return 0
	}
	return int64(f)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return err != nil || f != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
