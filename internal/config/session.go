package config

import (
	"fmt"
	"strconv"

	"github.com/larriantoniy/tg_license_bot/internal/ports"
)

// RawSessionConfig: формат json-файла сессии рядом с базой TDLib
type RawSessionConfig struct {
	SessionFile string `json:"session_file"`
	Phone       string `json:"phone"`

	SDK        string `json:"sdk"`         // SystemVersion
	AppVersion string `json:"app_version"` // ApplicationVersion
	Device     string `json:"device"`      // DeviceModel
	LangCode   string `json:"lang_code"`

	Proxy []any `json:"proxy"` // [type, host, port, useAuth, user, pass]
}

func (c *RawSessionConfig) ToProxyConfig() (*ports.ProxyConfig, error) {
	if len(c.Proxy) == 0 {
		return nil, nil
	}
	if len(c.Proxy) < 6 {
		return nil, fmt.Errorf("invalid proxy length: %d", len(c.Proxy))
	}

	host, _ := c.Proxy[1].(string)

	// port приходит как float64 из json.Unmarshal, иногда строкой
	var port int32
	switch v := c.Proxy[2].(type) {
	case float64:
		port = int32(v)
	case int:
		port = int32(v)
	case string:
		p, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port %q: %w", v, err)
		}
		port = int32(p)
	default:
		return nil, fmt.Errorf("invalid proxy port type %T", c.Proxy[2])
	}

	useAuth, _ := c.Proxy[3].(bool)
	user, _ := c.Proxy[4].(string)
	pass, _ := c.Proxy[5].(string)

	if host == "" || port <= 0 {
		return nil, nil
	}

	p := &ports.ProxyConfig{
		Enabled: true,
		Server:  host,
		Port:    port,
	}
	if useAuth {
		p.Username = user
		p.Password = pass
	}
	return p, nil
}
