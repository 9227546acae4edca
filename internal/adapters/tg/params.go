package tg

import (
	"github.com/larriantoniy/tg_license_bot/internal/ports"
	"github.com/zelenin/go-tdlib/client"
)

// значения по умолчанию, если в json сессии поле пустое
const (
	defaultLang          = "en"
	defaultSystemVersion = "Windows 10"
	defaultAppVersion    = "2.0"
	defaultDeviceModel   = "Desktop"
)

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func tdParams(sc *ports.SessionConfig, apiID int32, apiHash, dbDir, filesDir string) *client.SetTdlibParametersRequest {
	return &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               apiID,
		ApiHash:             apiHash,
		SystemLanguageCode:  orDefault(sc.LangCode, defaultLang),
		DeviceModel:         orDefault(sc.DeviceModel, defaultDeviceModel),
		SystemVersion:       orDefault(sc.SystemVersion, defaultSystemVersion),
		ApplicationVersion:  orDefault(sc.ApplicationVersion, defaultAppVersion),
	}
}

func proxyOption(p *ports.ProxyConfig) (client.Option, bool) {
	if p == nil || !p.Enabled {
		return nil, false
	}
	return client.WithProxy(&client.AddProxyRequest{
		Server: p.Server,
		Port:   p.Port,
		Enable: true,
		Type: &client.ProxyTypeSocks5{
			Username: p.Username,
			Password: p.Password,
		},
	}), true
}
