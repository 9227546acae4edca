package ports

import (
	"context"
)

// ProxyConfig: SOCKS5 прокси для TDLib-сессии
type ProxyConfig struct {
	Enabled  bool
	Server   string
	Port     int32
	Username string
	Password string
}

// SessionConfig: настройки одного Telegram-аккаунта, на котором живёт бот
type SessionConfig struct {
	SessionName        string
	Phone              string
	DeviceModel        string
	SystemVersion      string
	ApplicationVersion string
	LangCode           string
	Proxy              *ProxyConfig
}

type SessionConfigRepo interface {
	// Возвращает список доступных сессий (по именам директорий)
	ListSessions(ctx context.Context) ([]string, error)

	// Загружает конфиг для конкретной сессии
	GetSessionConfig(ctx context.Context, sessionName string) (*SessionConfig, error)
}
