package ports

import (
	"context"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// MessageSender отправляет текстовые сообщения в чат, строго по одному
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// ChatClient определяет интерфейс для работы с Telegram
// Реализуется конкретными адаптерами (TDLib, Bot API и т.д.).
type ChatClient interface {
	MessageSender
	// Listen возвращает канал доменных сообщений
	Listen() (<-chan domain.Message, error)
	Close()
}
