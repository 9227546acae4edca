package ports

import (
	"context"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// NeuroProcessor генерирует автоответ языковой моделью
type NeuroProcessor interface {
	GetReply(ctx context.Context, msg *domain.Message) (string, error)
}
