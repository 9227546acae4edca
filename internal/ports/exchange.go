package ports

import (
	"context"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// Exchanger обменивает device id и число дней на лицензию
type Exchanger interface {
	Exchange(ctx context.Context, req domain.ExchangeRequest) (*domain.ExchangeResponse, error)
}
