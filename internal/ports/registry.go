package ports

import (
	"context"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// SessionRegistry: множество активных ключей сессий.
// TryAcquire атомарно проверяет и занимает ключ.
type SessionRegistry interface {
	TryAcquire(ctx context.Context, s *domain.Session) (bool, error)
	// Release освобождает ключ, только если его держит именно эта сессия
	Release(ctx context.Context, s *domain.Session) error
}
