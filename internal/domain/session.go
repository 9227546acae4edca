package domain

import (
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingDeviceID State = "awaiting_device_id"
	StateAwaitingDays     State = "awaiting_days"
	StateExchanging       State = "exchanging"

	// терминальные состояния
	StateSuccess          State = "success"
	StateValidationFailed State = "validation_failed"
	StateTimeout          State = "timeout"
	StateTransportFailed  State = "transport_failed"
	StateRejected         State = "rejected"
)

// Session: один активный поток обмена для одного ключа
type Session struct {
	ID     string
	Key    string
	ChatID int64
	State  State

	DeviceToken string
	Days        int

	StartedAt time.Time
}

func NewSession(msg Message) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Key:       msg.SessionKey(),
		ChatID:    msg.ChatID,
		State:     StateIdle,
		StartedAt: time.Now(),
	}
}
