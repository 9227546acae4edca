package domain

import "strconv"

// Message описывает входящее текстовое сообщение из Telegram
type Message struct {
	ChatID    int64
	SenderID  int64
	MessageID int64
	Text      string
}

// SessionKey возвращает ключ, по которому сериализуются потоки обмена.
// Чат уникален и для лички, и для группы; sender: запасной вариант.
func (m Message) SessionKey() string {
	if m.ChatID != 0 {
		return "chat:" + strconv.FormatInt(m.ChatID, 10)
	}
	return "user:" + strconv.FormatInt(m.SenderID, 10)
}

// Event is one inbound message travelling through the handler chain.
// It is only touched from the dispatcher goroutine.
type Event struct {
	Message Message

	stopped         bool
	autoReplyDenied bool
}

func NewEvent(msg Message) *Event {
	return &Event{Message: msg}
}

// StopPropagation claims the event: handlers after the current one skip it.
func (e *Event) StopPropagation() { e.stopped = true }

func (e *Event) Stopped() bool { return e.stopped }

// DisableAutoReply forbids the LLM auto-response for this event.
func (e *Event) DisableAutoReply() { e.autoReplyDenied = true }

func (e *Event) AutoReplyAllowed() bool { return !e.autoReplyDenied }
