package useCases

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

// по одному ответу на каждую из двух подсказок
const slotBuffer = 2

var (
	ErrWaitTimeout    = errors.New("wait for reply: timeout")
	ErrAlreadyWaiting = errors.New("wait for reply: key already reserved")
)

// Router закрепляет ключ сессии за потоком на всё время сбора ответов.
// Пока слот занят, сообщения с этим ключом получает только этот поток.
type Router struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

func NewRouter() *Router {
	return &Router{slots: make(map[string]*Slot)}
}

// Slot is the exclusive reply channel of one flow.
type Slot struct {
	key    string
	ch     chan domain.Message
	router *Router
}

// Reserve takes key for one flow. Call it before the first prompt is sent
// so an immediate answer cannot slip past.
func (r *Router) Reserve(key string) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.slots[key]; busy {
		return nil, ErrAlreadyWaiting
	}
	s := &Slot{key: key, ch: make(chan domain.Message, slotBuffer), router: r}
	r.slots[key] = s
	return s, nil
}

// Deliver hands ev to the slot of its session key and claims the event.
// A message that arrives between two prompts waits in the slot and answers
// the next prompt; once the buffer is full further messages are dropped.
func (r *Router) Deliver(ev *domain.Event) bool {
	key := ev.Message.SessionKey()

	r.mu.Lock()
	s, ok := r.slots[key]
	if ok {
		select {
		case s.ch <- ev.Message:
		default:
			// ответы на обе подсказки уже ждут, лишнее сообщение поток не увидит
		}
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	ev.DisableAutoReply()
	ev.StopPropagation()
	return true
}

// Close releases the key. Safe to call more than once.
func (s *Slot) Close() {
	r := s.router
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[s.key] == s {
		delete(r.slots, s.key)
	}
}

// Next blocks until a message with the slot key arrives, the timeout elapses
// or ctx is done. On failure the slot is closed.
func (s *Slot) Next(ctx context.Context, timeout time.Duration) (domain.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-timer.C:
		err = ErrWaitTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	r := s.router
	r.mu.Lock()
	defer r.mu.Unlock()

	// Deliver пишет в буфер под тем же мьютексом: ответ, пришедший вместе с таймаутом, не теряем
	select {
	case msg := <-s.ch:
		return msg, nil
	default:
	}
	if r.slots[s.key] == s {
		delete(r.slots, s.key)
	}
	return domain.Message{}, err
}
