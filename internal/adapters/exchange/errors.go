package exchange

import "fmt"

// bodyPreview: сколько символов тела ответа попадает в текст ошибки
const bodyPreview = 300

// TransportError: до сервиса не достучались: соединение, таймаут, чтение тела.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError: сервис ответил, но не тем: статус вне 2xx или не JSON.
type ProtocolError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Err }
