package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
	"github.com/larriantoniy/tg_license_bot/internal/ports"
	"github.com/zelenin/go-tdlib/client"
)

// TelegramClient реализует ports.ChatClient через TDLib
type TelegramClient struct {
	client *client.Client
	logger *slog.Logger
	selfId int64

	listener  *client.Listener
	done      chan struct{}
	closeOnce sync.Once
}

type ClientMode int

const (
	ClientModeRuntime ClientMode = iota // боевой режим: GetMe, лог self_id
	ClientModeAuth                      // режим авторизации: промпты в консоли и выход
)

var ErrRateLimited = errors.New("tdlib: too many requests")

func NewClient(
	apiID int32,
	apiHash string,
	baseDir string, // "/sessions"
	sc *ports.SessionConfig,
	log *slog.Logger,
	mode ClientMode,
) (*TelegramClient, error) {
	sessionDir := filepath.Join(baseDir, sc.SessionName)
	dbDir := filepath.Join(sessionDir, "database")
	filesDir := filepath.Join(sessionDir, "files")

	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir files dir: %w", err)
	}

	if _, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	}); err != nil {
		log.Error("TDLib SetLogVerbosityLevel", "error", err)
	}

	checkNetwork(log, sc.Proxy)

	var opts []client.Option
	if opt, ok := proxyOption(sc.Proxy); ok {
		opts = append(opts, opt)
	}

	authorizer := client.ClientAuthorizer(tdParams(sc, apiID, apiHash, dbDir, filesDir))
	if mode == ClientModeAuth {
		go client.CliInteractor(authorizer)
	}

	tdCli, err := client.NewClient(authorizer, opts...)
	if err != nil {
		log.Error("TDLib NewClient error", "proxy", describeProxy(sc.Proxy), "error", err)
		return nil, err
	}

	t := &TelegramClient{
		client: tdCli,
		logger: log,
		done:   make(chan struct{}),
	}

	if mode == ClientModeAuth {
		log.Info("TDLib client started in AUTH mode", "phone", sc.Phone)
		return t, nil
	}

	// сессия уже должна быть авторизована
	me, err := tdCli.GetMe()
	if err != nil {
		log.Error("GetMe failed", "error", err)
		tdCli.Close()
		return nil, err
	}
	t.selfId = me.Id

	log.Info("TDLib client initialized and authorized",
		"self_id", me.Id,
		"phone", sc.Phone,
		"proxy", describeProxy(sc.Proxy),
	)
	return t, nil
}

func (t *TelegramClient) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.listener != nil {
			t.listener.Close()
		}
		if _, err := t.client.Close(); err != nil {
			t.logger.Warn("TDLib close failed", "error", err)
		}
	})
}

// Listen возвращает канал входящих текстовых сообщений
func (t *TelegramClient) Listen() (<-chan domain.Message, error) {
	out := make(chan domain.Message)

	t.listener = t.client.GetListener()
	go func() {
		defer close(out)
		for update := range t.listener.Updates {
			upd, ok := update.(*client.UpdateNewMessage)
			if !ok {
				continue
			}
			msg, ok := t.toDomain(upd.Message)
			if !ok {
				continue
			}
			select {
			case out <- msg:
			case <-t.done:
				return
			}
		}
	}()

	return out, nil
}

func (t *TelegramClient) toDomain(m *client.Message) (domain.Message, bool) {
	if m == nil || m.IsOutgoing {
		return domain.Message{}, false
	}

	content, ok := m.Content.(*client.MessageText)
	if !ok || content.Text == nil {
		t.logger.Debug("skip non-text message", "chat_id", m.ChatId, "content_type", m.Content.MessageContentType())
		return domain.Message{}, false
	}

	var senderID int64
	switch s := m.SenderId.(type) {
	case *client.MessageSenderUser:
		senderID = s.UserId
	case *client.MessageSenderChat:
		senderID = s.ChatId
	}
	if senderID != 0 && senderID == t.selfId {
		return domain.Message{}, false
	}

	return domain.Message{
		ChatID:    m.ChatId,
		SenderID:  senderID,
		MessageID: m.Id,
		Text:      content.Text.Text,
	}, true
}

// SendMessage отправляет одно текстовое сообщение
func (t *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.typing(chatID)

	_, err := t.client.SendMessage(&client.SendMessageRequest{
		ChatId: chatID,
		InputMessageContent: &client.InputMessageText{
			Text:       &client.FormattedText{Text: text},
			ClearDraft: true,
		},
	})
	if err == nil {
		return nil
	}

	if isTooManyRequests(err) {
		t.logger.Error("SendMessage rate-limited", "chat_id", chatID, "error", err)
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	t.logger.Error("SendMessage failed", "chat_id", chatID, "error", err)
	return err
}

// typing показывает "печатает..."; ошибки не фейлят отправку
func (t *TelegramClient) typing(chatID int64) {
	_, err := t.client.SendChatAction(&client.SendChatActionRequest{
		ChatId: chatID,
		Action: &client.ChatActionTyping{},
	})
	if err != nil {
		t.logger.Debug("SendChatAction typing failed", "chat_id", chatID, "error", err)
	}
}

func isTooManyRequests(err error) bool {
	// TDLib оборачивает ошибки в client.Error
	var tdErr *client.Error
	if errors.As(err, &tdErr) {
		if tdErr.Code == 429 {
			return true
		}
		if strings.Contains(strings.ToLower(tdErr.Message), "too many requests") {
			return true
		}
	}
	return false
}
