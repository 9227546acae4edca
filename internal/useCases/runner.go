package useCases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/larriantoniy/tg_license_bot/internal/ports"
)

type ClientFactory func(cfg *ports.SessionConfig, log *slog.Logger) (ports.ChatClient, error)

// DispatcherFactory собирает цепочку обработчиков поверх конкретного клиента
type DispatcherFactory func(cli ports.ChatClient, log *slog.Logger) *Dispatcher

type Runner struct {
	cfgRepo       ports.SessionConfigRepo
	log           *slog.Logger
	factory       ClientFactory
	newDispatcher DispatcherFactory
}

func NewRunner(
	cfgRepo ports.SessionConfigRepo,
	log *slog.Logger,
	factory ClientFactory,
	newDispatcher DispatcherFactory,
) *Runner {
	return &Runner{cfgRepo: cfgRepo, log: log, factory: factory, newDispatcher: newDispatcher}
}

// StartAll запускает клиентов по всем доступным сессиям и блокируется до ctx.Done()
func (r *Runner) StartAll(ctx context.Context) error {
	sessions, err := r.cfgRepo.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return errors.New("no sessions found")
	}

	var wg sync.WaitGroup
	for _, sName := range sessions {
		wg.Add(1)
		go func(sName string) {
			defer wg.Done()
			r.serve(ctx, sName)
		}(sName)
	}
	wg.Wait()

	return nil
}

func (r *Runner) serve(ctx context.Context, sName string) {
	log := r.log.With("session", sName)

	cfg, err := r.cfgRepo.GetSessionConfig(ctx, sName)
	if err != nil {
		log.Error("GetSessionConfig failed", "error", err)
		return
	}

	cli, err := r.factory(cfg, log)
	if err != nil {
		log.Error("factory failed", "error", err)
		return
	}
	defer cli.Close()

	msgs, err := cli.Listen()
	if err != nil {
		log.Error("Listen failed", "error", err)
		return
	}

	d := r.newDispatcher(cli, log)
	log.Info("client started")

	if err := d.Run(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("dispatcher stopped", "error", err)
	}

	// клиент закрываем только после того, как потоки дописали ответы
	d.Wait()
	log.Info("client stopped")
}
