package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-relay/internal/config"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/repository"
	"github.com/rocketscienceinc/tictactoe-relay/internal/service"
	"github.com/rocketscienceinc/tictactoe-relay/internal/transport/nats"
	"github.com/rocketscienceinc/tictactoe-relay/internal/transport/redis"
	"github.com/rocketscienceinc/tictactoe-relay/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-relay/transport/rest"
	"github.com/rocketscienceinc/tictactoe-relay/transport/websocket"
)

type eventPublisher interface {
	Publish(ctx context.Context, event entity.RoomEvent) error
	Close() error
}

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	publisher, err := newPublisher(ctx, logger, conf)
	if err != nil {
		return err
	}

	notifier := service.NewNotifier(logger, publisher, conf.Events.BufferSize)

	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		notifier.Run(ctx)
	}()

	registry := repository.NewRoomRegistry(logger, repository.EvictionPolicy{
		EmptyGrace:        conf.Room.EmptyGrace,
		InactivityCeiling: conf.Room.InactivityCeiling,
		MaxAge:            conf.Room.MaxAge,
		SweepInterval:     conf.Room.SweepInterval,
	}, repository.WithRoomOptions(entity.WithChatLimit(conf.Room.ChatHistory)))

	gateway := usecase.NewGateway(logger, registry,
		usecase.WithDisconnectGrace(conf.Room.DisconnectGrace),
		usecase.WithNotifier(notifier),
	)
	registry.OnEvict(gateway.RoomEvicted)

	workers.Add(1)
	go func() {
		defer workers.Done()
		registry.Run(ctx)
	}()

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.New(logger, registry, gateway).Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if wsErr := websocket.New(logger, gateway).Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		err = fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		err = fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
	}

	cancel()
	gateway.Close()

	if closeErr := notifier.Close(); closeErr != nil {
		log.Error("could not close event publisher", "error", closeErr)
	}

	workers.Wait()

	return err
}

// newPublisher returns nil when events are disabled.
func newPublisher(ctx context.Context, logger *slog.Logger, conf *config.Config) (eventPublisher, error) {
	switch conf.Events.Driver {
	case config.EventsDriverRedis:
		publisher, err := redis.New(ctx, conf.Redis.GetRedisAddr(), conf.Redis.Channel)
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis: %w", err)
		}

		return publisher, nil
	case config.EventsDriverNATS:
		publisher, err := nats.New(logger, conf.NATS.URL, conf.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("could not connect to nats: %w", err)
		}

		return publisher, nil
	default:
		return nil, nil
	}
}
