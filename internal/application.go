package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/fourinline-backend/internal/board"
	"github.com/rocketscienceinc/fourinline-backend/internal/config"
	"github.com/rocketscienceinc/fourinline-backend/internal/docstore"
	"github.com/rocketscienceinc/fourinline-backend/internal/identity"
	"github.com/rocketscienceinc/fourinline-backend/internal/matchmaking"
	"github.com/rocketscienceinc/fourinline-backend/internal/repository"
	"github.com/rocketscienceinc/fourinline-backend/internal/repository/storage"
	"github.com/rocketscienceinc/fourinline-backend/transport/rest"
	"github.com/rocketscienceinc/fourinline-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	store := docstore.NewRedisStore(logger, redisStorage.Connection)
	openedRepo := repository.NewOpenedMatchRepository(logger, store)
	closedRepo := repository.NewClosedMatchRepository(logger, store)

	identityProvider, err := identity.Open(conf.SQLiteStoragePath)
	if err != nil {
		return fmt.Errorf("could not open identity storage: %w", err)
	}

	defer func() {
		if err = identityProvider.Close(); err != nil {
			log.Error("could not close identity storage", "error", err)
		}
	}()

	if err = identityProvider.Init(ctx); err != nil {
		return fmt.Errorf("could not init identity storage: %w", err)
	}

	if deleted, sweepErr := openedRepo.DeleteExpired(ctx); sweepErr != nil {
		log.Error("could not sweep expired advertisements", "error", sweepErr)
	} else if deleted > 0 {
		log.Info("swept expired advertisements", "count", deleted)
	}

	matchmaker := matchmaking.New(logger, openedRepo, closedRepo, matchmaking.Config{
		Timeout:  conf.Matchmaking.Timeout,
		Prolong:  conf.Matchmaking.Prolong,
		MaxRetry: conf.Matchmaking.MaxRetry,
	})

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, identityProvider, matchmaker, closedRepo, websocket.Options{
			Rules:        board.DefaultRules(),
			Prolong:      conf.Matchmaking.Prolong,
			UnsafeWrites: conf.UnsafeLogWrites,
		})
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
