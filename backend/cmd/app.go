package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/room-relay/backend/config"
	httpServer "github.com/adwski/room-relay/backend/server/http"
	websocketServer "github.com/adwski/room-relay/backend/server/websocket"
	"github.com/adwski/room-relay/backend/service"
	store "github.com/adwski/room-relay/backend/storage/memory"
	sw "github.com/adwski/room-relay/backend/switch"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.LogFormat == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:          &logger,
		RoomService:     svc,
		ListenAddr:      cfg.APIListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:          &logger,
		RelayService:    svc,
		ListenAddr:      cfg.WSListenAddr,
		SendBuffer:      cfg.SendBuffer,
		MaxMessageSize:  cfg.MaxMessageSize,
		PingInterval:    cfg.PingInterval,
		PongWait:        cfg.PongWait,
		WriteDeadline:   cfg.WriteDeadline,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
