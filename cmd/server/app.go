package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/caredar/caredar/hub"
	"github.com/caredar/caredar/registry"
	httpServer "github.com/caredar/caredar/server/http"
	websocketServer "github.com/caredar/caredar/server/websocket"
	"github.com/caredar/caredar/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	_ = godotenv.Load() // optional .env, env vars win over defaults

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", listenAddrFromEnv("API_PORT", ":8080"), "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", listenAddrFromEnv("PORT", ":8888"), "websocket tracking listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		PresenceStore: registry.New(),
		Broadcaster:   hub.New(&logger),
		Logger:        &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:          &logger,
		PresenceService: svc,
		ListenAddr:      *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:          &logger,
		PresenceService: svc,
		ListenAddr:      *wsListenAddr,
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

func listenAddrFromEnv(key, fallback string) string {
	if port := os.Getenv(key); port != "" {
		return ":" + port
	}
	return fallback
}
