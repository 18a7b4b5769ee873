package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mdfeed/internal/infrastructure/config"
	"mdfeed/internal/infrastructure/logger"
	"mdfeed/internal/infrastructure/metrics"
	"mdfeed/internal/infrastructure/svc"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/mdfeed.toml", "path to config file (.toml or .yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service init failed")
	}
	defer sc.Close()

	f := sc.Feed

	// 连接意外断开：交给重连协程
	sc.Transport.SetHandlers(f.ProcessTick, func(err error) {
		if !cfg.Feed.AutoReconnect {
			log.Warn().Err(err).Msg("connection lost, auto reconnect disabled")
			f.Disconnect()
			return
		}
		if f.StartReconnect(ctx) {
			log.Warn().Err(err).Msg("connection lost, reconnecting")
		} else {
			log.Warn().Err(err).Msg("connection lost, restart queued behind running supervisor")
		}
	})

	log.Info().
		Str("config", *configPath).
		Ints64("instruments", cfg.Feed.Instruments).
		Bool("auto_reconnect", cfg.Feed.AutoReconnect).
		Msg("mdfeed started")

	if err := f.Connect(); err != nil {
		log.Error().Err(err).Msg("initial connect failed")
		if cfg.Feed.AutoReconnect {
			f.StartReconnect(ctx)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Recorder.Run(gctx) })
	g.Go(func() error { return sc.Reporter.Run(gctx) })

	if cfg.App.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.App.MetricsAddr,
			Handler:           metrics.Handler(sc.Registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("mdfeed exited with error")
	}

	f.Disconnect()

	s := f.Stats()
	log.Info().
		Uint64("recorded", sc.Recorder.Written()).
		Uint64("dropped", sc.Recorder.Dropped()).
		Uint64("malformed", s.MalformedTicks).
		Msg("mdfeed stopped")
}
