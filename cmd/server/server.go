package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skoll/internal/config"
	"skoll/internal/events"
	"skoll/internal/exchange"
	"skoll/internal/handlers"
	"skoll/internal/journal"
	"skoll/internal/metrics"
	"skoll/internal/net"
	"skoll/internal/utils"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("SKOLL_CONFIG"), "Path to the YAML configuration")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load configuration")
	}
	logger := utils.SetupLogger(cfg.Log)

	// Every committed event goes to metrics, the journal when enabled, and
	// subscribed TCP clients.
	collector := metrics.NewCollector("skoll")
	bus := events.NewBus(collector)

	var lastSeq uint64
	if cfg.JournalDir != "" {
		store, err := journal.Open(cfg.JournalDir, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("unable to open journal")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("unable to close journal")
			}
		}()
		if lastSeq, err = store.Last(); err != nil {
			logger.Fatal().Err(err).Msg("unable to read journal")
		}
		bus.Subscribe(store)
		logger.Info().Str("dir", cfg.JournalDir).Uint64("last_seq", lastSeq).Msg("journal open")
	}

	// Setup the exchange and its single writer.
	x := exchange.New(exchange.Params{
		Engine:   cfg.Engine,
		Registry: cfg.Registry(),
		Sink:     bus,
		Rates:    cfg.Rates,
		Genesis:  cfg.Genesis,
		LastSeq:  lastSeq,
	}, logger)
	seq := exchange.NewSequencer(x, logger)
	seq.Start(ctx)
	defer func() {
		if err := seq.Stop(); err != nil {
			logger.Error().Err(err).Msg("sequencer stopped with error")
		}
	}()

	// Setup the TCP server.
	srv := net.New(cfg.TCPAddr, cfg.Workers, seq, logger)
	bus.Subscribe(srv)
	go func() {
		if err := srv.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("tcp server stopped")
			stop()
		}
	}()

	// Setup the read-only HTTP API.
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.NewHandler(seq, collector.Handler(), logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("address", cfg.HTTPAddr).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// Block on running the servers.
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdown); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("server stopped")
}
