package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-party/internal/config"
	"card-party/internal/eventbus"
	"card-party/internal/logging"
	"card-party/internal/registry"
	"card-party/internal/store"
	httptransport "card-party/internal/transport/http"

	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadApp()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}

	st, err := store.New(cfg.Server.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	bus := eventbus.New(cfg.Game.InternalPoll)
	go drainEvents(bus.Subscribe(256))

	svc := registry.New(st, bus, registry.SelfDirectory{}, cfg.Game, log.With().Str("component", "registry").Logger())
	if err := svc.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("registry load failed")
	}

	r := httptransport.NewRouter(svc, st)
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// Long polls stay open up to the configured poll timeout, so the
		// write timeout must outlast it.
		WriteTimeout: cfg.Game.PollTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		svc.Close()
	}()

	log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// drainEvents keeps the bus subscription flowing and mirrors every
// lifecycle event into the log. Reactions that mutate games must happen
// from here (a separate goroutine), never inside a notify.
func drainEvents(sub *eventbus.Subscription) {
	for {
		select {
		case ev := <-sub.Events():
			log.Debug().
				Str("type", string(ev.Type)).
				Str("game_id", ev.GameID).
				Str("action", ev.Action).
				Msg("game event")
		case <-sub.Done():
			return
		}
	}
}
