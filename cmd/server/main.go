package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Fanhub/internal/adapters/http"
	"github.com/dkeye/Fanhub/internal/adapters/rtc"
	wssignal "github.com/dkeye/Fanhub/internal/adapters/signal"
	"github.com/dkeye/Fanhub/internal/app"
	"github.com/dkeye/Fanhub/internal/app/orch"
	"github.com/dkeye/Fanhub/internal/auth"
	"github.com/dkeye/Fanhub/internal/config"
	"github.com/dkeye/Fanhub/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	iceServers, err := rtc.ICEServers(cfg.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ice servers")
	}
	if err := rtc.CheckConfiguration(iceServers); err != nil {
		log.Fatal().Err(err).Msg("invalid ice servers")
	}

	callPolicy, err := app.ParseConcurrentCallPolicy(cfg.Calls.ConcurrentPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid call policy")
	}
	trackerOpts := app.CallTrackerOptions{
		Policy:      callPolicy,
		RingTimeout: cfg.Calls.RingTimeout,
	}

	deps := router.Deps{ICEServers: iceServers, ServiceToken: cfg.Auth.ServiceToken}

	var recorder *store.Recorder
	if cfg.Store.Path != "" {
		calls, err := store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open call store")
		}
		defer calls.Close()

		if n, err := calls.CloseDangling(ctx, time.Now()); err != nil {
			log.Error().Err(err).Msg("close dangling calls")
		} else if n > 0 {
			log.Info().Int64("calls", n).Msg("closed calls left open by previous run")
		}
		maxID, err := calls.MaxID(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("read last call id")
		}
		recorder = store.NewRecorder(calls, cfg.Store.Buffer)
		trackerOpts.FirstID = maxID + 1
		trackerOpts.Observer = recorder
		deps.History = calls
	}

	var policy app.Policy = app.SimplePolicy{}
	if cfg.Hub.Backpressure == "drop" {
		policy = app.TolerantPolicy{}
	}

	hub := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   policy,
		Calls:    app.NewCallTracker(trackerOpts),
	}
	deps.Orch = hub

	if cfg.Auth.Enabled {
		deps.Validator = auth.NewValidator(cfg.Auth.JWTSecret)
	}
	deps.Signal = wssignal.NewSignalWSController(hub, wssignal.NewRateLimiter(cfg.Hub.RateLimit, cfg.Hub.RateInterval), wssignal.Options{
		SendBuffer: cfg.Hub.SendBuffer,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})

	// The recorder outlives ctx: calls ended by the connection teardown on
	// shutdown still have to reach the store.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	recorderDone := make(chan struct{})
	if recorder != nil {
		go func() {
			defer close(recorderDone)
			recorder.Run(recCtx)
		}()
	} else {
		close(recorderDone)
	}
	go runJanitor(ctx, hub, cfg)

	r := router.SetupRouter(ctx, cfg, deps)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Fanhub server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := deps.Signal.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("connections still open at shutdown")
	}
	stopRecorder()
	<-recorderDone
	log.Info().Msg("Server exited gracefully")
}

// runJanitor prunes empty channels, expires ringing calls and forgets old
// terminal calls until ctx is done.
func runJanitor(ctx context.Context, hub *orch.Orchestrator, cfg *config.Config) {
	interval := cfg.Hub.PruneInterval
	if interval <= 0 {
		interval = time.Minute
	}
	prune := time.NewTicker(interval)
	defer prune.Stop()

	var ring <-chan time.Time
	if timeout := cfg.Calls.RingTimeout; timeout > 0 {
		step := timeout / 4
		if step < time.Second {
			step = time.Second
		}
		t := time.NewTicker(step)
		defer t.Stop()
		ring = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-prune.C:
			if n := hub.PruneChannels(); n > 0 {
				log.Debug().Str("module", "janitor").Int("channels", n).Msg("pruned empty channels")
			}
			if cfg.Calls.Retention > 0 {
				if n := hub.Calls.Prune(cfg.Calls.Retention); n > 0 {
					log.Debug().Str("module", "janitor").Int("calls", n).Msg("forgot finished calls")
				}
			}
		case <-ring:
			if n := hub.ExpireRinging(); n > 0 {
				log.Info().Str("module", "janitor").Int("calls", n).Msg("expired ringing calls")
			}
		}
	}
}
