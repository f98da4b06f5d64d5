package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/clinic-queue-booking/internal/availability"
	"github.com/iliyamo/clinic-queue-booking/internal/cache"
	"github.com/iliyamo/clinic-queue-booking/internal/config"
	"github.com/iliyamo/clinic-queue-booking/internal/database"
	"github.com/iliyamo/clinic-queue-booking/internal/feed"
	"github.com/iliyamo/clinic-queue-booking/internal/handler"
	"github.com/iliyamo/clinic-queue-booking/internal/middleware"
	"github.com/iliyamo/clinic-queue-booking/internal/queue"
	"github.com/iliyamo/clinic-queue-booking/internal/repository"
	"github.com/iliyamo/clinic-queue-booking/internal/router"
	"github.com/iliyamo/clinic-queue-booking/internal/service"
	"github.com/iliyamo/clinic-queue-booking/internal/speech"
)

func newServeCmd() *cobra.Command {
	var migrate, relay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, migrate, relay)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending schema migrations before serving")
	cmd.Flags().BoolVar(&relay, "relay", true, "run the notification relay consumer in this process")
	return cmd
}

func openDB(cfg config.Config) (*sql.DB, error) {
	return database.Open(database.Options{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	})
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger, migrate, runRelay bool) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		n, err := database.NewMigrator(db).Up(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("applied", n).Msg("migrations up to date")
	}

	bookings := repository.NewBookingRepo(db)
	clinics := repository.NewClinicRepo(db)
	doctors := repository.NewDoctorRepo(db)
	services := repository.NewServiceRepo(db)
	users := repository.NewUserRepo(db)
	calc := availability.NewCalculator(cfg.Location)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable; availability cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	brokerCfg := config.LoadBrokerConfig()
	botCfg := config.LoadBotConfig()
	notifier := service.NewBrokerNotifier(service.NewAMQPPublisher(brokerCfg), log, 5*time.Second)

	deps := service.Deps{
		Bookings:    bookings,
		Clinics:     clinics,
		Doctors:     doctors,
		Services:    services,
		Users:       users,
		Calc:        calc,
		Notify:      notifier,
		Superadmins: botCfg.SuperadminTargets,
		Log:         log,
	}
	var slotCache service.SlotCache
	if c := cache.NewAvailability(config.LoadCacheConfig(), rdb, log); c != nil {
		slotCache = c
		deps.Cache = c
	}

	feedCfg := config.LoadFeedConfig()
	queueFeed := feed.New(bookings, speech.New(config.LoadSpeechConfig(), log), feed.NewRegistry(), feedCfg, calc.Today, log)

	e := newEcho(log)
	router.Register(e, router.Handlers{
		Availability: handler.NewAvailabilityHandler(service.NewAvailabilityService(bookings, doctors, services, clinics, calc, slotCache, log)),
		Bookings:     handler.NewBookingHandler(service.NewBookingService(deps)),
		Queue:        handler.NewQueueHandler(service.NewQueueService(deps), queueFeed, clinics, feedCfg.WSWriteTimeout, log),
		Ready:        handler.Ready(db),
	}, cfg.JWTSecret, middleware.NewBookingLimiter(config.LoadRateLimitConfig(), rdb, log))

	relayDone := make(chan struct{})
	if runRelay {
		go func() {
			defer close(relayDone)
			if err := queue.NewRelay(brokerCfg, botCfg, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("notification relay stopped")
			}
		}()
	} else {
		close(relayDone)
	}

	srvErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case err := <-srvErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Int("feed_sessions", queueFeed.Registry().Total()).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	notifier.Wait()
	<-relayDone
	return nil
}

func newEcho(log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(middleware.RequestID(), middleware.Logger(log), middleware.Recovery(log))
	// Request contexts end when Shutdown starts, so open feed streams and
	// websockets return instead of holding the drain until its timeout.
	base, cancel := context.WithCancel(context.Background())
	e.Server.BaseContext = func(net.Listener) context.Context { return base }
	e.Server.RegisterOnShutdown(cancel)
	return e
}
