package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"courseboard/internal/api"
	"courseboard/internal/config"
	"courseboard/internal/course"
	"courseboard/internal/dispatch"
	"courseboard/internal/notification"
	"courseboard/internal/relay"
	"courseboard/internal/storage"
	"courseboard/internal/websocket"
)

// Application coordinates all system components. Initialization follows
// dependency order: database, stores, registry, dispatcher, services,
// optional storage and relay, then the HTTP surface.
type Application struct {
	config        *config.Config
	db            *gorm.DB
	registry      *websocket.Registry
	dispatcher    *dispatch.Dispatcher
	notifications *notification.Service
	courses       *course.Service
	scheduler     *course.ReminderScheduler
	relay         *relay.Relay
	httpServer    *http.Server
	log           zerolog.Logger

	cancelBackground context.CancelFunc
}

func NewApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	notificationStore := notification.NewStore(db)
	if err := notificationStore.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate notification schema: %w", err)
	}
	courseStore := course.NewStore(db)
	if err := courseStore.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate course schema: %w", err)
	}

	registry := websocket.NewRegistry()
	dispatcher := dispatch.NewDispatcher(registry, log)
	notifications := notification.NewService(notificationStore, dispatcher, log)

	var uploader course.Uploader
	if cfg.Storage.Enabled {
		m, err := storage.NewMinIO(context.Background(),
			cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey,
			cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		uploader = m
	}

	courses := course.NewService(courseStore, notifications, uploader, log)
	scheduler := course.NewReminderScheduler(courseStore, notifications, cfg.Reminder.Lead, cfg.Reminder.Poll, log)

	var messageRelay *relay.Relay
	if cfg.Kafka.Enabled {
		messageRelay, err = relay.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, dispatcher, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize relay: %w", err)
		}
		dispatcher.AttachPublisher(messageRelay)
	}

	wsOpts := websocket.Options{
		Path:         cfg.WebSocket.Path,
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	}
	if cfg.DevProxy.Path != "" {
		target, err := url.Parse(cfg.DevProxy.Target)
		if err != nil {
			return nil, fmt.Errorf("invalid dev proxy target: %w", err)
		}
		wsOpts.DevProxyPath = cfg.DevProxy.Path
		wsOpts.DevProxyTarget = target
	}
	wsHandler := websocket.NewHandler(registry, dispatcher, wsOpts, log)

	apiServer := api.NewServer(db, registry, wsHandler, notifications, courses,
		cfg.JWT.Secret, cfg.WebSocket.Path, cfg.DevProxy.Path, log)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		config:        cfg,
		db:            db,
		registry:      registry,
		dispatcher:    dispatcher,
		notifications: notifications,
		courses:       courses,
		scheduler:     scheduler,
		relay:         messageRelay,
		httpServer:    httpServer,
		log:           log,
	}, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch cfg.Database.Driver {
	case "mysql":
		return gorm.Open(mysql.Open(cfg.Database.DSN), gormCfg)
	default:
		return gorm.Open(sqlite.Open(cfg.Database.DSN), gormCfg)
	}
}

// Start launches background workers and the HTTP server. It returns once
// the server is accepting connections or startup has failed.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info().Str("addr", app.httpServer.Addr).Msg("starting courseboard")

	bgCtx, cancel := context.WithCancel(context.Background())
	app.cancelBackground = cancel

	if app.relay != nil {
		if err := app.relay.Run(bgCtx); err != nil {
			cancel()
			return fmt.Errorf("failed to start relay: %w", err)
		}
	}
	go app.scheduler.Run(bgCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info().Msg("courseboard started")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order: HTTP server,
// background workers, relay, then open WebSocket connections and database.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info().Msg("shutting down courseboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if app.cancelBackground != nil {
		app.cancelBackground()
	}

	if app.relay != nil {
		if err := app.relay.Close(); err != nil {
			app.log.Error().Err(err).Msg("relay shutdown error")
		}
	}

	for _, conn := range app.registry.AllConnections() {
		conn.Close()
	}

	if sqlDB, err := app.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			app.log.Error().Err(err).Msg("database shutdown error")
		}
	}

	app.log.Info().Msg("courseboard shutdown complete")
	return nil
}
