// This is the main entry point of the Quill blogging API.
// It loads configuration, opens the store, wires the credential service, asset store,
// janitor and workflows, serves HTTP and shuts everything down gracefully.
// @title Quill API
// @version 1.0
// @description Blogging API: accounts, avatars and posts with thumbnails.
// @contact.name API Support
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	_ "github.com/user/quill-go/docs" // Generated Swagger docs

	"github.com/user/quill-go/assets"
	"github.com/user/quill-go/auth"
	"github.com/user/quill-go/background"
	"github.com/user/quill-go/config"
	"github.com/user/quill-go/db"
	"github.com/user/quill-go/events"
	"github.com/user/quill-go/posts"
	"github.com/user/quill-go/ratelimit"
	"github.com/user/quill-go/store"
	"github.com/user/quill-go/store/memory"
	"github.com/user/quill-go/store/postgres"
	"github.com/user/quill-go/users"
)

func main() {
	// In production variables are usually set directly; .env is a development convenience.
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug(".env file not loaded")
	}

	app := &cli.App{
		Name:   "quill",
		Usage:  "blogging API server",
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API (default)",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "skip-migrations", Usage: "do not apply pending migrations on start"},
				},
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations and exit",
				Action: migrateCommand,
			},
			{
				Name:   "sweep-assets",
				Usage:  "remove uploaded files that no user or post references",
				Action: sweepCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "min-age", Value: time.Hour, Usage: "keep files younger than this"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("quill exited with an error")
	}
}

// newLogger builds the process logger: JSON in production, text elsewhere.
func newLogger(cfg *config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.WithError(err).Warnf("Unknown LOG_LEVEL %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	return log
}

func loadRuntime() (*config.AppConfig, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.Log), nil
}

// openStore opens the configured store. Postgres migrations run first unless skipped.
func openStore(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger, migrate bool) (store.Store, error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("Using the in-memory store; data is lost on restart")
		return memory.New(), nil
	}

	if migrate {
		if err := db.RunMigrations(cfg.Store, logger); err != nil {
			return nil, err
		}
	}
	pool, err := db.NewPool(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	logger.WithField("database", cfg.Store.DBName).Info("Connected to Postgres")
	return postgres.New(pool), nil
}

// application holds the wired components shared by the router and shutdown.
type application struct {
	cfg       *config.AppConfig
	logger    *logrus.Logger
	assets    *assets.LocalStore
	janitor   *background.Janitor
	creds     *auth.CredentialService
	stream    *events.Broadcaster
	users     *users.UserService
	posts     *posts.PostService
	throttle  func(http.Handler) http.Handler
	closeFunc []func()
}

// newApplication wires every component on top of st and starts the janitor.
func newApplication(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger, st store.Store) (*application, error) {
	files, err := assets.NewLocalStore(cfg.Uploads.Dir, logger)
	if err != nil {
		return nil, err
	}

	a := &application{
		cfg:    cfg,
		logger: logger,
		assets: files,
		creds:  auth.NewCredentialService(cfg.Auth),
		stream: events.NewBroadcaster(logger),
	}

	opts := background.JanitorOptions{
		Workers:   cfg.Uploads.CleanupWorkers,
		QueueSize: cfg.Uploads.CleanupQueueSize,
	}
	// An empty in-memory store references nothing, so sweeping against it would delete
	// every file left by a previous run.
	if cfg.Uploads.SweepInterval > 0 && cfg.Store.Driver == config.DriverPostgres {
		sweeper := &background.Sweeper{
			Lister:  files,
			Index:   st,
			Remover: files,
			MinAge:  cfg.Uploads.SweepMinAge,
			Logger:  logger.WithField("component", "sweeper"),
		}
		opts.SweepInterval = cfg.Uploads.SweepInterval
		opts.Sweep = sweeper.SweepOrphans
	}
	a.janitor = background.NewJanitor(files, opts, logger)

	publisher := events.MultiPublisher{a.stream}
	if cfg.Events.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.Events.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		publisher = append(publisher, natsPublisher)
		a.closeFunc = append(a.closeFunc, natsPublisher.Close)
	}

	if cfg.RateLimit.Enabled() {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closeFunc = append(a.closeFunc, func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Redis client")
			}
		})
		a.throttle = ratelimit.Middleware(ratelimit.NewRedisCounter(client), "auth", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		logger.WithField("max", cfg.RateLimit.MaxRequests).Info("Rate limiting enabled for register and login")
	}

	a.users = users.NewUserService(st, a.creds, files, a.janitor, publisher, cfg.Uploads.AvatarMaxBytes, logger)
	a.posts = posts.NewPostService(st, files, a.janitor, publisher, cfg.Uploads.ThumbnailMaxBytes, logger)

	a.janitor.Start()
	return a, nil
}

// shutdown drains the janitor and releases external connections.
func (a *application) shutdown(ctx context.Context) {
	if err := a.janitor.Stop(ctx); err != nil {
		a.logger.WithError(err).Warn("Asset janitor did not drain in time")
	}
	a.close()
}

func (a *application) close() {
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		a.closeFunc[i]()
	}
	a.closeFunc = nil
}

func serveCommand(c *cli.Context) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}

	ctx := c.Context
	st, err := openStore(ctx, cfg, logger, !c.Bool("skip-migrations"))
	if err != nil {
		return err
	}
	defer st.Close()

	app, err := newApplication(ctx, cfg, logger, st)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Open event streams never go idle on their own, so Shutdown would wait them out.
	srv.RegisterOnShutdown(app.stream.Close)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Server shutting down")
	case err, ok := <-serverErr:
		if ok {
			app.shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first so nothing schedules removals after the janitor stops.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	app.shutdown(shutdownCtx)
	logger.Info("Server stopped gracefully")
	return nil
}

func migrateCommand(_ *cli.Context) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.DriverPostgres)
	}
	return db.RunMigrations(cfg.Store, logger)
}

func sweepCommand(c *cli.Context) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("sweep-assets requires STORE_DRIVER=%s", config.DriverPostgres)
	}

	ctx := c.Context
	st, err := openStore(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer st.Close()

	files, err := assets.NewLocalStore(cfg.Uploads.Dir, logger)
	if err != nil {
		return err
	}
	sweeper := &background.Sweeper{
		Lister:  files,
		Index:   st,
		Remover: files,
		MinAge:  c.Duration("min-age"),
		Logger:  logger.WithField("component", "sweeper"),
	}
	removed, err := sweeper.SweepOrphans(ctx)
	if err != nil {
		return err
	}
	logger.WithField("removed", removed).Info("Asset sweep finished")
	return nil
}
