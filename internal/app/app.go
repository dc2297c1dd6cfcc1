package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/pagesend/internal/api"
	"github.com/foxzi/pagesend/internal/config"
	"github.com/foxzi/pagesend/internal/db"
	"github.com/foxzi/pagesend/internal/directory"
	"github.com/foxzi/pagesend/internal/dispatch"
	"github.com/foxzi/pagesend/internal/mail"
	"github.com/foxzi/pagesend/internal/matcher"
	"github.com/foxzi/pagesend/internal/metrics"
	"github.com/foxzi/pagesend/internal/pdfdoc"
	"github.com/foxzi/pagesend/internal/ratelimit"
	"github.com/foxzi/pagesend/internal/repository"
	"github.com/foxzi/pagesend/internal/session"
)

// App is the main application
type App struct {
	config    *config.Config
	logger    *slog.Logger
	database  *db.DB
	state     *bolt.DB
	directory *directory.Directory
	sessions  *session.Store
	limiter   *ratelimit.Limiter
	sandbox   *mail.SandboxStore
	engine    *dispatch.Engine
	apiServer *api.Server
	collector *metrics.Collector
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logger := SetupLogger(cfg.Logging)
	slog.SetDefault(logger)

	a := &App{config: cfg, logger: logger}
	if err := a.init(ctx, version); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, version string) error {
	cfg := a.config
	var err error

	// Metrics go first so that components report their initial state
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
	}

	a.database, err = OpenDatabase(cfg)
	if err != nil {
		return err
	}

	a.state, err = OpenState(cfg)
	if err != nil {
		return err
	}

	a.directory, err = directory.New(ctx, repository.NewRecipientRepository(a.database.DB), a.logger)
	if err != nil {
		return fmt.Errorf("failed to load directory: %w", err)
	}

	if cfg.ImportOnStart() {
		a.seedDirectory(ctx)
	}

	a.sessions = session.NewStore(cfg.Uploads.MaxSessions, cfg.Uploads.TTL)

	var sender mail.Sender
	sender, a.sandbox, err = newSender(cfg, a.state, a.logger)
	if err != nil {
		return err
	}

	var limiter dispatch.Limiter
	if rl := rateLimitConfig(cfg.Dispatch.RateLimit); rl != nil {
		a.limiter, err = ratelimit.NewLimiter(a.state, rl)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		limiter = a.limiter
		a.logger.Info("rate limiting enabled")
	}

	a.engine = dispatch.NewEngine(
		a.sessions,
		pdfdoc.NewSplitter(),
		sender,
		limiter,
		dispatch.Config{
			From:           cfg.Mail.From,
			ItemTimeout:    cfg.Dispatch.ItemTimeout,
			DefaultSubject: cfg.Dispatch.DefaultSubject,
			DefaultBody:    cfg.Dispatch.DefaultBody,
		},
		a.logger,
	)

	a.apiServer = api.NewServer(cfg, api.Deps{
		Directory: a.directory,
		Resolver:  matcher.NewResolver(a.directory),
		Sessions:  a.sessions,
		Engine:    a.engine,
		Sandbox:   a.sandbox,
		Metrics:   m,
		Version:   version,
	}, a.logger)

	if m != nil {
		a.collector = metrics.NewCollector(m,
			[]string{cfg.Database.Path, cfg.Sandbox.Path},
			a.sessions.Len,
			cfg.Metrics.CollectInterval,
		)
	}

	return nil
}

func (a *App) seedDirectory(ctx context.Context) {
	res, err := a.directory.ReimportFile(ctx, a.config.Directory.SeedFile)
	if err != nil {
		// The directory stays usable through the UI
		a.logger.Error("seed import failed", "path", a.config.Directory.SeedFile, "error", err)
		return
	}
	a.logger.Info("seed import finished",
		"path", a.config.Directory.SeedFile,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"total", res.Total,
		"message", res.Message,
	)
}

// Handler returns the HTTP handler, mainly for tests
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting pagesend",
		"addr", a.config.Server.ListenAddr,
		"mail_mode", a.config.Mail.Mode,
		"database", a.config.Database.Path,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// A dispatch in flight may take a while to finish
	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Dispatch.ItemTimeout+30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	if a.collector != nil {
		a.collector.Stop()
	}

	a.close()
	a.logger.Info("shutdown complete")
	return nil
}

// close releases storage. Safe on a partially built App.
func (a *App) close() {
	if a.limiter != nil {
		// Persists counters
		if err := a.limiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.logger.Error("state store close error", "error", err)
		}
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			a.logger.Error("database close error", "error", err)
		}
	}
}

// OpenDatabase opens the recipient database and applies migrations
func OpenDatabase(cfg *config.Config) (*db.DB, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// OpenState opens the bbolt file holding sandbox captures and rate limit
// counters
func OpenState(cfg *config.Config) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Sandbox.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	state, err := bolt.Open(cfg.Sandbox.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store %s: %w", cfg.Sandbox.Path, err)
	}
	return state, nil
}

// newSender picks the transport for mail.mode. The sandbox store is
// returned in sandbox mode only.
func newSender(cfg *config.Config, state *bolt.DB, logger *slog.Logger) (mail.Sender, *mail.SandboxStore, error) {
	if cfg.Mail.Mode == "sandbox" {
		store, err := mail.NewSandboxStore(state)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sandbox mode, messages are captured and not sent")
		return mail.NewSandboxSender(store, cfg.Mail.Hostname, logger), store, nil
	}

	var signer *mail.Signer
	if cfg.Mail.DKIM.Enabled {
		var err error
		signer, err = mail.NewSignerFromFile(cfg.Mail.DKIM.KeyFile, cfg.Mail.DKIM.Domain, cfg.Mail.DKIM.Selector)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load DKIM key: %w", err)
		}
		logger.Info("DKIM signing enabled", "domain", cfg.Mail.DKIM.Domain, "selector", cfg.Mail.DKIM.Selector)
	}

	sender := mail.NewSMTPSender(mail.SMTPOptions{
		Host:               cfg.Mail.Host,
		Port:               cfg.Mail.Port,
		TLS:                mail.TLSMode(cfg.Mail.TLS),
		Username:           cfg.Mail.Username,
		Password:           cfg.Mail.Password,
		Hostname:           cfg.Mail.Hostname,
		Timeout:            cfg.Mail.Timeout,
		InsecureSkipVerify: cfg.Mail.InsecureSkipVerify,
	}, signer, logger)
	return sender, nil, nil
}

// rateLimitConfig converts the configured quotas, nil when none is set
func rateLimitConfig(c config.RateLimitConfig) *ratelimit.Config {
	convert := func(v *config.LimitValues) *ratelimit.LimitConfig {
		if v == nil || (v.MessagesPerHour <= 0 && v.MessagesPerDay <= 0) {
			return nil
		}
		return &ratelimit.LimitConfig{
			MessagesPerHour: v.MessagesPerHour,
			MessagesPerDay:  v.MessagesPerDay,
		}
	}

	rl := &ratelimit.Config{
		Global:          convert(c.Global),
		RecipientDomain: convert(c.RecipientDomain),
		Recipient:       convert(c.Recipient),
		FlushInterval:   c.FlushInterval,
	}
	if rl.Global == nil && rl.RecipientDomain == nil && rl.Recipient == nil {
		return nil
	}
	return rl
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
