package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/techgrid/site-backend/internal/api"
	"github.com/techgrid/site-backend/internal/auth"
	"github.com/techgrid/site-backend/internal/config"
	"github.com/techgrid/site-backend/internal/mailer"
	"github.com/techgrid/site-backend/internal/notify"
	"github.com/techgrid/site-backend/internal/pkg/distlock"
	"github.com/techgrid/site-backend/internal/pkg/logger"
	"github.com/techgrid/site-backend/internal/ratelimit"
	"github.com/techgrid/site-backend/internal/repository/memory"
	"github.com/techgrid/site-backend/internal/repository/postgres"
	"github.com/techgrid/site-backend/internal/service/campaign"
	"github.com/techgrid/site-backend/internal/service/contact"
	"github.com/techgrid/site-backend/internal/service/dashboard"
	"github.com/techgrid/site-backend/internal/service/newsletter"
	"github.com/techgrid/site-backend/internal/service/registration"
	"github.com/techgrid/site-backend/internal/service/templates"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

// repos groups one storage backend's repositories.
type repos struct {
	contacts      contact.Repository
	registrations registration.Repository
	newsletter    newsletter.Repository
	templates     templates.Repository
}

func openRepos(ctx context.Context, cfg *config.Config) (repos, *sql.DB, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, records are kept in memory and lost on restart")
		return repos{
			contacts:      memory.NewContactRepo(),
			registrations: memory.NewRegistrationRepo(),
			newsletter:    memory.NewNewsletterRepo(),
			templates:     memory.NewTemplateRepo(),
		}, nil, nil
	}
	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return repos{}, nil, err
	}
	logger.Info("database connected")
	return repos{
		contacts:      postgres.NewContactRepo(db),
		registrations: postgres.NewRegistrationRepo(db),
		newsletter:    postgres.NewNewsletterRepo(db),
		templates:     postgres.NewTemplateRepo(db),
	}, db, nil
}

// connectRedis returns nil when Redis is not configured or unreachable.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Info("REDIS_URL not set, sessions and locks are process-local and rate limiting is off")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, continuing without it", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

func newMailer(ctx context.Context, cfg *config.Config) (*mailer.Mailer, error) {
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, err
	}
	if cfg.Mail.TemplateDir != "" {
		if err := renderer.LoadDir(cfg.Mail.TemplateDir); err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
	}

	var transport mailer.Transport = mailer.LogTransport{}
	if cfg.Mail.Provider == "ses" {
		t, err := mailer.NewSESTransport(ctx, mailer.SESConfig{
			Region:           cfg.Mail.SES.Region,
			AccessKey:        cfg.Mail.SES.AccessKey,
			SecretKey:        cfg.Mail.SES.SecretKey,
			ConfigurationSet: cfg.Mail.SES.ConfigurationSet,
			Timeout:          time.Duration(cfg.Mail.SES.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		transport = t
	}
	logger.Info("mailer ready", "provider", cfg.Mail.Provider)

	globals := map[string]interface{}{
		"site": map[string]interface{}{"name": cfg.Site.Name, "url": cfg.Site.URL},
	}
	return mailer.New(transport, renderer, mailer.Sender{
		FromName:  cfg.Mail.FromName,
		FromEmail: cfg.Mail.FromEmail,
		ReplyTo:   cfg.Mail.ReplyTo,
	}, globals), nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetOutput(os.Stdout, cfg.Logging.Pretty)
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(!cfg.Logging.DisablePIIRedaction)

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		logger.Error("cannot start", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, db, err := openRepos(ctx, cfg)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient := connectRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	m, err := newMailer(ctx, cfg)
	if err != nil {
		logger.Error("mailer setup failed", "error", err)
		os.Exit(1)
	}
	dispatcher := notify.NewDispatcher(m, cfg.Mail.AdminEmail, cfg.Mail.NotifyTimeout())

	subs := newsletter.NewService(store.newsletter, dispatcher, newsletter.WithBaseURL(cfg.Site.URL))
	contacts := contact.NewService(store.contacts, dispatcher)
	regs := registration.NewService(store.registrations, subs, dispatcher, registration.Event{
		ID:           cfg.Event.ID,
		Name:         cfg.Event.Name,
		Date:         cfg.Event.Date,
		Location:     cfg.Event.Location,
		NumberPrefix: cfg.Event.NumberPrefix,
	}, registration.WithBaseURL(cfg.Site.URL))
	tmpls := templates.NewService(store.templates, m.Renderer())
	campaigns := campaign.NewService(subs, regs, tmpls, m, distlock.NewFactory(redisClient, db), campaign.Config{
		Interval: cfg.Campaign.Interval(),
		LockTTL:  cfg.Campaign.LockTTL(),
	})

	handlers := api.NewHandlers(api.Services{
		Contacts:      contacts,
		Registrations: regs,
		Newsletter:    subs,
		Templates:     tmpls,
		Campaigns:     campaigns,
		Dashboard:     dashboard.NewService(contacts, regs, subs),
	})

	var sessions auth.SessionStore
	var limiter *ratelimit.Limiter
	if redisClient != nil {
		sessions = auth.NewRedisStore(redisClient)
		limiter = ratelimit.New(redisClient)
	} else {
		mem := auth.NewMemoryStore()
		go mem.CleanupExpired(ctx, 10*time.Minute)
		sessions = mem
	}
	if cfg.Auth.PasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, dashboard login is disabled")
	}

	server := api.NewServer(handlers, api.RouteDeps{
		Auth:           auth.NewManager(cfg.Auth, sessions),
		Health:         api.NewHealthChecker(db, redisClient),
		Limiter:        limiter,
		Limits:         cfg.RateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr(), "event", cfg.Event.ID)
		if err := server.ListenAndServe(cfg.Server.Addr()); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	// Let queued confirmation and notification emails finish.
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notifications still in flight at shutdown", "error", err)
	}
	logger.Info("server stopped")
}
