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

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/quarterdeck/internal/access"
	"github.com/dropDatabas3/quarterdeck/internal/account"
	"github.com/dropDatabas3/quarterdeck/internal/audit"
	"github.com/dropDatabas3/quarterdeck/internal/cache"
	"github.com/dropDatabas3/quarterdeck/internal/config"
	"github.com/dropDatabas3/quarterdeck/internal/daemon"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/email"
	"github.com/dropDatabas3/quarterdeck/internal/http/controllers"
	"github.com/dropDatabas3/quarterdeck/internal/http/router"
	"github.com/dropDatabas3/quarterdeck/internal/http/session"
	"github.com/dropDatabas3/quarterdeck/internal/metrics"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
	"github.com/dropDatabas3/quarterdeck/internal/rate"
	"github.com/dropDatabas3/quarterdeck/internal/securetoken"
	"github.com/dropDatabas3/quarterdeck/internal/store"
	"github.com/dropDatabas3/quarterdeck/internal/store/pg"
	"github.com/dropDatabas3/quarterdeck/internal/transfer"
)

var version = "dev" // seteado por -ldflags en release

func main() {
	cfgPath := flag.String("config", "", "ruta al config YAML (opcional, env manda)")
	migrateOnly := flag.Bool("migrate", false, "aplica migraciones y termina")
	flag.Parse()

	// .env primero: las overrides de config leen el environment
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		logger.L().Fatal("config load failed", logger.Err(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.L().Fatal("config invalid", logger.Err(err))
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "quarterdeck",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := store.Open(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Postgres: pg.Config{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		},
	})
	if err != nil {
		log.Fatal("storage open failed", logger.Err(err))
	}
	defer stores.Close()

	if err := stores.Migrate(ctx); err != nil {
		log.Fatal("migrations failed", logger.Err(err))
	}
	if *migrateOnly {
		log.Info("migrations applied, exiting")
		return
	}

	cacheClient, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: parseDur(cfg.Cache.Memory.DefaultTTL, 5*time.Minute),
	})
	if err != nil {
		log.Fatal("cache open failed", logger.Err(err))
	}
	defer func() { _ = cacheClient.Close() }()

	if err := metrics.RegisterDomain(nil); err != nil {
		log.Warn("metrics registration incomplete", logger.Err(err))
	}

	recorder := audit.NewStoreRecorder(stores.AuditEvents())

	tokens := securetoken.New(stores.SecureTokens(),
		securetoken.WithPolicy(repository.TokenKindVerification, securetoken.Policy{TTL: cfg.Tokens.VerifyTTL}),
		securetoken.WithPolicy(repository.TokenKindPasswordReset, securetoken.Policy{TTL: cfg.Tokens.ResetTTL}),
		securetoken.WithPolicy(repository.TokenKindImpersonation, securetoken.Policy{TTL: cfg.Tokens.ImpersonationTTL, RequireIssuer: true}),
	)

	var notifier account.Notifier
	if cfg.Email.DevMode {
		notifier = email.LogMailer{}
	} else {
		sender := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		sender.TLSMode = cfg.SMTP.TLS
		sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		notifier = email.NewMailer(sender, cfg.Email.BaseURL, cfg.App.Name)
	}

	accounts := account.New(stores.Users(), tokens, notifier, recorder)

	sessions := session.NewManager(cacheClient, session.DefaultTTL)

	signer := daemon.NewSigner(cfg.Daemon.Issuer)
	daemonHTTP := &http.Client{Timeout: cfg.Daemon.RequestTimeout}
	nodes := daemon.NewClient(signer, daemonHTTP)
	starter := daemon.NewStarter(stores.Servers(), stores.Nodes(), signer, daemonHTTP)

	resolver := access.NewResolver(stores.Users(), stores.Servers(), stores.Nodes(), stores.Grants(), cacheClient)

	orch := transfer.New(stores.Transfers(), stores.Allocations(), stores.Servers(), stores.Nodes(), starter, recorder)

	var forgotLimiter, verifyLimiter rate.Limiter
	if cfg.Rate.Enabled {
		forgotLimiter, verifyLimiter = buildLimiters(cfg)
	}

	checks := map[string]func(ctx context.Context) error{
		"storage": stores.Ping,
	}

	handler := router.New(router.Deps{
		Auth:               controllers.NewAuthController(accounts, sessions),
		Client:             controllers.NewClientController(resolver, signer, nodes, cfg.Daemon.CredentialTTL),
		Admin:              controllers.NewAdminController(accounts, orch, stores.Transfers(), stores.Users(), stores.Nodes(), recorder, cfg.Email.BaseURL),
		Node:               controllers.NewNodeController(orch, stores.Transfers(), stores.Nodes()),
		Health:             controllers.NewHealthController(version, checks),
		Sessions:           sessions,
		ForgotLimiter:      forgotLimiter,
		VerifyLimiter:      verifyLimiter,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MetricsEnabled:     cfg.Metrics.Enabled,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("panel listening",
			logger.String("addr", cfg.Server.Addr),
			logger.String("storage", cfg.Storage.Driver),
			logger.String("cache", cfg.Cache.Kind),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", logger.Err(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", logger.Err(err))
	}
}

// buildLimiters arma los rate limiters según el backend de cache: con redis
// la ventana es compartida entre instancias, con memory es por proceso.
func buildLimiters(cfg *config.Config) (forgot, verify rate.Limiter) {
	fw := parseDur(cfg.Rate.Forgot.Window, 10*time.Minute)
	vw := parseDur(cfg.Rate.Verify.Window, 10*time.Minute)

	if cfg.Cache.Kind == "redis" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
		prefix := cfg.Cache.Redis.Prefix + "rl:"
		return rate.NewRedisLimiter(client, prefix, cfg.Rate.Forgot.Limit, fw),
			rate.NewRedisLimiter(client, prefix, cfg.Rate.Verify.Limit, vw)
	}
	return rate.NewMemoryLimiter(cfg.Rate.Forgot.Limit, fw),
		rate.NewMemoryLimiter(cfg.Rate.Verify.Limit, vw)
}

func parseDur(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
