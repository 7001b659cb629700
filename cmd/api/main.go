package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"civic-identity/internal/config"
	"civic-identity/internal/db"
	"civic-identity/internal/email"
	"civic-identity/internal/guard"
	"civic-identity/internal/housekeeping"
	apihttp "civic-identity/internal/http"
	"civic-identity/internal/repository"
	"civic-identity/internal/security"
	"civic-identity/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	emailSender := newEmailSender(cfg, logger)
	reviewSink, closeRedis := newReviewSink(ctx, cfg, logger)
	defer closeRedis()

	guardMetrics := guard.NewMetrics(registry)
	limiter := guard.NewRateLimiter(append(limiterOptions(cfg), guard.WithMetrics(guardMetrics))...)
	scorer := guard.NewSpamScorer(spamOptions(cfg.Spam)...)
	abuseGuard := guard.NewGuard(logger, limiter, scorer, reviewSink, guardMetrics,
		guard.WithResendPolicy(mergePolicy(guard.DefaultResendPolicy(), cfg.ResendLimit)))

	tokens := security.NewRandomTokenGenerator()
	hasher := security.NewBcryptHasher(cfg.BcryptCost)

	sessionSvc := service.NewSessionService(logger, store, tokens, cfg.SessionTTL)
	verificationSvc := service.NewVerificationService(logger, store, tokens, emailSender, cfg.VerificationTTL)
	deletionSvc := service.NewDeletionService(logger, store, tokens, emailSender, cfg.DeletionTTL)
	founderSvc := service.NewFounderService(logger, store, emailSender)
	accountSvc := service.NewAccountService(logger, store, abuseGuard, hasher, tokens, sessionSvc, verificationSvc)

	paymentTokens := service.NewPaymentTokenVerifier(cfg.PaymentsWebhookSecret)
	if !paymentTokens.Enabled() {
		logger.Warn("payments webhook secret not configured; founder callback disabled")
	}
	if cfg.AdminToken == "" {
		logger.Warn("admin token not configured; admin routes disabled")
	}

	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Auth:          apihttp.NewAuthHandler(logger, abuseGuard, accountSvc, sessionSvc, verificationSvc),
		Account:       apihttp.NewAccountHandler(logger, deletionSvc),
		Admin:         apihttp.NewAdminHandler(logger, limiter, deletionSvc),
		Payments:      apihttp.NewPaymentHandler(logger, founderSvc),
		Sessions:      sessionSvc,
		PaymentTokens: paymentTokens,
		AdminToken:    cfg.AdminToken,
		Registry:      registry,
		Health:        health,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	scheduler := housekeeping.NewScheduler(logger, sessionSvc, limiter, deletionSvc, cfg.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(context.Context) error, func(), error) {
	if cfg.StorageDriver == "memory" {
		logger.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryStore(), nil, func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Ping(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		logger.Info("migrations applied")
	}
	health := func(ctx context.Context) error { return db.Ping(ctx, pool) }
	return repository.NewPgStore(pool), health, pool.Close, nil
}

func newEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	if cfg.SMTPHost == "" {
		logger.Warn("smtp not configured; account emails will not be delivered")
		return email.NewDisabledSender("email sender not configured")
	}
	sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS, cfg.PublicURL)
	if err != nil {
		logger.Warn("smtp sender init failed", zap.Error(err))
		return email.NewDisabledSender(err.Error())
	}
	return sender
}

// newReviewSink registra la cola de revision en Redis ademas del log, si Redis responde.
func newReviewSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (guard.ReviewSink, func()) {
	logSink := guard.NewLogReviewSink(logger)
	if cfg.RedisAddr == "" {
		return logSink, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		logger.Warn("redis ping failed; spam review queue disabled", zap.Error(err))
		_ = client.Close()
		return logSink, func() {}
	}
	sink := guard.NewRedisReviewSink(client, cfg.Spam.ReviewQueueKey, cfg.Spam.ReviewQueueMaxSize)
	return guard.MultiReviewSink{logSink, sink}, func() { _ = client.Close() }
}

func limiterOptions(cfg *config.Config) []guard.RateLimiterOption {
	opts := make([]guard.RateLimiterOption, 0, 2)
	defaults := guard.DefaultPolicies()
	for action, p := range map[guard.Action]config.RateLimitPolicy{
		guard.ActionRegister: cfg.RegisterLimit,
		guard.ActionLogin:    cfg.LoginLimit,
	} {
		opts = append(opts, guard.WithPolicy(action, mergePolicy(defaults[action], p)))
	}
	return opts
}

// mergePolicy sobrescribe los valores por defecto con los configurados.
func mergePolicy(base guard.Policy, p config.RateLimitPolicy) guard.Policy {
	if p.Window > 0 {
		base.Window = p.Window
	}
	if p.MaxAttempts > 0 {
		base.MaxAttempts = p.MaxAttempts
	}
	if p.Lockout > 0 {
		base.Lockout = p.Lockout
	}
	return base
}

func spamOptions(c config.SpamConfig) []guard.SpamOption {
	return []guard.SpamOption{
		guard.WithWeights(guard.Weights{
			DisposableDomain:  c.DisposableDomain,
			BotEmail:          c.BotEmail,
			BotName:           c.BotName,
			IdenticalNames:    c.IdenticalNames,
			ShortName:         c.ShortName,
			InvalidNameChars:  c.InvalidNameChars,
			InvalidFiscalCode: c.InvalidFiscalCode,
			SuspiciousKeyword: c.SuspiciousKeyword,
		}),
		guard.WithThresholds(c.Threshold, c.ReviewThreshold),
		guard.WithDisposableDomains(c.ExtraDisposableDomains...),
		guard.WithKeywords(c.ExtraKeywords...),
	}
}
