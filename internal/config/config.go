package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	PublicURL    string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AdminToken            string `env:"ADMIN_TOKEN"`
	PaymentsWebhookSecret string `env:"PAYMENTS_WEBHOOK_SECRET"`

	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	VerificationTTL time.Duration `env:"VERIFICATION_TTL" envDefault:"24h"`
	DeletionTTL     time.Duration `env:"DELETION_TTL" envDefault:"2h"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	RegisterLimit RateLimitPolicy `envPrefix:"RATE_LIMIT_REGISTER_"`
	LoginLimit    RateLimitPolicy `envPrefix:"RATE_LIMIT_LOGIN_"`
	ResendLimit   RateLimitPolicy `envPrefix:"RATE_LIMIT_RESEND_"`
	Spam          SpamConfig      `envPrefix:"SPAM_"`
}

// RateLimitPolicy es la politica de una accion; los valores vacios toman los defaults del guard.
type RateLimitPolicy struct {
	Window      time.Duration `env:"WINDOW"`
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	Lockout     time.Duration `env:"LOCKOUT"`
}

// SpamConfig expone cada peso del scorer para poder ajustarlos sin recompilar.
type SpamConfig struct {
	Threshold          int    `env:"THRESHOLD" envDefault:"50"`
	ReviewThreshold    int    `env:"REVIEW_THRESHOLD" envDefault:"25"`
	DisposableDomain   int    `env:"WEIGHT_DISPOSABLE_DOMAIN" envDefault:"30"`
	BotEmail           int    `env:"WEIGHT_BOT_EMAIL" envDefault:"20"`
	BotName            int    `env:"WEIGHT_BOT_NAME" envDefault:"25"`
	IdenticalNames     int    `env:"WEIGHT_IDENTICAL_NAMES" envDefault:"15"`
	ShortName          int    `env:"WEIGHT_SHORT_NAME" envDefault:"20"`
	InvalidNameChars   int    `env:"WEIGHT_INVALID_NAME_CHARS" envDefault:"15"`
	InvalidFiscalCode  int    `env:"WEIGHT_INVALID_FISCAL_CODE" envDefault:"10"`
	SuspiciousKeyword  int    `env:"WEIGHT_SUSPICIOUS_KEYWORD" envDefault:"10"`
	ReviewQueueKey     string `env:"REVIEW_QUEUE_KEY" envDefault:"spam:review"`
	ReviewQueueMaxSize int64  `env:"REVIEW_QUEUE_MAX_SIZE" envDefault:"1000"`

	ExtraDisposableDomains []string `env:"EXTRA_DISPOSABLE_DOMAINS" envSeparator:","`
	ExtraKeywords          []string `env:"EXTRA_KEYWORDS" envSeparator:","`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
