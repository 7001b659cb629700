package guard

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RateLimitedError indica que el cliente debe esperar antes de reintentar.
type RateLimitedError struct {
	Action            Action
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSeconds)
}

// SpamRejectedError indica un registro bien formado pero juzgado abusivo.
type SpamRejectedError struct {
	Score   int
	Reasons []string
}

func (e *SpamRejectedError) Error() string {
	return fmt.Sprintf("registration rejected as spam (score %d: %s)", e.Score, strings.Join(e.Reasons, ", "))
}

// Guard combina limitador y scorer delante de registro y login.
type Guard struct {
	logger  *zap.Logger
	limiter *RateLimiter
	scorer  *SpamScorer
	review  ReviewSink
	metrics *Metrics
	now     func() time.Time

	resendPolicy Policy
}

type GuardOption func(*Guard)

// WithResendPolicy sustituye la politica de reenvio de verificacion.
func WithResendPolicy(p Policy) GuardOption {
	return func(g *Guard) {
		if p.Window > 0 && p.MaxAttempts > 0 {
			g.resendPolicy = p
		}
	}
}

func NewGuard(logger *zap.Logger, limiter *RateLimiter, scorer *SpamScorer, review ReviewSink, metrics *Metrics, opts ...GuardOption) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewRateLimiter(WithMetrics(metrics))
	}
	if scorer == nil {
		scorer = NewSpamScorer()
	}
	if review == nil {
		review = NewLogReviewSink(logger)
	}
	g := &Guard{
		logger:       logger,
		limiter:      limiter,
		scorer:       scorer,
		review:       review,
		metrics:      metrics,
		now:          func() time.Time { return time.Now().UTC() },
		resendPolicy: DefaultResendPolicy(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Limiter() *RateLimiter {
	return g.limiter
}

// CheckLogin aplica solo el limitador.
func (g *Guard) CheckLogin(clientID string) error {
	return g.checkRate(ActionLogin, clientID)
}

// CheckResend limita los reenvios de verificacion por cliente y direccion.
func (g *Guard) CheckResend(clientID, email string) error {
	key := ResendKey(clientID, email)
	d := g.limiter.AllowPolicy(ActionVerificationResend, key, g.resendPolicy)
	if d.Allowed {
		return nil
	}
	g.logger.Info("verification resend throttled",
		zap.String("client_id", clientID),
		zap.Int("attempts", d.Attempts),
		zap.Int("retry_after_seconds", d.RetryAfterSeconds()),
	)
	return &RateLimitedError{Action: ActionVerificationResend, RetryAfterSeconds: d.RetryAfterSeconds()}
}

// ResendKey es la clave del limitador para un reenvio: cliente y email normalizado.
func ResendKey(clientID, email string) string {
	return clientID + "|" + strings.ToLower(strings.TrimSpace(email))
}

// CheckRegistration aplica limitador y scorer, en ese orden.
// La comprobacion de cabeceras solo se registra; nunca bloquea.
func (g *Guard) CheckRegistration(ctx context.Context, clientID string, in SpamInput, headers http.Header) (SpamResult, error) {
	if err := g.checkRate(ActionRegister, clientID); err != nil {
		return SpamResult{}, err
	}

	res := g.scorer.Score(in)
	g.metrics.spam(res.Score, res.IsSpam)

	warnings := CheckHeaders(headers)
	if len(warnings) > 0 {
		g.logger.Info("implausible registration headers",
			zap.String("client_id", clientID),
			zap.Strings("warnings", warnings),
		)
	}

	if res.IsSpam || res.NeedsReview {
		entry := ReviewEntry{
			ClientID: clientID,
			Email:    in.Email,
			Score:    res.Score,
			Reasons:  res.Reasons,
			Rejected: res.IsSpam,
			Warnings: warnings,
			At:       g.now(),
		}
		if err := g.review.Record(ctx, entry); err != nil {
			g.logger.Warn("record spam review entry failed", zap.Error(err))
		}
	}

	if res.IsSpam {
		g.logger.Warn("registration rejected as spam",
			zap.String("client_id", clientID),
			zap.Int("score", res.Score),
			zap.Strings("reasons", res.Reasons),
		)
		return res, &SpamRejectedError{Score: res.Score, Reasons: res.Reasons}
	}
	return res, nil
}

func (g *Guard) checkRate(action Action, clientID string) error {
	d := g.limiter.Allow(action, clientID)
	if d.Allowed {
		return nil
	}
	g.logger.Info("rate limited",
		zap.String("action", string(action)),
		zap.String("client_id", clientID),
		zap.Int("attempts", d.Attempts),
		zap.Int("retry_after_seconds", d.RetryAfterSeconds()),
	)
	return &RateLimitedError{Action: action, RetryAfterSeconds: d.RetryAfterSeconds()}
}
