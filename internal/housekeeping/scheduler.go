package housekeeping

import (
	"context"
	"time"

	"go.uber.org/zap"

	"civic-identity/internal/domain"
)

const DefaultInterval = time.Hour

// SessionSweeper borra las sesiones caducadas.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// RateLimitSweeper expulsa entradas inactivas de la tabla del limitador.
type RateLimitSweeper interface {
	Sweep() int
}

// StaleDeletionReporter lista solicitudes de baja sin confirmar desde hace dias.
type StaleDeletionReporter interface {
	StaleRequests(ctx context.Context) ([]domain.User, error)
}

// Report resume una pasada de mantenimiento.
type Report struct {
	ExpiredSessions int64
	EvictedRateKeys int
	StaleDeletions  int
}

// Scheduler ejecuta las tareas de mantenimiento con un intervalo fijo.
// Las tareas son idempotentes: saltarse una pasada no afecta a la correccion.
type Scheduler struct {
	logger    *zap.Logger
	sessions  SessionSweeper
	limiter   RateLimitSweeper
	deletions StaleDeletionReporter
	interval  time.Duration
}

func NewScheduler(logger *zap.Logger, sessions SessionSweeper, limiter RateLimitSweeper, deletions StaleDeletionReporter, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		logger:    logger,
		sessions:  sessions,
		limiter:   limiter,
		deletions: deletions,
		interval:  interval,
	}
}

// Run bloquea hasta que ctx se cancela, ejecutando RunOnce en cada tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("housekeeping started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("housekeeping stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce ejecuta una pasada. Un fallo en una tarea se registra y no impide las demas.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	var report Report

	if s.sessions != nil {
		n, err := s.sessions.SweepExpired(ctx)
		if err != nil {
			s.logger.Warn("session sweep failed", zap.Error(err))
		}
		report.ExpiredSessions = n
	}

	if s.limiter != nil {
		report.EvictedRateKeys = s.limiter.Sweep()
	}

	if s.deletions != nil {
		stale, err := s.deletions.StaleRequests(ctx)
		if err != nil {
			s.logger.Warn("stale deletion query failed", zap.Error(err))
		}
		report.StaleDeletions = len(stale)
		for _, u := range stale {
			s.logger.Warn("deletion request pending confirmation",
				zap.String("user_id", u.ID),
				zap.Timep("requested_at", u.DeletionRequestedAt),
			)
		}
	}

	s.logger.Debug("housekeeping pass done",
		zap.Int64("expired_sessions", report.ExpiredSessions),
		zap.Int("evicted_rate_keys", report.EvictedRateKeys),
		zap.Int("stale_deletions", report.StaleDeletions),
	)
	return report
}
