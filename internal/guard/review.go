package guard

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ReviewEntry es un registro sospechoso que un operador puede revisar para ajustar pesos.
type ReviewEntry struct {
	ClientID string    `json:"client_id"`
	Email    string    `json:"email"`
	Score    int       `json:"score"`
	Reasons  []string  `json:"reasons"`
	Rejected bool      `json:"rejected"`
	Warnings []string  `json:"header_warnings,omitempty"`
	At       time.Time `json:"at"`
}

// ReviewSink recibe los intentos puntuados por encima del umbral de revision.
type ReviewSink interface {
	Record(ctx context.Context, entry ReviewEntry) error
}

// LogReviewSink solo deja constancia en el log.
type LogReviewSink struct {
	logger *zap.Logger
}

func NewLogReviewSink(logger *zap.Logger) *LogReviewSink {
	return &LogReviewSink{logger: logger}
}

func (s *LogReviewSink) Record(_ context.Context, entry ReviewEntry) error {
	if s.logger == nil {
		return nil
	}
	s.logger.Info("registration flagged for review",
		zap.String("client_id", entry.ClientID),
		zap.String("email", entry.Email),
		zap.Int("score", entry.Score),
		zap.Strings("reasons", entry.Reasons),
		zap.Bool("rejected", entry.Rejected),
	)
	return nil
}

type redisLister interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisReviewSink encola las entradas en una lista acotada de Redis.
type RedisReviewSink struct {
	client redisLister
	key    string
	maxLen int64
}

// NewRedisReviewSink devuelve nil (como interfaz) si no hay cliente.
func NewRedisReviewSink(client *redis.Client, key string, maxLen int64) ReviewSink {
	if client == nil {
		return nil
	}
	return newRedisReviewSink(client, key, maxLen)
}

func newRedisReviewSink(client redisLister, key string, maxLen int64) *RedisReviewSink {
	if strings.TrimSpace(key) == "" {
		key = "spam:review"
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisReviewSink{client: client, key: key, maxLen: maxLen}
}

func (s *RedisReviewSink) Record(ctx context.Context, entry ReviewEntry) error {
	if s == nil || s.client == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := s.client.LPush(ctx, s.key, payload).Err(); err != nil {
		return err
	}
	return s.client.LTrim(ctx, s.key, 0, s.maxLen-1).Err()
}

// MultiReviewSink reparte una entrada a varios sinks y devuelve el primer error.
type MultiReviewSink []ReviewSink

func (m MultiReviewSink) Record(ctx context.Context, entry ReviewEntry) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
