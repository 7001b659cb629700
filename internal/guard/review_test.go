package guard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisLister struct {
	pushedKey  string
	pushed     []interface{}
	trimKey    string
	trimStart  int64
	trimStop   int64
	pushErr    error
	trimCalled bool
}

func (m *mockRedisLister) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.pushedKey = key
	m.pushed = values
	cmd := redis.NewIntCmd(ctx)
	if m.pushErr != nil {
		cmd.SetErr(m.pushErr)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func (m *mockRedisLister) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	m.trimCalled = true
	m.trimKey = key
	m.trimStart = start
	m.trimStop = stop
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func TestRedisReviewSink_Record(t *testing.T) {
	mock := &mockRedisLister{}
	sink := newRedisReviewSink(mock, "", 0)

	entry := ReviewEntry{ClientID: "1.2.3.4", Email: "x@y.z", Score: 30, Reasons: []string{"disposable_email_domain"}, At: time.Unix(0, 0).UTC()}
	if err := sink.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	if mock.pushedKey != "spam:review" || len(mock.pushed) != 1 {
		t.Fatalf("unexpected push key=%q values=%v", mock.pushedKey, mock.pushed)
	}
	var decoded ReviewEntry
	if err := json.Unmarshal(mock.pushed[0].([]byte), &decoded); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if decoded.Score != 30 || decoded.ClientID != "1.2.3.4" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if !mock.trimCalled || mock.trimStart != 0 || mock.trimStop != 999 {
		t.Fatalf("expected trim to 1000 entries, got %d..%d", mock.trimStart, mock.trimStop)
	}
}

func TestRedisReviewSink_PushError(t *testing.T) {
	mock := &mockRedisLister{pushErr: errors.New("redis down")}
	sink := newRedisReviewSink(mock, "k", 10)
	if err := sink.Record(context.Background(), ReviewEntry{}); err == nil {
		t.Fatalf("expected error")
	}
	if mock.trimCalled {
		t.Fatalf("trim must not run after failed push")
	}
}

func TestNewRedisReviewSink_NilClient(t *testing.T) {
	if sink := NewRedisReviewSink(nil, "k", 10); sink != nil {
		t.Fatalf("expected nil sink for nil client")
	}
}

func TestMultiReviewSink_SkipsMissingRedis(t *testing.T) {
	rec := &recordingSink{}
	multi := MultiReviewSink{rec, NewRedisReviewSink(nil, "k", 10)}
	if err := multi.Record(context.Background(), ReviewEntry{Score: 30}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("expected log sink to receive the entry, got %d", len(rec.entries))
	}

	var typedNil *RedisReviewSink
	if err := typedNil.Record(context.Background(), ReviewEntry{}); err != nil {
		t.Fatalf("nil sink must be a no-op, got %v", err)
	}
}

type recordingSink struct {
	entries []ReviewEntry
	err     error
}

func (r *recordingSink) Record(_ context.Context, entry ReviewEntry) error {
	r.entries = append(r.entries, entry)
	return r.err
}

func TestMultiReviewSink_FansOut(t *testing.T) {
	a := &recordingSink{err: errors.New("a failed")}
	b := &recordingSink{}
	err := MultiReviewSink{a, nil, b}.Record(context.Background(), ReviewEntry{Score: 40})
	if err == nil || err.Error() != "a failed" {
		t.Fatalf("expected first error, got %v", err)
	}
	if len(a.entries) != 1 || len(b.entries) != 1 {
		t.Fatalf("expected both sinks to receive the entry")
	}
}
