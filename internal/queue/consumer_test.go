package queue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

func newTestServer(t *testing.T, run RunFunc, timeout time.Duration) *Server {
	t.Helper()
	s, err := NewServer(&ServerConfig{
		RedisURL:   "redis://127.0.0.1:6379/0",
		Schedule:   "*/30 * * * *",
		RunTimeout: timeout,
		Run:        run,
		Logger:     logging.NewLoggerTo("test", io.Discard),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestNewProcessInboxTask(t *testing.T) {
	task, err := NewProcessInboxTask("", 0)
	if err != nil {
		t.Fatalf("NewProcessInboxTask: %v", err)
	}
	if task.Type() != TaskProcessInbox {
		t.Errorf("type = %q", task.Type())
	}

	payload, err := ParseTaskPayload(task)
	if err != nil {
		t.Fatalf("ParseTaskPayload: %v", err)
	}
	if payload.Trigger != "manual" {
		t.Errorf("trigger = %q, want manual", payload.Trigger)
	}
}

func TestParseTaskPayload(t *testing.T) {
	payload, err := ParseTaskPayload(asynq.NewTask(TaskProcessInbox, nil))
	if err != nil || payload.Trigger != "manual" {
		t.Errorf("empty payload = %+v, %v", payload, err)
	}
	if _, err := ParseTaskPayload(asynq.NewTask(TaskProcessInbox, []byte("{not json"))); err == nil {
		t.Errorf("expected error for invalid payload")
	}
}

func TestServerConfigValidate(t *testing.T) {
	run := func(context.Context, string) error { return nil }
	tests := []struct {
		name string
		cfg  ServerConfig
	}{
		{"missing redis", ServerConfig{Schedule: "@every 1m", Run: run}},
		{"missing schedule", ServerConfig{RedisURL: "redis://localhost:6379", Run: run}},
		{"missing run", ServerConfig{RedisURL: "redis://localhost:6379", Schedule: "@every 1m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(&tt.cfg); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestHandleProcessInboxRunsPipeline(t *testing.T) {
	var triggers []string
	s := newTestServer(t, func(ctx context.Context, trigger string) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("run context has no deadline")
		}
		triggers = append(triggers, trigger)
		return nil
	}, time.Minute)

	task, _ := NewProcessInboxTask("schedule", time.Minute)
	if err := s.handleProcessInbox(context.Background(), task); err != nil {
		t.Fatalf("handleProcessInbox: %v", err)
	}
	if len(triggers) != 1 || triggers[0] != "schedule" {
		t.Errorf("triggers = %v", triggers)
	}
}

func TestHandleProcessInboxBadPayloadSkipsRetry(t *testing.T) {
	called := false
	s := newTestServer(t, func(context.Context, string) error {
		called = true
		return nil
	}, time.Minute)

	err := s.handleProcessInbox(context.Background(), asynq.NewTask(TaskProcessInbox, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}
	if called {
		t.Errorf("run should not be called for a bad payload")
	}
}

func TestHandleProcessInboxTimeout(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond)

	task, _ := NewProcessInboxTask("schedule", time.Minute)
	err := s.handleProcessInbox(context.Background(), task)
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestHandleProcessInboxPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	s := newTestServer(t, func(context.Context, string) error { return boom }, time.Minute)

	task, _ := NewProcessInboxTask("manual", time.Minute)
	if err := s.handleProcessInbox(context.Background(), task); !errors.Is(err, boom) {
		t.Errorf("expected wrapped run error, got %v", err)
	}
}
