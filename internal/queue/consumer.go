/**
 * Scheduled inbox processing for the crowd data worker
 *
 * Registers a periodic crowd:process-inbox task with an asynq scheduler and
 * runs a single-concurrency asynq server that executes the pipeline for each
 * task. Only one batch ever runs at a time.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

const (
	// TaskProcessInbox is the asynq task type for one batch run
	TaskProcessInbox = "crowd:process-inbox"

	// QueueName is the asynq queue the worker consumes
	QueueName = "crowd"

	defaultRunTimeout = 15 * time.Minute
)

// RunFunc executes one pipeline run
type RunFunc func(ctx context.Context, trigger string) error

// TaskPayload is the body of a crowd:process-inbox task
type TaskPayload struct {
	Trigger string `json:"trigger"`
}

// NewProcessInboxTask builds a task that processes the inbox once. The unique
// window keeps a slow run from stacking duplicate tasks behind it.
func NewProcessInboxTask(trigger string, timeout time.Duration) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "manual"
	}
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}

	payload, err := json.Marshal(TaskPayload{Trigger: trigger})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	return asynq.NewTask(TaskProcessInbox, payload,
		asynq.Queue(QueueName),
		asynq.MaxRetry(2),
		asynq.Timeout(timeout),
		asynq.Unique(timeout),
	), nil
}

// ParseTaskPayload decodes a crowd:process-inbox payload
func ParseTaskPayload(task *asynq.Task) (TaskPayload, error) {
	var payload TaskPayload
	if len(task.Payload()) == 0 {
		return TaskPayload{Trigger: "manual"}, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TaskPayload{}, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return payload, nil
}

// ServerConfig holds scheduler and server configuration
type ServerConfig struct {
	RedisURL   string
	Schedule   string // cron spec, e.g. "*/30 * * * *"
	RunTimeout time.Duration
	Run        RunFunc
	Logger     *logging.Logger
}

// Validate checks the configuration
func (c *ServerConfig) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("RedisURL is required")
	}
	if c.Schedule == "" {
		return fmt.Errorf("Schedule is required")
	}
	if c.Run == nil {
		return fmt.Errorf("Run is required")
	}
	return nil
}

// Server owns the asynq client, scheduler and single-worker server
type Server struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	config    *ServerConfig
	logger    *logging.Logger
}

// NewServer creates the scheduler and server without connecting
func NewServer(cfg *ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	asynqLogger := &logging.AsynqLogger{L: logger}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueName: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			// 30s, 60s, 120s ... capped at 10m
			delay := time.Duration(30*(1<<uint(n))) * time.Second
			if delay > 10*time.Minute {
				delay = 10 * time.Minute
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Task failed", "type", task.Type(), "payload", string(task.Payload()), "error", err)
		}),
		Logger:          asynqLogger,
		ShutdownTimeout: 30 * time.Second,
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   asynqLogger,
		Location: time.Local,
	})

	s := &Server{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		scheduler: scheduler,
		mux:       asynq.NewServeMux(),
		config:    cfg,
		logger:    logger,
	}
	s.mux.HandleFunc(TaskProcessInbox, s.handleProcessInbox)

	return s, nil
}

// Start registers the periodic task and starts processing
func (s *Server) Start() error {
	task, err := NewProcessInboxTask("schedule", s.config.RunTimeout)
	if err != nil {
		return err
	}

	entryID, err := s.scheduler.Register(s.config.Schedule, task)
	if err != nil {
		return fmt.Errorf("failed to register schedule %q: %w", s.config.Schedule, err)
	}

	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		s.server.Shutdown()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.logger.Info("Scheduler started", "schedule", s.config.Schedule, "entry", entryID, "queue", QueueName)
	return nil
}

// Enqueue submits an immediate run. A run already waiting in the queue makes
// this a no-op.
func (s *Server) Enqueue(ctx context.Context, trigger string) (string, error) {
	task, err := NewProcessInboxTask(trigger, s.config.RunTimeout)
	if err != nil {
		return "", err
	}

	info, err := s.client.EnqueueContext(ctx, task, asynq.TaskID(uuid.NewString()))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		s.logger.Info("Run already queued", "trigger", trigger)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue run: %w", err)
	}

	s.logger.Info("Run enqueued", "task_id", info.ID, "trigger", trigger)
	return info.ID, nil
}

// Stop shuts down the scheduler first so no new tasks arrive, then drains
// the server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping scheduler")
	s.scheduler.Shutdown()
	s.server.Shutdown()

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}

// handleProcessInbox runs the pipeline for one task
func (s *Server) handleProcessInbox(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTaskPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("Processing inbox", "trigger", payload.Trigger)

	if err := s.config.Run(runCtx, payload.Trigger); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			s.logger.Error("Run timed out", "trigger", payload.Trigger, "timeout", s.config.RunTimeout)
			return fmt.Errorf("run timed out after %v: %w", s.config.RunTimeout, err)
		}
		return fmt.Errorf("run failed: %w", err)
	}

	s.logger.Info("Inbox processed", "trigger", payload.Trigger, "duration", time.Since(start))
	return nil
}

// GetStatistics returns server settings
func (s *Server) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": 1,
		"queue":       QueueName,
		"schedule":    s.config.Schedule,
		"run_timeout": s.config.RunTimeout.String(),
	}
}
