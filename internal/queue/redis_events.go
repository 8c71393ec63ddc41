/**
 * Redis batch events for the crowd data worker
 *
 * Publishes one event per batch run on a pub/sub channel for live
 * listeners and keeps a capped list of recent runs for the dashboard.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

const (
	// EventsChannel receives every batch event
	EventsChannel = "crowd:events"

	// RecentRunsKey holds the newest batch events, newest first
	RecentRunsKey = "crowd:runs:recent"

	defaultRecentLimit = 50
)

// Batch event names
const (
	EventBatchCompleted = "batch:completed"
	EventBatchFailed    = "batch:failed"
)

// BatchEvent describes the outcome of one pipeline run
type BatchEvent struct {
	Event         string    `json:"event"`
	RunID         string    `json:"runId"`
	Trigger       string    `json:"trigger,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	TotalCount    int       `json:"totalCount"`
	SkippedCount  int       `json:"skippedCount"`
	Skipped       []string  `json:"skipped,omitempty"`
	LowConfidence int       `json:"lowConfidence"`
	CSVAdded      int       `json:"csvAdded"`
	Mirrored      int       `json:"mirrored"`
	DurationMs    int64     `json:"durationMs"`
	Error         string    `json:"error,omitempty"`
}

// PublisherConfig holds event publisher configuration
type PublisherConfig struct {
	RedisURL string
	Channel  string
	ListKey  string
	Limit    int
}

// EventPublisher writes batch events to Redis
type EventPublisher struct {
	client  *redis.Client
	channel string
	listKey string
	limit   int
	logger  *logging.Logger
}

// NewEventPublisher connects to Redis and verifies the connection
func NewEventPublisher(cfg *PublisherConfig, logger *logging.Logger) (*EventPublisher, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = EventsChannel
	}
	if cfg.ListKey == "" {
		cfg.ListKey = RecentRunsKey
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultRecentLimit
	}
	if logger == nil {
		logger = logging.NewLogger("Events")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &EventPublisher{
		client:  client,
		channel: cfg.Channel,
		listKey: cfg.ListKey,
		limit:   cfg.Limit,
		logger:  logger,
	}, nil
}

// Publish broadcasts the event and prepends it to the recent runs list
func (p *EventPublisher) Publish(ctx context.Context, event BatchEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.LPush(ctx, p.listKey, data)
	pipe.LTrim(ctx, p.listKey, 0, int64(p.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.RunID, err)
	}

	p.logger.Debug("Published batch event", "event", event.Event, "run_id", event.RunID)
	return nil
}

// Recent returns up to n stored events, newest first. Entries that no
// longer decode are skipped.
func (p *EventPublisher) Recent(ctx context.Context, n int) ([]BatchEvent, error) {
	if n <= 0 || n > p.limit {
		n = p.limit
	}

	raw, err := p.client.LRange(ctx, p.listKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent runs: %w", err)
	}

	events := make([]BatchEvent, 0, len(raw))
	for _, item := range raw {
		var ev BatchEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			p.logger.Warn("Dropping undecodable run event", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// GetStats returns the stored event count and channel subscribers
func (p *EventPublisher) GetStats(ctx context.Context) (map[string]int64, error) {
	stored, err := p.client.LLen(ctx, p.listKey).Result()
	if err != nil {
		return nil, err
	}
	subscribers, err := p.client.PubSubNumSub(ctx, p.channel).Result()
	if err != nil {
		return nil, err
	}

	return map[string]int64{
		"stored":      stored,
		"subscribers": subscribers[p.channel],
	}, nil
}

// Close closes the Redis client
func (p *EventPublisher) Close() error {
	return p.client.Close()
}
