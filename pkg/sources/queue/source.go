// Package queue consumes external domain events from a Redis list and
// republishes them on the event bus for trigger matching.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/events"
)

var (
	ErrQueueNameRequired = errors.New("queue name is required")
	ErrMissingEventType  = errors.New("message has no event_type and no default is configured")
)

const popTimeout = 1 * time.Second

// Source pops JSON messages off a Redis list and publishes each one as an
// external event. Messages look like:
//
//	{"event_type": "lead_scored", "payload": {"score": 91}}
//
// Messages without an event_type fall back to the configured default, or
// are dropped when none is set.
type Source struct {
	Queue            string
	Connection       map[string]string
	DefaultEventType string

	client redis.UniversalClient
	bus    eventbus.EventBus
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSource(config map[string]any, bus eventbus.EventBus, logger *slog.Logger) (*Source, error) {
	queue, _ := config["queue"].(string)
	defaultEventType, _ := config["default_event_type"].(string)

	connectionConfig, _ := config["connection"].(map[string]any)

	connection := make(map[string]string)
	for k, v := range connectionConfig {
		if str, ok := v.(string); ok {
			connection[k] = str
		}
	}

	source := &Source{
		Queue:            queue,
		Connection:       connection,
		DefaultEventType: defaultEventType,
		bus:              bus,
		stopCh:           make(chan struct{}),
		logger: logger.With(
			"module", "queue_source",
			"queue", queue,
		),
	}

	if err := source.Validate(); err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate() error {
	if s.Queue == "" {
		return ErrQueueNameRequired
	}

	return nil
}

func (s *Source) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting queue source")

	if err := s.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) initializeClient(ctx context.Context) error {
	addr := s.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	password := s.Connection["password"]
	db := 0

	if dbStr := s.Connection["db"]; dbStr != "" {
		var err error
		if db, err = strconv.Atoi(dbStr); err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := s.processMessage(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, popTimeout, s.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	event, err := s.decode(result[1])
	if err != nil {
		s.logger.WarnContext(ctx, "Dropping undeliverable queue message", "error", err)

		return nil
	}

	if err := s.bus.Publish(ctx, event.ID, event); err != nil {
		return fmt.Errorf("failed to publish external event: %w", err)
	}

	s.logger.InfoContext(ctx, "Published external event from queue",
		"event_id", event.ID, "event_type", event.EventType)

	return nil
}

// decode maps a raw queue message onto an external event. Non-JSON
// messages are wrapped whole into the payload so that sloppy producers
// still reach the dispatcher.
func (s *Source) decode(message string) (events.ExternalEvent, error) {
	var body struct {
		EventType string         `json:"event_type"`
		Payload   map[string]any `json:"payload"`
	}

	if err := json.Unmarshal([]byte(message), &body); err != nil {
		body.EventType = s.DefaultEventType
		body.Payload = map[string]any{"message": message}
	}

	if body.EventType == "" {
		body.EventType = s.DefaultEventType
	}

	if body.EventType == "" {
		return events.ExternalEvent{}, ErrMissingEventType
	}

	return events.ExternalEvent{
		BaseEvent: events.BaseEvent{
			ID:        s.bus.GenerateID(),
			Type:      events.ExternalEventReceived,
			Timestamp: time.Now().UTC(),
		},
		EventType: body.EventType,
		Payload:   body.Payload,
	}, nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping queue source")

	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
