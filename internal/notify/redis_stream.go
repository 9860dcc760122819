package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const streamDataField = "data"

// RedisStreamNotifier appends events to a Redis stream.
type RedisStreamNotifier struct {
	client *redis.Client
	stream string
}

func NewRedisStreamNotifier(client *redis.Client, stream string) *RedisStreamNotifier {
	return &RedisStreamNotifier{client: client, stream: stream}
}

func (n *RedisStreamNotifier) Publish(ctx context.Context, ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	_, err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			streamDataField: string(data),
			"timestamp":     ev.OccurredAt.Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", n.stream, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (n *RedisStreamNotifier) Close() error { return nil }

// Handler reacts to a consumed event.
type Handler func(ctx context.Context, ev Event) error

// StreamConsumerConfig consumer group settings
type StreamConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int64
	Block    time.Duration
}

// StreamConsumer reads events from a Redis stream as part of a consumer
// group and hands them to a Handler. Messages are acknowledged after the
// handler returns, including on handler error; a bad message is logged and
// not redelivered.
type StreamConsumer struct {
	client  *redis.Client
	cfg     StreamConsumerConfig
	handler Handler
	logger  *zap.Logger
}

func NewStreamConsumer(client *redis.Client, cfg StreamConsumerConfig, handler Handler, logger *zap.Logger) *StreamConsumer {
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &StreamConsumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.cfg.Stream, err)
	}
	return nil
}

// Start blocks until ctx is cancelled.
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer_group", c.cfg.Group),
		zap.String("consumer_name", c.cfg.Consumer),
	)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.String("stream", c.cfg.Stream),
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

// ConsumeOnce reads one batch and processes it. Returns the number of
// messages handled successfully.
func (c *StreamConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Batch,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", c.cfg.Stream, err)
	}

	handled := 0
	for _, s := range streams {
		handled += c.processMessages(ctx, s.Messages)
	}
	return handled, nil
}

func (c *StreamConsumer) processMessages(ctx context.Context, msgs []redis.XMessage) int {
	handled := 0
	for _, msg := range msgs {
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream", c.cfg.Stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		} else {
			handled++
		}
		if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
			c.logger.Warn("Failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return handled
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	raw, ok := msg.Values[streamDataField]
	if !ok {
		return fmt.Errorf("message has no %q field", streamDataField)
	}
	var body []byte
	switch v := raw.(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	default:
		return fmt.Errorf("unexpected %q field type %T", streamDataField, raw)
	}

	ev, err := DecodeEvent(body)
	if err != nil {
		return err
	}
	if err := c.handler(ctx, ev); err != nil {
		return fmt.Errorf("failed to handle event %s: %w", ev.ID, err)
	}
	c.logger.Debug("Handled event", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
	return nil
}
