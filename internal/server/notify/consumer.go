package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Handler processes one message. A nil return acknowledges it; otherwise it
// stays pending and is delivered again.
type Handler func(ctx context.Context, msg *Message) error

// Consumer delivers messages to a handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, h Handler) error
}

// ConsumerOptions names the stream position of a consumer.
type ConsumerOptions struct {
	Stream string
	Group  string
	// Consumer must be stable across restarts for a consumer to get back
	// its own pending messages.
	Consumer string
	// MinIdle is how long a message stays pending on another consumer
	// before it is claimed.
	MinIdle time.Duration
	// Block bounds each blocking read.
	Block time.Duration
	// Count bounds the messages returned per read.
	Count int64
}

// RedisConsumer reads a stream through a consumer group. Messages left
// unacknowledged by a failed handler are read again first. Messages left
// pending by another consumer for MinIdle are claimed when connecting and
// whenever the stream is idle.
type RedisConsumer struct {
	client     streamClient
	opts       ConsumerOptions
	log        logging.Logger
	newBackOff func() backoff.BackOff
}

func NewRedisConsumer(client *redis.Client, opts ConsumerOptions, log logging.Logger) *RedisConsumer {
	return newRedisConsumer(client, opts, log)
}

func newRedisConsumer(client streamClient, opts ConsumerOptions, log logging.Logger) *RedisConsumer {
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.MinIdle <= 0 {
		opts.MinIdle = time.Minute
	}
	return &RedisConsumer{
		client: client,
		opts:   opts,
		log:    log.With("module", "notify", "stream", opts.Stream),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run consumes until ctx is done, reconnecting with exponential backoff.
func (c *RedisConsumer) Run(ctx context.Context, h Handler) error {
	b := c.newBackOff()
	err := backoff.RetryNotify(
		func() error {
			err := c.consume(ctx, h, b.Reset)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			c.log.Error(ctx, "consumer failed, retrying", "error", err, "next", next)
		},
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// consume returns only on failure. progress is called after each successful read.
func (c *RedisConsumer) consume(ctx context.Context, h Handler, progress func()) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	if _, err := c.claimIdle(ctx); err != nil {
		return err
	}

	// "0" re-reads this consumer's pending entries, ">" reads new ones.
	start := "0"
	for {
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, start},
			Count:    c.opts.Count,
			Block:    c.opts.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			claimed, err := c.claimIdle(ctx)
			if err != nil {
				return err
			}
			if claimed > 0 {
				start = "0"
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("xreadgroup: %w", err)
		}
		progress()

		delivered := 0
		for _, s := range streams {
			for _, xm := range s.Messages {
				delivered++
				if err := c.deliver(ctx, h, xm); err != nil {
					return err
				}
			}
		}
		if start == "0" && delivered == 0 {
			start = ">"
		}
	}
}

// claimIdle moves messages pending on other consumers for at least MinIdle
// to this consumer's pending list and returns how many were moved.
func (c *RedisConsumer) claimIdle(ctx context.Context) (int, error) {
	claimed := 0
	cursor := "0-0"
	for {
		ids, next, err := c.client.XAutoClaimJustID(ctx, &redis.XAutoClaimArgs{
			Stream:   c.opts.Stream,
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			MinIdle:  c.opts.MinIdle,
			Start:    cursor,
			Count:    c.opts.Count,
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("xautoclaim: %w", err)
		}
		claimed += len(ids)
		if next == "" || next == "0-0" {
			break
		}
		cursor = next
	}
	if claimed > 0 {
		c.log.Info(ctx, "claimed idle messages", "count", claimed)
	}
	return claimed, nil
}

func (c *RedisConsumer) deliver(ctx context.Context, h Handler, xm redis.XMessage) error {
	raw, _ := xm.Values[messageField].(string)
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		c.log.Warn(ctx, "dropping undecodable message", "id", xm.ID, "error", err)
		return c.ack(ctx, xm.ID)
	}
	if err := h(ctx, &msg); err != nil {
		return fmt.Errorf("handle message %s: %w", xm.ID, err)
	}
	return c.ack(ctx, xm.ID)
}

func (c *RedisConsumer) ack(ctx context.Context, id string) error {
	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, id).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}
