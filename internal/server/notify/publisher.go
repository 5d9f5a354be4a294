package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tooltool/internal/timex"
	"github.com/redis/go-redis/v9"
)

// messageField is the stream entry field holding the encoded Message.
const messageField = "message"

// Publisher sends notifications to an exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Ping(ctx context.Context) error
}

// streamClient is the subset of *redis.Client used here.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaimJustID(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimJustIDCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// StreamName is the stream a routing key of exchange is carried on.
func StreamName(exchange, routingKey string) string {
	return exchange + "/" + routingKey
}

// RedisPublisher appends messages to the stream for their routing key.
type RedisPublisher struct {
	client   streamClient
	exchange string
	now      timex.Clock
}

func NewRedisPublisher(client *redis.Client, exchange string) *RedisPublisher {
	return newRedisPublisher(client, exchange, timex.UTCNow)
}

func newRedisPublisher(client streamClient, exchange string, now timex.Clock) *RedisPublisher {
	return &RedisPublisher{client: client, exchange: exchange, now: now}
}

func (p *RedisPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	msg, err := NewMessage(p.exchange, routingKey, payload, p.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(p.exchange, routingKey),
		Values: map[string]any{messageField: string(body)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, routingKey string, payload any) error { return nil }

func (NopPublisher) Ping(ctx context.Context) error { return nil }

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient builds a go-redis client; no connection is made until first use.
func NewClient(o Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
}
