// Package redisbus fans room events out across server instances over Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "santa:room:"

// Deliverer receives events published by other instances
type Deliverer interface {
	Deliver(roomID string, data []byte)
}

// envelope tags a forwarded event with the instance that published it
type envelope struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// Bridge publishes local events to Redis and delivers remote ones locally
type Bridge struct {
	client     *redis.Client
	instanceID string
	local      Deliverer
	log        *zap.Logger
}

// Connect parses a redis:// URL and checks the connection
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New creates a bridge with a fresh instance id
func New(client *redis.Client, local Deliverer, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		client:     client,
		instanceID: uuid.NewString(),
		local:      local,
		log:        log,
	}
}

// InstanceID identifies this process on the bus
func (b *Bridge) InstanceID() string {
	return b.instanceID
}

// Channel returns the pub/sub channel of a room
func Channel(roomID string) string {
	return channelPrefix + roomID
}

// Forward publishes an encoded event for the other instances
func (b *Bridge) Forward(ctx context.Context, roomID string, data []byte) error {
	payload, err := json.Marshal(envelope{Origin: b.instanceID, Event: data})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(roomID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(roomID), err)
	}
	return nil
}

// Run subscribes to every room channel and delivers remote events until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe room channels: %w", err)
	}
	b.log.Info("redis bridge subscribed", zap.String("instance_id", b.instanceID))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Channel, msg.Payload)
		}
	}
}

// handle delivers one bus message locally, skipping our own echoes
func (b *Bridge) handle(channel, payload string) {
	roomID, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || roomID == "" {
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn("malformed bus message", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	b.local.Deliver(roomID, env.Event)
}
