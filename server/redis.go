package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "collabnotes:doc:"

// RedisBridge connects a hub to its peers: frames broadcast on one server
// instance are published to a per-document Redis channel and re-broadcast by
// every other instance, so clients of the same document converge no matter
// which instance they landed on.
type RedisBridge struct {
	rdb    *redis.Client
	hub    *Hub
	pubsub *redis.PubSub
	// instance tags published envelopes so a bridge can ignore its own
	// messages coming back.
	instance string
}

type bridgeEnvelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// NewRedisBridge connects to Redis, subscribes to all document channels, and
// installs itself as the hub's publisher.
func NewRedisBridge(ctx context.Context, addr string, hub *Hub) (*RedisBridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	b := &RedisBridge{
		rdb:      rdb,
		hub:      hub,
		pubsub:   rdb.PSubscribe(context.Background(), redisChannelPrefix+"*"),
		instance: uuid.NewString(),
	}
	hub.SetPublisher(b.publishFrame)
	go b.relay()
	return b, nil
}

func (b *RedisBridge) publishFrame(documentID string, frame []byte) {
	env, err := json.Marshal(bridgeEnvelope{Origin: b.instance, Frame: frame})
	if err != nil {
		log.Printf("redis bridge: %v", err)
		return
	}
	channel := redisChannelPrefix + documentID
	if err := b.rdb.Publish(context.Background(), channel, env).Err(); err != nil {
		log.Printf("redis bridge: publishing to %s: %v", channel, err)
	}
}

// relay runs until the bridge is closed, injecting frames from other
// instances into the local hub.
func (b *RedisBridge) relay() {
	for msg := range b.pubsub.Channel() {
		var env bridgeEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("redis bridge: bad envelope on %s: %v", msg.Channel, err)
			continue
		}
		if env.Origin == b.instance {
			continue
		}
		documentID := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
		b.hub.InjectFrame(documentID, env.Frame)
	}
}

// Close detaches the bridge from the hub and releases the Redis connections.
func (b *RedisBridge) Close() error {
	b.hub.SetPublisher(nil)
	b.pubsub.Close()
	return b.rdb.Close()
}
