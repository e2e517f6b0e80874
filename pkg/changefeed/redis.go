package changefeed

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"meerchat/pkg/logger"
	"meerchat/pkg/models"
)

const topicPrefix = "meerchat:chats:"

// RedisBridge publishes local inserts to Redis and replays inserts made by
// other instances into the local hub.
type RedisBridge struct {
	hub    *Hub
	client *redis.Client
	origin string
}

func NewRedisBridge(hub *Hub, client *redis.Client) *RedisBridge {
	return &RedisBridge{hub: hub, client: client, origin: uuid.NewString()}
}

func topic(channel string) string {
	return topicPrefix + channel
}

// Publish delivers m locally, then to the other instances.
func (b *RedisBridge) Publish(m models.Message) {
	ev := Event{Type: EventInsert, Table: TableChats, Message: m}
	b.hub.PublishEvent(ev)

	ev.Origin = b.origin
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("changefeed_marshal_failed", "error", err)
		return
	}
	if err := b.client.Publish(context.Background(), topic(m.Channel), data).Err(); err != nil {
		logger.Error("changefeed_redis_publish_failed", "channel", m.Channel, "error", err)
	}
}

func (b *RedisBridge) Subscribe(channel string, fn func(Event)) (func(), error) {
	return b.hub.Subscribe(channel, fn)
}

// Run relays remote events until ctx is cancelled. ready, when non-nil, is
// closed once the pattern subscription is confirmed.
func (b *RedisBridge) Run(ctx context.Context, ready chan<- struct{}) error {
	ps := b.client.PSubscribe(ctx, topicPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	logger.Info("changefeed_redis_bridge_started", "origin", b.origin)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("changefeed_redis_bad_payload", "channel", msg.Channel, "error", err)
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			if ev.Message.Channel == "" {
				ev.Message.Channel = strings.TrimPrefix(msg.Channel, topicPrefix)
			}
			ev.Origin = ""
			b.hub.PublishEvent(ev)
		}
	}
}
