package tables

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge publica eventos de mesa no canal Pub/Sub compartilhado. Todo
// processo com clientes conectados assina o mesmo canal, então um evento
// emitido aqui chega aos espectadores de qualquer instância.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBridge(rdb *redis.Client, channel string, log *zap.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, channel: channel, log: log}
}

// Publish implementa o Broadcaster dos engines: fire-and-forget, falha só loga
func (b *RedisBridge) Publish(channel, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("broadcast marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	env, err := json.Marshal(Envelope{Channel: channel, Event: event, Payload: raw})
	if err != nil {
		b.log.Error("broadcast envelope failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := b.rdb.Publish(context.Background(), b.channel, env).Err(); err != nil {
		b.log.Error("redis publish failed", zap.String("event", event), zap.Error(err))
	}
}

// StartRedisSubscriber inicia uma goroutine que escuta o canal Redis Pub/Sub
// e repassa cada envelope para os clientes WebSocket conectados via Hub
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Warn("bridge unmarshal error", zap.Error(err))
					continue
				}
				hub.Broadcast(env.Channel, env.Event, env.Payload)
			}
		}
	}()
}
