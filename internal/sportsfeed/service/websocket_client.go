package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/sportsfeed/publisher"
	"github.com/radieske/live-casino-platform/pkg/contracts/events"
)

// WSClient consome resultados de eventos de um provedor externo via WebSocket
// e publica cada resultado recebido no tópico Kafka de liquidação.
type WSClient struct {
	URL       string
	Log       *zap.Logger
	Publisher *publisher.KafkaPublisher
}

// Start inicia o loop de conexão e escuta do WebSocket.
// Em caso de desconexão, tenta reconectar automaticamente com backoff.
func (c *WSClient) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Log.Info("context canceled, stopping WS client")
			return
		default:
			if err := c.connectAndListen(ctx); err != nil {
				c.Log.Warn("connection closed", zap.Error(err))
				time.Sleep(3 * time.Second) // Aguarda antes de tentar reconectar
			}
		}
	}
}

// connectAndListen estabelece a conexão WebSocket e processa mensagens recebidas.
// Cada mensagem é desserializada e publicada no Kafka.
func (c *WSClient) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.Log.Info("connected to results feed WS", zap.String("url", c.URL))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.Log.Error("read message failed", zap.Error(err))
			return err
		}

		var res events.EventResult
		if err := json.Unmarshal(message, &res); err != nil {
			c.Log.Warn("invalid message", zap.Error(err))
			continue
		}
		if res.EventID == "" {
			c.Log.Warn("event result without event_id, skipping")
			continue
		}

		if err := c.Publisher.Publish(ctx, res); err != nil {
			c.Log.Error("failed to publish to Kafka", zap.Error(err))
		}
	}
}
