package tables

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/shared/metrics"
)

// BetPlacer roteia uma aposta para a mesa certa e devolve o saldo pós-débito
type BetPlacer interface {
	PlaceBet(ctx context.Context, msg ClientMsg) (betID string, balanceCents int64, err error)
}

// client embrulha a conexão com um mutex de escrita: broadcasts chegam da
// goroutine do subscriber Redis e acks da goroutine de leitura
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por canal
// subs: mapeia canal (game:tableId ou user:<id>) para o conjunto de clientes
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	bets     BetPlacer

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, bets BetPlacer, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		bets:     bets,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite join/leave em mesas, apostas com ack e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer conn.Close()

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "join":
			h.subscribe(tableChannel(msg.Game, msg.TableID), c)
			if msg.UserID != "" {
				h.subscribe("user:"+msg.UserID, c)
			}
		case "leave":
			h.unsubscribe(tableChannel(msg.Game, msg.TableID), c)
		case "bet":
			h.handleBet(r.Context(), c, msg)
		case "ping":
			_ = c.write(ServerMsg{Type: "pong"})
		}
	}
	// Remove o cliente de todas as assinaturas ao desconectar
	h.mu.Lock()
	for ch, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, ch)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) handleBet(ctx context.Context, c *client, msg ClientMsg) {
	betID, balance, err := h.bets.PlaceBet(ctx, msg)
	if err != nil {
		_ = c.write(BetAck{Type: "bet:ack", ReqID: msg.ReqID, OK: false, Error: err.Error()})
		return
	}
	_ = c.write(BetAck{Type: "bet:ack", ReqID: msg.ReqID, OK: true, BetID: betID, BalanceCents: balance})
}

func (h *Hub) subscribe(channel string, c *client) {
	if channel == "" {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[channel]; !ok {
		h.subs[channel] = make(map[*client]struct{})
	}
	h.subs[channel][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(channel string, c *client) {
	h.mu.Lock()
	if set, ok := h.subs[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, channel)
		}
	}
	h.mu.Unlock()
}

// Broadcast entrega um evento para todos os clientes inscritos no canal
func (h *Hub) Broadcast(channel, event string, payload json.RawMessage) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.subs[channel]))
	for c := range h.subs[channel] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	msg := ServerMsg{Type: event, Channel: channel, Payload: payload}
	for _, c := range conns {
		if err := c.write(msg); err != nil {
			h.log.Debug("ws write failed", zap.String("channel", channel), zap.Error(err))
		}
	}
}

// Viewers conta os clientes inscritos no canal (alimenta o round:start)
func (h *Hub) Viewers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func tableChannel(game, tableID string) string {
	if game == "" || tableID == "" {
		return ""
	}
	return game + ":" + tableID
}
