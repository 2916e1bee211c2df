package tables

import "encoding/json"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: join | leave | bet | ping
// Game/TableID: obrigatórios para join/leave/bet
type ClientMsg struct {
	Type       string `json:"type"`
	ReqID      string `json:"reqId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Game       string `json:"game,omitempty"`
	TableID    string `json:"tableId,omitempty"`
	RoundID    string `json:"roundId,omitempty"`
	Market     string `json:"market,omitempty"`
	Selection  string `json:"selection,omitempty"`
	StakeCents int64  `json:"stakeCents,omitempty"`
}

// ServerMsg é o envelope de qualquer evento entregue ao cliente
type ServerMsg struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// BetAck é a resposta direta a uma mensagem bet
type BetAck struct {
	Type         string `json:"type"` // bet:ack
	ReqID        string `json:"reqId,omitempty"`
	OK           bool   `json:"ok"`
	BetID        string `json:"betId,omitempty"`
	BalanceCents int64  `json:"balanceCents,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Envelope é a mensagem que atravessa o Redis Pub/Sub entre processos
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
