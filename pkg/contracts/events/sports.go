package events

import "time"

// EventResult é publicado no tópico "event_results" pelo feed de resultados.
// WinningSelection nulo com Void=true indica evento cancelado (estorno).
type EventResult struct {
	EventID          string    `json:"event_id"`
	WinningSelection *string   `json:"winning_selection"`
	Void             bool      `json:"void"`
	Source           string    `json:"source"`
	Ts               time.Time `json:"ts"`
}

// RoundSettled é o registro de auditoria publicado após liquidar uma rodada de cassino
type RoundSettled struct {
	RoundID          string `json:"round_id"`
	Game             string `json:"game"`
	TableID          string `json:"table_id"`
	Winners          int    `json:"winners"`
	Losers           int    `json:"losers"`
	Pushes           int    `json:"pushes"`
	TotalPayoutCents int64  `json:"total_payout_cents"`
	TsUnixMs         int64  `json:"ts_unix_ms"`
}
