package events

import (
	"encoding/json"
	"time"
)

// Nomes dos eventos publicados nos canais por mesa ("game:tableId")
const (
	TypeRoundStart  = "round:start"
	TypeRoundLock   = "round:lock"
	TypeRoundReveal = "round:reveal"
	TypeRoundResult = "round:result"
	TypeRoundEnd    = "round:end"
	TypeCrashTick   = "crash:tick"
	TypeCrashStop   = "crash:stop"
	TypeWalletUpd   = "wallet:update"
)

// RoundStart abre a janela de apostas de uma rodada
type RoundStart struct {
	RoundID       string            `json:"roundId"`
	Game          string            `json:"game"`
	TableID       string            `json:"tableId"`
	StartAt       time.Time         `json:"startAt"`
	BetsCloseAt   time.Time         `json:"betsCloseAt"`
	ResultAt      time.Time         `json:"resultAt"`
	Viewers       int               `json:"viewers"`
	RecentResults []json.RawMessage `json:"recentResults"`
}

// RoundLock fecha a janela de apostas (LOCKED_A ou LOCKED_B nos jogos de duas fases)
type RoundLock struct {
	RoundID string `json:"roundId"`
	Phase   string `json:"phase,omitempty"`
}

// RoundReveal expõe o componente parcial do resultado nos jogos de duas fases
type RoundReveal struct {
	RoundID string      `json:"roundId"`
	Payload interface{} `json:"payload"`
}

// RoundResult carrega o resultado final da rodada
type RoundResult struct {
	RoundID string      `json:"roundId"`
	Outcome interface{} `json:"outcome"`
	Winners int         `json:"winners"`
	Losers  int         `json:"losers"`
}

// RoundEnd encerra a rodada e libera o estado em memória no servidor
type RoundEnd struct {
	RoundID string `json:"roundId"`
}

// CrashTick é o valor corrente do multiplicador no jogo contínuo
type CrashTick struct {
	RoundID    string  `json:"roundId"`
	Multiplier float64 `json:"multiplier"`
}

// CrashStop é o encerramento do jogo contínuo com o multiplicador final
type CrashStop struct {
	RoundID    string  `json:"roundId"`
	Multiplier float64 `json:"multiplier"`
	Reason     string  `json:"reason"` // "target" | "risk"
}
