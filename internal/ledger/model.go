package ledger

import (
	"encoding/json"
	"time"
)

type BetKind string

const (
	KindCasino BetKind = "casino"
	KindSports BetKind = "sports"
)

type BetStatus string

const (
	BetOpen   BetStatus = "OPEN"
	BetLocked BetStatus = "LOCKED"
	BetWon    BetStatus = "WON"
	BetLost   BetStatus = "LOST"
	BetVoid   BetStatus = "VOID"
)

// Terminal informa se o status encerra a aposta (nenhuma mutação posterior é permitida)
func (s BetStatus) Terminal() bool {
	return s == BetWon || s == BetLost || s == BetVoid
}

type RoundStatus string

const (
	RoundOpen    RoundStatus = "OPEN"
	RoundLocked  RoundStatus = "LOCKED"
	RoundSettled RoundStatus = "SETTLED"
)

// Bet é uma aposta persistida, de cassino (contra uma rodada) ou esportiva
// (contra um evento externo). Market e Selection são canonizados em maiúsculas.
type Bet struct {
	ID          string
	UserID      string
	Kind        BetKind
	Game        string
	TableID     string
	RoundID     string
	EventID     string
	Market      string
	Selection   string
	StakeCents  int64
	OddValue    float64 // congelada no momento da aposta (esportivas)
	Status      BetStatus
	PayoutCents int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MarketKey é a chave canônica usada na agregação de exposição
func (b Bet) MarketKey() string {
	if b.Selection == "" {
		return b.Market
	}
	return b.Market + ":" + b.Selection
}

// Round é um ciclo de apostas de uma mesa. Outcome é preenchido uma única
// vez na liquidação e nunca mais alterado.
type Round struct {
	ID          string
	Game        string
	TableID     string
	Status      RoundStatus
	StartAt     time.Time
	BetsCloseAt time.Time
	ResultAt    time.Time
	Outcome     json.RawMessage
	Summary     Summary
}

// Entry é uma linha do extrato append-only wallet_ledger
type Entry struct {
	OpType       string
	AmountCents  int64
	BalanceAfter int64
	Description  string
	CreatedAt    time.Time
}

// Summary resume a liquidação de uma rodada ou de um evento esportivo.
// Balances carrega o saldo pós-crédito por usuário, usado nas notificações
// wallet:update; Replayed indica replay idempotente (nenhuma mutação aplicada).
type Summary struct {
	Winners          int              `json:"winners"`
	Losers           int              `json:"losers"`
	Pushes           int              `json:"pushes"`
	TotalPayoutCents int64            `json:"total_payout_cents"`
	Balances         map[string]int64 `json:"-"`
	Replayed         bool             `json:"-"`
}
