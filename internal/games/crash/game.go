// Package crash é o jogo contínuo: o multiplicador cresce numa curva
// exponencial até a parada. A aposta fixa o ponto de saque na entrada
// (CASHOUT:<x.yy>) e vence se o valor final alcançar o ponto.
package crash

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/engine"
	"github.com/radieske/live-casino-platform/internal/ledger"
)

const Name = "crash"

const (
	MarketCashout = "CASHOUT"

	// taxa da curva: multiplier = e^(growthRate * segundos);
	// em 30s o teto fica perto de 36x
	growthRate = 0.12

	recentWindow = 10
)

// Outcome é o valor final persistido com o motivo da parada
type Outcome struct {
	Multiplier float64 `json:"multiplier"`
	Reason     string  `json:"reason"`
}

type Store interface {
	CreateRound(ctx context.Context, r *ledger.Round) (string, error)
	LockRound(ctx context.Context, roundID string) error
	OpenBetsForRound(ctx context.Context, roundID string) ([]ledger.Bet, error)
	SettleRound(ctx context.Context, roundID string, outcome []byte, grade ledger.Grader) (*ledger.Summary, error)
	RecentResults(ctx context.Context, game, tableID string, n int) ([]json.RawMessage, error)
}

type Audit interface {
	RoundSettled(ctx context.Context, roundID, game, tableID string, sum *ledger.Summary) error
}

type Game struct {
	tableID string
	store   Store
	audit   Audit
	log     *zap.Logger

	minRun time.Duration
	maxRun time.Duration
}

func New(tableID string, store Store, audit Audit, minRun, maxRun time.Duration, log *zap.Logger) *Game {
	if maxRun <= minRun {
		maxRun = minRun + time.Second
	}
	return &Game{
		tableID: tableID,
		store:   store,
		audit:   audit,
		log:     log.With(zap.String("game", Name), zap.String("table", tableID)),
		minRun:  minRun,
		maxRun:  maxRun,
	}
}

var _ engine.CrashDriver = (*Game)(nil)

// ValidBet aceita pontos de saque parseáveis acima de 1.0
func ValidBet(market, selection string) bool {
	if market != MarketCashout {
		return false
	}
	v, err := strconv.ParseFloat(selection, 64)
	return err == nil && v > 1.0
}

func (g *Game) OnCreateRound(ctx context.Context, startAt, betsCloseAt time.Time) (*engine.RoundInfo, error) {
	id, err := g.store.CreateRound(ctx, &ledger.Round{
		Game:        Name,
		TableID:     g.tableID,
		StartAt:     startAt,
		BetsCloseAt: betsCloseAt,
		ResultAt:    betsCloseAt, // o fim do voo não é conhecido na largada
	})
	if err != nil {
		return nil, err
	}
	recent, err := g.store.RecentResults(ctx, Name, g.tableID, recentWindow)
	if err != nil {
		g.log.Warn("recent results unavailable", zap.Error(err))
	}
	return &engine.RoundInfo{RoundID: id, Recent: recent}, nil
}

func (g *Game) OnLock(ctx context.Context, roundID string) error {
	return g.store.LockRound(ctx, roundID)
}

// Multiplier é a curva exponencial do voo, sempre >= 1.0
func (g *Game) Multiplier(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1.0
	}
	return math.Exp(growthRate * elapsed.Seconds())
}

// TargetDuration sorteia a duração alvo uniformemente na faixa da mesa
func (g *Game) TargetDuration(rng *rand.Rand) time.Duration {
	span := g.maxRun - g.minRun
	return g.minRun + time.Duration(rng.Int63n(int64(span)))
}

// InLossTerritory compara o que a casa deveria pagar no multiplicador atual
// com o total arrecadado na rodada
func (g *Game) InLossTerritory(ctx context.Context, roundID string, multiplier float64) (bool, error) {
	bets, err := g.store.OpenBetsForRound(ctx, roundID)
	if err != nil {
		return false, err
	}
	var pool, owed int64
	for _, b := range bets {
		pool += b.StakeCents
		point, ok := cashoutPoint(b)
		if !ok {
			continue
		}
		if multiplier >= point {
			owed += ledger.WinPayoutCents(b.StakeCents, point)
		}
	}
	return owed > pool, nil
}

func (g *Game) OnStop(ctx context.Context, roundID string, final float64, reason string) (map[string]int64, error) {
	raw, err := json.Marshal(Outcome{Multiplier: final, Reason: reason})
	if err != nil {
		return nil, err
	}
	sum, err := g.store.SettleRound(ctx, roundID, raw, graderFor(final))
	if err != nil {
		return nil, err
	}
	if sum.Replayed {
		g.log.Info("settlement replayed, nothing applied", zap.String("round", roundID))
		return nil, nil
	}
	if g.audit != nil {
		if aerr := g.audit.RoundSettled(ctx, roundID, Name, g.tableID, sum); aerr != nil {
			g.log.Warn("audit publish failed", zap.Error(aerr))
		}
	}
	return sum.Balances, nil
}

func (g *Game) OnEnd(ctx context.Context, roundID string) error {
	return nil
}

// cashoutPoint extrai o ponto de saque da seleção da aposta
func cashoutPoint(b ledger.Bet) (float64, bool) {
	if b.Market != MarketCashout {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.Selection, 64)
	if err != nil || v <= 1.0 {
		return 0, false
	}
	return v, true
}

// graderFor paga stake x ponto quando o voo alcançou o ponto de saque;
// seleção ilegível vira VOID com estorno
func graderFor(final float64) ledger.Grader {
	return func(b ledger.Bet) ledger.Grade {
		point, ok := cashoutPoint(b)
		if !ok {
			return ledger.Grade{Status: ledger.BetVoid, PayoutCents: b.StakeCents}
		}
		if final >= point {
			return ledger.Grade{Status: ledger.BetWon, PayoutCents: ledger.WinPayoutCents(b.StakeCents, point)}
		}
		return ledger.Grade{Status: ledger.BetLost}
	}
}
