// Package dragontiger é o jogo de duas fases: a carta do dragão é revelada no
// meio da rodada e uma segunda janela de apostas abre com ela exposta. A carta
// do tigre sai no segundo lock; se o confronto natural ainda pagar o mercado
// de maior exposição, as cartas trocam de lado preservando o par sorteado.
package dragontiger

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/bias"
	"github.com/radieske/live-casino-platform/internal/engine"
	"github.com/radieske/live-casino-platform/internal/games/cards"
	"github.com/radieske/live-casino-platform/internal/ledger"
)

const Name = "dragontiger"

const (
	MarketWinner = "WINNER"

	SideDragon = "DRAGON"
	SideTiger  = "TIGER"
	SideTie    = "TIE"

	sideOdd = 1.95
	tieOdd  = 8.0

	recentWindow = 10
)

// Outcome carrega o par final e o vencedor do confronto
type Outcome struct {
	Dragon cards.Card `json:"dragon"`
	Tiger  cards.Card `json:"tiger"`
	Winner string     `json:"winner"`
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

	mu     sync.Mutex
	rng    *rand.Rand
	dragon map[string]cards.Card // revelado no primeiro lock
	pair   map[string]Outcome    // fechado no segundo lock
}

func New(tableID string, store Store, audit Audit, rng *rand.Rand, log *zap.Logger) *Game {
	return &Game{
		tableID: tableID,
		store:   store,
		audit:   audit,
		log:     log.With(zap.String("game", Name), zap.String("table", tableID)),
		rng:     rng,
		dragon:  make(map[string]cards.Card),
		pair:    make(map[string]Outcome),
	}
}

var _ engine.TwoPhaseHooks = (*Game)(nil)

func ValidBet(market, selection string) bool {
	if market != MarketWinner {
		return false
	}
	return selection == SideDragon || selection == SideTiger || selection == SideTie
}

func (g *Game) OnCreateRound(ctx context.Context, startAt, betsCloseAt, resultAt time.Time) (*engine.RoundInfo, error) {
	id, err := g.store.CreateRound(ctx, &ledger.Round{
		Game:        Name,
		TableID:     g.tableID,
		StartAt:     startAt,
		BetsCloseAt: betsCloseAt,
		ResultAt:    resultAt,
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

// OnLockFirst fecha a primeira janela e sorteia a carta do dragão. O sorteio
// aqui é uniforme: o viés entra no segundo lock, sobre o livro completo.
func (g *Game) OnLockFirst(ctx context.Context, roundID string) error {
	if err := g.store.LockRound(ctx, roundID); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	deck := cards.FullDeck()
	g.dragon[roundID] = deck[g.rng.Intn(len(deck))]
	return nil
}

// OnReveal expõe a carta do dragão para a segunda janela de apostas
func (g *Game) OnReveal(ctx context.Context, roundID string) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.dragon[roundID]
	if !ok {
		// lock perdido: revela um dragão tardio para a rodada seguir
		deck := cards.FullDeck()
		d = deck[g.rng.Intn(len(deck))]
		g.dragon[roundID] = d
	}
	return struct {
		Dragon cards.Card `json:"dragon"`
	}{Dragon: d}, nil
}

// OnLock fecha a segunda janela: congela as apostas tardias, sorteia o tigre
// e aplica a troca se o resultado natural ainda pagar o pior mercado
func (g *Game) OnLock(ctx context.Context, roundID string) error {
	if err := g.store.LockRound(ctx, roundID); err != nil {
		return err
	}
	bets, err := g.store.OpenBetsForRound(ctx, roundID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	dragon, ok := g.dragon[roundID]
	if !ok {
		deck := cards.FullDeck()
		dragon = deck[g.rng.Intn(len(deck))]
	}
	out, swapped := resolvePair(g.rng, dragon, bets)
	if swapped {
		g.log.Info("pair swapped against worst exposure",
			zap.String("round", roundID), zap.String("winner", out.Winner))
	}
	g.pair[roundID] = out
	return nil
}

func (g *Game) OnComputeResult(ctx context.Context, roundID string) (engine.Result, error) {
	g.mu.Lock()
	out, ok := g.pair[roundID]
	if !ok {
		out = uniformPair(g.rng)
	}
	g.mu.Unlock()

	res := engine.Result{Outcome: out}
	if bets, err := g.store.OpenBetsForRound(ctx, roundID); err == nil {
		_, sum := ledger.GradeBets(bets, graderFor(out))
		res.Winners = sum.Winners
		res.Losers = sum.Losers
	}
	return res, nil
}

func (g *Game) FallbackResult(roundID string) engine.Result {
	g.mu.Lock()
	out := uniformPair(g.rng)
	g.mu.Unlock()
	return engine.Result{Outcome: out}
}

func (g *Game) OnSettle(ctx context.Context, roundID string, res engine.Result) (map[string]int64, error) {
	out, ok := res.Outcome.(Outcome)
	if !ok {
		return nil, ledger.ErrRoundNotFound
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	sum, err := g.store.SettleRound(ctx, roundID, raw, graderFor(out))
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
	g.mu.Lock()
	delete(g.dragon, roundID)
	delete(g.pair, roundID)
	g.mu.Unlock()
	return nil
}

// winnerOf compara as cartas (A baixo, K alto)
func winnerOf(dragon, tiger cards.Card) string {
	switch {
	case dragon.Value() > tiger.Value():
		return SideDragon
	case tiger.Value() > dragon.Value():
		return SideTiger
	default:
		return SideTie
	}
}

// resolvePair sorteia o tigre uniformemente no baralho restante e checa o
// confronto contra o mercado de maior exposição. A troca preserva a estrutura:
// as mesmas duas cartas, apenas de lados invertidos — um empate não tem como
// ser desfeito por troca, e nesse caso a casa paga mesmo.
func resolvePair(rng *rand.Rand, dragon cards.Card, bets []ledger.Bet) (Outcome, bool) {
	rest := cards.Without(cards.FullDeck(), dragon)
	tiger := rest[rng.Intn(len(rest))]
	out := Outcome{Dragon: dragon, Tiger: tiger, Winner: winnerOf(dragon, tiger)}

	worst, ok := bias.Aggregate(bets).Worst()
	if !ok {
		return out, false
	}
	if worst != MarketWinner+":"+out.Winner || out.Winner == SideTie {
		return out, false
	}
	swapped := Outcome{Dragon: tiger, Tiger: dragon, Winner: winnerOf(tiger, dragon)}
	return swapped, true
}

func uniformPair(rng *rand.Rand) Outcome {
	deck := cards.FullDeck()
	dragon := deck[rng.Intn(len(deck))]
	rest := cards.Without(deck, dragon)
	tiger := rest[rng.Intn(len(rest))]
	return Outcome{Dragon: dragon, Tiger: tiger, Winner: winnerOf(dragon, tiger)}
}

// graderFor aplica a tabela do jogo: lados pagam 1.95x, empate paga 8x e
// devolve metade do stake de quem apostou nos lados (push parcial)
func graderFor(out Outcome) ledger.Grader {
	return func(b ledger.Bet) ledger.Grade {
		if b.Market != MarketWinner {
			return ledger.Grade{Status: ledger.BetVoid, PayoutCents: b.StakeCents}
		}
		if out.Winner == SideTie {
			switch b.Selection {
			case SideTie:
				return ledger.Grade{Status: ledger.BetWon, PayoutCents: ledger.WinPayoutCents(b.StakeCents, tieOdd)}
			case SideDragon, SideTiger:
				return ledger.Grade{Status: ledger.BetVoid, PayoutCents: b.StakeCents / 2}
			}
			return ledger.Grade{Status: ledger.BetLost}
		}
		if b.Selection == out.Winner {
			return ledger.Grade{Status: ledger.BetWon, PayoutCents: ledger.WinPayoutCents(b.StakeCents, sideOdd)}
		}
		return ledger.Grade{Status: ledger.BetLost}
	}
}
