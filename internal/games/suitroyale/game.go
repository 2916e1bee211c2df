// Package suitroyale é o jogo de fase única: uma carta sorteada por rodada,
// mercados de naipe (3.8x) e cor (1.95x). O viés é calculado no lock e
// guardado por roundID; o resultado usa o cache ou um fallback uniforme.
package suitroyale

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

const Name = "suitroyale"

const (
	MarketSuit  = "SUIT"
	MarketColor = "COLOR"

	suitOdd  = 3.8
	colorOdd = 1.95

	recentWindow = 10
)

// Outcome é o payload persistido e difundido no round:result
type Outcome struct {
	Card cards.Card `json:"card"`
}

// Store é o recorte do ledger que o jogo consome
type Store interface {
	CreateRound(ctx context.Context, r *ledger.Round) (string, error)
	LockRound(ctx context.Context, roundID string) error
	OpenBetsForRound(ctx context.Context, roundID string) ([]ledger.Bet, error)
	SettleRound(ctx context.Context, roundID string, outcome []byte, grade ledger.Grader) (*ledger.Summary, error)
	RecentResults(ctx context.Context, game, tableID string, n int) ([]json.RawMessage, error)
}

// Audit publica o registro de liquidação para consumidores externos
type Audit interface {
	RoundSettled(ctx context.Context, roundID, game, tableID string, sum *ledger.Summary) error
}

type Game struct {
	tableID string
	store   Store
	audit   Audit // pode ser nil
	log     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
	pre map[string]cards.Card // carta pré-selecionada no lock, por roundID
}

func New(tableID string, store Store, audit Audit, rng *rand.Rand, log *zap.Logger) *Game {
	return &Game{
		tableID: tableID,
		store:   store,
		audit:   audit,
		log:     log.With(zap.String("game", Name), zap.String("table", tableID)),
		rng:     rng,
		pre:     make(map[string]cards.Card),
	}
}

var _ engine.Hooks = (*Game)(nil)

// ValidBet valida mercado e seleção na borda de entrada (já canonizados)
func ValidBet(market, selection string) bool {
	switch market {
	case MarketSuit:
		_, ok := suitBySelection[selection]
		return ok
	case MarketColor:
		return selection == "RED" || selection == "BLACK"
	}
	return false
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
		// histórico é cosmético: não impede a rodada
		g.log.Warn("recent results unavailable", zap.Error(err))
	}
	return &engine.RoundInfo{RoundID: id, Recent: recent}, nil
}

// OnLock congela as apostas e pré-seleciona a carta via engine de viés,
// usando o livro capturado neste instante
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
	g.pre[roundID] = bias.PickAgainstWorst(g.rng, cards.FullDeck(), bets, winsPredicate)
	return nil
}

func (g *Game) OnComputeResult(ctx context.Context, roundID string) (engine.Result, error) {
	g.mu.Lock()
	card, ok := g.pre[roundID]
	if !ok {
		// fallback: sorteio uniforme, a rodada sempre produz resultado
		deck := cards.FullDeck()
		card = deck[g.rng.Intn(len(deck))]
	}
	g.mu.Unlock()

	res := engine.Result{Outcome: Outcome{Card: card}}
	if bets, err := g.store.OpenBetsForRound(ctx, roundID); err == nil {
		_, sum := ledger.GradeBets(bets, graderFor(card))
		res.Winners = sum.Winners
		res.Losers = sum.Losers
	}
	return res, nil
}

func (g *Game) FallbackResult(roundID string) engine.Result {
	g.mu.Lock()
	deck := cards.FullDeck()
	card := deck[g.rng.Intn(len(deck))]
	g.mu.Unlock()
	return engine.Result{Outcome: Outcome{Card: card}}
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
	sum, err := g.store.SettleRound(ctx, roundID, raw, graderFor(out.Card))
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
	delete(g.pre, roundID)
	g.mu.Unlock()
	return nil
}

var suitBySelection = map[string]cards.Suit{
	"SPADES":   cards.Spades,
	"HEARTS":   cards.Hearts,
	"DIAMONDS": cards.Diamonds,
	"CLUBS":    cards.Clubs,
}

// winsPredicate traduz a chave canônica de mercado no predicado de vitória
// sobre a carta sorteada
func winsPredicate(market string) func(cards.Card) bool {
	switch market {
	case "COLOR:RED":
		return func(c cards.Card) bool { return c.Red() }
	case "COLOR:BLACK":
		return func(c cards.Card) bool { return !c.Red() }
	}
	for sel, suit := range suitBySelection {
		if market == MarketSuit+":"+sel {
			s := suit
			return func(c cards.Card) bool { return c.Suit == s }
		}
	}
	return nil
}

// graderFor aplica a tabela de odds do jogo à carta final. Mercado
// desconhecido vira VOID com estorno — nunca confisca por erro de rota.
func graderFor(card cards.Card) ledger.Grader {
	return func(b ledger.Bet) ledger.Grade {
		wins := winsPredicate(b.MarketKey())
		if wins == nil {
			return ledger.Grade{Status: ledger.BetVoid, PayoutCents: b.StakeCents}
		}
		if !wins(card) {
			return ledger.Grade{Status: ledger.BetLost}
		}
		odd := colorOdd
		if b.Market == MarketSuit {
			odd = suitOdd
		}
		return ledger.Grade{Status: ledger.BetWon, PayoutCents: ledger.WinPayoutCents(b.StakeCents, odd)}
	}
}
