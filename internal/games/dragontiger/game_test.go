package dragontiger

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/games/cards"
	"github.com/radieske/live-casino-platform/internal/ledger"
	"github.com/radieske/live-casino-platform/internal/ledger/ledgertest"
)

func newTestGame(t *testing.T, store *ledgertest.Store) *Game {
	t.Helper()
	return New("DT1", store, nil, rand.New(rand.NewSource(1)), zap.NewNop())
}

func TestValidBet(t *testing.T) {
	assert.True(t, ValidBet("WINNER", "DRAGON"))
	assert.True(t, ValidBet("WINNER", "TIGER"))
	assert.True(t, ValidBet("WINNER", "TIE"))
	assert.False(t, ValidBet("WINNER", "LION"))
	assert.False(t, ValidBet("COLOR", "RED"))
}

func TestWinnerOf(t *testing.T) {
	king := cards.Card{Rank: cards.King, Suit: cards.Spades}
	two := cards.Card{Rank: cards.Two, Suit: cards.Hearts}
	twoC := cards.Card{Rank: cards.Two, Suit: cards.Clubs}

	assert.Equal(t, SideDragon, winnerOf(king, two))
	assert.Equal(t, SideTiger, winnerOf(two, king))
	assert.Equal(t, SideTie, winnerOf(two, twoC))
}

func TestResolvePairSwapsWhenNaturalPaysWorst(t *testing.T) {
	dragon := cards.Card{Rank: cards.King, Suit: cards.Spades}
	bets := []ledger.Bet{
		{Market: "WINNER", Selection: "DRAGON", StakeCents: 900, Status: ledger.BetLocked},
		{Market: "WINNER", Selection: "TIGER", StakeCents: 100, Status: ledger.BetLocked},
	}

	// varre seeds até o sorteio natural dar vitória do dragão, que é o pior
	// mercado: o par precisa ser trocado preservando as duas cartas
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out, swapped := resolvePair(rng, dragon, bets)
		if !swapped {
			assert.NotEqual(t, SideDragon, out.Winner,
				"sem troca, o vencedor não pode ser o pior mercado (exceto empate)")
			continue
		}
		// a troca inverte os lados: o dragão original vira tigre
		assert.Equal(t, dragon, out.Tiger)
		assert.Equal(t, SideTiger, out.Winner)
		return
	}
	t.Fatal("nenhuma seed produziu o cenário de troca")
}

func TestResolvePairTieCannotBeSwappedAway(t *testing.T) {
	dragon := cards.Card{Rank: cards.Seven, Suit: cards.Spades}
	bets := []ledger.Bet{
		{Market: "WINNER", Selection: "TIE", StakeCents: 1000, Status: ledger.BetLocked},
	}

	for seed := int64(0); seed < 200; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out, swapped := resolvePair(rng, dragon, bets)
		if out.Winner == SideTie {
			// empate paga o pior mercado e mesmo assim não há troca: a casa paga
			assert.False(t, swapped)
			return
		}
	}
	t.Fatal("nenhuma seed produziu empate")
}

func TestResolvePairNoBetsNoSwap(t *testing.T) {
	dragon := cards.Card{Rank: cards.Five, Suit: cards.Hearts}
	out, swapped := resolvePair(rand.New(rand.NewSource(3)), dragon, nil)
	assert.False(t, swapped)
	assert.Equal(t, dragon, out.Dragon)
	assert.NotEqual(t, out.Dragon, out.Tiger)
}

func TestGraderSidesAndTie(t *testing.T) {
	dragonWins := Outcome{
		Dragon: cards.Card{Rank: cards.King, Suit: cards.Spades},
		Tiger:  cards.Card{Rank: cards.Two, Suit: cards.Hearts},
		Winner: SideDragon,
	}
	grade := graderFor(dragonWins)

	won := grade(ledger.Bet{Market: "WINNER", Selection: "DRAGON", StakeCents: 200})
	assert.Equal(t, ledger.BetWon, won.Status)
	assert.Equal(t, ledger.WinPayoutCents(200, sideOdd), won.PayoutCents)

	lost := grade(ledger.Bet{Market: "WINNER", Selection: "TIGER", StakeCents: 200})
	assert.Equal(t, ledger.BetLost, lost.Status)

	tieLost := grade(ledger.Bet{Market: "WINNER", Selection: "TIE", StakeCents: 200})
	assert.Equal(t, ledger.BetLost, tieLost.Status)
}

func TestGraderTiePushesSideBets(t *testing.T) {
	tie := Outcome{
		Dragon: cards.Card{Rank: cards.Seven, Suit: cards.Spades},
		Tiger:  cards.Card{Rank: cards.Seven, Suit: cards.Hearts},
		Winner: SideTie,
	}
	grade := graderFor(tie)

	tieWon := grade(ledger.Bet{Market: "WINNER", Selection: "TIE", StakeCents: 100})
	assert.Equal(t, ledger.BetWon, tieWon.Status)
	assert.Equal(t, ledger.WinPayoutCents(100, tieOdd), tieWon.PayoutCents)

	// lados empurram metade do stake no empate
	push := grade(ledger.Bet{Market: "WINNER", Selection: "DRAGON", StakeCents: 100})
	assert.Equal(t, ledger.BetVoid, push.Status)
	assert.Equal(t, int64(50), push.PayoutCents)
}

func TestTwoWindowFlow(t *testing.T) {
	store := ledgertest.New()
	g := newTestGame(t, store)
	ctx := context.Background()

	now := time.Now()
	info, err := g.OnCreateRound(ctx, now, now.Add(15*time.Second), now.Add(32*time.Second))
	require.NoError(t, err)
	roundID := info.RoundID

	_, _, err = store.Deposit(ctx, "u1", 5000, "seed")
	require.NoError(t, err)

	// aposta da primeira janela
	first, _, err := store.PlaceBet(ctx, &ledger.Bet{
		UserID: "u1", Kind: ledger.KindCasino, Game: Name, TableID: "DT1",
		RoundID: roundID, Market: "WINNER", Selection: "DRAGON", StakeCents: 300,
	})
	require.NoError(t, err)

	require.NoError(t, g.OnLockFirst(ctx, roundID))
	b, _ := store.Bet(first)
	assert.Equal(t, ledger.BetLocked, b.Status)

	payload, err := g.OnReveal(ctx, roundID)
	require.NoError(t, err)
	require.NotNil(t, payload)

	// aposta tardia, na segunda janela, com o dragão exposto
	second, _, err := store.PlaceBet(ctx, &ledger.Bet{
		UserID: "u1", Kind: ledger.KindCasino, Game: Name, TableID: "DT1",
		RoundID: roundID, Market: "WINNER", Selection: "TIGER", StakeCents: 200,
	})
	require.NoError(t, err)

	require.NoError(t, g.OnLock(ctx, roundID))
	b, _ = store.Bet(second)
	assert.Equal(t, ledger.BetLocked, b.Status)

	res, err := g.OnComputeResult(ctx, roundID)
	require.NoError(t, err)
	out, ok := res.Outcome.(Outcome)
	require.True(t, ok)
	assert.NotEqual(t, out.Dragon, out.Tiger)

	_, err = g.OnSettle(ctx, roundID, res)
	require.NoError(t, err)

	// as duas apostas terminaram em estado terminal exatamente uma vez
	b1, _ := store.Bet(first)
	b2, _ := store.Bet(second)
	assert.True(t, b1.Status.Terminal())
	assert.True(t, b2.Status.Terminal())

	require.NoError(t, g.OnEnd(ctx, roundID))
	g.mu.Lock()
	_, hasDragon := g.dragon[roundID]
	_, hasPair := g.pair[roundID]
	g.mu.Unlock()
	assert.False(t, hasDragon)
	assert.False(t, hasPair)
}
