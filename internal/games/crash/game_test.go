package crash

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/ledger"
	"github.com/radieske/live-casino-platform/internal/ledger/ledgertest"
)

func newTestGame(t *testing.T, store *ledgertest.Store) *Game {
	t.Helper()
	return New("CR1", store, nil, time.Second, 30*time.Second, zap.NewNop())
}

func TestValidBet(t *testing.T) {
	assert.True(t, ValidBet("CASHOUT", "2.00"))
	assert.True(t, ValidBet("CASHOUT", "1.50"))
	assert.False(t, ValidBet("CASHOUT", "1.00"))
	assert.False(t, ValidBet("CASHOUT", "abc"))
	assert.False(t, ValidBet("COLOR", "RED"))
}

func TestMultiplierCurve(t *testing.T) {
	g := newTestGame(t, ledgertest.New())

	assert.Equal(t, 1.0, g.Multiplier(0))
	assert.Equal(t, 1.0, g.Multiplier(-time.Second))

	// estritamente crescente
	prev := g.Multiplier(0)
	for d := time.Second; d <= 30*time.Second; d += time.Second {
		cur := g.Multiplier(d)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestTargetDurationWithinRange(t *testing.T) {
	g := newTestGame(t, ledgertest.New())
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 500; i++ {
		d := g.TargetDuration(rng)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 30*time.Second)
	}
}

func TestGraderPaysReachedCashouts(t *testing.T) {
	grade := graderFor(2.5)

	won := grade(ledger.Bet{Market: "CASHOUT", Selection: "2.00", StakeCents: 100})
	assert.Equal(t, ledger.BetWon, won.Status)
	assert.Equal(t, ledger.WinPayoutCents(100, 2.0), won.PayoutCents)

	exact := grade(ledger.Bet{Market: "CASHOUT", Selection: "2.50", StakeCents: 100})
	assert.Equal(t, ledger.BetWon, exact.Status)

	lost := grade(ledger.Bet{Market: "CASHOUT", Selection: "3.00", StakeCents: 100})
	assert.Equal(t, ledger.BetLost, lost.Status)

	bad := grade(ledger.Bet{Market: "CASHOUT", Selection: "junk", StakeCents: 100})
	assert.Equal(t, ledger.BetVoid, bad.Status)
	assert.Equal(t, int64(100), bad.PayoutCents)
}

func TestInLossTerritory(t *testing.T) {
	store := ledgertest.New()
	g := newTestGame(t, store)
	ctx := context.Background()

	now := time.Now()
	info, err := g.OnCreateRound(ctx, now, now.Add(15*time.Second))
	require.NoError(t, err)
	roundID := info.RoundID

	_, _, err = store.Deposit(ctx, "u1", 10_000, "seed")
	require.NoError(t, err)
	_, _, err = store.PlaceBet(ctx, &ledger.Bet{
		UserID: "u1", Kind: ledger.KindCasino, Game: Name, TableID: "CR1",
		RoundID: roundID, Market: "CASHOUT", Selection: "2.00", StakeCents: 1000,
	})
	require.NoError(t, err)

	// abaixo do ponto de saque: nada devido ainda
	loss, err := g.InLossTerritory(ctx, roundID, 1.5)
	require.NoError(t, err)
	assert.False(t, loss)

	// no ponto: deve 2000 contra 1000 arrecadados
	loss, err = g.InLossTerritory(ctx, roundID, 2.0)
	require.NoError(t, err)
	assert.True(t, loss)
}

func TestOnStopSettlesIdempotently(t *testing.T) {
	store := ledgertest.New()
	g := newTestGame(t, store)
	ctx := context.Background()

	now := time.Now()
	info, err := g.OnCreateRound(ctx, now, now.Add(15*time.Second))
	require.NoError(t, err)
	roundID := info.RoundID

	_, bal, err := store.Deposit(ctx, "u1", 1000, "seed")
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)

	betID, bal, err := store.PlaceBet(ctx, &ledger.Bet{
		UserID: "u1", Kind: ledger.KindCasino, Game: Name, TableID: "CR1",
		RoundID: roundID, Market: "CASHOUT", Selection: "2.00", StakeCents: 200,
	})
	require.NoError(t, err)
	require.Equal(t, int64(800), bal)
	require.NoError(t, g.OnLock(ctx, roundID))

	balances, err := g.OnStop(ctx, roundID, 2.37, "target")
	require.NoError(t, err)
	want := 800 + ledger.WinPayoutCents(200, 2.0)
	assert.Equal(t, want, balances["u1"])

	b, _ := store.Bet(betID)
	assert.Equal(t, ledger.BetWon, b.Status)

	// replay não credita de novo
	again, err := g.OnStop(ctx, roundID, 2.37, "target")
	require.NoError(t, err)
	assert.Nil(t, again)
	final, err := store.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, final)
}
