package tables

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/ledger"
)

type fakeRunner struct {
	roundID string
	open    bool
	started bool
	stopped bool
}

func (r *fakeRunner) Start()                       { r.started = true }
func (r *fakeRunner) Stop()                        { r.stopped = true }
func (r *fakeRunner) Channel() string              { return "testgame:T1" }
func (r *fakeRunner) CurrentRound() (string, bool) { return r.roundID, r.open }

type fakeBetStore struct {
	placed  []*ledger.Bet
	betID   string
	balance int64
	err     error
}

func (s *fakeBetStore) PlaceBet(ctx context.Context, b *ledger.Bet) (string, int64, error) {
	if s.err != nil {
		return "", 0, s.err
	}
	s.placed = append(s.placed, b)
	return s.betID, s.balance, nil
}

func validAny(market, selection string) bool { return market == "COLOR" }

func newTestRegistry(store BetStore, runner Runner) *Registry {
	r := NewRegistry(store, zap.NewNop())
	r.Add("testgame", "T1", runner, validAny)
	return r
}

func TestPlaceBetRoutesToCurrentRound(t *testing.T) {
	store := &fakeBetStore{betID: "bet-1", balance: 800}
	runner := &fakeRunner{roundID: "round-1", open: true}
	r := newTestRegistry(store, runner)

	betID, bal, err := r.PlaceBet(context.Background(), ClientMsg{
		Type: "bet", UserID: "u1", Game: "testgame", TableID: "T1",
		Market: "color", Selection: "red", StakeCents: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, "bet-1", betID)
	assert.Equal(t, int64(800), bal)

	require.Len(t, store.placed, 1)
	b := store.placed[0]
	assert.Equal(t, "round-1", b.RoundID, "aposta amarrada à rodada corrente")
	assert.Equal(t, ledger.KindCasino, b.Kind)
	// canonização na borda
	assert.Equal(t, "COLOR", b.Market)
	assert.Equal(t, "RED", b.Selection)
}

func TestPlaceBetRejectedWhenLocked(t *testing.T) {
	store := &fakeBetStore{}
	runner := &fakeRunner{roundID: "round-1", open: false}
	r := newTestRegistry(store, runner)

	_, _, err := r.PlaceBet(context.Background(), ClientMsg{
		UserID: "u1", Game: "testgame", TableID: "T1",
		Market: "COLOR", Selection: "RED", StakeCents: 200,
	})
	assert.ErrorIs(t, err, ledger.ErrRoundClosed)
	assert.Empty(t, store.placed)
}

func TestPlaceBetRejectsStaleRound(t *testing.T) {
	store := &fakeBetStore{}
	runner := &fakeRunner{roundID: "round-2", open: true}
	r := newTestRegistry(store, runner)

	// o cliente mandou a aposta para a rodada que acabou de virar
	_, _, err := r.PlaceBet(context.Background(), ClientMsg{
		UserID: "u1", Game: "testgame", TableID: "T1", RoundID: "round-1",
		Market: "COLOR", Selection: "RED", StakeCents: 200,
	})
	assert.ErrorIs(t, err, ErrStaleRound)
}

func TestPlaceBetRejectsUnknownTableAndMarket(t *testing.T) {
	store := &fakeBetStore{}
	r := newTestRegistry(store, &fakeRunner{roundID: "round-1", open: true})

	_, _, err := r.PlaceBet(context.Background(), ClientMsg{
		UserID: "u1", Game: "nogame", TableID: "T9", Market: "COLOR", Selection: "RED", StakeCents: 100,
	})
	assert.ErrorIs(t, err, ErrUnknownTable)

	_, _, err = r.PlaceBet(context.Background(), ClientMsg{
		UserID: "u1", Game: "testgame", TableID: "T1", Market: "TOTAL", Selection: "OVER", StakeCents: 100,
	})
	assert.ErrorIs(t, err, ErrBadMarket)

	_, _, err = r.PlaceBet(context.Background(), ClientMsg{
		UserID: "u1", Game: "testgame", TableID: "T1", Market: "COLOR", Selection: "RED", StakeCents: 0,
	})
	assert.ErrorIs(t, err, ErrBadStake)
}

func TestPlaceBetPropagatesInsufficientFunds(t *testing.T) {
	store := &fakeBetStore{err: ledger.ErrInsufficientFunds}
	r := newTestRegistry(store, &fakeRunner{roundID: "round-1", open: true})

	_, _, err := r.PlaceBet(context.Background(), ClientMsg{
		UserID: "u1", Game: "testgame", TableID: "T1", Market: "COLOR", Selection: "RED", StakeCents: 100,
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestStartStopAll(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRegistry(&fakeBetStore{}, runner)

	r.StartAll()
	assert.True(t, runner.started)
	r.StopAll()
	assert.True(t, runner.stopped)
}

func TestHubViewers(t *testing.T) {
	h := NewHub(nil, nil, zap.NewNop())

	assert.Equal(t, 0, h.Viewers("testgame:T1"))

	a, b := &client{}, &client{}
	h.subscribe("testgame:T1", a)
	h.subscribe("testgame:T1", b)
	h.subscribe("user:u1", a)
	assert.Equal(t, 2, h.Viewers("testgame:T1"))
	assert.Equal(t, 1, h.Viewers("user:u1"))

	h.unsubscribe("testgame:T1", a)
	assert.Equal(t, 1, h.Viewers("testgame:T1"))
	h.unsubscribe("testgame:T1", b)
	assert.Equal(t, 0, h.Viewers("testgame:T1"))
}

func TestTableChannel(t *testing.T) {
	assert.Equal(t, "crash:CR1", tableChannel("crash", "CR1"))
	assert.Equal(t, "", tableChannel("", "CR1"))
	assert.Equal(t, "", tableChannel("crash", ""))
}
