package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/pkg/contracts/events"
)

type pubEvent struct {
	channel string
	event   string
}

type fakePub struct {
	mu     sync.Mutex
	events []pubEvent
}

func (p *fakePub) Publish(channel, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pubEvent{channel: channel, event: event})
}

func (p *fakePub) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event == event {
			n++
		}
	}
	return n
}

// tableEvents devolve só os eventos do canal da mesa, em ordem
func (p *fakePub) tableEvents(channel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.channel == channel {
			out = append(out, e.event)
		}
	}
	return out
}

type fakeHooks struct {
	mu          sync.Mutex
	creates     int
	locks       int
	computes    int
	settles     int
	ends        int
	settledCh   chan struct{}
	balances    map[string]int64
	lockErr     error
	computeErr  error
	fallbackRes Result
}

func newFakeHooks() *fakeHooks {
	return &fakeHooks{
		settledCh:   make(chan struct{}, 16),
		fallbackRes: Result{Outcome: "fallback"},
	}
}

func (h *fakeHooks) OnCreateRound(ctx context.Context, startAt, betsCloseAt, resultAt time.Time) (*RoundInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creates++
	return &RoundInfo{RoundID: "round-1"}, nil
}

func (h *fakeHooks) OnLock(ctx context.Context, roundID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locks++
	return h.lockErr
}

func (h *fakeHooks) OnComputeResult(ctx context.Context, roundID string) (Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.computes++
	if h.computeErr != nil {
		return Result{}, h.computeErr
	}
	return Result{Outcome: "natural", Winners: 1}, nil
}

func (h *fakeHooks) FallbackResult(roundID string) Result { return h.fallbackRes }

func (h *fakeHooks) OnSettle(ctx context.Context, roundID string, res Result) (map[string]int64, error) {
	h.mu.Lock()
	h.settles++
	bal := h.balances
	h.mu.Unlock()
	h.settledCh <- struct{}{}
	return bal, nil
}

func (h *fakeHooks) OnEnd(ctx context.Context, roundID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
	return nil
}

func (h *fakeHooks) counts() (creates, locks, computes, settles, ends int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.creates, h.locks, h.computes, h.settles, h.ends
}

func newTestEngine(hooks Hooks, pub Broadcaster, clk clockwork.Clock) *Engine {
	return New(Params{
		Game:    "testgame",
		TableID: "T1",
		Hooks:   hooks,
		Timing: Timing{
			BetWindow:   100 * time.Millisecond,
			ResultDelay: 50 * time.Millisecond,
			EndDelay:    50 * time.Millisecond,
		},
		Pub:   pub,
		Clock: clk,
		Log:   zap.NewNop(),
	})
}

// arma o engine com uma rodada corrente sem rodar o loop
func primeRound(e *Engine, nonce uint64) *roundState {
	st := &roundState{
		nonce:    nonce,
		roundID:  "round-1",
		t0:       e.clock.Now(),
		emitted:  make(map[Phase]bool),
		betsOpen: true,
	}
	e.mu.Lock()
	e.nonce = nonce
	e.cur = st
	e.mu.Unlock()
	return st
}

func TestFirePhaseStaleNonceIsNoop(t *testing.T) {
	hooks := newFakeHooks()
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, clockwork.NewFakeClock())
	primeRound(e, 2)

	// timer remanescente da rodada anterior: nonce 1 contra corrente 2
	e.firePhase(1, PhaseLock)

	_, locks, _, _, _ := hooks.counts()
	assert.Equal(t, 0, locks)
	assert.Equal(t, 0, pub.count(events.TypeRoundLock))
}

func TestFirePhaseIsOneShot(t *testing.T) {
	hooks := newFakeHooks()
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, clockwork.NewFakeClock())
	primeRound(e, 1)

	// reschedule-then-fire: o mesmo timer pode disparar duas vezes,
	// a fase só pode ser emitida uma
	e.firePhase(1, PhaseLock)
	e.firePhase(1, PhaseLock)

	_, locks, _, _, _ := hooks.counts()
	assert.Equal(t, 1, locks)
	assert.Equal(t, 1, pub.count(events.TypeRoundLock))
}

func TestLockClosesBetting(t *testing.T) {
	hooks := newFakeHooks()
	e := newTestEngine(hooks, &fakePub{}, clockwork.NewFakeClock())
	primeRound(e, 1)

	_, open := e.CurrentRound()
	require.True(t, open)

	e.firePhase(1, PhaseLock)

	roundID, open := e.CurrentRound()
	assert.Equal(t, "round-1", roundID)
	assert.False(t, open)
}

func TestEndForcesResultFirst(t *testing.T) {
	hooks := newFakeHooks()
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, clockwork.NewFakeClock())
	primeRound(e, 1)

	// fim disparado com lock e result ainda não emitidos: a cadeia inteira
	// é forçada em ordem em vez de pular fases
	e.firePhase(1, PhaseEnd)

	seq := pub.tableEvents("testgame:T1")
	require.Len(t, seq, 3)
	assert.Equal(t, events.TypeRoundLock, seq[0])
	assert.Equal(t, events.TypeRoundResult, seq[1])
	assert.Equal(t, events.TypeRoundEnd, seq[2])

	select {
	case <-hooks.settledCh:
	case <-time.After(time.Second):
		t.Fatal("settle não foi disparado")
	}
}

func TestResultForcesLockFirst(t *testing.T) {
	hooks := newFakeHooks()
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, clockwork.NewFakeClock())
	primeRound(e, 1)

	// o timer do lock atrasou além do prazo do result: o result força o lock
	// antes de sair, e o timer atrasado vira noop ao chegar
	e.firePhase(1, PhaseResult)
	e.firePhase(1, PhaseLock)

	seq := pub.tableEvents("testgame:T1")
	require.Len(t, seq, 2)
	assert.Equal(t, events.TypeRoundLock, seq[0])
	assert.Equal(t, events.TypeRoundResult, seq[1])

	_, locks, _, _, _ := hooks.counts()
	assert.Equal(t, 1, locks)
}

type fakeTwoPhaseHooks struct {
	*fakeHooks
	lockFirsts int
	reveals    int
}

func (h *fakeTwoPhaseHooks) OnLockFirst(ctx context.Context, roundID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lockFirsts++
	return nil
}

func (h *fakeTwoPhaseHooks) OnReveal(ctx context.Context, roundID string) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reveals++
	return "partial", nil
}

func TestSecondLockForcesRevealChain(t *testing.T) {
	hooks := &fakeTwoPhaseHooks{fakeHooks: newFakeHooks()}
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, clockwork.NewFakeClock())
	primeRound(e, 1)

	// segundo lock disparado antes de lock_a e reveal: a cadeia
	// lock_a < reveal < lock_b é forçada na ordem
	e.firePhase(1, PhaseLock)

	seq := pub.tableEvents("testgame:T1")
	require.Len(t, seq, 3)
	assert.Equal(t, events.TypeRoundLock, seq[0])
	assert.Equal(t, events.TypeRoundReveal, seq[1])
	assert.Equal(t, events.TypeRoundLock, seq[2])

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Equal(t, 1, hooks.lockFirsts)
	assert.Equal(t, 1, hooks.reveals)
}

func TestStopWithoutStartReturns(t *testing.T) {
	e := newTestEngine(newFakeHooks(), &fakePub{}, clockwork.NewFakeClock())

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop bloqueou sem Start")
	}
}

func TestComputeFailureFallsBack(t *testing.T) {
	hooks := newFakeHooks()
	hooks.computeErr = assert.AnError
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, clockwork.NewFakeClock())
	primeRound(e, 1)

	e.firePhase(1, PhaseResult)

	// o resultado saiu mesmo com o hook falhando
	assert.Equal(t, 1, pub.count(events.TypeRoundResult))
	select {
	case <-hooks.settledCh:
	case <-time.After(time.Second):
		t.Fatal("settle não foi disparado")
	}
}

func TestSettleNotifiesBalances(t *testing.T) {
	hooks := newFakeHooks()
	hooks.balances = map[string]int64{"u1": 1200}
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, clockwork.NewFakeClock())
	primeRound(e, 1)

	e.firePhase(1, PhaseResult)
	select {
	case <-hooks.settledCh:
	case <-time.After(time.Second):
		t.Fatal("settle não foi disparado")
	}

	require.Eventually(t, func() bool {
		return pub.count(events.TypeWalletUpd) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSleepUntilDriftCorrection(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := newTestEngine(newFakeHooks(), &fakePub{}, fc)

	done := make(chan bool, 1)
	t0 := fc.Now()
	go func() {
		done <- e.sleepUntil(context.Background(), t0, 100*time.Millisecond)
	}()

	// disparo adiantado: 50ms decorridos ainda estão aquém do alvo além da
	// tolerância, o laço reagenda em vez de prosseguir
	fc.BlockUntil(1)
	fc.Advance(50 * time.Millisecond)

	select {
	case <-done:
		t.Fatal("acordou antes do alvo")
	case <-time.After(20 * time.Millisecond):
	}

	fc.BlockUntil(1)
	fc.Advance(50 * time.Millisecond)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("não acordou no alvo")
	}
}

func TestSleepUntilCanceled(t *testing.T) {
	fc := clockwork.NewFakeClock()
	e := newTestEngine(newFakeHooks(), &fakePub{}, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- e.sleepUntil(ctx, fc.Now(), time.Hour)
	}()

	fc.BlockUntil(1)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("cancelamento não interrompeu o sleep")
	}
}

func TestFullRoundLifecycle(t *testing.T) {
	fc := clockwork.NewFakeClock()
	hooks := newFakeHooks()
	pub := &fakePub{}
	e := newTestEngine(hooks, pub, fc)

	e.Start()
	defer e.Stop()

	// três timers armados sincronamente na largada: lock, result e o próprio
	// loop dormindo até o fim
	fc.BlockUntil(3)

	roundID, open := e.CurrentRound()
	require.Equal(t, "round-1", roundID)
	require.True(t, open)

	// o broadcast do open é assíncrono: espera ele sair antes de avançar
	require.Eventually(t, func() bool {
		return pub.count(events.TypeRoundStart) == 1
	}, time.Second, time.Millisecond)

	fc.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool {
		return pub.count(events.TypeRoundLock) == 1
	}, time.Second, time.Millisecond)

	_, open = e.CurrentRound()
	assert.False(t, open)

	fc.Advance(50 * time.Millisecond)
	require.Eventually(t, func() bool {
		return pub.count(events.TypeRoundResult) == 1
	}, time.Second, time.Millisecond)

	select {
	case <-hooks.settledCh:
	case <-time.After(time.Second):
		t.Fatal("settle não foi disparado")
	}

	fc.Advance(50 * time.Millisecond)
	require.Eventually(t, func() bool {
		return pub.count(events.TypeRoundEnd) == 1
	}, time.Second, time.Millisecond)

	// a rodada seguinte nasce sozinha
	require.Eventually(t, func() bool {
		creates, _, _, _, _ := hooks.counts()
		return creates >= 2
	}, time.Second, time.Millisecond)

	// ordem dos broadcasts da mesa: open < lock < result < end
	seq := pub.tableEvents("testgame:T1")
	idx := map[string]int{}
	for i, ev := range seq {
		if _, seen := idx[ev]; !seen {
			idx[ev] = i
		}
	}
	assert.Less(t, idx[events.TypeRoundStart], idx[events.TypeRoundLock])
	assert.Less(t, idx[events.TypeRoundLock], idx[events.TypeRoundResult])
	assert.Less(t, idx[events.TypeRoundResult], idx[events.TypeRoundEnd])
}
