// Package engine implementa o ciclo de vida das rodadas: uma goroutine por
// mesa dirige a cadência OPEN -> LOCKED -> RESULT -> END indefinidamente,
// com timers ancorados em t0 monotônico, correção de drift, invalidação por
// nonce e guardas one-shot por fase. Os jogos plugam via interface Hooks.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/shared/metrics"
	"github.com/radieske/live-casino-platform/pkg/contracts/events"
)

type Phase string

const (
	PhaseOpen   Phase = "open"
	PhaseLockA  Phase = "lock_a"
	PhaseReveal Phase = "reveal"
	PhaseLock   Phase = "lock"
	PhaseResult Phase = "result"
	PhaseEnd    Phase = "end"
)

// Result é o desfecho final calculado para uma rodada
type Result struct {
	Outcome interface{}
	Winners int
	Losers  int
}

// RoundInfo é o retorno da criação de rodada: id persistido e os últimos
// resultados da mesa para o payload de round:start
type RoundInfo struct {
	RoundID string
	Recent  []json.RawMessage
}

// Hooks é o contrato que cada jogo implementa. Erros devolvidos pelos hooks
// nunca escapam para o loop de agendamento: são contidos, logados e o engine
// segue com um fallback seguro.
type Hooks interface {
	// OnCreateRound persiste a rodada; o engine tenta de novo com backoff em falha
	OnCreateRound(ctx context.Context, startAt, betsCloseAt, resultAt time.Time) (*RoundInfo, error)
	// OnLock persiste o LOCKED e tipicamente calcula e guarda o viés por roundID
	OnLock(ctx context.Context, roundID string) error
	// OnComputeResult devolve o resultado final; deve usar o viés em cache se houver
	OnComputeResult(ctx context.Context, roundID string) (Result, error)
	// FallbackResult produz um resultado neutro quando OnComputeResult falha —
	// a rodada sempre termina
	FallbackResult(roundID string) Result
	// OnSettle aplica a liquidação no ledger; devolve os saldos pós-crédito
	// por usuário para as notificações wallet:update
	OnSettle(ctx context.Context, roundID string, res Result) (map[string]int64, error)
	// OnEnd libera o estado por rodada em memória
	OnEnd(ctx context.Context, roundID string) error
}

// TwoPhaseHooks estende Hooks para jogos com revelação intermediária:
// BETTING_A -> LOCKED_A -> REVEAL -> BETTING_B -> LOCKED_B -> RESULT -> END
type TwoPhaseHooks interface {
	Hooks
	OnLockFirst(ctx context.Context, roundID string) error
	OnReveal(ctx context.Context, roundID string) (interface{}, error)
}

// Broadcaster publica eventos de fase no canal da mesa (e nos canais privados)
type Broadcaster interface {
	Publish(channel, event string, payload interface{})
}

// Presence informa quantos clientes assistem um canal; pode ser nil
type Presence interface {
	Viewers(channel string) int
}

// Params agrupa as dependências de um engine de mesa
type Params struct {
	Game     string
	TableID  string
	Hooks    Hooks
	Timing   Timing
	Pub      Broadcaster
	Presence Presence
	Clock    clockwork.Clock // nil => relógio real
	Log      *zap.Logger
}

type Engine struct {
	game    string
	tableID string
	channel string
	hooks   Hooks
	timing  Timing
	clock   clockwork.Clock
	log     *zap.Logger
	pub     Broadcaster
	pres    Presence

	mu    sync.Mutex
	nonce uint64
	cur   *roundState

	cancel context.CancelFunc
	done   chan struct{}
}

// roundState é a referência transiente da rodada corrente: id + flags de
// fase. Todo estado durável vive no ledger.
type roundState struct {
	nonce       uint64
	roundID     string
	t0          time.Time
	emitted     map[Phase]bool
	betsOpen    bool
	betsCloseAt time.Time
	resultAt    time.Time
}

func New(p Params) *Engine {
	clk := p.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	t := p.Timing.withDefaults()
	return &Engine{
		game:    p.Game,
		tableID: p.TableID,
		channel: p.Game + ":" + p.TableID,
		hooks:   p.Hooks,
		timing:  t,
		clock:   clk,
		log:     p.Log.With(zap.String("game", p.Game), zap.String("table", p.TableID)),
		pub:     p.Pub,
		pres:    p.Presence,
		done:    make(chan struct{}),
	}
}

// Channel é o canal pub/sub da mesa ("game:tableId")
func (e *Engine) Channel() string { return e.channel }

// Start dispara o loop de rodadas em uma goroutine própria — a única que
// escreve o estado de fase desta mesa
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.run(ctx)
}

// Stop cancela os timers pendentes e interrompe a criação de novas rodadas.
// Liquidações já despachadas seguem até o fim (fire-and-forget tolerado).
// Sem Start prévio é noop.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// CurrentRound devolve o id da rodada corrente e se ela aceita apostas
func (e *Engine) CurrentRound() (roundID string, open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return "", false
	}
	return e.cur.roundID, e.cur.betsOpen
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for ctx.Err() == nil {
		e.runRound(ctx)
	}
}

func (e *Engine) runRound(ctx context.Context) {
	offs := e.timing.offsets(e.twoPhase())

	info, t0, err := e.createRoundWithRetry(ctx, offs)
	if err != nil {
		return // só em cancelamento
	}

	e.mu.Lock()
	// o incremento do nonce é o ponto de linearização: invalida todo timer
	// remanescente da rodada anterior
	e.nonce++
	nonce := e.nonce
	st := &roundState{
		nonce:       nonce,
		roundID:     info.RoundID,
		t0:          t0,
		emitted:     make(map[Phase]bool),
		betsOpen:    true,
		betsCloseAt: t0.Add(offs.firstLock()),
		resultAt:    t0.Add(offs.result),
	}
	e.cur = st
	e.mu.Unlock()

	metrics.RoundsStarted.WithLabelValues(e.game, e.tableID).Inc()

	// broadcast do open não atrasa o armamento dos timers
	go e.broadcastStart(st, info)

	// timers de todas as fases armados sincronamente contra t0; a persistência
	// de cada fase corre em paralelo com os timers futuros já armados
	if e.twoPhase() {
		go e.waitAndFire(ctx, nonce, t0, offs.lockA, PhaseLockA)
		go e.waitAndFire(ctx, nonce, t0, offs.reveal, PhaseReveal)
	}
	go e.waitAndFire(ctx, nonce, t0, offs.lock, PhaseLock)
	go e.waitAndFire(ctx, nonce, t0, offs.result, PhaseResult)

	// o próprio loop é o timer do fim da rodada
	if !e.sleepUntil(ctx, t0, offs.end) {
		return
	}
	e.firePhase(nonce, PhaseEnd)
}

func (e *Engine) twoPhase() bool {
	_, ok := e.hooks.(TwoPhaseHooks)
	return ok
}

// createRoundWithRetry insiste na criação com backoff limitado: timers nunca
// são armados contra uma rodada inexistente
func (e *Engine) createRoundWithRetry(ctx context.Context, offs phaseOffsets) (*RoundInfo, time.Time, error) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		t0 := e.clock.Now()
		info, err := e.hooks.OnCreateRound(ctx, t0, t0.Add(offs.firstLock()), t0.Add(offs.result))
		if err == nil && info != nil {
			return info, t0, nil
		}
		e.log.Warn("round creation failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))

		timer := e.clock.NewTimer(backoff)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			stopAndDrain(timer)
			return nil, time.Time{}, ctx.Err()
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (e *Engine) broadcastStart(st *roundState, info *RoundInfo) {
	viewers := 0
	if e.pres != nil {
		viewers = e.pres.Viewers(e.channel)
	}
	e.pub.Publish(e.channel, events.TypeRoundStart, events.RoundStart{
		RoundID:       st.roundID,
		Game:          e.game,
		TableID:       e.tableID,
		StartAt:       st.t0,
		BetsCloseAt:   st.betsCloseAt,
		ResultAt:      st.resultAt,
		Viewers:       viewers,
		RecentResults: info.Recent,
	})
}

func (e *Engine) waitAndFire(ctx context.Context, nonce uint64, t0 time.Time, target time.Duration, phase Phase) {
	if !e.sleepUntil(ctx, t0, target) {
		return
	}
	e.firePhase(nonce, phase)
}

// phaseChain é a ordem canônica das fases disparadas por timer nesta mesa
func (e *Engine) phaseChain() []Phase {
	if e.twoPhase() {
		return []Phase{PhaseLockA, PhaseReveal, PhaseLock, PhaseResult, PhaseEnd}
	}
	return []Phase{PhaseLock, PhaseResult, PhaseEnd}
}

// firePhase aplica as duas guardas antes de qualquer efeito: o nonce capturado
// precisa ser o corrente (senão o timer pertence a uma rodada superada) e a
// fase não pode ter sido emitida (reschedule-then-fire não duplica broadcast).
func (e *Engine) firePhase(nonce uint64, phase Phase) {
	e.mu.Lock()
	st := e.cur
	if st == nil || st.nonce != nonce || e.nonce != nonce {
		e.mu.Unlock()
		return // timer obsoleto: sai sem efeitos colaterais
	}
	if st.emitted[phase] {
		e.mu.Unlock()
		return
	}
	// ordem dentro da rodada garantida encadeando as guardas one-shot: toda
	// fase anterior ainda pendente é forçada antes desta. A goroutine de um
	// timer atrasado encontra a própria fase já emitida e vira noop.
	for _, prev := range e.phaseChain() {
		if prev == phase {
			break
		}
		if !st.emitted[prev] {
			e.mu.Unlock()
			e.firePhase(nonce, prev)
			e.firePhase(nonce, phase)
			return
		}
	}
	st.emitted[phase] = true
	switch phase {
	case PhaseLockA, PhaseLock:
		st.betsOpen = false
	case PhaseReveal:
		st.betsOpen = true
	}
	roundID := st.roundID
	e.mu.Unlock()

	e.runPhase(phase, roundID, st)
}

// runPhase invoca o hook da fase com contenção de erro e publica o evento.
// Usa contexto próprio: o Stop() não cancela trabalho já disparado.
func (e *Engine) runPhase(phase Phase, roundID string, st *roundState) {
	ctx := context.Background()

	switch phase {
	case PhaseLockA:
		two := e.hooks.(TwoPhaseHooks)
		if err := two.OnLockFirst(ctx, roundID); err != nil {
			e.log.Error("lock_a hook failed", zap.String("round", roundID), zap.Error(err))
		}
		e.pub.Publish(e.channel, events.TypeRoundLock, events.RoundLock{RoundID: roundID, Phase: "A"})

	case PhaseReveal:
		two := e.hooks.(TwoPhaseHooks)
		payload, err := two.OnReveal(ctx, roundID)
		if err != nil {
			// campo degradado em vez de travar a mesa
			e.log.Error("reveal hook failed", zap.String("round", roundID), zap.Error(err))
			payload = nil
		}
		e.pub.Publish(e.channel, events.TypeRoundReveal, events.RoundReveal{RoundID: roundID, Payload: payload})

	case PhaseLock:
		if err := e.hooks.OnLock(ctx, roundID); err != nil {
			e.log.Error("lock hook failed", zap.String("round", roundID), zap.Error(err))
		}
		lock := events.RoundLock{RoundID: roundID}
		if e.twoPhase() {
			lock.Phase = "B"
		}
		e.pub.Publish(e.channel, events.TypeRoundLock, lock)

	case PhaseResult:
		res, err := e.hooks.OnComputeResult(ctx, roundID)
		if err != nil {
			e.log.Warn("compute result failed, using fallback", zap.String("round", roundID), zap.Error(err))
			res = e.hooks.FallbackResult(roundID)
		}
		e.pub.Publish(e.channel, events.TypeRoundResult, events.RoundResult{
			RoundID: roundID,
			Outcome: res.Outcome,
			Winners: res.Winners,
			Losers:  res.Losers,
		})
		// liquidação assíncrona: clientes veem o resultado antes de ela terminar
		go e.settle(roundID, res)

	case PhaseEnd:
		if err := e.hooks.OnEnd(ctx, roundID); err != nil {
			e.log.Error("end hook failed", zap.String("round", roundID), zap.Error(err))
			metrics.SettlementFailures.WithLabelValues("end").Inc()
		}
		e.pub.Publish(e.channel, events.TypeRoundEnd, events.RoundEnd{RoundID: roundID})
	}
}

// settle aplica a liquidação e notifica os saldos; falhas ficam observáveis
// por log e métrica — reconciliação é externa, o engine não re-tenta
func (e *Engine) settle(roundID string, res Result) {
	balances, err := e.hooks.OnSettle(context.Background(), roundID, res)
	if err != nil {
		e.log.Error("settlement failed", zap.String("round", roundID), zap.Error(err))
		metrics.SettlementFailures.WithLabelValues("settle").Inc()
		return
	}
	metrics.RoundsSettled.WithLabelValues(e.game, e.tableID).Inc()
	for userID, bal := range balances {
		e.pub.Publish("user:"+userID, events.TypeWalletUpd, events.WalletUpdate{UserID: userID, BalanceCents: bal})
	}
}
