package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/shared/metrics"
	"github.com/radieske/live-casino-platform/pkg/contracts/events"
)

// CrashDriver é o contrato do jogo contínuo: em vez de fases discretas, um
// valor cresce a cada tick até um dos dois gatilhos de parada vencer a
// corrida — a duração alvo sorteada na largada ou a checagem de risco.
type CrashDriver interface {
	OnCreateRound(ctx context.Context, startAt, betsCloseAt time.Time) (*RoundInfo, error)
	OnLock(ctx context.Context, roundID string) error
	// Multiplier é a curva do jogo em função do tempo de voo
	Multiplier(elapsed time.Duration) float64
	// TargetDuration sorteia a duração alvo dentro da faixa configurada
	TargetDuration(rng *rand.Rand) time.Duration
	// InLossTerritory consulta o ledger: a casa já pagaria mais do que arrecadou?
	InLossTerritory(ctx context.Context, roundID string, multiplier float64) (bool, error)
	// OnStop persiste o valor final como outcome e liquida; devolve os saldos
	// pós-crédito por usuário
	OnStop(ctx context.Context, roundID string, final float64, reason string) (map[string]int64, error)
	OnEnd(ctx context.Context, roundID string) error
}

// CrashParams agrupa as dependências do engine contínuo
type CrashParams struct {
	Game      string
	TableID   string
	Driver    CrashDriver
	BetWindow time.Duration
	Tick      time.Duration
	RiskTick  time.Duration
	Cooldown  time.Duration
	Tolerance time.Duration
	Seed      int64 // 0 => semeia pelo relógio
	Pub       Broadcaster
	Presence  Presence
	Clock     clockwork.Clock
	Log       *zap.Logger
}

type CrashEngine struct {
	game    string
	tableID string
	channel string
	driver  CrashDriver
	p       CrashParams
	clock   clockwork.Clock
	log     *zap.Logger
	pub     Broadcaster
	pres    Presence
	rng     *rand.Rand

	mu    sync.Mutex
	nonce uint64
	cur   *crashRound

	cancel context.CancelFunc
	done   chan struct{}
}

type crashRound struct {
	nonce    uint64
	roundID  string
	t0       time.Time
	betsOpen bool
	stopped  bool
	final    float64
	reason   string
}

func NewCrash(p CrashParams) *CrashEngine {
	clk := p.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if p.Tolerance <= 0 {
		p.Tolerance = 25 * time.Millisecond
	}
	seed := p.Seed
	if seed == 0 {
		seed = clk.Now().UnixNano()
	}
	return &CrashEngine{
		game:    p.Game,
		tableID: p.TableID,
		channel: p.Game + ":" + p.TableID,
		driver:  p.Driver,
		p:       p,
		clock:   clk,
		log:     p.Log.With(zap.String("game", p.Game), zap.String("table", p.TableID)),
		pub:     p.Pub,
		pres:    p.Presence,
		rng:     rand.New(rand.NewSource(seed)),
		done:    make(chan struct{}),
	}
}

func (c *CrashEngine) Channel() string { return c.channel }

func (c *CrashEngine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Stop é noop sem Start prévio
func (c *CrashEngine) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *CrashEngine) CurrentRound() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return "", false
	}
	return c.cur.roundID, c.cur.betsOpen
}

func (c *CrashEngine) run(ctx context.Context) {
	defer close(c.done)
	for ctx.Err() == nil {
		c.runRound(ctx)
	}
}

func (c *CrashEngine) runRound(ctx context.Context) {
	info, t0, err := c.createRoundWithRetry(ctx)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.nonce++
	nonce := c.nonce
	st := &crashRound{nonce: nonce, roundID: info.RoundID, t0: t0, betsOpen: true}
	c.cur = st
	// a duração alvo é pré-sorteada na largada, nunca durante o voo
	target := c.driver.TargetDuration(c.rng)
	c.mu.Unlock()

	metrics.RoundsStarted.WithLabelValues(c.game, c.tableID).Inc()

	viewers := 0
	if c.pres != nil {
		viewers = c.pres.Viewers(c.channel)
	}
	betsCloseAt := t0.Add(c.p.BetWindow)
	go c.pub.Publish(c.channel, events.TypeRoundStart, events.RoundStart{
		RoundID:       st.roundID,
		Game:          c.game,
		TableID:       c.tableID,
		StartAt:       t0,
		BetsCloseAt:   betsCloseAt,
		ResultAt:      betsCloseAt, // o término do jogo contínuo não tem horário previsto
		Viewers:       viewers,
		RecentResults: info.Recent,
	})

	if !c.sleepUntil(ctx, t0, c.p.BetWindow) {
		return
	}

	c.mu.Lock()
	st.betsOpen = false
	c.mu.Unlock()
	if err := c.driver.OnLock(context.Background(), st.roundID); err != nil {
		c.log.Error("crash lock failed", zap.String("round", st.roundID), zap.Error(err))
	}
	c.pub.Publish(c.channel, events.TypeRoundLock, events.RoundLock{RoundID: st.roundID})

	runStart := c.clock.Now()
	riskCtx, cancelRisk := context.WithCancel(ctx)
	go c.riskLoop(riskCtx, nonce, st.roundID, runStart)
	c.tickLoop(ctx, nonce, runStart, target)
	cancelRisk()

	if ctx.Err() != nil {
		return
	}

	if err := c.driver.OnEnd(context.Background(), st.roundID); err != nil {
		c.log.Error("crash end failed", zap.String("round", st.roundID), zap.Error(err))
	}
	c.pub.Publish(c.channel, events.TypeRoundEnd, events.RoundEnd{RoundID: st.roundID})

	// cooldown fixo antes da próxima largada
	c.sleepUntil(ctx, c.clock.Now(), c.p.Cooldown)
}

func (c *CrashEngine) createRoundWithRetry(ctx context.Context) (*RoundInfo, time.Time, error) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 5 * time.Second
	for {
		t0 := c.clock.Now()
		info, err := c.driver.OnCreateRound(ctx, t0, t0.Add(c.p.BetWindow))
		if err == nil && info != nil {
			return info, t0, nil
		}
		c.log.Warn("crash round creation failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
		timer := c.clock.NewTimer(backoff)
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

// tickLoop difunde o multiplicador no cadência fixa até a parada
func (c *CrashEngine) tickLoop(ctx context.Context, nonce uint64, runStart time.Time, target time.Duration) {
	ticker := c.clock.NewTicker(c.p.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		if c.stopped(nonce) {
			return
		}

		elapsed := c.clock.Since(runStart)
		if elapsed >= target {
			c.stop(nonce, "target", target)
			return
		}

		c.mu.Lock()
		roundID := ""
		if c.cur != nil && c.cur.nonce == nonce {
			roundID = c.cur.roundID
		}
		c.mu.Unlock()
		if roundID == "" {
			return
		}
		c.pub.Publish(c.channel, events.TypeCrashTick, events.CrashTick{
			RoundID:    roundID,
			Multiplier: c.driver.Multiplier(elapsed),
		})
	}
}

// riskLoop roda em cadência própria: consulta a exposição no ledger e força a
// parada imediata quando a casa já está em território de prejuízo
func (c *CrashEngine) riskLoop(ctx context.Context, nonce uint64, roundID string, runStart time.Time) {
	ticker := c.clock.NewTicker(c.p.RiskTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		if c.stopped(nonce) {
			return
		}

		elapsed := c.clock.Since(runStart)
		m := c.driver.Multiplier(elapsed)
		loss, err := c.driver.InLossTerritory(ctx, roundID, m)
		if err != nil {
			c.log.Warn("risk check failed", zap.String("round", roundID), zap.Error(err))
			continue
		}
		if loss {
			metrics.CrashRiskStops.Inc()
			c.stop(nonce, "risk", elapsed)
			return
		}
	}
}

func (c *CrashEngine) stopped(nonce uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur == nil || c.cur.nonce != nonce || c.cur.stopped
}

// stop é o guard one-shot compartilhado pelos dois gatilhos: só o primeiro
// vencedor da corrida aplica efeitos
func (c *CrashEngine) stop(nonce uint64, reason string, elapsed time.Duration) {
	c.mu.Lock()
	st := c.cur
	if st == nil || st.nonce != nonce || st.stopped {
		c.mu.Unlock()
		return
	}
	st.stopped = true
	st.reason = reason
	st.final = c.driver.Multiplier(elapsed)
	roundID := st.roundID
	final := st.final
	c.mu.Unlock()

	c.pub.Publish(c.channel, events.TypeCrashStop, events.CrashStop{
		RoundID:    roundID,
		Multiplier: final,
		Reason:     reason,
	})

	// liquidação assíncrona em relação ao broadcast da parada
	go func() {
		balances, err := c.driver.OnStop(context.Background(), roundID, final, reason)
		if err != nil {
			c.log.Error("crash settlement failed", zap.String("round", roundID), zap.Error(err))
			metrics.SettlementFailures.WithLabelValues("settle").Inc()
			return
		}
		metrics.RoundsSettled.WithLabelValues(c.game, c.tableID).Inc()
		for userID, bal := range balances {
			c.pub.Publish("user:"+userID, events.TypeWalletUpd, events.WalletUpdate{UserID: userID, BalanceCents: bal})
		}
	}()
}

// sleepUntil replica a correção de drift do engine discreto
func (c *CrashEngine) sleepUntil(ctx context.Context, t0 time.Time, target time.Duration) bool {
	for {
		elapsed := c.clock.Since(t0)
		if elapsed+c.p.Tolerance >= target {
			return ctx.Err() == nil
		}
		timer := c.clock.NewTimer(target - elapsed)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			stopAndDrain(timer)
			return false
		}
	}
}
