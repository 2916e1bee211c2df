package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timing define os offsets de fase de uma mesa, todos relativos ao t0 da
// rodada. RevealDelay/SecondWindow só valem para jogos de duas fases.
type Timing struct {
	BetWindow    time.Duration // open -> lock (ou lock_a)
	RevealDelay  time.Duration // lock_a -> reveal
	SecondWindow time.Duration // reveal -> lock_b
	ResultDelay  time.Duration // lock final -> result
	EndDelay     time.Duration // result -> end (janela de exibição)
	Tolerance    time.Duration // disparo adiantado aceito sem reagendar
}

func (t Timing) withDefaults() Timing {
	if t.Tolerance <= 0 {
		t.Tolerance = 25 * time.Millisecond
	}
	return t
}

// phaseOffsets materializa os deadlines absolutos (como offsets de t0)
type phaseOffsets struct {
	lockA  time.Duration
	reveal time.Duration
	lock   time.Duration
	result time.Duration
	end    time.Duration
	two    bool
}

func (t Timing) offsets(twoPhase bool) phaseOffsets {
	o := phaseOffsets{two: twoPhase}
	if twoPhase {
		o.lockA = t.BetWindow
		o.reveal = o.lockA + t.RevealDelay
		o.lock = o.reveal + t.SecondWindow
	} else {
		o.lock = t.BetWindow
	}
	o.result = o.lock + t.ResultDelay
	o.end = o.result + t.EndDelay
	return o
}

// firstLock é o primeiro fechamento de apostas da rodada
func (o phaseOffsets) firstLock() time.Duration {
	if o.two {
		return o.lockA
	}
	return o.lock
}

// sleepUntil dorme até t0+target com correção de drift: enquanto o decorrido
// estiver aquém do alvo além da tolerância, dorme a diferença restante — um
// disparo adiantado do scheduler reagenda em vez de prosseguir, limitando o
// desvio visível ao cliente à janela de tolerância.
func (e *Engine) sleepUntil(ctx context.Context, t0 time.Time, target time.Duration) bool {
	for {
		elapsed := e.clock.Since(t0)
		if elapsed+e.timing.Tolerance >= target {
			return ctx.Err() == nil
		}
		timer := e.clock.NewTimer(target - elapsed)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			stopAndDrain(timer)
			return false
		}
	}
}

// stopAndDrain para o timer e esvazia o canal para não vazar goroutine
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
