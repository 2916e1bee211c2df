// Package bias implementa a seleção de resultado que minimiza o risco da
// casa: dado o livro de apostas abertas de uma rodada, escolhe um resultado
// do espaço natural do jogo que evite pagar o mercado de maior exposição.
// É uma heurística sobre uma fonte pseudo-aleatória, não um RNG auditável.
package bias

import (
	"math/rand"
	"strings"

	"github.com/radieske/live-casino-platform/internal/ledger"
)

// Exposure agrega o stake por chave canônica de mercado preservando a ordem
// de primeira aparição, que é o critério de desempate do argmax
type Exposure struct {
	stakes map[string]int64
	order  []string
}

// Aggregate soma o stake por mercado das apostas ainda abertas
func Aggregate(bets []ledger.Bet) Exposure {
	e := Exposure{stakes: make(map[string]int64)}
	for _, b := range bets {
		if b.Status.Terminal() {
			continue
		}
		key := strings.ToUpper(b.MarketKey())
		if _, ok := e.stakes[key]; !ok {
			e.order = append(e.order, key)
		}
		e.stakes[key] += b.StakeCents
	}
	return e
}

// Stake retorna a exposição acumulada de um mercado
func (e Exposure) Stake(market string) int64 {
	return e.stakes[strings.ToUpper(market)]
}

// Empty informa se não há exposição registrada
func (e Exposure) Empty() bool { return len(e.order) == 0 }

// Worst devolve o mercado de maior exposição; empates resolvem pela ordem de
// primeira aparição no livro
func (e Exposure) Worst() (string, bool) {
	if len(e.order) == 0 {
		return "", false
	}
	worst := e.order[0]
	for _, key := range e.order[1:] {
		if e.stakes[key] > e.stakes[worst] {
			worst = key
		}
	}
	return worst, true
}

// Pick sorteia um resultado do espaço filtrado: exclui os resultados em que o
// predicado wins é verdadeiro (o mercado exposto pagaria). Se o filtro esvazia
// o espaço — todo resultado pagaria — cai para o espaço completo: a casa não
// tem como escapar e o sorteio volta a ser uniforme.
func Pick[T any](rng *rand.Rand, space []T, wins func(T) bool) T {
	if wins == nil {
		return space[rng.Intn(len(space))]
	}

	filtered := make([]T, 0, len(space))
	for _, o := range space {
		if !wins(o) {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		filtered = space
	}
	return filtered[rng.Intn(len(filtered))]
}

// PickAgainstWorst combina os passos: agrega a exposição, acha o pior mercado
// e sorteia evitando-o. Sem apostas, o sorteio é uniforme no espaço completo.
// predFor traduz a chave de mercado no predicado de vitória correspondente.
func PickAgainstWorst[T any](rng *rand.Rand, space []T, bets []ledger.Bet, predFor func(market string) func(T) bool) T {
	exp := Aggregate(bets)
	worst, ok := exp.Worst()
	if !ok {
		return Pick(rng, space, nil)
	}
	return Pick(rng, space, predFor(worst))
}
