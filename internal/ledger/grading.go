package ledger

import "github.com/shopspring/decimal"

// Grade é o desfecho de uma aposta individual
type Grade struct {
	Status      BetStatus
	PayoutCents int64
}

// Grader aplica a regra de pagamento do jogo a uma aposta
type Grader func(Bet) Grade

// GradedBet junta a aposta ao seu desfecho calculado
type GradedBet struct {
	Bet   Bet
	Grade Grade
}

// GradeBets aplica o grader a cada aposta aberta e acumula o resumo.
// Função pura: nenhum acesso a banco, testável isolada da transação.
func GradeBets(bets []Bet, grade Grader) ([]GradedBet, Summary) {
	out := make([]GradedBet, 0, len(bets))
	sum := Summary{Balances: make(map[string]int64)}

	for _, b := range bets {
		g := grade(b)
		switch g.Status {
		case BetWon:
			sum.Winners++
		case BetLost:
			sum.Losers++
		case BetVoid:
			sum.Pushes++
		default:
			// grader só pode devolver status terminal; qualquer outra coisa vira LOST sem pagamento
			g = Grade{Status: BetLost}
			sum.Losers++
		}
		sum.TotalPayoutCents += g.PayoutCents
		out = append(out, GradedBet{Bet: b, Grade: g})
	}

	return out, sum
}

// WinPayoutCents calcula stake × odd em aritmética decimal, arredondando
// para baixo no centavo (política da casa para esportivas)
func WinPayoutCents(stakeCents int64, odd float64) int64 {
	stake := decimal.NewFromInt(stakeCents)
	return stake.Mul(decimal.NewFromFloat(odd)).IntPart()
}

// VoidRefundCents devolve o stake menos a fração retida em basis points
func VoidRefundCents(stakeCents int64, forfeitBps int64) int64 {
	if forfeitBps <= 0 {
		return stakeCents
	}
	stake := decimal.NewFromInt(stakeCents)
	kept := decimal.NewFromInt(10000 - forfeitBps).Div(decimal.NewFromInt(10000))
	return stake.Mul(kept).IntPart()
}
