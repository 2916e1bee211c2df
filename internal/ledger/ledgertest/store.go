// Package ledgertest fornece um ledger em memória com a mesma semântica do
// Postgres — débito condicional, liquidação idempotente, extrato append-only —
// para os testes dos jogos e engines que não querem um banco de pé
package ledgertest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/live-casino-platform/internal/ledger"
)

type Store struct {
	mu             sync.Mutex
	VoidForfeitBps int64

	balances map[string]int64
	entries  map[string][]ledger.Entry
	bets     map[string]*ledger.Bet
	rounds   map[string]*ledger.Round
	deposits map[string]map[string]struct{} // refs de depósito aplicados por usuário
	order    []string                       // ids de apostas em ordem de criação
	settled  []string                       // ids de rodadas liquidadas em ordem
}

func New() *Store {
	return &Store{
		balances: make(map[string]int64),
		entries:  make(map[string][]ledger.Entry),
		bets:     make(map[string]*ledger.Bet),
		rounds:   make(map[string]*ledger.Round),
		deposits: make(map[string]map[string]struct{}),
	}
}

func (s *Store) GetOrCreateWallet(ctx context.Context, userID string) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = 0
	}
	return "wallet-" + userID, s.balances[userID], nil
}

func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[userID]
	if !ok {
		return 0, ledger.ErrNotFound
	}
	return bal, nil
}

func (s *Store) Deposit(ctx context.Context, userID string, amount int64, externalRef string) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if externalRef != "" {
		if _, ok := s.deposits[userID][externalRef]; ok {
			// replay: devolve o saldo corrente sem creditar de novo
			return "wallet-" + userID, s.balances[userID], nil
		}
		if s.deposits[userID] == nil {
			s.deposits[userID] = make(map[string]struct{})
		}
		s.deposits[userID][externalRef] = struct{}{}
	}
	s.balances[userID] += amount
	s.append(userID, "DEPOSIT", amount, "deposit:"+externalRef)
	return "wallet-" + userID, s.balances[userID], nil
}

func (s *Store) PlaceBet(ctx context.Context, b *ledger.Bet) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.StakeCents <= 0 {
		return "", 0, ledger.ErrInsufficientFunds
	}
	bal, ok := s.balances[b.UserID]
	if !ok {
		return "", 0, ledger.ErrNotFound
	}
	if bal < b.StakeCents {
		return "", 0, ledger.ErrInsufficientFunds
	}

	s.balances[b.UserID] = bal - b.StakeCents
	stored := *b
	stored.ID = uuid.NewString()
	stored.Market = strings.ToUpper(b.Market)
	stored.Selection = strings.ToUpper(b.Selection)
	stored.Status = ledger.BetOpen
	s.bets[stored.ID] = &stored
	s.order = append(s.order, stored.ID)
	s.append(b.UserID, "BET_PLACE", -b.StakeCents, "bet:"+stored.ID)
	return stored.ID, s.balances[b.UserID], nil
}

func (s *Store) CreateRound(ctx context.Context, r *ledger.Round) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *r
	stored.ID = uuid.NewString()
	stored.Status = ledger.RoundOpen
	s.rounds[stored.ID] = &stored
	return stored.ID, nil
}

func (s *Store) LockRound(ctx context.Context, roundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return ledger.ErrRoundNotFound
	}
	if r.Status == ledger.RoundOpen {
		r.Status = ledger.RoundLocked
	}
	for _, id := range s.order {
		b := s.bets[id]
		if b.RoundID == roundID && b.Status == ledger.BetOpen {
			b.Status = ledger.BetLocked
		}
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, roundID string) (*ledger.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, ledger.ErrRoundNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) OpenBetsForRound(ctx context.Context, roundID string) ([]ledger.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Bet
	for _, id := range s.order {
		b := s.bets[id]
		if b.RoundID == roundID && b.Kind == ledger.KindCasino && !b.Status.Terminal() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *Store) SettleRound(ctx context.Context, roundID string, outcome []byte, grade ledger.Grader) (*ledger.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, ledger.ErrRoundNotFound
	}
	if r.Status == ledger.RoundSettled {
		stored := r.Summary
		stored.Replayed = true
		stored.Balances = map[string]int64{}
		return &stored, nil
	}

	var open []ledger.Bet
	for _, id := range s.order {
		b := s.bets[id]
		if b.RoundID == roundID && b.Kind == ledger.KindCasino && !b.Status.Terminal() {
			open = append(open, *b)
		}
	}

	graded, sum := ledger.GradeBets(open, grade)
	for _, g := range graded {
		b := s.bets[g.Bet.ID]
		if b.Status.Terminal() {
			continue
		}
		b.Status = g.Grade.Status
		b.PayoutCents = g.Grade.PayoutCents
		if g.Grade.PayoutCents > 0 {
			op := "PAYOUT"
			if g.Grade.Status == ledger.BetVoid {
				op = "REFUND"
			}
			s.balances[b.UserID] += g.Grade.PayoutCents
			s.append(b.UserID, op, g.Grade.PayoutCents, strings.ToLower(op)+":"+b.ID)
			sum.Balances[b.UserID] = s.balances[b.UserID]
		}
	}

	r.Status = ledger.RoundSettled
	r.Outcome = json.RawMessage(outcome)
	r.Summary = sum
	s.settled = append(s.settled, roundID)
	return &sum, nil
}

func (s *Store) SettleExternalEvent(ctx context.Context, eventID string, winning *string) (*ledger.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []ledger.Bet
	for _, id := range s.order {
		b := s.bets[id]
		if b.EventID == eventID && b.Kind == ledger.KindSports && b.Status == ledger.BetOpen {
			open = append(open, *b)
		}
	}
	if len(open) == 0 {
		return &ledger.Summary{Replayed: true, Balances: map[string]int64{}}, nil
	}

	var sel string
	if winning != nil {
		sel = strings.ToUpper(*winning)
	}
	graded, sum := ledger.GradeBets(open, func(b ledger.Bet) ledger.Grade {
		if winning == nil {
			return ledger.Grade{Status: ledger.BetVoid, PayoutCents: ledger.VoidRefundCents(b.StakeCents, s.VoidForfeitBps)}
		}
		if b.Selection == sel {
			return ledger.Grade{Status: ledger.BetWon, PayoutCents: ledger.WinPayoutCents(b.StakeCents, b.OddValue)}
		}
		return ledger.Grade{Status: ledger.BetLost}
	})

	for _, g := range graded {
		b := s.bets[g.Bet.ID]
		b.Status = g.Grade.Status
		b.PayoutCents = g.Grade.PayoutCents
		if g.Grade.PayoutCents > 0 {
			op := "PAYOUT"
			if g.Grade.Status == ledger.BetVoid {
				op = "REFUND"
			}
			s.balances[b.UserID] += g.Grade.PayoutCents
			s.append(b.UserID, op, g.Grade.PayoutCents, strings.ToLower(op)+":"+b.ID)
			sum.Balances[b.UserID] = s.balances[b.UserID]
		}
	}
	return &sum, nil
}

func (s *Store) RecentResults(ctx context.Context, game, tableID string, n int) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for i := len(s.settled) - 1; i >= 0 && len(out) < n; i-- {
		r := s.rounds[s.settled[i]]
		if r.Game == game && r.TableID == tableID && len(r.Outcome) > 0 {
			out = append(out, r.Outcome)
		}
	}
	return out, nil
}

func (s *Store) History(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[userID]
	var out []ledger.Entry
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Bet devolve uma cópia da aposta para asserções
func (s *Store) Bet(id string) (ledger.Bet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ledger.Bet{}, false
	}
	return *b, true
}

func (s *Store) append(userID, op string, amount int64, desc string) {
	s.entries[userID] = append(s.entries[userID], ledger.Entry{
		OpType:       op,
		AmountCents:  amount,
		BalanceAfter: s.balances[userID],
		Description:  desc,
		CreatedAt:    time.Now(),
	})
}
