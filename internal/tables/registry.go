package tables

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/ledger"
	"github.com/radieske/live-casino-platform/internal/shared/metrics"
)

// Runner é o que o registro precisa saber de um engine de mesa
type Runner interface {
	Start()
	Stop()
	Channel() string
	CurrentRound() (roundID string, open bool)
}

// BetStore é o recorte do ledger usado na colocação de apostas
type BetStore interface {
	PlaceBet(ctx context.Context, b *ledger.Bet) (betID string, newBalance int64, err error)
}

// Validator checa mercado e seleção já canonizados de um jogo
type Validator func(market, selection string) bool

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrStaleRound   = errors.New("bet references a finished round")
	ErrBadMarket    = errors.New("unknown market or selection")
	ErrBadStake     = errors.New("stake must be positive")
)

type table struct {
	game    string
	tableID string
	runner  Runner
	valid   Validator
}

// Registry mantém as mesas ativas do processo e roteia apostas para elas
type Registry struct {
	log    *zap.Logger
	store  BetStore
	tables map[string]*table // canal (game:tableId) -> mesa
}

func NewRegistry(store BetStore, log *zap.Logger) *Registry {
	return &Registry{log: log, store: store, tables: make(map[string]*table)}
}

// Add registra uma mesa antes do Start; não é seguro após StartAll
func (r *Registry) Add(game, tableID string, runner Runner, valid Validator) {
	r.tables[game+":"+tableID] = &table{game: game, tableID: tableID, runner: runner, valid: valid}
}

func (r *Registry) StartAll() {
	for ch, t := range r.tables {
		t.runner.Start()
		r.log.Info("table started", zap.String("channel", ch))
	}
}

func (r *Registry) StopAll() {
	for ch, t := range r.tables {
		t.runner.Stop()
		r.log.Info("table stopped", zap.String("channel", ch))
	}
}

// PlaceBet valida, amarra a aposta à rodada corrente da mesa e debita no
// ledger em uma transação. A rejeição acontece antes de tocar o banco.
func (r *Registry) PlaceBet(ctx context.Context, msg ClientMsg) (string, int64, error) {
	t, ok := r.tables[tableChannel(msg.Game, msg.TableID)]
	if !ok {
		metrics.BetsRejected.WithLabelValues("unknown_table").Inc()
		return "", 0, ErrUnknownTable
	}
	if msg.UserID == "" {
		metrics.BetsRejected.WithLabelValues("no_user").Inc()
		return "", 0, fmt.Errorf("userId is required")
	}
	if msg.StakeCents <= 0 {
		metrics.BetsRejected.WithLabelValues("bad_stake").Inc()
		return "", 0, ErrBadStake
	}

	market := strings.ToUpper(strings.TrimSpace(msg.Market))
	selection := strings.ToUpper(strings.TrimSpace(msg.Selection))
	if t.valid != nil && !t.valid(market, selection) {
		metrics.BetsRejected.WithLabelValues("bad_market").Inc()
		return "", 0, ErrBadMarket
	}

	roundID, open := t.runner.CurrentRound()
	if !open {
		metrics.BetsRejected.WithLabelValues("round_closed").Inc()
		return "", 0, ledger.ErrRoundClosed
	}
	// aposta enviada para uma rodada que já virou é recusada, não migrada
	if msg.RoundID != "" && msg.RoundID != roundID {
		metrics.BetsRejected.WithLabelValues("stale_round").Inc()
		return "", 0, ErrStaleRound
	}

	bet := &ledger.Bet{
		UserID:     msg.UserID,
		Kind:       ledger.KindCasino,
		Game:       t.game,
		TableID:    t.tableID,
		RoundID:    roundID,
		Market:     market,
		Selection:  selection,
		StakeCents: msg.StakeCents,
	}
	betID, balance, err := r.store.PlaceBet(ctx, bet)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			metrics.BetsRejected.WithLabelValues("insufficient_funds").Inc()
		} else {
			metrics.BetsRejected.WithLabelValues("store").Inc()
		}
		return "", 0, err
	}

	metrics.BetsPlaced.WithLabelValues(string(ledger.KindCasino)).Inc()
	r.log.Info("bet placed",
		zap.String("bet", betID),
		zap.String("round", roundID),
		zap.String("market", market+":"+selection),
		zap.Int64("stake_cents", msg.StakeCents))
	return betID, balance, nil
}
