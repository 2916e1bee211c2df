package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Postgres implementa o ledger transacional: carteiras, apostas, rodadas e o
// registro append-only wallet_ledger. Toda mutação de dinheiro acontece dentro
// de uma única transação com lock pessimista na linha da carteira.
type Postgres struct {
	db             *sql.DB
	voidForfeitBps int64
}

func NewPostgres(db *sql.DB, voidForfeitBps int64) *Postgres {
	return &Postgres{db: db, voidForfeitBps: voidForfeitBps}
}

// GetOrCreateWallet retorna o walletId e saldo de um usuário, criando a carteira se não existir
// Usa transação para garantir atomicidade
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	var id string
	var bal int64
	err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE user_id=$1`, userID).Scan(&id, &bal)
	if err == sql.ErrNoRows {
		id = uuid.New().String()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, balance_cents, version) VALUES($1,$2,0,1)`,
			id, userID); err != nil {
			return "", 0, err
		}
		bal = 0
	} else if err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}

	return id, bal, nil
}

// Balance retorna o saldo atual do usuário
func (p *Postgres) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := p.db.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE user_id=$1`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return bal, err
}

// Deposit incrementa o saldo da carteira e registra a operação no ledger.
// Idempotente por external_ref: repetir o mesmo depósito devolve o saldo
// corrente sem creditar de novo. Lock pessimista na linha da carteira.
func (p *Postgres) Deposit(ctx context.Context, userID string, amount int64, externalRef string) (walletID string, newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	var id string
	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&id, &balance); err != nil {
		return "", 0, err
	}

	if externalRef != "" {
		var applied int
		if err = tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM wallet_ledger WHERE wallet_id=$1 AND operation_type='DEPOSIT' AND external_ref=$2`,
			id, externalRef).Scan(&applied); err != nil {
			return "", 0, err
		}
		if applied > 0 {
			// replay: o depósito já entrou no ledger
			if err = tx.Commit(); err != nil {
				return "", 0, err
			}
			return id, balance, nil
		}
	}

	if err = tx.QueryRowContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2 RETURNING balance_cents`,
		amount, id).Scan(&newBalance); err != nil {
		return "", 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, balance_after_cents, description, external_ref)
		 VALUES($1,'DEPOSIT',$2,$3,$4,$5)`,
		id, amount, newBalance, "deposit:"+externalRef, nullable(externalRef)); err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}
	return id, newBalance, nil
}

// PlaceBet é a unidade atômica de criação de aposta: debita o saldo somente se
// suficiente, insere a aposta OPEN e grava a linha do ledger — tudo ou nada.
// Uma aposta nunca existe sem o débito correspondente.
func (p *Postgres) PlaceBet(ctx context.Context, b *Bet) (betID string, newBalance int64, err error) {
	if b.StakeCents <= 0 {
		return "", 0, ErrInsufficientFunds
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	var walletID string
	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM wallets WHERE user_id=$1 FOR UPDATE`, b.UserID).Scan(&walletID, &balance)
	if err == sql.ErrNoRows {
		return "", 0, ErrNotFound
	} else if err != nil {
		return "", 0, err
	}

	if balance < b.StakeCents {
		return "", 0, ErrInsufficientFunds
	}

	if err = tx.QueryRowContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents - $1, version = version + 1 WHERE id=$2 RETURNING balance_cents`,
		b.StakeCents, walletID).Scan(&newBalance); err != nil {
		return "", 0, err
	}

	betID = uuid.NewString()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bets (id,user_id,kind,game,table_id,round_id,event_id,market,selection,stake_cents,odd_value,status,payout_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'OPEN',0)`,
		betID, b.UserID, string(b.Kind), b.Game, b.TableID,
		nullable(b.RoundID), nullable(b.EventID),
		strings.ToUpper(b.Market), strings.ToUpper(b.Selection),
		b.StakeCents, b.OddValue,
	); err != nil {
		return "", 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, balance_after_cents, description, related_bet_id)
		 VALUES($1,'BET_PLACE',$2,$3,$4,$5)`,
		walletID, -b.StakeCents, newBalance, "bet:"+betID, betID); err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}

	return betID, newBalance, nil
}

// CreateRound persiste a rodada OPEN e devolve o id gerado
func (p *Postgres) CreateRound(ctx context.Context, r *Round) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (id,game,table_id,status,start_at,bets_close_at,result_at)
		VALUES ($1,$2,$3,'OPEN',$4,$5,$6)`,
		id, r.Game, r.TableID, r.StartAt, r.BetsCloseAt, r.ResultAt,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// LockRound marca a rodada LOCKED e congela as apostas abertas dela.
// Os filtros de status tornam a operação idempotente.
func (p *Postgres) LockRound(ctx context.Context, roundID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`UPDATE rounds SET status='LOCKED', updated_at=NOW() WHERE id=$1 AND status='OPEN'`, roundID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE bets SET status='LOCKED', updated_at=NOW() WHERE round_id=$1 AND status='OPEN'`, roundID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetRound carrega a rodada pelo id
func (p *Postgres) GetRound(ctx context.Context, roundID string) (*Round, error) {
	r := &Round{ID: roundID}
	var outcome []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT game, table_id, status, start_at, bets_close_at, result_at, COALESCE(outcome,'null'),
		       winners, losers, pushes, total_payout_cents
		FROM rounds WHERE id=$1`, roundID).Scan(
		&r.Game, &r.TableID, &r.Status, &r.StartAt, &r.BetsCloseAt, &r.ResultAt, &outcome,
		&r.Summary.Winners, &r.Summary.Losers, &r.Summary.Pushes, &r.Summary.TotalPayoutCents,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Outcome = json.RawMessage(outcome)
	return r, nil
}

// OpenBetsForRound lista as apostas de cassino ainda não liquidadas da rodada
func (p *Postgres) OpenBetsForRound(ctx context.Context, roundID string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id,user_id,kind,game,table_id,COALESCE(round_id,''),COALESCE(event_id,''),market,selection,stake_cents,odd_value,status,payout_cents
		FROM bets
		WHERE round_id=$1 AND kind='casino' AND status IN ('OPEN','LOCKED')
		ORDER BY created_at`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBets(rows)
}

// SettleRound liquida a rodada de forma idempotente: se já estiver SETTLED,
// devolve o resumo gravado sem aplicar nada. Caso contrário grava o outcome,
// atualiza todas as apostas abertas em lote, credita os vencedores e marca a
// rodada SETTLED — tudo em uma transação, sem aplicação parcial possível.
func (p *Postgres) SettleRound(ctx context.Context, roundID string, outcome []byte, grade Grader) (*Summary, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var status string
	stored := Summary{Replayed: true}
	err = tx.QueryRowContext(ctx, `
		SELECT status, winners, losers, pushes, total_payout_cents
		FROM rounds WHERE id=$1 FOR UPDATE`, roundID).Scan(
		&status, &stored.Winners, &stored.Losers, &stored.Pushes, &stored.TotalPayoutCents)
	if err == sql.ErrNoRows {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	if status == string(RoundSettled) {
		return &stored, nil // replay: nenhuma mutação
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id,user_id,kind,game,table_id,COALESCE(round_id,''),COALESCE(event_id,''),market,selection,stake_cents,odd_value,status,payout_cents
		FROM bets
		WHERE round_id=$1 AND kind='casino' AND status IN ('OPEN','LOCKED')
		ORDER BY created_at
		FOR UPDATE`, roundID)
	if err != nil {
		return nil, err
	}
	bets, err := scanBets(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	graded, sum := GradeBets(bets, grade)
	for _, g := range graded {
		// o filtro de status garante que uma liquidação concorrente não pague duas vezes
		res, uerr := tx.ExecContext(ctx, `
			UPDATE bets SET status=$2, payout_cents=$3, updated_at=NOW()
			WHERE id=$1 AND status IN ('OPEN','LOCKED')`,
			g.Bet.ID, string(g.Grade.Status), g.Grade.PayoutCents)
		if uerr != nil {
			return nil, uerr
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // já terminal, não credita
		}
		if g.Grade.PayoutCents > 0 {
			opType := "PAYOUT"
			if g.Grade.Status == BetVoid {
				opType = "REFUND"
			}
			bal, cerr := p.creditTx(ctx, tx, g.Bet.UserID, g.Grade.PayoutCents, opType, opTypeDesc(opType, g.Bet.ID), g.Bet.ID, roundID)
			if cerr != nil {
				return nil, cerr
			}
			sum.Balances[g.Bet.UserID] = bal
		}
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE rounds SET status='SETTLED', outcome=$2, winners=$3, losers=$4, pushes=$5,
		       total_payout_cents=$6, settled_at=NOW(), updated_at=NOW()
		WHERE id=$1`,
		roundID, outcome, sum.Winners, sum.Losers, sum.Pushes, sum.TotalPayoutCents); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &sum, nil
}

// SettleExternalEvent liquida as apostas esportivas abertas de um evento.
// winning nulo indica evento cancelado: estorno do stake menos a fração
// retida configurada. O filtro de status OPEN dá a idempotência.
func (p *Postgres) SettleExternalEvent(ctx context.Context, eventID string, winning *string) (*Summary, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id,user_id,kind,game,table_id,COALESCE(round_id,''),COALESCE(event_id,''),market,selection,stake_cents,odd_value,status,payout_cents
		FROM bets
		WHERE event_id=$1 AND kind='sports' AND status='OPEN'
		ORDER BY created_at
		FOR UPDATE`, eventID)
	if err != nil {
		return nil, err
	}
	bets, err := scanBets(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if len(bets) == 0 {
		// evento já liquidado (replay) ou sem apostas
		if err = tx.Commit(); err != nil {
			return nil, err
		}
		return &Summary{Replayed: true, Balances: map[string]int64{}}, nil
	}

	var sel string
	if winning != nil {
		sel = strings.ToUpper(*winning)
	}
	graded, sum := GradeBets(bets, func(b Bet) Grade {
		if winning == nil {
			return Grade{Status: BetVoid, PayoutCents: VoidRefundCents(b.StakeCents, p.voidForfeitBps)}
		}
		if b.Selection == sel {
			return Grade{Status: BetWon, PayoutCents: WinPayoutCents(b.StakeCents, b.OddValue)}
		}
		return Grade{Status: BetLost}
	})

	for _, g := range graded {
		res, uerr := tx.ExecContext(ctx, `
			UPDATE bets SET status=$2, payout_cents=$3, updated_at=NOW()
			WHERE id=$1 AND status='OPEN'`,
			g.Bet.ID, string(g.Grade.Status), g.Grade.PayoutCents)
		if uerr != nil {
			return nil, uerr
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if g.Grade.PayoutCents > 0 {
			opType := "PAYOUT"
			if g.Grade.Status == BetVoid {
				opType = "REFUND"
			}
			bal, cerr := p.creditTx(ctx, tx, g.Bet.UserID, g.Grade.PayoutCents, opType, opTypeDesc(opType, g.Bet.ID)+":event:"+eventID, g.Bet.ID, "")
			if cerr != nil {
				return nil, cerr
			}
			sum.Balances[g.Bet.UserID] = bal
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &sum, nil
}

// RecentResults devolve os outcomes das últimas N rodadas liquidadas da mesa
func (p *Postgres) RecentResults(ctx context.Context, game, tableID string, n int) ([]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT outcome FROM rounds
		WHERE game=$1 AND table_id=$2 AND status='SETTLED' AND outcome IS NOT NULL
		ORDER BY settled_at DESC LIMIT $3`, game, tableID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

// History devolve as últimas linhas do extrato do usuário, mais recentes primeiro
func (p *Postgres) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT l.operation_type, l.amount_cents, l.balance_after_cents, COALESCE(l.description,''), l.created_at
		FROM wallet_ledger l
		JOIN wallets w ON w.id = l.wallet_id
		WHERE w.user_id=$1
		ORDER BY l.created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.OpType, &e.AmountCents, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// creditTx incrementa o saldo dentro da transação corrente e grava a linha do
// ledger com o snapshot de saldo resultante
func (p *Postgres) creditTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, opType, desc, betID, roundID string) (int64, error) {
	var walletID string
	var newBal int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE user_id=$2 RETURNING id, balance_cents`,
		amount, userID).Scan(&walletID, &newBal); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, balance_after_cents, description, related_bet_id, related_round_id)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		walletID, opType, amount, newBal, desc, nullable(betID), nullable(roundID)); err != nil {
		return 0, err
	}
	return newBal, nil
}

func scanBets(rows *sql.Rows) ([]Bet, error) {
	var out []Bet
	for rows.Next() {
		var b Bet
		var kind, status string
		if err := rows.Scan(&b.ID, &b.UserID, &kind, &b.Game, &b.TableID, &b.RoundID, &b.EventID,
			&b.Market, &b.Selection, &b.StakeCents, &b.OddValue, &status, &b.PayoutCents); err != nil {
			return nil, err
		}
		b.Kind = BetKind(kind)
		b.Status = BetStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

func opTypeDesc(opType, betID string) string {
	return strings.ToLower(opType) + ":" + betID
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
