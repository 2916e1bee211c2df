// Package sports consome resultados de eventos esportivos do Kafka e liquida
// as apostas pendentes de cada evento no ledger
package sports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/ledger"
	"github.com/radieske/live-casino-platform/internal/shared/kafka"
	"github.com/radieske/live-casino-platform/internal/shared/metrics"
	"github.com/radieske/live-casino-platform/pkg/contracts/events"
)

// Settler é o recorte do ledger usado pelo worker
type Settler interface {
	SettleExternalEvent(ctx context.Context, eventID string, winning *string) (*ledger.Summary, error)
}

// Notifier entrega as atualizações de saldo aos clientes conectados (o
// game-server assina o mesmo canal Redis e repassa ao WebSocket)
type Notifier interface {
	Publish(channel, event string, payload interface{})
}

type Worker struct {
	log     *zap.Logger
	settler Settler
	notify  Notifier // pode ser nil
	reader  *kafka.Reader
	dlq     *kafka.Writer // pode ser nil
}

func NewWorker(settler Settler, notify Notifier, reader *kafka.Reader, dlq *kafka.Writer, log *zap.Logger) *Worker {
	return &Worker{log: log, settler: settler, notify: notify, reader: reader, dlq: dlq}
}

// Run é o loop principal: consome event_results até o contexto encerrar.
// Mensagem com erro permanente vai para a DLQ; erro transitório re-tenta
// com backoff antes de desistir.
func (w *Worker) Run(ctx context.Context) error {
	for {
		key, value, err := kafka.ReadNext(ctx, w.reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := w.processWithRetry(ctx, value); err != nil {
			w.log.Error("event settlement failed", zap.ByteString("key", key), zap.Error(err))
			metrics.SettlementFailures.WithLabelValues("sports").Inc()
			if w.dlq != nil {
				if derr := kafka.WriteJSON(ctx, w.dlq, string(key), value); derr != nil {
					w.log.Error("dlq publish failed", zap.Error(derr))
				}
			}
		}
	}
}

func (w *Worker) processWithRetry(ctx context.Context, value []byte) error {
	const retries = 3
	var err error
	for i := 0; i < retries; i++ {
		if err = w.ProcessOne(ctx, value); err == nil {
			return nil
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	return err
}

// ProcessOne liquida um resultado de evento. A liquidação no ledger é
// idempotente, então reprocessar a mesma mensagem é inofensivo.
func (w *Worker) ProcessOne(ctx context.Context, value []byte) error {
	var res events.EventResult
	if err := json.Unmarshal(value, &res); err != nil {
		return fmt.Errorf("unmarshal event_result: %w", err)
	}
	if res.EventID == "" {
		return fmt.Errorf("event_result without event_id")
	}

	winning := res.WinningSelection
	if res.Void {
		winning = nil
	}

	sum, err := w.settler.SettleExternalEvent(ctx, res.EventID, winning)
	if err != nil {
		return err
	}

	switch {
	case sum.Replayed:
		metrics.EventsSettled.WithLabelValues("replayed").Inc()
		w.log.Info("event already settled", zap.String("event", res.EventID))
		return nil
	case winning == nil:
		metrics.EventsSettled.WithLabelValues("void").Inc()
	default:
		metrics.EventsSettled.WithLabelValues("graded").Inc()
	}

	w.log.Info("event settled",
		zap.String("event", res.EventID),
		zap.Int("winners", sum.Winners),
		zap.Int("losers", sum.Losers),
		zap.Int("pushes", sum.Pushes),
		zap.Int64("total_payout_cents", sum.TotalPayoutCents))

	if w.notify != nil {
		for userID, bal := range sum.Balances {
			w.notify.Publish("user:"+userID, events.TypeWalletUpd, events.WalletUpdate{UserID: userID, BalanceCents: bal})
		}
	}
	return nil
}
