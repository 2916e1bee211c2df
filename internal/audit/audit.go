// Package audit publica registros de liquidação no Kafka para consumo de
// relatórios e conciliação
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radieske/live-casino-platform/internal/ledger"
	"github.com/radieske/live-casino-platform/internal/shared/kafka"
	"github.com/radieske/live-casino-platform/pkg/contracts/events"
)

type Kafka struct {
	w *kafka.Writer
}

func NewKafka(w *kafka.Writer) *Kafka {
	return &Kafka{w: w}
}

func (k *Kafka) RoundSettled(ctx context.Context, roundID, game, tableID string, sum *ledger.Summary) error {
	payload, err := json.Marshal(events.RoundSettled{
		RoundID:          roundID,
		Game:             game,
		TableID:          tableID,
		Winners:          sum.Winners,
		Losers:           sum.Losers,
		Pushes:           sum.Pushes,
		TotalPayoutCents: sum.TotalPayoutCents,
		TsUnixMs:         time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, k.w, roundID, payload)
}
