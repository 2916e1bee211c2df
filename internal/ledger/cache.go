package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore decora o Postgres com um cache Redis dos últimos resultados por
// mesa. Só a leitura de recentResults passa pelo cache: é a consulta repetida
// a cada round:start e o único dado que tolera ficar um ciclo atrás. Toda
// mutação continua indo direto ao Postgres.
type CachedStore struct {
	*Postgres
	r   *redis.Client
	ttl time.Duration
}

func NewCachedStore(p *Postgres, r *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{Postgres: p, r: r, ttl: ttl}
}

func keyRecent(game, tableID string) string { return "recent:" + game + ":" + tableID }

// RecentResults tenta o cache antes do banco; falha de Redis degrada para a
// consulta direta
func (c *CachedStore) RecentResults(ctx context.Context, game, tableID string, n int) ([]json.RawMessage, error) {
	key := keyRecent(game, tableID)
	if b, err := c.r.Get(ctx, key).Bytes(); err == nil {
		var out []json.RawMessage
		if jerr := json.Unmarshal(b, &out); jerr == nil {
			return out, nil
		}
	}

	out, err := c.Postgres.RecentResults(ctx, game, tableID, n)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(out); jerr == nil {
		_ = c.r.Set(ctx, key, b, c.ttl).Err()
	}
	return out, nil
}

// SettleRound invalida o cache da mesa após liquidar: o próximo round:start
// já mostra o resultado recém-gravado
func (c *CachedStore) SettleRound(ctx context.Context, roundID string, outcome []byte, grade Grader) (*Summary, error) {
	sum, err := c.Postgres.SettleRound(ctx, roundID, outcome, grade)
	if err != nil || sum.Replayed {
		return sum, err
	}
	if r, gerr := c.Postgres.GetRound(ctx, roundID); gerr == nil {
		_ = c.r.Del(ctx, keyRecent(r.Game, r.TableID)).Err()
	}
	return sum, nil
}
