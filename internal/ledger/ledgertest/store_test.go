package ledgertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositIdempotentByExternalRef(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, bal, err := s.Deposit(ctx, "u1", 1000, "ref-abc")
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)

	// o retry do mesmo depósito devolve o saldo corrente sem creditar de novo
	_, bal, err = s.Deposit(ctx, "u1", 1000, "ref-abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)

	// referência nova é um depósito novo
	_, bal, err = s.Deposit(ctx, "u1", 500, "ref-def")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), bal)

	// o extrato só registra os depósitos efetivamente aplicados
	entries, err := s.History(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDepositWithoutRefAlwaysCredits(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, _, err := s.Deposit(ctx, "u1", 100, "")
	require.NoError(t, err)
	_, bal, err := s.Deposit(ctx, "u1", 100, "")
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal)
}
