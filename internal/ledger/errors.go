package ledger

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrRoundNotFound     = errors.New("round not found")
	ErrRoundClosed       = errors.New("round not accepting bets")
)
