package dto

// WalletResponse devolve o estado da carteira após consulta ou depósito
type WalletResponse struct {
	UserID       string `json:"userId"`
	WalletID     string `json:"walletId"`
	BalanceCents int64  `json:"balanceCents"`
}

// HistoryEntry é uma linha do extrato append-only
type HistoryEntry struct {
	OpType       string `json:"opType"`
	AmountCents  int64  `json:"amountCents"`
	BalanceAfter int64  `json:"balanceAfter"`
	Description  string `json:"description"`
	CreatedAt    string `json:"createdAt"`
}
