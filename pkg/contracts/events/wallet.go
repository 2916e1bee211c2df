package events

// WalletUpdate é enviado no canal privado do usuário ("user:{id}") após liquidação
type WalletUpdate struct {
	UserID       string `json:"userId"`
	BalanceCents int64  `json:"balanceCents"`
}
