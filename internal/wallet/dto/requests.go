package dto

// DepositRequest é o payload de POST /wallet/deposit
type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amountCents"`
	ExternalRef string `json:"externalRef"`
}
