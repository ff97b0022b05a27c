package models

import "time"

// Payment mirrors one gateway charge; the gateway itself is an external
// collaborator, only the row and its status transitions live here.
type Payment struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	Reference        string           `json:"reference"`
	Amount           float64          `json:"amount"`
	Currency         string           `json:"currency"`
	SubscriptionType SubscriptionType `json:"subscription_type"`
	Status           string           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
}

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)
