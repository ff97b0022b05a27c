package models

import "time"

type Role string

const (
	RoleFree    Role = "free"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

type SubscriptionType string

const (
	SubscriptionMonthly SubscriptionType = "monthly"
	SubscriptionYearly  SubscriptionType = "yearly"
)

// QuotaState carries the per-user daily message accounting. The counter is
// reset lazily on the first check after a calendar-day change.
type QuotaState struct {
	MessagesUsedToday int        `json:"messages_used_today"`
	LastMessageDate   *time.Time `json:"last_message_date"`
}

type User struct {
	ID                  int64             `json:"id"`
	TelegramID          int64             `json:"telegram_id"`
	Username            string            `json:"username"`
	FirstName           string            `json:"first_name"`
	LastName            string            `json:"last_name"`
	Role                Role              `json:"role"`
	SubscriptionType    *SubscriptionType `json:"subscription_type"`
	SubscriptionExpires *time.Time        `json:"subscription_expires"`
	Quota               QuotaState        `json:"quota"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// EffectiveRole resolves the role after subscription expiry: a premium user
// whose subscription has lapsed is treated as free until the next payment.
func (u *User) EffectiveRole(now time.Time) Role {
	if u.Role == RolePremium && u.SubscriptionExpires != nil && u.SubscriptionExpires.Before(now) {
		return RoleFree
	}
	return u.Role
}
