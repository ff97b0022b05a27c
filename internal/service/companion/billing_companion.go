package companion

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/michael7nightingale/ai-girls/internal/models"
)

const (
	monthlyPriceUSD = 9.99
	yearlyPriceUSD  = 99.99

	monthlyDuration = 30 * 24 * time.Hour
	yearlyDuration  = 365 * 24 * time.Hour
)

// SubscriptionStatus is the billing snapshot shown to the user.
type SubscriptionStatus struct {
	Role             models.Role              `json:"role"`
	SubscriptionType *models.SubscriptionType `json:"subscription_type"`
	ExpiresAt        *time.Time               `json:"expires_at"`
	Active           bool                     `json:"active"`
}

// CreatePayment opens a pending payment for the requested plan.
func (s *Service) CreatePayment(ctx context.Context, userID int64, plan models.SubscriptionType) (*models.Payment, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	var amount float64
	switch plan {
	case models.SubscriptionMonthly:
		amount = monthlyPriceUSD
	case models.SubscriptionYearly:
		amount = yearlyPriceUSD
	default:
		return nil, fmt.Errorf("unknown subscription type %q", plan)
	}

	ref, err := paymentReference()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (user_id, reference, amount, currency, subscription_type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, ref, amount, "USD", plan, models.PaymentPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("payment id: %w", err)
	}
	return &models.Payment{
		ID:               id,
		UserID:           userID,
		Reference:        ref,
		Amount:           amount,
		Currency:         "USD",
		SubscriptionType: plan,
		Status:           models.PaymentPending,
		CreatedAt:        now,
	}, nil
}

// ConfirmPayment marks a pending payment completed and grants the
// subscription it paid for.
func (s *Service) ConfirmPayment(ctx context.Context, reference string) (*models.User, error) {
	if reference == "" {
		return nil, errors.New("reference is required")
	}
	var p models.Payment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, subscription_type, status FROM payments WHERE reference = ?`,
		reference,
	).Scan(&p.ID, &p.UserID, &p.SubscriptionType, &p.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if p.Status != models.PaymentPending {
		return nil, fmt.Errorf("payment %s already %s", reference, p.Status)
	}

	now := time.Now().UTC()
	duration := monthlyDuration
	if p.SubscriptionType == models.SubscriptionYearly {
		duration = yearlyDuration
	}
	expires := now.Add(duration)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE id = ?`, models.PaymentCompleted, p.ID); err != nil {
		return nil, fmt.Errorf("complete payment: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = ?, subscription_type = ?, subscription_expires = ?, updated_at = ? WHERE id = ?`,
		models.RolePremium, p.SubscriptionType, expires, now, p.UserID); err != nil {
		return nil, fmt.Errorf("grant subscription: %w", err)
	}
	return s.GetUser(ctx, p.UserID)
}

// CancelSubscription drops a user back to the free tier immediately.
func (s *Service) CancelSubscription(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = ?, subscription_type = NULL, subscription_expires = NULL, updated_at = ? WHERE id = ?`,
		models.RoleFree, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSubscriptionStatus reports the current plan, downgrading lapsed
// premium users to free as a side effect.
func (s *Service) GetSubscriptionStatus(ctx context.Context, userID int64) (*SubscriptionStatus, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if user.Role == models.RolePremium && user.EffectiveRole(now) == models.RoleFree {
		if err := s.CancelSubscription(ctx, userID); err != nil {
			return nil, err
		}
		user.Role = models.RoleFree
		user.SubscriptionType = nil
		user.SubscriptionExpires = nil
	}
	return &SubscriptionStatus{
		Role:             user.Role,
		SubscriptionType: user.SubscriptionType,
		ExpiresAt:        user.SubscriptionExpires,
		Active:           user.Role == models.RolePremium,
	}, nil
}

func paymentReference() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("payment reference: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
