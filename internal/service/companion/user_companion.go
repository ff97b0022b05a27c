package companion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/michael7nightingale/ai-girls/internal/models"
)

// Service handles user, catalog, chat and billing persistence.
type Service struct {
	db *sql.DB
}

// NewService builds a new companion service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// EnsureUser returns the user with the given telegram id, creating the row
// on first contact.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, error) {
	if telegramID <= 0 {
		return nil, errors.New("telegram_id is required")
	}
	user, err := s.userByTelegramID(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name, last_name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		telegramID, strings.TrimSpace(username), strings.TrimSpace(firstName), strings.TrimSpace(lastName),
		models.RoleFree, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{
		ID:         id,
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		Role:       models.RoleFree,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// GetUser loads one user by primary key.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, errors.New("invalid user id")
	}
	row := s.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Service) userByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, userSelect+` WHERE telegram_id = ?`, telegramID)
	return scanUser(row)
}

// SaveQuota persists the mutated quota counters for a user. It is called in
// the same write batch as the turn's messages so a crash cannot separate
// them for long; strict once-only accounting is not guaranteed here.
func (s *Service) SaveQuota(ctx context.Context, userID int64, q models.QuotaState) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET messages_used_today = ?, last_message_date = ?, updated_at = ? WHERE id = ?`,
		q.MessagesUsedToday, q.LastMessageDate, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("save quota: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const userSelect = `SELECT id, telegram_id, username, first_name, last_name, role,
	subscription_type, subscription_expires, messages_used_today, last_message_date,
	created_at, updated_at FROM users`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user     models.User
		username sql.NullString
		first    sql.NullString
		last     sql.NullString
		subType  sql.NullString
		subExp   sql.NullTime
		lastMsg  sql.NullTime
	)
	err := row.Scan(&user.ID, &user.TelegramID, &username, &first, &last, &user.Role,
		&subType, &subExp, &user.Quota.MessagesUsedToday, &lastMsg,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Username = username.String
	user.FirstName = first.String
	user.LastName = last.String
	if subType.Valid {
		st := models.SubscriptionType(subType.String)
		user.SubscriptionType = &st
	}
	if subExp.Valid {
		t := subExp.Time
		user.SubscriptionExpires = &t
	}
	if lastMsg.Valid {
		t := lastMsg.Time
		user.Quota.LastMessageDate = &t
	}
	return &user, nil
}
