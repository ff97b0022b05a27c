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

// CreateChat opens a new chat between a user and a catalog character.
func (s *Service) CreateChat(ctx context.Context, userID, characterID int64, title string) (*models.Chat, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	if characterID <= 0 {
		return nil, errors.New("character_id is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, character_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, characterID, title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat id: %w", err)
	}
	return &models.Chat{ID: id, UserID: userID, CharacterID: characterID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// ListChats returns the user's chats ordered by last activity.
func (s *Service) ListChats(ctx context.Context, userID int64) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, character_id, title, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.CharacterID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat loads one chat owned by the user.
func (s *Service) GetChat(ctx context.Context, userID, chatID int64) (*models.Chat, error) {
	if chatID <= 0 {
		return nil, errors.New("invalid chat id")
	}
	var c models.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, character_id, title, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&c.ID, &c.UserID, &c.CharacterID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &c, nil
}

// ListMessages returns all messages of a chat in creation order.
func (s *Service) ListMessages(ctx context.Context, chatID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, content, is_user_message, tokens_used, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last limit messages of a chat, oldest first.
func (s *Service) RecentMessages(ctx context.Context, chatID int64, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, content, is_user_message, tokens_used, created_at FROM messages
		 WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Query order is newest first; callers want chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AddMessage stores one turn and touches the chat's updated_at timestamp.
func (s *Service) AddMessage(ctx context.Context, chatID int64, content string, isUserMessage bool, tokensUsed int) (*models.Message, error) {
	if chatID <= 0 {
		return nil, errors.New("chat_id is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("content cannot be empty")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, content, is_user_message, tokens_used, created_at) VALUES (?, ?, ?, ?, ?)`,
		chatID, content, isUserMessage, tokensUsed, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID); err != nil {
		return nil, fmt.Errorf("touch chat: %w", err)
	}
	return &models.Message{
		ID:            id,
		ChatID:        chatID,
		Content:       content,
		IsUserMessage: isUserMessage,
		TokensUsed:    tokensUsed,
		CreatedAt:     now,
	}, nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Content, &m.IsUserMessage, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
