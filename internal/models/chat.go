package models

import "time"

type Chat struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	CharacterID int64     `json:"character_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is one conversation turn, immutable once stored and ordered by
// creation time within its chat.
type Message struct {
	ID            int64     `json:"id"`
	ChatID        int64     `json:"chat_id"`
	Content       string    `json:"content"`
	IsUserMessage bool      `json:"is_user_message"`
	TokensUsed    int       `json:"tokens_used"`
	CreatedAt     time.Time `json:"created_at"`
}
