package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/michael7nightingale/ai-girls/internal/models"
	"github.com/michael7nightingale/ai-girls/internal/redis"
)

const historyTTL = 30 * time.Minute

// HistoryCache keeps the recent message tail of each chat in redis so a
// turn does not have to hit the database for context. All operations are
// best effort; a cache failure only costs a database read.
type HistoryCache struct {
	client *redis.Client
}

func NewHistoryCache(client *redis.Client) *HistoryCache {
	return &HistoryCache{client: client}
}

func historyKey(chatID int64) string {
	return fmt.Sprintf("chat:history:%d", chatID)
}

// Store caches the chat's recent messages.
func (h *HistoryCache) Store(ctx context.Context, chatID int64, history []*models.Message) {
	if h == nil || h.client == nil || chatID <= 0 {
		return
	}
	data, err := json.Marshal(history)
	if err != nil {
		log.Printf("cache history marshal failed: %v", err)
		return
	}
	if err := h.client.Set(ctx, historyKey(chatID), data, historyTTL); err != nil {
		log.Printf("cache history store failed: %v", err)
	}
}

// Load returns the cached messages and whether the key was present.
func (h *HistoryCache) Load(ctx context.Context, chatID int64) ([]*models.Message, bool) {
	if h == nil || h.client == nil || chatID <= 0 {
		return nil, false
	}
	raw, err := h.client.Get(ctx, historyKey(chatID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("cache history load failed: %v", err)
		}
		return nil, false
	}
	var history []*models.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		log.Printf("cache history decode failed: %v", err)
		return nil, false
	}
	return history, true
}

// Invalidate drops the cached tail after a write outside the turn path.
func (h *HistoryCache) Invalidate(ctx context.Context, chatID int64) {
	if h == nil || h.client == nil || chatID <= 0 {
		return
	}
	if err := h.client.Del(ctx, historyKey(chatID)); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		log.Printf("cache history invalidate failed: %v", err)
	}
}
