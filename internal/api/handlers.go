package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/michael7nightingale/ai-girls/internal/cache"
	"github.com/michael7nightingale/ai-girls/internal/chat"
	"github.com/michael7nightingale/ai-girls/internal/llm"
	"github.com/michael7nightingale/ai-girls/internal/models"
	"github.com/michael7nightingale/ai-girls/internal/prompt"
	"github.com/michael7nightingale/ai-girls/internal/service/companion"
	"github.com/michael7nightingale/ai-girls/internal/worker"
)

// historyFetchLimit covers the widest context window any backend uses.
const historyFetchLimit = 10

// ModelLister is implemented by the local backend adapter.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Handler wires HTTP routes to the companion service and the chat router.
type Handler struct {
	companion *companion.Service
	router    *chat.Router
	workers   *worker.Manager
	history   *cache.HistoryCache
	models    ModelLister
}

// NewHandler constructs a Handler instance. history and models may be nil
// when redis or the local backend is not configured.
func NewHandler(svc *companion.Service, router *chat.Router, workers *worker.Manager, history *cache.HistoryCache, lister ModelLister) *Handler {
	return &Handler{
		companion: svc,
		router:    router,
		workers:   workers,
		history:   history,
		models:    lister,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/identify", h.identifyUser)
	api.GET("/characters", h.listCharacters)
	api.GET("/characters/:id", h.getCharacter)
	api.GET("/models", h.listModels)
	api.POST("/payments/:reference/confirm", h.confirmPayment)

	userRoutes := api.Group("/users/:id")
	userRoutes.GET("", h.getUser)
	userRoutes.GET("/chats", h.listChats)
	userRoutes.POST("/chats", h.createChat)
	userRoutes.GET("/chats/:chat_id/messages", h.getChatMessages)
	userRoutes.POST("/chats/:chat_id/messages", h.sendMessage)
	userRoutes.GET("/subscription", h.subscriptionStatus)
	userRoutes.POST("/subscription/payments", h.createPayment)
	userRoutes.DELETE("/subscription", h.cancelSubscription)
}

type identifyRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

func (h *Handler) identifyUser(c *gin.Context) {
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.companion.EnsureUser(c.Request.Context(), req.TelegramID, req.Username, req.FirstName, req.LastName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) getUser(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.companion.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listCharacters(c *gin.Context) {
	activeOnly := c.Query("all") == ""
	characters, err := h.companion.ListCharacters(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list characters"})
		return
	}
	if characters == nil {
		characters = []models.Character{}
	}
	c.JSON(http.StatusOK, gin.H{"characters": characters})
}

func (h *Handler) getCharacter(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	character, err := h.companion.GetCharacter(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load character"})
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) listModels(c *gin.Context) {
	if h.models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "local backend not configured"})
		return
	}
	names, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": names})
}

type createChatRequest struct {
	CharacterID int64 `json:"character_id"`
}

func (h *Handler) createChat(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()

	user, character, ok := h.loadParticipants(c, userID, req.CharacterID)
	if !ok {
		return
	}
	if !h.characterAllowed(c, user, character) {
		return
	}

	created, err := h.companion.CreateChat(ctx, userID, character.ID, fmt.Sprintf("Чат с %s", character.Name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listChats(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	chats, err := h.companion.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *Handler) getChatMessages(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.companion.GetChat(ctx, userID, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}
	messages, err := h.companion.ListMessages(ctx, chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageRequest struct {
	Text     string              `json:"text"`
	Backend  string              `json:"backend"`
	Model    string              `json:"model"`
	Sampling *llm.SamplingConfig `json:"sampling"`
}

type sendMessageResponse struct {
	Reply         string `json:"reply"`
	Outcome       string `json:"outcome"`
	MessagesUsed  int    `json:"messages_used_today"`
	UserMessageID int64  `json:"user_message_id,omitempty"`
}

// sendMessage runs one conversation turn. The heavy part runs on the
// user's worker goroutine so two turns of the same user cannot interleave
// their quota bookkeeping.
func (h *Handler) sendMessage(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	ctx := c.Request.Context()

	chatRow, err := h.companion.GetChat(ctx, userID, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}
	user, character, ok := h.loadParticipants(c, userID, chatRow.CharacterID)
	if !ok {
		return
	}
	if !h.characterAllowed(c, user, character) {
		return
	}

	var (
		resp    sendMessageResponse
		turnErr error
	)
	err = h.workers.Do(ctx, userID, func(taskCtx context.Context) {
		resp, turnErr = h.runTurn(taskCtx, user, character, chatID, req)
	})
	if err != nil {
		if errors.Is(err, worker.ErrBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "previous message still processing, please retry"})
			return
		}
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request cancelled"})
		return
	}
	if turnErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": turnErr.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) runTurn(ctx context.Context, user *models.User, character *models.Character, chatID int64, req sendMessageRequest) (sendMessageResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	history, cached := h.history.Load(ctx, chatID)
	if !cached {
		var err error
		history, err = h.companion.RecentMessages(ctx, chatID, historyFetchLimit)
		if err != nil {
			return sendMessageResponse{}, fmt.Errorf("load history: %w", err)
		}
	}

	reply := h.router.Respond(ctx, user, character, prompt.TurnsFromMessages(history), req.Text, chat.Options{
		Backend:  req.Backend,
		ModelID:  req.Model,
		Sampling: req.Sampling,
	})

	resp := sendMessageResponse{
		Reply:        reply.Text,
		Outcome:      outcomeLabel(reply.Outcome),
		MessagesUsed: user.Quota.MessagesUsedToday,
	}

	// A denied turn stores no messages; the quota state is still saved
	// because the gate may have rolled the counter over to a new day.
	if reply.Outcome == chat.OutcomeQuotaExceeded {
		if err := h.companion.SaveQuota(ctx, user.ID, user.Quota); err != nil {
			return sendMessageResponse{}, fmt.Errorf("save quota: %w", err)
		}
		return resp, nil
	}

	userMsg, err := h.companion.AddMessage(ctx, chatID, req.Text, true, llm.CountTokens(req.Text))
	if err != nil {
		return sendMessageResponse{}, fmt.Errorf("store user message: %w", err)
	}
	resp.UserMessageID = userMsg.ID
	replyMsg, err := h.companion.AddMessage(ctx, chatID, reply.Text, false, llm.CountTokens(reply.Text))
	if err != nil {
		return sendMessageResponse{}, fmt.Errorf("store reply: %w", err)
	}
	if err := h.companion.SaveQuota(ctx, user.ID, user.Quota); err != nil {
		return sendMessageResponse{}, fmt.Errorf("save quota: %w", err)
	}

	history = append(history, userMsg, replyMsg)
	if len(history) > historyFetchLimit {
		history = history[len(history)-historyFetchLimit:]
	}
	h.history.Store(ctx, chatID, history)
	return resp, nil
}

type createPaymentRequest struct {
	SubscriptionType string `json:"subscription_type"`
}

func (h *Handler) createPayment(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	payment, err := h.companion.CreatePayment(c.Request.Context(), userID, models.SubscriptionType(req.SubscriptionType))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	reference := c.Param("reference")
	user, err := h.companion.ConfirmPayment(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) subscriptionStatus(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	status, err := h.companion.GetSubscriptionStatus(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) cancelSubscription(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.companion.CancelSubscription(c.Request.Context(), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel subscription"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) loadParticipants(c *gin.Context, userID, characterID int64) (*models.User, *models.Character, bool) {
	ctx := c.Request.Context()
	user, err := h.companion.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		}
		return nil, nil, false
	}
	character, err := h.companion.GetCharacter(ctx, characterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load character"})
		}
		return nil, nil, false
	}
	return user, character, true
}

// characterAllowed enforces the premium catalog gate.
func (h *Handler) characterAllowed(c *gin.Context, user *models.User, character *models.Character) bool {
	if !character.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return false
	}
	if character.IsPremium && user.EffectiveRole(time.Now()) == models.RoleFree {
		c.JSON(http.StatusForbidden, gin.H{"error": "этот персонаж доступен только с премиум подпиской"})
		return false
	}
	return true
}

func outcomeLabel(o chat.Outcome) string {
	switch o {
	case chat.OutcomeQuotaExceeded:
		return "quota_exceeded"
	case chat.OutcomeFailed:
		return "failed"
	default:
		return "reply"
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}
