package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/michael7nightingale/ai-girls/internal/chat"
	"github.com/michael7nightingale/ai-girls/internal/config"
	"github.com/michael7nightingale/ai-girls/internal/llm"
	"github.com/michael7nightingale/ai-girls/internal/prompt"
	"github.com/michael7nightingale/ai-girls/internal/quota"
	"github.com/michael7nightingale/ai-girls/internal/service/companion"
	"github.com/michael7nightingale/ai-girls/internal/storage"
	"github.com/michael7nightingale/ai-girls/internal/worker"
)

type fakeGenerator struct {
	reply string
	fail  bool
	calls int
	last  prompt.Prompt
}

func (f *fakeGenerator) Generate(ctx context.Context, p prompt.Prompt, modelID string, sampling *llm.SamplingConfig) (llm.Result, error) {
	f.calls++
	f.last = p
	if f.fail {
		return llm.Result{}, &llm.TransportError{Backend: llm.BackendOllama, Err: llm.ErrMalformedResponse}
	}
	return llm.Result{Text: f.reply}, nil
}

type fakeLister struct {
	names []string
}

func (f *fakeLister) ListModels(ctx context.Context) ([]string, error) {
	return f.names, nil
}

func TestSendMessageFlow(t *testing.T) {
	router, db, gen := newTestServer(t, false)
	defer db.Close()

	userID := identifyTestUser(t, router, 501)
	chatID := createTestChat(t, router, userID, 1)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats/%d/messages", userID, chatID),
		map[string]any{"text": "привет, как дела?"}, nil)
	assertStatus(t, resp, http.StatusOK)

	var body struct {
		Reply        string `json:"reply"`
		Outcome      string `json:"outcome"`
		MessagesUsed int    `json:"messages_used_today"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Outcome != "reply" {
		t.Fatalf("expected reply outcome, got %s (%s)", body.Outcome, body.Reply)
	}
	if body.Reply == "" || body.MessagesUsed != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generator call, got %d", gen.calls)
	}
	if countMessages(t, db, chatID) != 2 {
		t.Fatalf("expected user message and reply persisted")
	}

	// The second turn must carry the first one as history.
	resp = doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats/%d/messages", userID, chatID),
		map[string]any{"text": "что нового?"}, nil)
	assertStatus(t, resp, http.StatusOK)
	if len(gen.last.Lines) != 2 {
		t.Fatalf("expected 2 history lines on second turn, got %d", len(gen.last.Lines))
	}
}

func TestSendMessageQuotaExceeded(t *testing.T) {
	router, db, gen := newTestServer(t, false)
	defer db.Close()

	userID := identifyTestUser(t, router, 502)
	chatID := createTestChat(t, router, userID, 1)

	today := time.Now().UTC()
	if _, err := db.Exec(`UPDATE users SET messages_used_today = 10, last_message_date = ? WHERE id = ?`, today, userID); err != nil {
		t.Fatalf("prefill quota: %v", err)
	}

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats/%d/messages", userID, chatID),
		map[string]any{"text": "ещё одно"}, nil)
	assertStatus(t, resp, http.StatusOK)

	var body struct {
		Reply   string `json:"reply"`
		Outcome string `json:"outcome"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Outcome != "quota_exceeded" {
		t.Fatalf("expected quota_exceeded, got %s", body.Outcome)
	}
	if !strings.Contains(body.Reply, "лимит") {
		t.Fatalf("expected limit notice, got %q", body.Reply)
	}
	if gen.calls != 0 {
		t.Fatalf("denied turn must not reach the backend")
	}
	if countMessages(t, db, chatID) != 0 {
		t.Fatalf("denied turn must not persist messages")
	}
}

func TestSendMessageBackendFailureStillConsumesQuota(t *testing.T) {
	router, db, _ := newTestServer(t, true)
	defer db.Close()

	userID := identifyTestUser(t, router, 503)
	chatID := createTestChat(t, router, userID, 1)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats/%d/messages", userID, chatID),
		map[string]any{"text": "привет"}, nil)
	assertStatus(t, resp, http.StatusOK)

	var body struct {
		Outcome      string `json:"outcome"`
		MessagesUsed int    `json:"messages_used_today"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Outcome != "failed" {
		t.Fatalf("expected failed outcome, got %s", body.Outcome)
	}
	if body.MessagesUsed != 1 {
		t.Fatalf("failed attempt must still consume the turn, got %d", body.MessagesUsed)
	}

	var used int
	if err := db.QueryRow(`SELECT messages_used_today FROM users WHERE id = ?`, userID).Scan(&used); err != nil {
		t.Fatalf("query quota: %v", err)
	}
	if used != 1 {
		t.Fatalf("expected persisted quota 1, got %d", used)
	}
}

func TestPremiumCharacterGate(t *testing.T) {
	router, db, _ := newTestServer(t, false)
	defer db.Close()

	userID := identifyTestUser(t, router, 504)
	premiumID := premiumCharacterID(t, db)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats", userID),
		map[string]any{"character_id": premiumID}, nil)
	assertStatus(t, resp, http.StatusForbidden)

	// Confirmed payment flips the role and opens the catalog.
	payResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/subscription/payments", userID),
		map[string]any{"subscription_type": "monthly"}, nil)
	assertStatus(t, payResp, http.StatusCreated)
	var payment struct {
		Reference string `json:"reference"`
	}
	decodeJSON(t, payResp.Body.Bytes(), &payment)

	confirmResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/payments/%s/confirm", payment.Reference), nil, nil)
	assertStatus(t, confirmResp, http.StatusOK)

	resp = doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats", userID),
		map[string]any{"character_id": premiumID}, nil)
	assertStatus(t, resp, http.StatusCreated)
}

func TestListCharactersAndModels(t *testing.T) {
	router, db, _ := newTestServer(t, false)
	defer db.Close()

	resp := doJSONRequest(t, router, http.MethodGet, "/api/characters", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	var list struct {
		Characters []struct {
			Name      string `json:"name"`
			IsPremium bool   `json:"is_premium"`
		} `json:"characters"`
	}
	decodeJSON(t, resp.Body.Bytes(), &list)
	if len(list.Characters) != 6 {
		t.Fatalf("expected 6 seeded characters, got %d", len(list.Characters))
	}

	modelsResp := doJSONRequest(t, router, http.MethodGet, "/api/models", nil, nil)
	assertStatus(t, modelsResp, http.StatusOK)
	var modelsBody struct {
		Models []string `json:"models"`
	}
	decodeJSON(t, modelsResp.Body.Bytes(), &modelsBody)
	if len(modelsBody.Models) != 2 {
		t.Fatalf("expected 2 models, got %v", modelsBody.Models)
	}
}

func TestChatOwnershipEnforced(t *testing.T) {
	router, db, _ := newTestServer(t, false)
	defer db.Close()

	ownerID := identifyTestUser(t, router, 505)
	otherID := identifyTestUser(t, router, 506)
	chatID := createTestChat(t, router, ownerID, 1)

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats/%d/messages", otherID, chatID),
		map[string]any{"text": "чужой чат"}, nil)
	assertStatus(t, resp, http.StatusNotFound)
}

func newTestServer(t *testing.T, failBackend bool) (*gin.Engine, *sql.DB, *fakeGenerator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	svc := companion.NewService(db)
	if err := svc.SeedCharacters(context.Background()); err != nil {
		t.Fatalf("seed characters: %v", err)
	}

	gen := &fakeGenerator{reply: "Привет! Всё отлично 😊", fail: failBackend}
	chatRouter := chat.NewRouter(
		map[llm.Backend]llm.Generator{llm.BackendOllama: gen},
		string(llm.BackendOllama),
		quota.Limits{Standard: 10, Elevated: 100},
		time.Second,
	)
	handler := NewHandler(svc, chatRouter, worker.NewManager(4), nil, &fakeLister{names: []string{"llama2", "mistral"}})

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, gen
}

func identifyTestUser(t *testing.T, router *gin.Engine, telegramID int64) int64 {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost, "/api/users/identify", map[string]any{
		"telegram_id": telegramID,
		"username":    fmt.Sprintf("user%d", telegramID),
		"first_name":  "Test",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.ID == 0 {
		t.Fatalf("expected user id")
	}
	return body.ID
}

func createTestChat(t *testing.T, router *gin.Engine, userID, characterID int64) int64 {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/chats", userID),
		map[string]any{"character_id": characterID}, nil)
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.ID == 0 {
		t.Fatalf("expected chat id")
	}
	return body.ID
}

func premiumCharacterID(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRow(`SELECT id FROM characters WHERE is_premium = 1 ORDER BY id LIMIT 1`).Scan(&id); err != nil {
		t.Fatalf("premium character: %v", err)
	}
	return id
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func countMessages(t *testing.T, db *sql.DB, chatID int64) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return count
}
