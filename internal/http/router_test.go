package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/events"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/repository"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/service/auth"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/service/session"
	"github.com/EasyAdvertisers/alfreyaa-app/pkg/config"
)

type memoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
	byID    map[string]*domain.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: map[string]*domain.User{}, byID: map[string]*domain.User{}}
}

func (m *memoryUsers) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	return nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type memoryTurns struct {
	mu    sync.Mutex
	turns []domain.Turn
}

func (m *memoryTurns) AppendTurn(_ context.Context, turn *domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, *turn)
	return nil
}

func (m *memoryTurns) ListTurnsBySession(_ context.Context, sessionID string, _ int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Turn
	for _, t := range m.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

type echoCaps struct {
	block chan struct{}
}

func (c echoCaps) answer(text string) (domain.Result, error) {
	if c.block != nil {
		<-c.block
	}
	return domain.Result{Intent: domain.IntentPlainText, Text: text}, nil
}

func (c echoCaps) PlainText(_ context.Context, command string) (domain.Result, error) {
	return c.answer("echo: " + command)
}

func (c echoCaps) GroundedSearch(_ context.Context, command string) (domain.Result, error) {
	return c.answer("search: " + command)
}

func (c echoCaps) GenerateImage(_ context.Context, command string) (domain.Result, error) {
	return c.answer("image: " + command)
}

func (c echoCaps) AnalyzeURL(_ context.Context, command, _ string) (domain.Result, error) {
	return c.answer("url: " + command)
}

func (c echoCaps) ProposeChanges(_ context.Context, command string) (domain.Result, error) {
	return c.answer("code: " + command)
}

type noopDeployer struct{}

func (noopDeployer) Start(_ context.Context, sessionID, _ string, done func()) (domain.DeploymentRun, error) {
	if done != nil {
		done()
	}
	return domain.DeploymentRun{ID: "run-1", SessionID: sessionID, Status: domain.DeployStatusIdle}, nil
}

type routerEnv struct {
	server *httptest.Server
	router *Router
	hub    *events.Hub
	turns  *memoryTurns
}

func newRouterEnv(t *testing.T, caps session.Capabilities) *routerEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:       "router-test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
	hub := events.NewHub(logger)
	turns := &memoryTurns{}
	authSvc := auth.New(newMemoryUsers(), logger, cfg)
	sessionSvc := session.New(caps, noopDeployer{}, turns, hub, logger)
	router := NewRouter(logger, authSvc, sessionSvc, hub, nil, nil)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		router.Close()
	})
	return &routerEnv{server: server, router: router, hub: hub, turns: turns}
}

func (e *routerEnv) signup(t *testing.T, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": "hunter22"})
	resp, err := http.Post(e.server.URL+"/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("signup request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	var payload struct {
		Tokens struct {
			AccessToken string `json:"AccessToken"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	if payload.Tokens.AccessToken == "" {
		t.Fatal("signup returned no access token")
	}
	return payload.Tokens.AccessToken
}

func (e *routerEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("perform request: %v", err)
	}
	return resp
}

func TestSignupLoginFlow(t *testing.T) {
	env := newRouterEnv(t, echoCaps{})
	env.signup(t, "flow@example.com")

	body, _ := json.Marshal(map[string]string{"email": "flow@example.com", "password": "hunter22"})
	resp, err := http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	bad, _ := json.Marshal(map[string]string{"email": "flow@example.com", "password": "wrong"})
	resp2, err := http.Post(env.server.URL+"/auth/login", "application/json", bytes.NewReader(bad))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", resp2.StatusCode)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	env := newRouterEnv(t, echoCaps{})
	resp := env.do(t, http.MethodPost, "/chat", "", map[string]string{"command": "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestChatAcceptsCommandAndStreamsResult(t *testing.T) {
	env := newRouterEnv(t, echoCaps{})
	token := env.signup(t, "chat@example.com")

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/events?session_id=s1"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	resp := env.do(t, http.MethodPost, "/chat", token, map[string]string{"session_id": "s1", "command": "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	var accepted struct {
		SubmissionID string `json:"submission_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode accept response: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket event: %v", err)
	}
	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.SubmissionID != accepted.SubmissionID || event.Result == nil {
		t.Fatalf("event = %+v", event)
	}
	if event.Result.Text != "echo: hello" {
		t.Fatalf("result text = %q", event.Result.Text)
	}
}

func TestChatBusySessionConflicts(t *testing.T) {
	block := make(chan struct{})
	env := newRouterEnv(t, echoCaps{block: block})
	defer close(block)
	token := env.signup(t, "busy@example.com")

	first := env.do(t, http.MethodPost, "/chat", token, map[string]string{"session_id": "s1", "command": "one"})
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first chat status = %d", first.StatusCode)
	}

	var conflict *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conflict = env.do(t, http.MethodPost, "/chat", token, map[string]string{"session_id": "s1", "command": "two"})
		if conflict.StatusCode == http.StatusConflict {
			break
		}
		conflict.Body.Close()
		time.Sleep(10 * time.Millisecond)
	}
	defer conflict.Body.Close()
	if conflict.StatusCode != http.StatusConflict {
		t.Fatalf("second chat status = %d", conflict.StatusCode)
	}
}

func TestChatHistoryReturnsTurns(t *testing.T) {
	env := newRouterEnv(t, echoCaps{})
	token := env.signup(t, "history@example.com")

	resp := env.do(t, http.MethodPost, "/chat", token, map[string]string{"session_id": "s1", "command": "hello"})
	resp.Body.Close()

	var turns []map[string]any
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hist := env.do(t, http.MethodGet, "/chat/s1/history", token, nil)
		if err := json.NewDecoder(hist.Body).Decode(&turns); err != nil {
			t.Fatalf("decode history: %v", err)
		}
		hist.Body.Close()
		if len(turns) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(turns) != 2 {
		t.Fatalf("history length = %d", len(turns))
	}
	if turns[0]["role"] != "user" || turns[1]["role"] != "assistant" {
		t.Fatalf("history = %+v", turns)
	}
}

func TestEventsSSEStreamsResult(t *testing.T) {
	env := newRouterEnv(t, echoCaps{})
	token := env.signup(t, "sse@example.com")

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/events/s1", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sse request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sse status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Give the stream time to register with the hub before submitting.
	time.Sleep(50 * time.Millisecond)
	chat := env.do(t, http.MethodPost, "/chat", token, map[string]string{"session_id": "s1", "command": "hello"})
	chat.Body.Close()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("sse stream closed before event arrived")
			}
			if strings.HasPrefix(line, "data: ") {
				var event domain.Event
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
					t.Fatalf("decode sse event: %v", err)
				}
				if event.Result == nil || event.Result.Text != "echo: hello" {
					t.Fatalf("event = %+v", event)
				}
				return
			}
		case <-timeout:
			t.Fatal("no sse event received")
		}
	}
}

func TestHealthzReportsDatabaseState(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := events.NewHub(logger)
	authSvc := auth.New(newMemoryUsers(), logger, config.APIConfig{JWTSecret: "x", AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Hour})
	sessionSvc := session.New(echoCaps{}, noopDeployer{}, &memoryTurns{}, hub, logger)

	down := NewRouter(logger, authSvc, sessionSvc, hub, nil, func(context.Context) error {
		return fmt.Errorf("connection refused")
	})
	defer down.Close()

	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}

	up := NewRouter(logger, authSvc, sessionSvc, hub, nil, func(context.Context) error { return nil })
	defer up.Close()
	rec2 := httptest.NewRecorder()
	up.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d", rec2.Code)
	}
}
