package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taskpilot/taskpilot/internal/agent"
	"github.com/taskpilot/taskpilot/internal/auth"
	"github.com/taskpilot/taskpilot/internal/llm"
	"github.com/taskpilot/taskpilot/internal/memory"
	"github.com/taskpilot/taskpilot/internal/storage"
	"github.com/taskpilot/taskpilot/internal/task"
	"github.com/taskpilot/taskpilot/internal/tools"
)

// scriptedClient replays canned model responses in order.
type scriptedClient struct {
	responses []*llm.ChatResponse
	err       error
	calls     int
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.calls >= len(c.responses) {
		return nil, errors.New("script exhausted")
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

type testEnv struct {
	handler http.Handler
	tasks   *task.Store
	mem     *memory.Store
	client  *scriptedClient
}

func newTestEnv(t *testing.T, client *scriptedClient) *testEnv {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users, err := auth.NewStore(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := task.NewStore(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := memory.NewStore(db, nil)
	if err != nil {
		t.Fatal(err)
	}

	if client == nil {
		client = &scriptedClient{}
	}
	registry := tools.NewRegistry(tasks, nil)
	loop := agent.NewLoop(client, "test-model", registry, mem, 5, 20, nil)

	tokens := auth.NewTokens("test-secret", time.Hour, 2*time.Hour)
	srv := NewServer("", 0, users, tokens, tasks, mem, loop, nil, nil)

	return &testEnv{handler: srv.Handler(), tasks: tasks, mem: mem, client: client}
}

// do sends a JSON request through the handler and decodes the response.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: response is not JSON: %v (%q)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, decoded
}

// signup registers a user and returns an access token.
func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": email, "password": "pw123456", "name": "Test User",
	})
	if code != http.StatusCreated {
		t.Fatalf("signup = %d: %v", code, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatal("signup returned no access token")
	}
	return token
}

func TestHealthAndVersion(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/version", "", nil)
	if code != http.StatusOK || body["version"] == "" {
		t.Errorf("version = %d %v", code, body)
	}
}

func TestSignupSigninRefresh(t *testing.T) {
	e := newTestEnv(t, nil)

	code, body := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "a@b.com", "password": "pw", "name": "A",
	})
	if code != http.StatusCreated {
		t.Fatalf("signup = %d: %v", code, body)
	}
	if body["token_type"] != "bearer" {
		t.Errorf("token_type = %v", body["token_type"])
	}

	t.Run("duplicate email", func(t *testing.T) {
		code, body := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
			"email": "a@b.com", "password": "other", "name": "B",
		})
		if code != http.StatusConflict || body["error"] != "email already registered" {
			t.Errorf("got %d %v", code, body)
		}
	})

	t.Run("signup validation", func(t *testing.T) {
		tests := []map[string]string{
			{"email": "not-an-email", "password": "pw", "name": "A"},
			{"email": "b@c.com", "password": "", "name": "A"},
			{"email": "b@c.com", "password": "pw", "name": " "},
		}
		for _, req := range tests {
			if code, _ := e.do(t, http.MethodPost, "/auth/signup", "", req); code != http.StatusBadRequest {
				t.Errorf("signup %v = %d, want 400", req, code)
			}
		}
	})

	t.Run("signin", func(t *testing.T) {
		code, body := e.do(t, http.MethodPost, "/auth/signin", "", map[string]string{
			"email": "a@b.com", "password": "pw",
		})
		if code != http.StatusOK || body["access_token"] == "" {
			t.Errorf("signin = %d %v", code, body)
		}

		code, body = e.do(t, http.MethodPost, "/auth/signin", "", map[string]string{
			"email": "a@b.com", "password": "wrong",
		})
		if code != http.StatusUnauthorized || body["error"] != "invalid credentials" {
			t.Errorf("bad signin = %d %v", code, body)
		}
	})

	t.Run("refresh", func(t *testing.T) {
		refresh, _ := body["refresh_token"].(string)
		code, fresh := e.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
			"refresh_token": refresh,
		})
		if code != http.StatusOK || fresh["access_token"] == "" {
			t.Errorf("refresh = %d %v", code, fresh)
		}

		code, bad := e.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
			"refresh_token": "garbage",
		})
		if code != http.StatusUnauthorized || bad["error"] != "invalid refresh token" {
			t.Errorf("bad refresh = %d %v", code, bad)
		}
	})
}

func TestAPIRequiresAuth(t *testing.T) {
	e := newTestEnv(t, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/chat"},
		{http.MethodGet, "/api/conversations"},
	}
	for _, p := range paths {
		if code, _ := e.do(t, p.method, p.path, "", nil); code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", p.method, p.path, code)
		}
	}
}

func TestTaskCRUD(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.signup(t, "crud@b.com")

	code, created := e.do(t, http.MethodPost, "/api/tasks", token, map[string]string{
		"title": "Buy milk", "description": "2 liters",
	})
	if code != http.StatusCreated {
		t.Fatalf("create = %d: %v", code, created)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created task has no id")
	}
	if _, hasOwner := created["owner_id"]; hasOwner {
		t.Error("owner_id must not be serialized")
	}

	t.Run("get", func(t *testing.T) {
		code, got := e.do(t, http.MethodGet, "/api/tasks/"+id, token, nil)
		if code != http.StatusOK || got["title"] != "Buy milk" {
			t.Errorf("get = %d %v", code, got)
		}
	})

	t.Run("list with counts", func(t *testing.T) {
		code, got := e.do(t, http.MethodGet, "/api/tasks", token, nil)
		if code != http.StatusOK {
			t.Fatalf("list = %d", code)
		}
		list, _ := got["tasks"].([]any)
		if len(list) != 1 || got["total"] != float64(1) || got["pending"] != float64(1) {
			t.Errorf("list = %v", got)
		}
	})

	t.Run("update", func(t *testing.T) {
		code, got := e.do(t, http.MethodPut, "/api/tasks/"+id, token, map[string]string{
			"title": "Buy oat milk",
		})
		if code != http.StatusOK || got["title"] != "Buy oat milk" {
			t.Errorf("update = %d %v", code, got)
		}
		if got["description"] != "2 liters" {
			t.Errorf("description = %v, should be unchanged", got["description"])
		}
	})

	t.Run("complete toggle", func(t *testing.T) {
		code, got := e.do(t, http.MethodPost, "/api/tasks/"+id+"/complete", token, nil)
		if code != http.StatusOK || got["completed"] != true {
			t.Errorf("complete = %d %v", code, got)
		}
	})

	t.Run("invalid status filter", func(t *testing.T) {
		code, got := e.do(t, http.MethodGet, "/api/tasks?status=done", token, nil)
		if code != http.StatusBadRequest {
			t.Errorf("got %d %v, want 400", code, got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/tasks/"+id, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete = %d", rec.Code)
		}

		code, _ := e.do(t, http.MethodGet, "/api/tasks/"+id, token, nil)
		if code != http.StatusNotFound {
			t.Errorf("get after delete = %d, want 404", code)
		}
	})
}

func TestTaskIsolationBetweenUsers(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.signup(t, "alice@b.com")
	bob := e.signup(t, "bob@b.com")

	_, created := e.do(t, http.MethodPost, "/api/tasks", alice, map[string]string{"title": "secret"})
	id, _ := created["id"].(string)

	// Bob gets the same 404 whether the ID exists or not.
	code, body := e.do(t, http.MethodGet, "/api/tasks/"+id, bob, nil)
	if code != http.StatusNotFound || body["error"] != "task not found" {
		t.Errorf("cross-user get = %d %v, want 404 task not found", code, body)
	}
	code, _ = e.do(t, http.MethodGet, "/api/tasks/no-such-id", bob, nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown id get = %d, want 404", code)
	}

	code, body = e.do(t, http.MethodGet, "/api/tasks", bob, nil)
	if code != http.StatusOK {
		t.Fatal(code)
	}
	if list, _ := body["tasks"].([]any); len(list) != 0 {
		t.Errorf("bob sees %d tasks, want 0", len(list))
	}
}

func TestChatFlow(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{
			ID: "call_1",
			Function: llm.FunctionCall{
				Name:      "add_task",
				Arguments: map[string]any{"title": "Buy milk"},
			},
		}}}},
		{Message: llm.Message{Role: "assistant", Content: "Added Buy milk!"}, Done: true},
	}}
	e := newTestEnv(t, client)
	token := e.signup(t, "chat@b.com")

	code, body := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{
		"message": "add buy milk to my list",
	})
	if code != http.StatusOK {
		t.Fatalf("chat = %d: %v", code, body)
	}
	if body["response"] != "Added Buy milk!" {
		t.Errorf("response = %v", body["response"])
	}
	if body["status"] != "success" {
		t.Errorf("status = %v", body["status"])
	}
	toolCalls, _ := body["tool_calls"].([]any)
	if len(toolCalls) != 1 {
		t.Fatalf("tool_calls = %v, want 1 entry", body["tool_calls"])
	}
	if entry, _ := toolCalls[0].(map[string]any); entry["name"] != "add_task" {
		t.Errorf("tool_calls[0] = %v", toolCalls[0])
	}
	convID, _ := body["conversation_id"].(string)
	if convID == "" {
		t.Fatal("chat returned no conversation_id")
	}

	// The tool ran against the caller's task list.
	code, tasksBody := e.do(t, http.MethodGet, "/api/tasks", token, nil)
	if code != http.StatusOK {
		t.Fatal(code)
	}
	if list, _ := tasksBody["tasks"].([]any); len(list) != 1 {
		t.Fatalf("tasks after chat = %v", tasksBody)
	}

	t.Run("conversation list", func(t *testing.T) {
		code, body := e.do(t, http.MethodGet, "/api/conversations", token, nil)
		if code != http.StatusOK || body["count"] != float64(1) {
			t.Errorf("conversations = %d %v", code, body)
		}
	})

	t.Run("conversation detail", func(t *testing.T) {
		code, body := e.do(t, http.MethodGet, "/api/conversations/"+convID, token, nil)
		if code != http.StatusOK {
			t.Fatalf("conversation get = %d", code)
		}
		conv, _ := body["conversation"].(map[string]any)
		if conv["title"] != "add buy milk to my list" {
			t.Errorf("title = %v", conv["title"])
		}
		msgs, _ := body["messages"].([]any)
		// user, assistant(tool_calls), tool, assistant
		if len(msgs) != 4 {
			t.Errorf("messages = %d, want 4", len(msgs))
		}
	})

	t.Run("tool call audit", func(t *testing.T) {
		code, body := e.do(t, http.MethodGet, "/api/conversations/"+convID+"/tools", token, nil)
		if code != http.StatusOK || body["count"] != float64(1) {
			t.Fatalf("tools = %d %v", code, body)
		}
		calls, _ := body["tool_calls"].([]any)
		first, _ := calls[0].(map[string]any)
		if first["tool_name"] != "add_task" {
			t.Errorf("tool_name = %v", first["tool_name"])
		}
	})

	t.Run("other user forbidden", func(t *testing.T) {
		other := e.signup(t, "other@b.com")
		code, body := e.do(t, http.MethodGet, "/api/conversations/"+convID, other, nil)
		if code != http.StatusForbidden {
			t.Errorf("cross-user conversation get = %d %v, want 403", code, body)
		}
		code, _ = e.do(t, http.MethodGet, "/api/conversations/no-such-id", other, nil)
		if code != http.StatusNotFound {
			t.Errorf("unknown conversation get = %d, want 404", code)
		}
	})
}

func TestChatValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.signup(t, "v@b.com")

	tests := []struct {
		name    string
		message string
		wantErr string
	}{
		{"empty", "", "message is required"},
		{"whitespace only", "   ", "message is required"},
		{"too long", strings.Repeat("x", 5001), "message exceeds 5000 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{
				"message": tt.message,
			})
			if code != http.StatusBadRequest || body["error"] != tt.wantErr {
				t.Errorf("got %d %v, want 400 %q", code, body, tt.wantErr)
			}
		})
	}
}

func TestChatModelFailureDegrades(t *testing.T) {
	e := newTestEnv(t, &scriptedClient{err: errors.New("upstream down")})
	token := e.signup(t, "down@b.com")

	code, body := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{
		"message": "hello",
	})
	// A failed model call degrades the turn rather than erroring it.
	if code != http.StatusOK {
		t.Fatalf("chat = %d %v, want 200", code, body)
	}
	if body["status"] != "error" {
		t.Errorf("status = %v", body["status"])
	}
	if body["response"] != degradedResponse {
		t.Errorf("response = %v", body["response"])
	}

	// The degraded reply is persisted so the transcript stays coherent.
	convID, _ := body["conversation_id"].(string)
	code, detail := e.do(t, http.MethodGet, "/api/conversations/"+convID, token, nil)
	if code != http.StatusOK {
		t.Fatal(code)
	}
	msgs, _ := detail["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want user + degraded assistant", len(msgs))
	}
}

func TestChatContinuesConversation(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "first"}, Done: true},
		{Message: llm.Message{Role: "assistant", Content: "second"}, Done: true},
	}}
	e := newTestEnv(t, client)
	token := e.signup(t, "cont@b.com")

	_, first := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "one"})
	convID, _ := first["conversation_id"].(string)

	code, second := e.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"message": "two", "conversation_id": convID,
	})
	if code != http.StatusOK || second["conversation_id"] != convID {
		t.Errorf("continuation = %d %v", code, second)
	}

	code, body := e.do(t, http.MethodGet, "/api/conversations", token, nil)
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("still one conversation, got %v", body)
	}
}

func TestConversationArchive(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "hi"}, Done: true},
	}}
	e := newTestEnv(t, client)
	token := e.signup(t, "arch@b.com")

	_, body := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hello"})
	convID, _ := body["conversation_id"].(string)
	if convID == "" {
		t.Fatal("chat returned no conversation_id")
	}

	code, _ := e.do(t, http.MethodDelete, "/api/conversations/"+convID, token, nil)
	if code != http.StatusNoContent {
		t.Fatalf("archive = %d, want 204", code)
	}

	// Hidden from the listing but still retrievable by ID.
	code, body = e.do(t, http.MethodGet, "/api/conversations", token, nil)
	if code != http.StatusOK || body["count"] != float64(0) {
		t.Errorf("list after archive = %d %v, want empty", code, body)
	}
	code, body = e.do(t, http.MethodGet, "/api/conversations/"+convID, token, nil)
	if code != http.StatusOK {
		t.Fatalf("archived conversation get = %d", code)
	}
	conv, _ := body["conversation"].(map[string]any)
	if conv["archived"] != true {
		t.Errorf("archived = %v", conv["archived"])
	}

	t.Run("other user forbidden", func(t *testing.T) {
		other := e.signup(t, "arch2@b.com")
		code, _ := e.do(t, http.MethodDelete, "/api/conversations/"+convID, other, nil)
		if code != http.StatusForbidden {
			t.Errorf("cross-user archive = %d, want 403", code)
		}
	})
}
