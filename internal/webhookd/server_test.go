package webhookd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clerkai/clerkbridge/agent"
	"github.com/clerkai/clerkbridge/contextstore"
	"github.com/clerkai/clerkbridge/services"
)

const testSecret = "signing-secret"

var testNow = time.Unix(1722470400, 0)

type fakeClient struct {
	messages    []services.Message
	fetchCalls  int
	issueKey    string
	createCalls int
	gotIssue    services.IssueRequest
	postedTexts []string
	profile     services.UserProfile
	profileErr  error
}

func (f *fakeClient) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	f.postedTexts = append(f.postedTexts, text)
	return "1722470500.000100", nil
}

func (f *fakeClient) FetchMessages(ctx context.Context, channelID string, limit int) ([]services.Message, error) {
	f.fetchCalls++
	return f.messages, nil
}

func (f *fakeClient) GetUserProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	return f.profile, f.profileErr
}

func (f *fakeClient) GetChannelInfo(ctx context.Context, channelID string) (services.ChannelInfo, error) {
	return services.ChannelInfo{ID: channelID}, nil
}

func (f *fakeClient) CreateIssue(ctx context.Context, req services.IssueRequest) (string, error) {
	f.createCalls++
	f.gotIssue = req
	return f.issueKey, nil
}

func newTestMux(t *testing.T, client *fakeClient, authToken string) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := contextstore.New(contextstore.Options{
		Fetcher:        client,
		DefaultChannel: "C100",
		StatePath:      filepath.Join(t.TempDir(), "context.json"),
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("contextstore.New() error = %v", err)
	}
	dispatcher, err := agent.NewDispatcher(agent.DispatcherOptions{
		Client:         client,
		DefaultChannel: "C100",
		ProjectKey:     "PROJ",
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, RoutesOptions{
		SigningSecret: testSecret,
		AuthToken:     authToken,
		Store:         store,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Now:           func() time.Time { return testNow },
	})
	return mux
}

func postSignedEvent(t *testing.T, mux *http.ServeMux, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	timestamp := fmt.Sprint(testNow.Unix())
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", signBody(testSecret, timestamp, body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestEventCreatesTicketAndConfirms(t *testing.T) {
	t.Parallel()

	client := &fakeClient{issueKey: "PROJ-123", profile: services.UserProfile{ID: "U1", Email: "u1@example.com"}}
	mux := newTestMux(t, client, "")

	rec := postSignedEvent(t, mux, map[string]any{
		"type":     "event_callback",
		"event_id": "Ev001",
		"event": map[string]any{
			"type":    "message",
			"user":    "U1",
			"channel": "C100",
			"ts":      "1722470399.000100",
			"text":    "please create a task for the report",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["status"] != "ok" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if client.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", client.createCalls)
	}
	if client.gotIssue.Title != "please create a task for the report" {
		t.Fatalf("title = %q", client.gotIssue.Title)
	}
	if len(client.postedTexts) != 1 || !strings.Contains(client.postedTexts[0], "PROJ-123") {
		t.Fatalf("confirmations = %v", client.postedTexts)
	}
	if client.fetchCalls != 1 {
		t.Fatalf("fetchCalls = %d, want 1 (context refresh)", client.fetchCalls)
	}
}

func TestBotMessageSkippedButAcked(t *testing.T) {
	t.Parallel()

	client := &fakeClient{issueKey: "PROJ-1"}
	mux := newTestMux(t, client, "")

	rec := postSignedEvent(t, mux, map[string]any{
		"type": "event_callback",
		"event": map[string]any{
			"type":    "message",
			"subtype": "bot_message",
			"bot_id":  "B99",
			"channel": "C100",
			"ts":      "1722470399.000100",
			"text":    "please create a task",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if client.createCalls != 0 {
		t.Fatalf("createCalls = %d, want 0", client.createCalls)
	}
	if client.fetchCalls != 0 {
		t.Fatalf("fetchCalls = %d, want 0", client.fetchCalls)
	}
}

func TestEditSubtypeSkipped(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	mux := newTestMux(t, client, "")

	rec := postSignedEvent(t, mux, map[string]any{
		"type": "event_callback",
		"event": map[string]any{
			"type":    "message",
			"subtype": "message_changed",
			"user":    "U1",
			"channel": "C100",
			"ts":      "1722470399.000100",
			"text":    "please create a task",
		},
	})
	if rec.Code != http.StatusOK || client.createCalls != 0 {
		t.Fatalf("status = %d, createCalls = %d", rec.Code, client.createCalls)
	}
}

func TestBadSignatureRejectedWithoutSideEffects(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	mux := newTestMux(t, client, "")

	body := []byte(`{"type":"event_callback","event":{"type":"message","user":"U1","channel":"C100","text":"please create a task"}}`)
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", fmt.Sprint(testNow.Unix()))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if client.createCalls != 0 || client.fetchCalls != 0 {
		t.Fatalf("side effects performed: create=%d fetch=%d", client.createCalls, client.fetchCalls)
	}
}

func TestURLVerificationChallengeEcho(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &fakeClient{}, "")

	rec := postSignedEvent(t, mux, map[string]any{
		"type":      "url_verification",
		"challenge": "challenge-token-123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if resp["challenge"] != "challenge-token-123" {
		t.Fatalf("challenge = %q", resp["challenge"])
	}
}

func TestUnknownUserStillCreatesTicket(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		issueKey:   "PROJ-9",
		profileErr: &services.NotFoundError{Kind: "user", ID: "U404"},
	}
	mux := newTestMux(t, client, "")

	rec := postSignedEvent(t, mux, map[string]any{
		"type": "event_callback",
		"event": map[string]any{
			"type":    "message",
			"user":    "U404",
			"channel": "C100",
			"ts":      "1722470399.000100",
			"text":    "please create a task",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if client.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", client.createCalls)
	}
	if !strings.Contains(client.gotIssue.Description, "unknown@clerkbridge.local") {
		t.Fatalf("description = %q", client.gotIssue.Description)
	}
}

func TestContextEndpointRendersAndRefreshes(t *testing.T) {
	t.Parallel()

	client := &fakeClient{messages: []services.Message{
		{TS: "1722470399.000100", UserID: "U1", Text: "recent message"},
	}}
	mux := newTestMux(t, client, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/context/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/context", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("context status = %d", rec.Code)
	}
	raw, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(raw), "recent message") {
		t.Fatalf("rendered = %q", raw)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/context?format=json", nil))
	var snapshot contextstore.Context
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("json snapshot: %v", err)
	}
	if snapshot.ChannelID != "C100" || len(snapshot.Messages) != 1 {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestContextEndpointsBearerGuard(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &fakeClient{}, "context-token")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/context", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/context", nil)
	req.Header.Set("Authorization", "Bearer context-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t, &fakeClient{}, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["ok"] != true {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
