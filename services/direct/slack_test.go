package direct

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clerkai/clerkbridge/services"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := New(Options{
		SlackBotToken: "xoxb-test",
		SlackBaseURL:  srv.URL + "/slack/",
		JiraBaseURL:   srv.URL + "/jira",
		JiraEmail:     "bot@example.com",
		JiraAPIToken:  "jira-token",
		HTTPClient:    srv.Client(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func TestPostMessageReturnsTimestamp(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/slack/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "channel": "C100", "ts": "1722470400.000100"})
	})
	client := newTestClient(t, mux)

	ts, err := client.PostMessage(context.Background(), "C100", "hello", "")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if ts != "1722470400.000100" {
		t.Fatalf("ts = %q", ts)
	}
}

func TestPostMessageAPIErrorBecomesRemoteServiceError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/slack/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": false, "error": "channel_not_found"})
	})
	client := newTestClient(t, mux)

	_, err := client.PostMessage(context.Background(), "C404", "hello", "")
	var rse *services.RemoteServiceError
	if !errors.As(err, &rse) {
		t.Fatalf("err = %v, want RemoteServiceError", err)
	}
	if rse.Service != "slack" {
		t.Fatalf("Service = %q, want slack", rse.Service)
	}
}

func TestFetchMessagesNormalizesHistory(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/slack/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"ts": "1722470401.000200", "user": "U2", "text": "newest"},
				{"ts": "1722470400.000100", "user": "U1", "text": "older", "thread_ts": "1722470000.000001"},
			},
		})
	})
	client := newTestClient(t, mux)

	msgs, err := client.FetchMessages(context.Background(), "C100", 50)
	if err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Text != "newest" || msgs[0].UserID != "U2" {
		t.Fatalf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].ThreadTS != "1722470000.000001" {
		t.Fatalf("msgs[1].ThreadTS = %q", msgs[1].ThreadTS)
	}
}

func TestGetUserProfileNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/slack/users.info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": false, "error": "user_not_found"})
	})
	client := newTestClient(t, mux)

	_, err := client.GetUserProfile(context.Background(), "U404")
	var nf *services.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if nf.ID != "U404" {
		t.Fatalf("ID = %q, want U404", nf.ID)
	}
}

func TestGetUserProfileNormalizesFields(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/slack/users.info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"ok": true,
			"user": map[string]any{
				"id":        "U1",
				"real_name": "Ada Lovelace",
				"profile": map[string]any{
					"display_name": "ada",
					"email":        "ada@example.com",
				},
			},
		})
	})
	client := newTestClient(t, mux)

	profile, err := client.GetUserProfile(context.Background(), "U1")
	if err != nil {
		t.Fatalf("GetUserProfile() error = %v", err)
	}
	if profile.Email != "ada@example.com" || profile.DisplayName != "ada" || profile.RealName != "Ada Lovelace" {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestGetChannelInfoIncludesMembers(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/slack/conversations.info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"ok": true,
			"channel": map[string]any{
				"id":    "C100",
				"name":  "ops",
				"topic": map[string]any{"value": "daily ops"},
			},
		})
	})
	mux.HandleFunc("/slack/conversations.members", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"ok":                true,
			"members":           []string{"U1", "U2"},
			"response_metadata": map[string]any{"next_cursor": ""},
		})
	})
	client := newTestClient(t, mux)

	info, err := client.GetChannelInfo(context.Background(), "C100")
	if err != nil {
		t.Fatalf("GetChannelInfo() error = %v", err)
	}
	if info.Name != "ops" || info.Topic != "daily ops" {
		t.Fatalf("info = %+v", info)
	}
	if len(info.Members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(info.Members))
	}
}
