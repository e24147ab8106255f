// Package webhookd exposes the bridge over HTTP: the signed Slack events
// webhook plus small context and health endpoints.
package webhookd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clerkai/clerkbridge/agent"
	"github.com/clerkai/clerkbridge/contextstore"
)

const maxBodyBytes = 1 << 20

type RoutesOptions struct {
	SigningSecret string
	// AuthToken guards the context endpoints when set; empty leaves them open.
	AuthToken  string
	Store      *contextstore.Store
	Dispatcher *agent.Dispatcher
	Logger     *slog.Logger
	Now        func() time.Time
}

func RegisterRoutes(mux *http.ServeMux, opts RoutesOptions) {
	if mux == nil {
		return
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	authToken := strings.TrimSpace(opts.AuthToken)
	secret := strings.TrimSpace(opts.SigningSecret)
	store := opts.Store
	dispatcher := opts.Dispatcher

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"time": nowFn().UTC().Format(time.RFC3339Nano),
		})
	})

	mux.HandleFunc("/slack/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read failed", http.StatusBadRequest)
			return
		}
		if !VerifySignature(secret,
			r.Header.Get("X-Slack-Request-Timestamp"),
			r.Header.Get("X-Slack-Signature"),
			body, nowFn()) {
			logger.Warn("webhook_signature_rejected", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}

		var payload eventsPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if strings.TrimSpace(payload.Type) == "url_verification" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"challenge": payload.Challenge})
			return
		}

		if strings.TrimSpace(payload.Type) == "event_callback" {
			if event, ok := parseInboundEvent(payload); ok {
				handleEvent(r.Context(), logger, store, dispatcher, event)
			}
		}

		// The platform retries on anything but success; processing failures
		// are surfaced through logs only.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/context", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !checkAuth(r, authToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if store == nil {
			http.Error(w, "context store is unavailable", http.StatusServiceUnavailable)
			return
		}
		if strings.TrimSpace(r.URL.Query().Get("format")) == "json" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(store.Snapshot())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(store.Render()))
	})

	mux.HandleFunc("/context/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !checkAuth(r, authToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if store == nil {
			http.Error(w, "context store is unavailable", http.StatusServiceUnavailable)
			return
		}
		channelID := strings.TrimSpace(r.URL.Query().Get("channel"))
		w.Header().Set("Content-Type", "application/json")
		if err := store.Refresh(r.Context(), channelID); err != nil {
			logger.Error("context_refresh_failed", "channel_id", channelID, "error", err.Error())
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

// handleEvent runs classify/dispatch for one validated inbound message. It is
// shared by the webhook and socket ingestion paths.
func handleEvent(ctx context.Context, logger *slog.Logger, store *contextstore.Store, dispatcher *agent.Dispatcher, event InboundEvent) {
	correlationID := uuid.NewString()
	if store != nil {
		if err := store.Refresh(ctx, event.ChannelID); err != nil {
			logger.Warn("context_refresh_failed",
				"correlation_id", correlationID,
				"channel_id", event.ChannelID,
				"error", err.Error())
		}
	}
	if dispatcher == nil {
		return
	}
	intent := agent.Classify(event.Text)
	result := dispatcher.Dispatch(ctx, intent, event.Text, event.UserID)
	logger.Info("event_dispatched",
		"correlation_id", correlationID,
		"event_id", event.EventID,
		"channel_id", event.ChannelID,
		"user_id", event.UserID,
		"intent", string(intent),
		"result", result,
	)
}

// HandleEvent feeds an already-validated inbound message (e.g. from Socket
// Mode) through the same processing path as the webhook.
func HandleEvent(ctx context.Context, logger *slog.Logger, store *contextstore.Store, dispatcher *agent.Dispatcher, event InboundEvent) {
	if logger == nil {
		logger = slog.Default()
	}
	handleEvent(ctx, logger, store, dispatcher, event)
}

type ServerOptions struct {
	Listen string
	Routes RoutesOptions
}

func StartServer(ctx context.Context, logger *slog.Logger, opts ServerOptions) (*http.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	listen := strings.TrimSpace(opts.Listen)
	if listen == "" {
		return nil, errors.New("empty listen address")
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, opts.Routes)

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("webhook_server_error", "addr", listen, "error", err.Error())
		}
	}()

	logger.Info("webhook_server_start", "addr", listen, "events_path", "/slack/events")
	return srv, nil
}

func checkAuth(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bearer " + token
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
