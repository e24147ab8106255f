// Package contextstore owns the cached window of recent channel messages the
// bridge hands to downstream consumers. One Store instance is the single
// writer; all access goes through its lock.
package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clerkai/clerkbridge/services"
)

const (
	// fetchPageSize is the history window replaced on every refresh.
	fetchPageSize = 50
	renderLimit   = 20
)

// EmptySentinel is returned by Render when no history has been cached yet.
const EmptySentinel = "no conversation history available"

// Fetcher is the one capability the store needs from the service client.
type Fetcher interface {
	FetchMessages(ctx context.Context, channelID string, limit int) ([]services.Message, error)
}

// Context is the persisted snapshot: the last-fetched message batch, its
// source channel and the time it was taken. Replaced wholesale on refresh.
type Context struct {
	ChannelID string             `json:"channel_id"`
	UpdatedAt time.Time          `json:"updated_at"`
	Messages  []services.Message `json:"messages"`
}

type Options struct {
	Fetcher        Fetcher
	DefaultChannel string
	StatePath      string
	Logger         *slog.Logger
	Now            func() time.Time
}

type Store struct {
	mu        sync.RWMutex
	current   Context
	fetcher   Fetcher
	defChan   string
	statePath string
	logger    *slog.Logger
	nowFn     func() time.Time
}

// New builds a store. Fetcher may be nil for read-only use; Refresh then
// fails with an explicit error.
func New(opts Options) (*Store, error) {
	statePath := strings.TrimSpace(opts.StatePath)
	if statePath == "" {
		return nil, fmt.Errorf("state path is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{
		fetcher:   opts.Fetcher,
		defChan:   strings.TrimSpace(opts.DefaultChannel),
		statePath: statePath,
		logger:    logger,
		nowFn:     nowFn,
	}, nil
}

// Refresh fetches a fresh history window and replaces the cached context
// wholesale. A fetch failure leaves the stale context in place.
func (s *Store) Refresh(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		channelID = s.defChan
	}
	if channelID == "" {
		return &services.ConfigurationError{Key: "slack.default_channel_id"}
	}
	if s.fetcher == nil {
		return fmt.Errorf("no fetch capability configured")
	}

	messages, err := s.fetcher.FetchMessages(ctx, channelID, fetchPageSize)
	if err != nil {
		return fmt.Errorf("refreshing context for %s: %w", channelID, err)
	}

	next := Context{
		ChannelID: channelID,
		UpdatedAt: s.nowFn().UTC(),
		Messages:  messages,
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if err := s.persist(next); err != nil {
		s.logger.Error("context_persist_failed", "path", s.statePath, "error", err.Error())
	}
	s.logger.Info("context_refreshed", "channel_id", channelID, "messages", len(messages))
	return nil
}

// Load repopulates the store from the state file. A missing file leaves the
// store empty; a corrupt file is logged and ignored. Load never fails the
// process.
func (s *Store) Load() {
	raw, err := os.ReadFile(s.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("context_load_failed", "path", s.statePath, "error", err.Error())
		}
		return
	}
	var loaded Context
	if err := json.Unmarshal(raw, &loaded); err != nil {
		s.logger.Warn("context_load_corrupt", "path", s.statePath, "error", err.Error())
		return
	}
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	s.logger.Info("context_loaded", "channel_id", loaded.ChannelID, "messages", len(loaded.Messages))
}

// Snapshot returns a copy of the cached context.
func (s *Store) Snapshot() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := s.current
	cp.Messages = append([]services.Message(nil), s.current.Messages...)
	return cp
}

// Render formats the most recent cached messages as a bounded human-readable
// block for a text-consuming caller.
func (s *Store) Render() string {
	snapshot := s.Snapshot()
	if len(snapshot.Messages) == 0 {
		return EmptySentinel
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Channel: %s\n", snapshot.ChannelID)
	fmt.Fprintf(&b, "Updated: %s\n", snapshot.UpdatedAt.UTC().Format(time.RFC3339))

	messages := snapshot.Messages
	if len(messages) > renderLimit {
		messages = messages[:renderLimit]
	}
	for _, msg := range messages {
		author := msg.UserID
		if author == "" && msg.BotID != "" {
			author = msg.BotID
		}
		if author == "" {
			author = "unknown"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", renderTS(msg.TS), author, msg.Text)
	}
	return b.String()
}

func (s *Store) persist(snapshot Context) error {
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.statePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}

// renderTS converts a numeric Slack ts token into a readable UTC stamp.
// Non-numeric tokens are kept verbatim.
func renderTS(ts string) string {
	ts = strings.TrimSpace(ts)
	seconds, ok := parseSlackTS(ts)
	if !ok {
		return ts
	}
	return time.Unix(seconds, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

func parseSlackTS(ts string) (int64, bool) {
	if ts == "" {
		return 0, false
	}
	whole := ts
	if idx := strings.IndexByte(ts, '.'); idx >= 0 {
		whole = ts[:idx]
	}
	if whole == "" {
		return 0, false
	}
	var seconds int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, false
		}
		seconds = seconds*10 + int64(r-'0')
	}
	return seconds, true
}
