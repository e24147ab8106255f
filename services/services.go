// Package services defines the capability surface the bridge uses to reach
// Slack and Jira, independent of whether calls go through the vendor SDKs or
// through a tool-execution broker.
package services

import "context"

// Message is one channel message as returned by the Slack history capability.
// The TS token is vendor-defined and kept verbatim.
type Message struct {
	TS       string `json:"ts"`
	UserID   string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	RealName    string `json:"real_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

type ChannelInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Topic   string   `json:"topic,omitempty"`
	Members []string `json:"members,omitempty"`
}

type IssueRequest struct {
	ProjectKey  string
	Title       string
	Summary     string
	Description string
	IssueType   string
}

// MaxFetchLimit is the vendor cap on one history page.
const MaxFetchLimit = 1000

// Client is the capability interface shared by the direct and broker
// backends. All operations block until the vendor answers or ctx ends.
type Client interface {
	// PostMessage posts text to a channel (optionally into a thread) and
	// returns the vendor timestamp of the posted message.
	PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error)

	// FetchMessages returns up to limit recent messages in vendor order
	// (newest first). The limit is clamped to 1..MaxFetchLimit.
	FetchMessages(ctx context.Context, channelID string, limit int) ([]Message, error)

	// GetUserProfile resolves a Slack user id. Unknown users yield a
	// NotFoundError.
	GetUserProfile(ctx context.Context, userID string) (UserProfile, error)

	GetChannelInfo(ctx context.Context, channelID string) (ChannelInfo, error)

	// CreateIssue files a Jira issue and returns the vendor-assigned key.
	CreateIssue(ctx context.Context, req IssueRequest) (string, error)
}

func ClampFetchLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	if limit > MaxFetchLimit {
		return MaxFetchLimit
	}
	return limit
}
