package webhookd

import (
	"encoding/json"
	"strings"
)

type eventsPayload struct {
	Type      string          `json:"type,omitempty"`
	Challenge string          `json:"challenge,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

type slackEvent struct {
	Type     string `json:"type,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

// InboundEvent is one user-authored message worth dispatching.
type InboundEvent struct {
	ChannelID string
	UserID    string
	Text      string
	MessageTS string
	ThreadTS  string
	EventID   string
}

// parseInboundEvent extracts a dispatchable message from an event_callback
// payload. Bot-authored messages, any subtype (edits, deletes, bot_message)
// and empty bodies are dropped.
func parseInboundEvent(payload eventsPayload) (InboundEvent, bool) {
	if len(payload.Event) == 0 {
		return InboundEvent{}, false
	}
	var event slackEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		return InboundEvent{}, false
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType != "message" && eventType != "app_mention" {
		return InboundEvent{}, false
	}
	if strings.TrimSpace(event.Subtype) != "" {
		return InboundEvent{}, false
	}
	if strings.TrimSpace(event.BotID) != "" {
		return InboundEvent{}, false
	}
	userID := strings.TrimSpace(event.User)
	if userID == "" {
		return InboundEvent{}, false
	}
	channelID := strings.TrimSpace(event.Channel)
	if channelID == "" {
		return InboundEvent{}, false
	}
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return InboundEvent{}, false
	}
	return InboundEvent{
		ChannelID: channelID,
		UserID:    userID,
		Text:      text,
		MessageTS: strings.TrimSpace(event.TS),
		ThreadTS:  strings.TrimSpace(event.ThreadTS),
		EventID:   strings.TrimSpace(payload.EventID),
	}, true
}
