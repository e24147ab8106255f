package servecmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/viper"

	"github.com/clerkai/clerkbridge/agent"
	"github.com/clerkai/clerkbridge/contextstore"
	"github.com/clerkai/clerkbridge/internal/webhookd"
	"github.com/clerkai/clerkbridge/services"
)

// runSocketMode ingests Slack events over a Socket Mode connection and feeds
// them through the same processing path as the webhook. The app token
// authenticates the transport, so no signature check applies here.
func runSocketMode(ctx context.Context, logger *slog.Logger, store *contextstore.Store, dispatcher *agent.Dispatcher) error {
	botToken := strings.TrimSpace(viper.GetString("slack.bot_token"))
	if botToken == "" {
		return &services.ConfigurationError{Key: "slack.bot_token"}
	}
	appToken := strings.TrimSpace(viper.GetString("slack.app_token"))
	if appToken == "" {
		return &services.ConfigurationError{Key: "slack.app_token"}
	}

	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeConnected:
				logger.Info("socket_mode_connected")
			case socketmode.EventTypeConnectionError:
				logger.Warn("socket_mode_connection_error")
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					client.Ack(*evt.Request)
				}
				if event, ok := inboundFromCallback(eventsAPIEvent); ok {
					webhookd.HandleEvent(ctx, logger, store, dispatcher, event)
				}
			}
		}
	}()

	logger.Info("socket_mode_start")
	err := client.RunContext(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// inboundFromCallback applies the same event-shape filter as the webhook:
// bot-authored messages, subtyped messages and empty bodies are dropped.
func inboundFromCallback(outer slackevents.EventsAPIEvent) (webhookd.InboundEvent, bool) {
	if outer.Type != slackevents.CallbackEvent {
		return webhookd.InboundEvent{}, false
	}

	var event webhookd.InboundEvent
	switch inner := outer.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if strings.TrimSpace(inner.SubType) != "" || strings.TrimSpace(inner.BotID) != "" {
			return webhookd.InboundEvent{}, false
		}
		event = webhookd.InboundEvent{
			ChannelID: strings.TrimSpace(inner.Channel),
			UserID:    strings.TrimSpace(inner.User),
			Text:      strings.TrimSpace(inner.Text),
			MessageTS: strings.TrimSpace(inner.TimeStamp),
			ThreadTS:  strings.TrimSpace(inner.ThreadTimeStamp),
		}
	case *slackevents.AppMentionEvent:
		if strings.TrimSpace(inner.BotID) != "" {
			return webhookd.InboundEvent{}, false
		}
		event = webhookd.InboundEvent{
			ChannelID: strings.TrimSpace(inner.Channel),
			UserID:    strings.TrimSpace(inner.User),
			Text:      strings.TrimSpace(inner.Text),
			MessageTS: strings.TrimSpace(inner.TimeStamp),
			ThreadTS:  strings.TrimSpace(inner.ThreadTimeStamp),
		}
	default:
		return webhookd.InboundEvent{}, false
	}

	if event.ChannelID == "" || event.UserID == "" || event.Text == "" {
		return webhookd.InboundEvent{}, false
	}
	return event, true
}
