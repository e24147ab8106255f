// Package direct implements the services capability interface with direct
// vendor clients: slack-go for the Slack Web API and go-jira for Jira.
package direct

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/clerkai/clerkbridge/services"
)

type Options struct {
	SlackBotToken string
	SlackBaseURL  string // override for tests; default https://slack.com/api/
	JiraBaseURL   string
	JiraEmail     string
	JiraAPIToken  string
	HTTPClient    *http.Client
}

// Client reaches Slack and Jira through their vendor surfaces and normalizes
// responses and failures into the services contract.
type Client struct {
	slack *slack.Client
	jira  *jiraIssueAPI
}

var _ services.Client = (*Client)(nil)

func New(opts Options) (*Client, error) {
	botToken := strings.TrimSpace(opts.SlackBotToken)
	if botToken == "" {
		return nil, &services.ConfigurationError{Key: "slack.bot_token"}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	slackOpts := []slack.Option{slack.OptionHTTPClient(httpClient)}
	if baseURL := strings.TrimSpace(opts.SlackBaseURL); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		slackOpts = append(slackOpts, slack.OptionAPIURL(baseURL))
	}

	jiraAPI, err := newJiraIssueAPI(opts, httpClient)
	if err != nil {
		return nil, err
	}

	return &Client{
		slack: slack.New(botToken, slackOpts...),
		jira:  jiraAPI,
	}, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	channelID = strings.TrimSpace(channelID)
	text = strings.TrimSpace(text)
	if channelID == "" {
		return "", &services.RemoteServiceError{Service: "slack", Code: "invalid_request", Message: "channel_id is required"}
	}
	if text == "" {
		return "", &services.RemoteServiceError{Service: "slack", Code: "invalid_request", Message: "text is required"}
	}
	msgOpts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS = strings.TrimSpace(threadTS); threadTS != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := c.slack.PostMessageContext(ctx, channelID, msgOpts...)
	if err != nil {
		return "", slackError(err)
	}
	return ts, nil
}

func (c *Client) FetchMessages(ctx context.Context, channelID string, limit int) ([]services.Message, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, &services.RemoteServiceError{Service: "slack", Code: "invalid_request", Message: "channel_id is required"}
	}
	resp, err := c.slack.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     services.ClampFetchLimit(limit),
	})
	if err != nil {
		return nil, slackError(err)
	}
	out := make([]services.Message, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		out = append(out, services.Message{
			TS:       msg.Timestamp,
			UserID:   msg.User,
			Text:     msg.Text,
			ThreadTS: msg.ThreadTimestamp,
			Subtype:  msg.SubType,
			BotID:    msg.BotID,
		})
	}
	return out, nil
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return services.UserProfile{}, &services.RemoteServiceError{Service: "slack", Code: "invalid_request", Message: "user_id is required"}
	}
	user, err := c.slack.GetUserInfoContext(ctx, userID)
	if err != nil {
		if isSlackNotFound(err) {
			return services.UserProfile{}, &services.NotFoundError{Kind: "user", ID: userID}
		}
		return services.UserProfile{}, slackError(err)
	}
	return services.UserProfile{
		ID:          user.ID,
		DisplayName: user.Profile.DisplayName,
		RealName:    user.RealName,
		Email:       user.Profile.Email,
	}, nil
}

func (c *Client) GetChannelInfo(ctx context.Context, channelID string) (services.ChannelInfo, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return services.ChannelInfo{}, &services.RemoteServiceError{Service: "slack", Code: "invalid_request", Message: "channel_id is required"}
	}
	channel, err := c.slack.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		if isSlackNotFound(err) {
			return services.ChannelInfo{}, &services.NotFoundError{Kind: "channel", ID: channelID}
		}
		return services.ChannelInfo{}, slackError(err)
	}
	members, _, err := c.slack.GetUsersInConversationContext(ctx, &slack.GetUsersInConversationParameters{ChannelID: channelID})
	if err != nil {
		return services.ChannelInfo{}, slackError(err)
	}
	return services.ChannelInfo{
		ID:      channel.ID,
		Name:    channel.Name,
		Topic:   channel.Topic.Value,
		Members: members,
	}, nil
}

func (c *Client) CreateIssue(ctx context.Context, req services.IssueRequest) (string, error) {
	return c.jira.createIssue(ctx, req)
}

func slackError(err error) error {
	code := strings.TrimSpace(err.Error())
	return &services.RemoteServiceError{Service: "slack", Code: code}
}

func isSlackNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user_not_found") ||
		strings.Contains(msg, "users_not_found") ||
		strings.Contains(msg, "channel_not_found")
}
