// Package broker implements the services capability interface by relaying
// every vendor call through a generic tool-execution broker. Each logical
// capability maps to a named broker tool; responses come back in a uniform
// success/output/error envelope.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clerkai/clerkbridge/services"
)

const (
	toolSendMessage    = "Slack.SendMessage"
	toolFetchMessages  = "Slack.FetchMessages"
	toolGetUsersInfo   = "Slack.GetUsersInfo"
	toolChannelInfo    = "Slack.GetConversationMetadata"
	toolJiraCreate     = "Jira.CreateIssue"
	defaultAuthzWait   = 2 * time.Minute
	authzPollInterval  = 3 * time.Second
	statusCompleted    = "completed"
	statusPending      = "pending"
	defaultHTTPTimeout = 30 * time.Second
)

// AllTools lists every broker tool the bridge may invoke, in the order the
// authorization handshake walks them.
var AllTools = []string{toolSendMessage, toolFetchMessages, toolGetUsersInfo, toolChannelInfo, toolJiraCreate}

type Options struct {
	BaseURL string
	APIKey  string
	UserID  string
	// AuthzWait bounds how long Authorize blocks on a pending grant.
	AuthzWait  time.Duration
	HTTPClient *http.Client
	// AuthzURLNotify is called with the operator-facing authorization URL
	// when a grant is pending. Optional.
	AuthzURLNotify func(tool, url string)
}

type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	userID    string
	authzWait time.Duration
	pollEvery time.Duration
	notify    func(tool, url string)
}

var _ services.Client = (*Client)(nil)

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimSpace(strings.TrimRight(opts.BaseURL, "/"))
	if baseURL == "" {
		return nil, &services.ConfigurationError{Key: "broker.base_url"}
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, &services.ConfigurationError{Key: "broker.api_key"}
	}
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, &services.ConfigurationError{Key: "broker.user_id"}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	wait := opts.AuthzWait
	if wait <= 0 {
		wait = defaultAuthzWait
	}
	return &Client{
		http:      httpClient,
		baseURL:   baseURL,
		apiKey:    apiKey,
		userID:    userID,
		authzWait: wait,
		pollEvery: authzPollInterval,
		notify:    opts.AuthzURLNotify,
	}, nil
}

type executeRequest struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input"`
	UserID   string         `json:"user_id"`
}

type executeResponse struct {
	Success      bool            `json:"success"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type authorizeResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	URL    string `json:"url,omitempty"`
}

func (c *Client) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	input := map[string]any{
		"conversation_id": strings.TrimSpace(channelID),
		"text":            strings.TrimSpace(text),
	}
	if threadTS = strings.TrimSpace(threadTS); threadTS != "" {
		input["thread_ts"] = threadTS
	}
	output, err := c.execute(ctx, toolSendMessage, input)
	if err != nil {
		return "", err
	}
	ts, _ := output["ts"].(string)
	if strings.TrimSpace(ts) == "" {
		return "", &services.MalformedResponseError{Service: toolSendMessage, Detail: "output has no ts field"}
	}
	return ts, nil
}

func (c *Client) FetchMessages(ctx context.Context, channelID string, limit int) ([]services.Message, error) {
	output, err := c.execute(ctx, toolFetchMessages, map[string]any{
		"conversation_id": strings.TrimSpace(channelID),
		"limit":           services.ClampFetchLimit(limit),
	})
	if err != nil {
		return nil, err
	}
	rawList, ok := output["messages"].([]any)
	if !ok {
		return nil, &services.MalformedResponseError{Service: toolFetchMessages, Detail: "output has no messages list"}
	}
	out := make([]services.Message, 0, len(rawList))
	for _, raw := range rawList {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, &services.MalformedResponseError{Service: toolFetchMessages, Detail: "message entry is not an object"}
		}
		out = append(out, services.Message{
			TS:       stringField(item, "ts"),
			UserID:   stringField(item, "user"),
			Text:     stringField(item, "text"),
			ThreadTS: stringField(item, "thread_ts"),
			Subtype:  stringField(item, "subtype"),
			BotID:    stringField(item, "bot_id"),
		})
	}
	return out, nil
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	output, err := c.execute(ctx, toolGetUsersInfo, map[string]any{"user_id": userID})
	if err != nil {
		if isBrokerNotFound(err) {
			return services.UserProfile{}, &services.NotFoundError{Kind: "user", ID: userID}
		}
		return services.UserProfile{}, err
	}
	id := stringField(output, "id")
	if id == "" {
		return services.UserProfile{}, &services.MalformedResponseError{Service: toolGetUsersInfo, Detail: "output has no user id"}
	}
	return services.UserProfile{
		ID:          id,
		DisplayName: stringField(output, "display_name"),
		RealName:    stringField(output, "real_name"),
		Email:       stringField(output, "email"),
	}, nil
}

func (c *Client) GetChannelInfo(ctx context.Context, channelID string) (services.ChannelInfo, error) {
	output, err := c.execute(ctx, toolChannelInfo, map[string]any{
		"conversation_id": strings.TrimSpace(channelID),
	})
	if err != nil {
		return services.ChannelInfo{}, err
	}
	info := services.ChannelInfo{
		ID:    stringField(output, "id"),
		Name:  stringField(output, "name"),
		Topic: stringField(output, "topic"),
	}
	if rawMembers, ok := output["members"].([]any); ok {
		for _, raw := range rawMembers {
			if member, ok := raw.(string); ok && strings.TrimSpace(member) != "" {
				info.Members = append(info.Members, member)
			}
		}
	}
	return info, nil
}

func (c *Client) CreateIssue(ctx context.Context, req services.IssueRequest) (string, error) {
	issueType := strings.TrimSpace(req.IssueType)
	if issueType == "" {
		issueType = "Task"
	}
	output, err := c.execute(ctx, toolJiraCreate, map[string]any{
		"title":       strings.TrimSpace(req.Title),
		"project_key": strings.TrimSpace(req.ProjectKey),
		"summary":     strings.TrimSpace(req.Summary),
		"description": strings.TrimSpace(req.Description),
		"issue_type":  issueType,
	})
	if err != nil {
		return "", err
	}
	// The broker has shipped the key under both names; only these two
	// aliases are accepted.
	key := stringField(output, "created_key")
	if key == "" {
		key = stringField(output, "key")
	}
	if key == "" {
		return "", &services.MalformedResponseError{Service: toolJiraCreate, Detail: "output has no created_key or key field"}
	}
	return key, nil
}

// Authorize runs the grant handshake for one tool. A pending grant logs the
// authorization URL through the notify hook and polls until granted, the
// bounded wait elapses, or ctx ends.
func (c *Client) Authorize(ctx context.Context, tool string) error {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return fmt.Errorf("tool name is required")
	}
	var authz authorizeResponse
	if err := c.postJSON(ctx, "/v1/tools/authorize", map[string]any{
		"tool_name": tool,
		"user_id":   c.userID,
	}, &authz); err != nil {
		return err
	}
	status := strings.TrimSpace(authz.Status)
	if status == statusCompleted {
		return nil
	}
	if status != statusPending {
		return &services.AuthorizationError{Tool: tool, Status: status, URL: authz.URL}
	}
	if c.notify != nil && strings.TrimSpace(authz.URL) != "" {
		c.notify(tool, authz.URL)
	}

	deadline := time.Now().Add(c.authzWait)
	for time.Now().Before(deadline) {
		if err := sleepWithContext(ctx, c.pollEvery); err != nil {
			return &services.AuthorizationError{Tool: tool, Status: statusPending, URL: authz.URL}
		}
		var polled authorizeResponse
		if err := c.getJSON(ctx, "/v1/auth/status?id="+strings.TrimSpace(authz.ID), &polled); err != nil {
			return err
		}
		switch strings.TrimSpace(polled.Status) {
		case statusCompleted:
			return nil
		case statusPending:
			continue
		default:
			return &services.AuthorizationError{Tool: tool, Status: polled.Status, URL: authz.URL}
		}
	}
	return &services.AuthorizationError{Tool: tool, Status: statusPending, URL: authz.URL}
}

// EnsureAuthorized walks the grant handshake for every tool the bridge uses.
func (c *Client) EnsureAuthorized(ctx context.Context) error {
	for _, tool := range AllTools {
		if err := c.Authorize(ctx, tool); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) execute(ctx context.Context, tool string, input map[string]any) (map[string]any, error) {
	var envelope executeResponse
	if err := c.postJSON(ctx, "/v1/tools/execute", executeRequest{
		ToolName: tool,
		Input:    input,
		UserID:   c.userID,
	}, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, &services.RemoteServiceError{
			Service: tool,
			Code:    strings.TrimSpace(envelope.ErrorCode),
			Message: strings.TrimSpace(envelope.ErrorMessage),
		}
	}
	output := map[string]any{}
	if len(envelope.Output) > 0 {
		if err := json.Unmarshal(envelope.Output, &output); err != nil {
			return nil, &services.MalformedResponseError{Service: tool, Detail: "output is not a JSON object"}
		}
	}
	if apiErr := stringField(output, "error"); apiErr != "" {
		return nil, &services.RemoteServiceError{Service: tool, Code: "api_error", Message: apiErr}
	}
	return output, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &services.RemoteServiceError{Service: "broker", Code: "request_failed", Message: err.Error()}
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &services.RemoteServiceError{Service: "broker", Code: "read_failed", Message: readErr.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &services.RemoteServiceError{
			Service: "broker",
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &services.MalformedResponseError{Service: "broker", Detail: "response is not valid JSON"}
	}
	return nil
}

func isBrokerNotFound(err error) bool {
	var rse *services.RemoteServiceError
	if !errors.As(err, &rse) {
		return false
	}
	code := strings.ToLower(strings.TrimSpace(rse.Code))
	return code == "not_found" || code == "user_not_found" || code == "users_not_found"
}

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return strings.TrimSpace(value)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
