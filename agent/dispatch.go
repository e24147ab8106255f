package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clerkai/clerkbridge/services"
)

const (
	// titleMaxChars bounds the Jira issue title/summary.
	titleMaxChars = 120
	// placeholderEmail stands in when the Slack profile has no email.
	placeholderEmail = "unknown@clerkbridge.local"

	resultNoAction   = "No action needed"
	resultNoCalendar = "Calendar integration is not implemented yet"
)

type DispatcherOptions struct {
	Client         services.Client
	DefaultChannel string
	ProjectKey     string
	IssueType      string
	Logger         *slog.Logger
}

// Dispatcher executes classified intents. Every failure is converted into a
// human-readable result string at this boundary; nothing propagates further.
type Dispatcher struct {
	client    services.Client
	channelID string
	project   string
	issueType string
	logger    *slog.Logger
}

func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("service client is required")
	}
	project := strings.TrimSpace(opts.ProjectKey)
	if project == "" {
		return nil, &services.ConfigurationError{Key: "jira.project_key"}
	}
	issueType := strings.TrimSpace(opts.IssueType)
	if issueType == "" {
		issueType = "Task"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:    opts.Client,
		channelID: strings.TrimSpace(opts.DefaultChannel),
		project:   project,
		issueType: issueType,
		logger:    logger,
	}, nil
}

// Dispatch runs the action for an intent and returns a result message.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent, text, userID string) string {
	switch intent {
	case IntentTicket:
		return d.createTicket(ctx, text, userID)
	case IntentCalendar:
		return resultNoCalendar
	default:
		return resultNoAction
	}
}

func (d *Dispatcher) createTicket(ctx context.Context, text, userID string) string {
	text = strings.TrimSpace(text)

	email := placeholderEmail
	profile, err := d.client.GetUserProfile(ctx, userID)
	switch {
	case err == nil && strings.TrimSpace(profile.Email) != "":
		email = strings.TrimSpace(profile.Email)
	case err == nil:
		d.logger.Warn("profile_has_no_email", "user_id", userID)
	default:
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) {
			d.logger.Warn("user_not_found", "user_id", userID)
		} else {
			d.logger.Error("profile_lookup_failed", "user_id", userID, "error", err.Error())
		}
	}

	title := truncateRunes(text, titleMaxChars)
	key, err := d.client.CreateIssue(ctx, services.IssueRequest{
		ProjectKey:  d.project,
		Title:       title,
		Summary:     title,
		Description: fmt.Sprintf("Raised from Slack:\n\n%s\n\nReporter: %s", text, email),
		IssueType:   d.issueType,
	})
	if err != nil {
		d.logger.Error("ticket_create_failed", "user_id", userID, "error", err.Error())
		return fmt.Sprintf("Failed to create ticket: %v", err)
	}

	if d.channelID != "" {
		confirmation := fmt.Sprintf("🎫 Created Jira ticket `%s` for task: %s", key, text)
		if _, err := d.client.PostMessage(ctx, d.channelID, confirmation, ""); err != nil {
			// Best effort only; the ticket already exists.
			d.logger.Warn("confirmation_post_failed", "issue_key", key, "error", err.Error())
		}
	}

	d.logger.Info("ticket_created", "issue_key", key, "user_id", userID)
	return fmt.Sprintf("Ticket %s created", key)
}

func truncateRunes(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
