package direct

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jira "github.com/andygrunwald/go-jira"

	"github.com/clerkai/clerkbridge/services"
)

const defaultIssueType = "Task"

type jiraIssueAPI struct {
	client *jira.Client
}

func newJiraIssueAPI(opts Options, httpClient *http.Client) (*jiraIssueAPI, error) {
	baseURL := strings.TrimSpace(opts.JiraBaseURL)
	if baseURL == "" {
		return nil, &services.ConfigurationError{Key: "jira.base_url"}
	}
	email := strings.TrimSpace(opts.JiraEmail)
	if email == "" {
		return nil, &services.ConfigurationError{Key: "jira.email"}
	}
	apiToken := strings.TrimSpace(opts.JiraAPIToken)
	if apiToken == "" {
		return nil, &services.ConfigurationError{Key: "jira.api_token"}
	}

	tp := jira.BasicAuthTransport{
		Username:  email,
		Password:  apiToken,
		Transport: httpClient.Transport,
	}
	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("jira client: %w", err)
	}
	return &jiraIssueAPI{client: client}, nil
}

func (a *jiraIssueAPI) createIssue(ctx context.Context, req services.IssueRequest) (string, error) {
	projectKey := strings.TrimSpace(req.ProjectKey)
	if projectKey == "" {
		return "", &services.RemoteServiceError{Service: "jira", Code: "invalid_request", Message: "project key is required"}
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", &services.RemoteServiceError{Service: "jira", Code: "invalid_request", Message: "title is required"}
	}
	issueType := strings.TrimSpace(req.IssueType)
	if issueType == "" {
		issueType = defaultIssueType
	}

	// Jira's "summary" field is the issue title. A distinct short summary is
	// folded into the description ahead of the long-form text.
	description := strings.TrimSpace(req.Description)
	if summary := strings.TrimSpace(req.Summary); summary != "" && summary != title {
		if description != "" {
			description = summary + "\n\n" + description
		} else {
			description = summary
		}
	}

	issue := &jira.Issue{
		Fields: &jira.IssueFields{
			Project:     jira.Project{Key: projectKey},
			Summary:     title,
			Description: description,
			Type:        jira.IssueType{Name: issueType},
		},
	}
	created, resp, err := a.client.Issue.CreateWithContext(ctx, issue)
	if err != nil {
		code := "request_failed"
		if resp != nil && resp.Response != nil {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return "", &services.RemoteServiceError{Service: "jira", Code: code, Message: err.Error()}
	}
	if created == nil || strings.TrimSpace(created.Key) == "" {
		return "", &services.MalformedResponseError{Service: "jira", Detail: "create response has no issue key"}
	}
	return created.Key, nil
}
