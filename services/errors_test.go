package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRemoteServiceErrorMessage(t *testing.T) {
	t.Parallel()

	err := &RemoteServiceError{Service: "slack", Code: "channel_not_found", Message: "no such conversation"}
	got := err.Error()
	if !strings.Contains(got, "slack") || !strings.Contains(got, "channel_not_found") {
		t.Fatalf("Error() = %q", got)
	}

	empty := &RemoteServiceError{Service: "jira"}
	if !strings.Contains(empty.Error(), "unknown_error") {
		t.Fatalf("Error() = %q, want unknown_error fallback", empty.Error())
	}
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	t.Parallel()

	base := &NotFoundError{Kind: "user", ID: "U404"}
	wrapped := fmt.Errorf("resolving assignee: %w", base)

	var nf *NotFoundError
	if !errors.As(wrapped, &nf) {
		t.Fatalf("errors.As() did not match NotFoundError")
	}
	if nf.ID != "U404" {
		t.Fatalf("ID = %q, want U404", nf.ID)
	}

	var rse *RemoteServiceError
	if errors.As(wrapped, &rse) {
		t.Fatalf("errors.As() matched RemoteServiceError unexpectedly")
	}
}

func TestAuthorizationErrorIncludesURL(t *testing.T) {
	t.Parallel()

	err := &AuthorizationError{Tool: "Jira.CreateIssue", Status: "pending", URL: "https://broker.example/auth/1"}
	if !strings.Contains(err.Error(), "https://broker.example/auth/1") {
		t.Fatalf("Error() = %q, want authorization URL", err.Error())
	}
}

func TestClampFetchLimit(t *testing.T) {
	t.Parallel()

	if got := ClampFetchLimit(0); got != 1 {
		t.Fatalf("ClampFetchLimit(0) = %d, want 1", got)
	}
	if got := ClampFetchLimit(50); got != 50 {
		t.Fatalf("ClampFetchLimit(50) = %d, want 50", got)
	}
	if got := ClampFetchLimit(5000); got != MaxFetchLimit {
		t.Fatalf("ClampFetchLimit(5000) = %d, want %d", got, MaxFetchLimit)
	}
}
