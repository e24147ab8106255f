package services

import (
	"fmt"
	"strings"
)

// RemoteServiceError reports a vendor call that failed outright or came back
// with an API-level error field.
type RemoteServiceError struct {
	Service string
	Code    string
	Message string
}

func (e *RemoteServiceError) Error() string {
	code := strings.TrimSpace(e.Code)
	if code == "" {
		code = "unknown_error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("%s call failed: %s", e.Service, code)
	}
	return fmt.Sprintf("%s call failed [%s]: %s", e.Service, code, msg)
}

// NotFoundError reports an entity the vendor does not know about.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// MalformedResponseError reports a success envelope missing fields the
// contract requires. The response is not guessed at further.
type MalformedResponseError struct {
	Service string
	Detail  string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s returned a malformed response: %s", e.Service, e.Detail)
}

// AuthorizationError reports a broker capability that was never granted.
// URL, when set, is the operator-facing authorization link.
type AuthorizationError struct {
	Tool   string
	Status string
	URL    string
}

func (e *AuthorizationError) Error() string {
	if strings.TrimSpace(e.URL) != "" {
		return fmt.Sprintf("authorization for %s not granted (status %s, visit %s)", e.Tool, e.Status, e.URL)
	}
	return fmt.Sprintf("authorization for %s not granted (status %s)", e.Tool, e.Status)
}

// ConfigurationError reports a required setting that is absent at startup.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Key)
}
