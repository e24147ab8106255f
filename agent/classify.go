// Package agent routes inbound Slack messages to actions: keyword
// classification picks an intent, the dispatcher runs it against the service
// capabilities.
package agent

import "strings"

type Intent string

const (
	IntentTicket   Intent = "ticket"
	IntentCalendar Intent = "calendar"
	IntentNone     Intent = "none"
)

// Keyword sets are checked in declaration order; ticket wins ties with
// calendar because it is tested first.
var (
	ticketKeywords   = []string{"assign", "please", "task", "ticket", "jira"}
	calendarKeywords = []string{"schedule", "meeting", "calendar", "invite"}
)

// Classify maps free text to an intent by case-folded substring matching.
// Pure and total: unknown text yields IntentNone.
func Classify(text string) Intent {
	lowered := strings.ToLower(text)
	for _, keyword := range ticketKeywords {
		if strings.Contains(lowered, keyword) {
			return IntentTicket
		}
	}
	for _, keyword := range calendarKeywords {
		if strings.Contains(lowered, keyword) {
			return IntentCalendar
		}
	}
	return IntentNone
}
