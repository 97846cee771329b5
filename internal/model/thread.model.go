package model

import (
	"time"
	"unicode/utf8"
)

// PreviewLength is the number of characters kept in a thread preview.
const PreviewLength = 140

type ThreadStatus string

const (
	ThreadStatusOpen     ThreadStatus = "open"
	ThreadStatusPending  ThreadStatus = "pending"
	ThreadStatusResolved ThreadStatus = "resolved"
	ThreadStatusClosed   ThreadStatus = "closed"
)

func (s ThreadStatus) Valid() bool {
	switch s {
	case ThreadStatusOpen, ThreadStatusPending, ThreadStatusResolved, ThreadStatusClosed:
		return true
	}
	return false
}

type Thread struct {
	ID                 int64        `json:"id"`
	ContactID          int64        `json:"contact_id"`
	Status             ThreadStatus `json:"status"`
	AssignedTo         *string      `json:"assigned_to"`
	UnreadCount        int          `json:"unread_count"`
	LastMessageAt      time.Time    `json:"last_message_at"`
	LastMessagePreview string       `json:"last_message_preview"`
	LastReadAt         *time.Time   `json:"last_read_at,omitempty"`
	FirstResponseDueAt *time.Time   `json:"first_response_due_at,omitempty"`
	FollowUpDueAt      *time.Time   `json:"follow_up_due_at,omitempty"`
	SLABreachedAt      *time.Time   `json:"sla_breached_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Preview truncates body to PreviewLength characters.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLength])
}

// SweepResult lists the threads newly marked as breached by one SLA sweep.
type SweepResult struct {
	Count     int     `json:"breached_count"`
	ThreadIDs []int64 `json:"thread_ids"`
}

// ThreadNote is an internal agent note. It is never sent to the contact.
type ThreadNote struct {
	ID        int64     `json:"id"`
	ThreadID  int64     `json:"thread_id"`
	Note      string    `json:"note"`
	CreatedBy *string   `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadSearch filters the thread list. Query matches a phone substring first
// and falls back to message bodies when no phone matches.
type ThreadSearch struct {
	Query      string
	Status     ThreadStatus
	AssignedTo string
	UnreadOnly bool
	Limit      int
}

type ThreadSummary struct {
	*Thread
	Phone string `json:"phone_e164"`
}
