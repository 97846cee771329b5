package model

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusFailed     JobStatus = "failed"
)

// CanTransitionTo reports whether a job may move from s to next. failed ->
// queued is the explicit retry; processing never goes back to queued.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusSent || next == JobStatusFailed
	case JobStatusFailed:
		return next == JobStatusQueued
	}
	return false
}

type OutboxJob struct {
	ID            int64      `json:"id"`
	MessageID     int64      `json:"message_id"`
	ToPhone       string     `json:"to_phone"`
	Body          string     `json:"body"`
	Status        JobStatus  `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// JobNotification is published on the delivery stream after a job is queued.
type JobNotification struct {
	JobID     int64 `json:"job_id"`
	MessageID int64 `json:"message_id"`
}

// DeliveryReport records one relay attempt of an outbox job.
type DeliveryReport struct {
	ID          int64     `json:"id"`
	JobID       int64     `json:"job_id"`
	MessageID   int64     `json:"message_id"`
	Attempt     int       `json:"attempt"`
	Provider    string    `json:"provider"`
	Status      JobStatus `json:"status"`
	ProviderRef *string   `json:"provider_ref,omitempty"`
	Error       *string   `json:"error,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}
