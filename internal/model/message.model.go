package model

import "time"

type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

type MessageStatus string

const (
	MessageStatusReceived MessageStatus = "received"
	MessageStatusQueued   MessageStatus = "queued"
	MessageStatusSent     MessageStatus = "sent"
	MessageStatusFailed   MessageStatus = "failed"
)

type Message struct {
	ID                int64         `json:"id"`
	ThreadID          int64         `json:"thread_id"`
	Direction         Direction     `json:"direction"`
	Body              string        `json:"body"`
	ProviderMessageID *string       `json:"provider_message_id,omitempty"`
	IdempotencyKey    *string       `json:"idempotency_key,omitempty"`
	Status            MessageStatus `json:"status"`
	IsAutomated       bool          `json:"is_automated"`
	CreatedAt         time.Time     `json:"created_at"`
}

// InboundMessage is a message received from the provider. Only inbound
// messages carry a provider message id.
type InboundMessage struct {
	ThreadID          int64
	Body              string
	ProviderMessageID string
	ReceivedAt        time.Time
}

func (m InboundMessage) Message() *Message {
	msg := &Message{
		ThreadID:  m.ThreadID,
		Direction: DirectionInbound,
		Body:      m.Body,
		Status:    MessageStatusReceived,
		CreatedAt: m.ReceivedAt,
	}
	if m.ProviderMessageID != "" {
		id := m.ProviderMessageID
		msg.ProviderMessageID = &id
	}
	return msg
}

// OutboundMessage is a reply queued for delivery. Only outbound messages carry
// an idempotency key.
type OutboundMessage struct {
	ThreadID       int64
	Body           string
	IdempotencyKey string
	Automated      bool
	CreatedAt      time.Time
}

func (m OutboundMessage) Message() *Message {
	msg := &Message{
		ThreadID:    m.ThreadID,
		Direction:   DirectionOutbound,
		Body:        m.Body,
		Status:      MessageStatusQueued,
		IsAutomated: m.Automated,
		CreatedAt:   m.CreatedAt,
	}
	if m.IdempotencyKey != "" {
		key := m.IdempotencyKey
		msg.IdempotencyKey = &key
	}
	return msg
}

// MessageRef identifies a stored message and, for outbound messages, its job.
type MessageRef struct {
	ThreadID  int64
	MessageID int64
	JobID     int64
}
