package model

import "time"

type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     *string   `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ReplyTemplate struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// HeartbeatWebhookInbound is the heartbeat row touched on every accepted webhook.
const HeartbeatWebhookInbound = "webhook_inbound"
