package repository

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

type MessageEntity struct {
	ID                int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ThreadID          int64     `gorm:"column:thread_id;not null;index:messages_thread_id_created_at_idx,priority:1"`
	Direction         string    `gorm:"column:direction;not null"`
	Body              string    `gorm:"column:body;not null"`
	ProviderMessageID *string   `gorm:"column:provider_message_id;uniqueIndex:messages_provider_message_id_key"`
	IdempotencyKey    *string   `gorm:"column:idempotency_key;uniqueIndex:messages_idempotency_key_key"`
	Status            string    `gorm:"column:status;not null"`
	IsAutomated       bool      `gorm:"column:is_automated;not null;default:false"`
	CreatedAt         time.Time `gorm:"column:created_at;index:messages_thread_id_created_at_idx,priority:2"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	return &MessageEntity{
		ID:                m.ID,
		ThreadID:          m.ThreadID,
		Direction:         string(m.Direction),
		Body:              m.Body,
		ProviderMessageID: m.ProviderMessageID,
		IdempotencyKey:    m.IdempotencyKey,
		Status:            string(m.Status),
		IsAutomated:       m.IsAutomated,
		CreatedAt:         m.CreatedAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	return &model.Message{
		ID:                e.ID,
		ThreadID:          e.ThreadID,
		Direction:         model.Direction(e.Direction),
		Body:              e.Body,
		ProviderMessageID: e.ProviderMessageID,
		IdempotencyKey:    e.IdempotencyKey,
		Status:            model.MessageStatus(e.Status),
		IsAutomated:       e.IsAutomated,
		CreatedAt:         e.CreatedAt,
	}
}
