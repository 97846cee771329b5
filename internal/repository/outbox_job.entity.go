package repository

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

type OutboxJobEntity struct {
	ID            int64      `gorm:"primaryKey;autoIncrement;column:id"`
	MessageID     int64      `gorm:"column:message_id;not null;uniqueIndex:outbox_jobs_message_id_key"`
	ToPhone       string     `gorm:"column:to_phone;not null"`
	Body          string     `gorm:"column:body;not null"`
	Status        string     `gorm:"column:status;not null;index:outbox_jobs_status_next_attempt_idx,priority:1"`
	Attempts      int        `gorm:"column:attempts;not null;default:0"`
	LastError     *string    `gorm:"column:last_error"`
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at;index:outbox_jobs_status_next_attempt_idx,priority:2"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (OutboxJobEntity) TableName() string {
	return "outbox_jobs"
}

func toOutboxJobModel(e *OutboxJobEntity) *model.OutboxJob {
	if e == nil {
		return nil
	}
	return &model.OutboxJob{
		ID:            e.ID,
		MessageID:     e.MessageID,
		ToPhone:       e.ToPhone,
		Body:          e.Body,
		Status:        model.JobStatus(e.Status),
		Attempts:      e.Attempts,
		LastError:     e.LastError,
		NextAttemptAt: e.NextAttemptAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
