package repository

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

type ThreadEntity struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement;column:id"`
	ContactID          int64      `gorm:"column:contact_id;not null;uniqueIndex:threads_contact_id_key"`
	Status             string     `gorm:"column:status;not null;default:open"`
	AssignedTo         *string    `gorm:"column:assigned_to"`
	UnreadCount        int        `gorm:"column:unread_count;not null;default:0"`
	LastMessageAt      time.Time  `gorm:"column:last_message_at;not null"`
	LastMessagePreview string     `gorm:"column:last_message_preview;not null;default:''"`
	LastReadAt         *time.Time `gorm:"column:last_read_at"`
	FirstResponseDueAt *time.Time `gorm:"column:first_response_due_at;index"`
	FollowUpDueAt      *time.Time `gorm:"column:follow_up_due_at;index"`
	SLABreachedAt      *time.Time `gorm:"column:sla_breached_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ThreadEntity) TableName() string {
	return "threads"
}

func toThreadEntity(t *model.Thread) *ThreadEntity {
	if t == nil {
		return nil
	}
	status := t.Status
	if status == "" {
		status = model.ThreadStatusOpen
	}
	return &ThreadEntity{
		ID:                 t.ID,
		ContactID:          t.ContactID,
		Status:             string(status),
		AssignedTo:         t.AssignedTo,
		UnreadCount:        t.UnreadCount,
		LastMessageAt:      t.LastMessageAt,
		LastMessagePreview: t.LastMessagePreview,
		LastReadAt:         t.LastReadAt,
		FirstResponseDueAt: t.FirstResponseDueAt,
		FollowUpDueAt:      t.FollowUpDueAt,
		SLABreachedAt:      t.SLABreachedAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func toThreadModel(e *ThreadEntity) *model.Thread {
	if e == nil {
		return nil
	}
	return &model.Thread{
		ID:                 e.ID,
		ContactID:          e.ContactID,
		Status:             model.ThreadStatus(e.Status),
		AssignedTo:         e.AssignedTo,
		UnreadCount:        e.UnreadCount,
		LastMessageAt:      e.LastMessageAt,
		LastMessagePreview: e.LastMessagePreview,
		LastReadAt:         e.LastReadAt,
		FirstResponseDueAt: e.FirstResponseDueAt,
		FollowUpDueAt:      e.FollowUpDueAt,
		SLABreachedAt:      e.SLABreachedAt,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

type ThreadNoteEntity struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ThreadID  int64     `gorm:"column:thread_id;not null;index:thread_notes_thread_id_idx"`
	Note      string    `gorm:"column:note;not null"`
	CreatedBy *string   `gorm:"column:created_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ThreadNoteEntity) TableName() string {
	return "thread_notes"
}

func toThreadNoteModel(e *ThreadNoteEntity) *model.ThreadNote {
	return &model.ThreadNote{
		ID:        e.ID,
		ThreadID:  e.ThreadID,
		Note:      e.Note,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
	}
}
