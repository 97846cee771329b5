package repository

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

type TagEntity struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:tags_name_key"`
	Color     *string   `gorm:"column:color"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (TagEntity) TableName() string {
	return "tags"
}

type ThreadTagEntity struct {
	ThreadID  int64     `gorm:"primaryKey;column:thread_id;autoIncrement:false"`
	TagID     int64     `gorm:"primaryKey;column:tag_id;autoIncrement:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ThreadTagEntity) TableName() string {
	return "thread_tags"
}

type ReplyTemplateEntity struct {
	ID   int64  `gorm:"primaryKey;autoIncrement;column:id"`
	Name string `gorm:"column:name;not null"`
	Body string `gorm:"column:body;not null"`
}

func (ReplyTemplateEntity) TableName() string {
	return "reply_templates"
}

type HeartbeatEntity struct {
	Name   string    `gorm:"primaryKey;column:name"`
	SeenAt time.Time `gorm:"column:seen_at;not null"`
}

func (HeartbeatEntity) TableName() string {
	return "heartbeats"
}

func toTagModel(e *TagEntity) *model.Tag {
	return &model.Tag{
		ID:        e.ID,
		Name:      e.Name,
		Color:     e.Color,
		CreatedAt: e.CreatedAt,
	}
}

func toTemplateModel(e *ReplyTemplateEntity) *model.ReplyTemplate {
	return &model.ReplyTemplate{
		ID:   e.ID,
		Name: e.Name,
		Body: e.Body,
	}
}
