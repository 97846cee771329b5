package repository

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

type ContactEntity struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Phone     string    `gorm:"column:phone_e164;not null;uniqueIndex:contacts_phone_e164_key"`
	Name      *string   `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ContactEntity) TableName() string {
	return "contacts"
}

func toContactModel(e *ContactEntity) *model.Contact {
	if e == nil {
		return nil
	}
	return &model.Contact{
		ID:        e.ID,
		Phone:     e.Phone,
		Name:      e.Name,
		CreatedAt: e.CreatedAt,
	}
}
