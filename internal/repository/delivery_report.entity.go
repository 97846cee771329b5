package repository

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

type DeliveryReportEntity struct {
	ID          int64     `gorm:"primaryKey;autoIncrement;column:id"`
	JobID       int64     `gorm:"column:job_id;not null;index"`
	MessageID   int64     `gorm:"column:message_id;not null;index"`
	Attempt     int       `gorm:"column:attempt;not null"`
	Provider    string    `gorm:"column:provider;not null;default:''"`
	Status      string    `gorm:"column:status;not null"`
	ProviderRef *string   `gorm:"column:provider_ref"`
	Error       *string   `gorm:"column:error"`
	ReportedAt  time.Time `gorm:"column:reported_at;not null"`
}

func (DeliveryReportEntity) TableName() string {
	return "delivery_reports"
}

func toDeliveryReportEntity(m *model.DeliveryReport) *DeliveryReportEntity {
	if m == nil {
		return nil
	}
	return &DeliveryReportEntity{
		ID:          m.ID,
		JobID:       m.JobID,
		MessageID:   m.MessageID,
		Attempt:     m.Attempt,
		Provider:    m.Provider,
		Status:      string(m.Status),
		ProviderRef: m.ProviderRef,
		Error:       m.Error,
		ReportedAt:  m.ReportedAt,
	}
}

func toDeliveryReportModel(e *DeliveryReportEntity) *model.DeliveryReport {
	if e == nil {
		return nil
	}
	return &model.DeliveryReport{
		ID:          e.ID,
		JobID:       e.JobID,
		MessageID:   e.MessageID,
		Attempt:     e.Attempt,
		Provider:    e.Provider,
		Status:      model.JobStatus(e.Status),
		ProviderRef: e.ProviderRef,
		Error:       e.Error,
		ReportedAt:  e.ReportedAt,
	}
}
