package repository

import (
	"context"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type DeliveryReportRepository struct {
	*pg.DB
}

func NewDeliveryReportRepository(db *pg.DB) *DeliveryReportRepository {
	return &DeliveryReportRepository{
		db,
	}
}

func (r *DeliveryReportRepository) Create(ctx context.Context, dr *model.DeliveryReport) (*model.DeliveryReport, error) {
	entity := toDeliveryReportEntity(dr)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	return toDeliveryReportModel(entity), nil
}

// ListByJob returns the attempts of a job, oldest first.
func (r *DeliveryReportRepository) ListByJob(ctx context.Context, jobID int64) ([]*model.DeliveryReport, error) {
	var entities []*DeliveryReportEntity
	err := r.Read(ctx).
		Where("job_id = ?", jobID).
		Order("attempt").
		Order("id").
		Find(&entities).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*model.DeliveryReport, len(entities))
	for i, e := range entities {
		out[i] = toDeliveryReportModel(e)
	}
	return out, nil
}
