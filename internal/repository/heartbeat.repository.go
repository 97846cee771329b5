package repository

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/pkg/pg"
	"gorm.io/gorm/clause"
)

// HeartbeatRepository stores the last time a named signal was seen, e.g. the
// last accepted webhook. It replaces process-local state so every api replica
// reports the same value.
type HeartbeatRepository struct {
	*pg.DB
}

func NewHeartbeatRepository(db *pg.DB) *HeartbeatRepository {
	return &HeartbeatRepository{
		db,
	}
}

func (r *HeartbeatRepository) Touch(ctx context.Context, name string, at time.Time) error {
	return withRetry(ctx, func() error {
		err := r.Write(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"seen_at"}),
			}).
			Create(&HeartbeatEntity{Name: name, SeenAt: at}).Error
		return translate(err)
	})
}

// Get returns nil when the signal was never seen.
func (r *HeartbeatRepository) Get(ctx context.Context, name string) (*time.Time, error) {
	var entity HeartbeatEntity
	err := r.Read(ctx).Where("name = ?", name).Limit(1).Find(&entity).Error
	if err != nil {
		return nil, translate(err)
	}
	if entity.Name == "" {
		return nil, nil
	}
	at := entity.SeenAt
	return &at, nil
}
