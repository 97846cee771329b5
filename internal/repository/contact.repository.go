package repository

import (
	"context"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"gorm.io/gorm/clause"
)

type ContactRepository struct {
	*pg.DB
}

func NewContactRepository(db *pg.DB) *ContactRepository {
	return &ContactRepository{
		db,
	}
}

// Upsert returns the contact for phone, inserting it when absent. Concurrent
// callers for the same phone all end up with the same row.
func (r *ContactRepository) Upsert(ctx context.Context, phone string) (*model.Contact, error) {
	entity := &ContactEntity{Phone: phone}
	err := r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone_e164"}},
			DoNothing: true,
		}).
		Create(entity).Error
	if err != nil {
		return nil, translate(err)
	}

	// on conflict nothing is returned, read the winner from the primary
	var stored ContactEntity
	if err := r.Write(ctx).Where("phone_e164 = ?", phone).First(&stored).Error; err != nil {
		return nil, translate(err)
	}
	return toContactModel(&stored), nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id int64) (*model.Contact, error) {
	var entity ContactEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toContactModel(&entity), nil
}

func (r *ContactRepository) GetByPhone(ctx context.Context, phone string) (*model.Contact, error) {
	var entity ContactEntity
	if err := r.Read(ctx).Where("phone_e164 = ?", phone).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toContactModel(&entity), nil
}
