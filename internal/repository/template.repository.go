package repository

import (
	"context"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type TemplateRepository struct {
	*pg.DB
}

func NewTemplateRepository(db *pg.DB) *TemplateRepository {
	return &TemplateRepository{
		db,
	}
}

func (r *TemplateRepository) Get(ctx context.Context, id int64) (*model.ReplyTemplate, error) {
	var entity ReplyTemplateEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toTemplateModel(&entity), nil
}

func (r *TemplateRepository) Create(ctx context.Context, name, body string) (*model.ReplyTemplate, error) {
	entity := &ReplyTemplateEntity{Name: name, Body: body}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	return toTemplateModel(entity), nil
}
