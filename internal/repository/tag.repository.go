package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type TagRepository struct {
	*pg.DB
}

func NewTagRepository(db *pg.DB) *TagRepository {
	return &TagRepository{
		db,
	}
}

func (r *TagRepository) Create(ctx context.Context, name string, color *string) (*model.Tag, error) {
	entity := &TagEntity{Name: name, Color: color}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	return toTagModel(entity), nil
}

func (r *TagRepository) GetByID(ctx context.Context, id int64) (*model.Tag, error) {
	var entity TagEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toTagModel(&entity), nil
}

func (r *TagRepository) List(ctx context.Context) ([]*model.Tag, error) {
	var entities []TagEntity
	if err := r.Read(ctx).Order("name").Find(&entities).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*model.Tag, len(entities))
	for i := range entities {
		out[i] = toTagModel(&entities[i])
	}
	return out, nil
}

// Attach links a tag to a thread. It reports duplicate=true when the pair
// already existed, which is not an error.
func (r *TagRepository) Attach(ctx context.Context, threadID, tagID int64) (duplicate bool, err error) {
	err = r.Write(ctx).Create(&ThreadTagEntity{ThreadID: threadID, TagID: tagID}).Error
	if err == nil {
		return false, nil
	}
	err = translate(err)
	if errors.Is(err, ErrDuplicate) {
		return true, nil
	}
	return false, err
}

// Detach removes a tag from a thread. Removing a missing pair is a no-op.
func (r *TagRepository) Detach(ctx context.Context, threadID, tagID int64) error {
	err := r.Write(ctx).
		Where("thread_id = ? AND tag_id = ?", threadID, tagID).
		Delete(&ThreadTagEntity{}).Error
	return translate(err)
}

func (r *TagRepository) ListForThread(ctx context.Context, threadID int64) ([]*model.Tag, error) {
	var entities []TagEntity
	err := r.Read(ctx).
		Joins("JOIN thread_tags ON thread_tags.tag_id = tags.id").
		Where("thread_tags.thread_id = ?", threadID).
		Order("tags.name").
		Find(&entities).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*model.Tag, len(entities))
	for i := range entities {
		out[i] = toTagModel(&entities[i])
	}
	return out, nil
}
