package repository

import (
	"context"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type ThreadNoteRepository struct {
	*pg.DB
}

func NewThreadNoteRepository(db *pg.DB) *ThreadNoteRepository {
	return &ThreadNoteRepository{
		db,
	}
}

func (r *ThreadNoteRepository) Create(ctx context.Context, threadID int64, note string, createdBy *string) (*model.ThreadNote, error) {
	entity := &ThreadNoteEntity{ThreadID: threadID, Note: note, CreatedBy: createdBy}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	return toThreadNoteModel(entity), nil
}

// ListByThread returns every note of a thread, newest first.
func (r *ThreadNoteRepository) ListByThread(ctx context.Context, threadID int64) ([]*model.ThreadNote, error) {
	var entities []ThreadNoteEntity
	err := r.Read(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&entities).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*model.ThreadNote, len(entities))
	for i := range entities {
		out[i] = toThreadNoteModel(&entities[i])
	}
	return out, nil
}
