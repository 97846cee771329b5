package repository

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

// CreateInbound stores a received message. A replayed provider message id fails
// with ErrDuplicate.
func (r *MessageRepository) CreateInbound(ctx context.Context, in model.InboundMessage) (*model.Message, error) {
	return r.create(ctx, in.Message())
}

// CreateOutbound stores a queued reply. A reused idempotency key fails with
// ErrDuplicate.
func (r *MessageRepository) CreateOutbound(ctx context.Context, out model.OutboundMessage) (*model.Message, error) {
	return r.create(ctx, out.Message())
}

func (r *MessageRepository) create(ctx context.Context, m *model.Message) (*model.Message, error) {
	entity := toMessageEntity(m)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	return toMessageModel(entity), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var entity MessageEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toMessageModel(&entity), nil
}

// FindInboundByProviderID reads from the primary, it is used right after a
// uniqueness conflict to find the row that won.
func (r *MessageRepository) FindInboundByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Write(ctx).
		Where("provider_message_id = ? AND direction = ?", providerMessageID, string(model.DirectionInbound)).
		First(&entity).Error
	if err != nil {
		return nil, translate(err)
	}
	return toMessageModel(&entity), nil
}

func (r *MessageRepository) FindOutboundByIdempotencyKey(ctx context.Context, key string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Write(ctx).
		Where("idempotency_key = ? AND direction = ?", key, string(model.DirectionOutbound)).
		First(&entity).Error
	if err != nil {
		return nil, translate(err)
	}
	return toMessageModel(&entity), nil
}

// LastOutboundAt returns the time of the latest outbound message of the thread,
// or nil when nothing was sent yet.
func (r *MessageRepository) LastOutboundAt(ctx context.Context, threadID int64) (*time.Time, error) {
	var entity MessageEntity
	err := r.Write(ctx).
		Where("thread_id = ? AND direction = ?", threadID, string(model.DirectionOutbound)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&entity).Error
	if err != nil {
		return nil, translate(err)
	}
	if entity.ID == 0 {
		return nil, nil
	}
	at := entity.CreatedAt
	return &at, nil
}

func (r *MessageRepository) UpdateStatus(ctx context.Context, id int64, status model.MessageStatus) error {
	res := r.Write(ctx).Model(&MessageEntity{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByThread returns the newest messages of a thread, newest first.
func (r *MessageRepository) ListByThread(ctx context.Context, threadID int64, limit int) ([]*model.Message, error) {
	switch {
	case limit <= 0:
		limit = 50
	case limit > 200:
		limit = 200
	}
	var entities []MessageEntity
	err := r.Read(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, translate(err)
	}

	out := make([]*model.Message, len(entities))
	for i := range entities {
		out[i] = toMessageModel(&entities[i])
	}
	return out, nil
}
