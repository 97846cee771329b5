package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when a job status change is not allowed.
var ErrInvalidTransition = errors.New("invalid job status transition")

type OutboxJobRepository struct {
	*pg.DB
}

func NewOutboxJobRepository(db *pg.DB) *OutboxJobRepository {
	return &OutboxJobRepository{
		db,
	}
}

// Create queues a delivery job for a message. A second job for the same
// message fails with ErrDuplicate.
func (r *OutboxJobRepository) Create(ctx context.Context, messageID int64, toPhone, body string) (*model.OutboxJob, error) {
	entity := &OutboxJobEntity{
		MessageID: messageID,
		ToPhone:   toPhone,
		Body:      body,
		Status:    string(model.JobStatusQueued),
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	return toOutboxJobModel(entity), nil
}

func (r *OutboxJobRepository) GetByID(ctx context.Context, id int64) (*model.OutboxJob, error) {
	var entity OutboxJobEntity
	if err := r.Write(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toOutboxJobModel(&entity), nil
}

func (r *OutboxJobRepository) GetByMessageID(ctx context.Context, messageID int64) (*model.OutboxJob, error) {
	var entity OutboxJobEntity
	if err := r.Write(ctx).Where("message_id = ?", messageID).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toOutboxJobModel(&entity), nil
}

// Claim moves a queued job to processing and counts the attempt. It returns
// false when the job is not queued, e.g. another worker claimed it first.
func (r *OutboxJobRepository) Claim(ctx context.Context, id int64) (*model.OutboxJob, bool, error) {
	ok, err := r.transition(ctx, id, model.JobStatusQueued, model.JobStatusProcessing, map[string]any{
		"attempts": gorm.Expr("attempts + 1"),
	})
	if err != nil || !ok {
		return nil, ok, err
	}
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (r *OutboxJobRepository) MarkSent(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, model.JobStatusProcessing, model.JobStatusSent, map[string]any{
		"last_error":      nil,
		"next_attempt_at": nil,
	})
}

// MarkFailed records a failed attempt. nextAttemptAt is nil when the job will
// not be retried.
func (r *OutboxJobRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt *time.Time) (bool, error) {
	return r.transition(ctx, id, model.JobStatusProcessing, model.JobStatusFailed, map[string]any{
		"last_error":      errMsg,
		"next_attempt_at": nextAttemptAt,
	})
}

func (r *OutboxJobRepository) transition(ctx context.Context, id int64, from, to model.JobStatus, values map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, ErrInvalidTransition
	}
	values["status"] = string(to)
	res := r.Write(ctx).Model(&OutboxJobEntity{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(values)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RetryDue moves failed jobs whose backoff elapsed back to queued and returns
// their ids.
func (r *OutboxJobRepository) RetryDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]int64, error) {
	var ids []int64
	err := r.Write(ctx).Model(&OutboxJobEntity{}).
		Where("status = ? AND attempts < ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?",
			string(model.JobStatusFailed), maxAttempts, now).
		Order("next_attempt_at").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.moveAndCollect(ctx, ids, model.JobStatusFailed, model.JobStatusQueued, map[string]any{})
}

// ResetStuck fails processing jobs not updated since olderThan, so a crashed
// worker does not hold them forever.
func (r *OutboxJobRepository) ResetStuck(ctx context.Context, olderThan time.Time, retryAt time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.Write(ctx).Model(&OutboxJobEntity{}).
		Where("status = ? AND updated_at < ?", string(model.JobStatusProcessing), olderThan).
		Order("updated_at").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return r.moveAndCollect(ctx, ids, model.JobStatusProcessing, model.JobStatusFailed, map[string]any{
		"last_error":      "processing timed out",
		"next_attempt_at": retryAt,
	})
}

func (r *OutboxJobRepository) moveAndCollect(ctx context.Context, ids []int64, from, to model.JobStatus, values map[string]any) ([]int64, error) {
	moved := make([]int64, 0, len(ids))
	for _, id := range ids {
		vals := make(map[string]any, len(values)+1)
		for k, v := range values {
			vals[k] = v
		}
		ok, err := r.transition(ctx, id, from, to, vals)
		if err != nil {
			return moved, err
		}
		if ok {
			moved = append(moved, id)
		}
	}
	return moved, nil
}

// StaleQueued returns queued jobs untouched since olderThan. Their stream
// notification was most likely lost.
func (r *OutboxJobRepository) StaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboxJob, error) {
	var entities []OutboxJobEntity
	err := r.Write(ctx).
		Where("status = ? AND updated_at < ?", string(model.JobStatusQueued), olderThan).
		Order("updated_at").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*model.OutboxJob, len(entities))
	for i := range entities {
		out[i] = toOutboxJobModel(&entities[i])
	}
	return out, nil
}

// TouchQueued bumps updated_at of queued jobs after they were re-notified.
func (r *OutboxJobRepository) TouchQueued(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.Write(ctx).Model(&OutboxJobEntity{}).
		Where("id IN ? AND status = ?", ids, string(model.JobStatusQueued)).
		Update("updated_at", time.Now().UTC()).Error
	return translate(err)
}
