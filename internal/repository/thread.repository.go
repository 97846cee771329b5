package repository

import (
	"context"
	"strings"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ThreadRepository struct {
	*pg.DB
}

func NewThreadRepository(db *pg.DB) *ThreadRepository {
	return &ThreadRepository{
		db,
	}
}

// Create inserts a thread. A second thread for the same contact fails with ErrDuplicate.
func (r *ThreadRepository) Create(ctx context.Context, t *model.Thread) (*model.Thread, error) {
	entity := toThreadEntity(t)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	return toThreadModel(entity), nil
}

func (r *ThreadRepository) GetByID(ctx context.Context, id int64) (*model.Thread, error) {
	var entity ThreadEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toThreadModel(&entity), nil
}

// GetByContactID reads from the primary so a thread created a moment ago by a
// concurrent request is visible.
func (r *ThreadRepository) GetByContactID(ctx context.Context, contactID int64) (*model.Thread, error) {
	var entity ThreadEntity
	if err := r.Write(ctx).Where("contact_id = ?", contactID).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toThreadModel(&entity), nil
}

// ApplyInbound records an inbound message on the thread in one statement: the
// unread counter goes up, the preview is refreshed unless a newer message is
// already recorded, and the first-response deadline is set only when the
// thread has no deadline yet.
func (r *ThreadRepository) ApplyInbound(ctx context.Context, id int64, at time.Time, preview string, firstResponseDue time.Time) error {
	res := r.Write(ctx).Model(&ThreadEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"unread_count":         gorm.Expr("unread_count + 1"),
			"last_message_at":      latest(at),
			"last_message_preview": latestPreview(at, preview),
			"first_response_due_at": gorm.Expr(
				"CASE WHEN first_response_due_at IS NULL AND follow_up_due_at IS NULL THEN ? ELSE first_response_due_at END",
				firstResponseDue,
			),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyOutbound refreshes the preview and, for the first outbound message of the
// thread only, swaps the first-response deadline for the follow-up deadline.
// It reports whether the deadline swap happened.
func (r *ThreadRepository) ApplyOutbound(ctx context.Context, id int64, at time.Time, preview string, followUpDue time.Time) (bool, error) {
	res := r.Write(ctx).Model(&ThreadEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_at":      latest(at),
			"last_message_preview": latestPreview(at, preview),
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, ErrNotFound
	}

	// follow_up_due_at is only ever set here and never cleared, so a null value
	// means no outbound message has been recorded yet
	res = r.Write(ctx).Model(&ThreadEntity{}).
		Where("id = ? AND follow_up_due_at IS NULL", id).
		Updates(map[string]any{
			"first_response_due_at": nil,
			"follow_up_due_at":      followUpDue,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// EnsureFirstResponse sets the first-response deadline on a thread that has
// no deadline at all. After any recorded inbound message one of the two
// deadlines is set, so this only changes a thread whose inbound transition
// was lost. It reports whether the deadline was set.
func (r *ThreadRepository) EnsureFirstResponse(ctx context.Context, id int64, due time.Time) (bool, error) {
	res := r.Write(ctx).Model(&ThreadEntity{}).
		Where("id = ? AND first_response_due_at IS NULL AND follow_up_due_at IS NULL", id).
		Update("first_response_due_at", due)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkRead decrements the unread counter without going below zero.
func (r *ThreadRepository) MarkRead(ctx context.Context, id int64, at time.Time) (*model.Thread, error) {
	res := r.Write(ctx).Model(&ThreadEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"unread_count": gorm.Expr("CASE WHEN unread_count > 0 THEN unread_count - 1 ELSE 0 END"),
			"last_read_at": at,
		})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var entity ThreadEntity
	if err := r.Write(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, translate(err)
	}
	return toThreadModel(&entity), nil
}

func (r *ThreadRepository) SetStatus(ctx context.Context, id int64, status model.ThreadStatus) error {
	return r.updateOne(ctx, id, map[string]any{"status": string(status)})
}

// Assign sets or clears the assignee.
func (r *ThreadRepository) Assign(ctx context.Context, id int64, assignee *string) error {
	return r.updateOne(ctx, id, map[string]any{"assigned_to": assignee})
}

// latest never moves last_message_at backwards when messages arrive out of order.
func latest(at time.Time) clause.Expr {
	return gorm.Expr("CASE WHEN ? >= last_message_at THEN ? ELSE last_message_at END", at, at)
}

func latestPreview(at time.Time, preview string) clause.Expr {
	return gorm.Expr("CASE WHEN ? >= last_message_at THEN ? ELSE last_message_preview END", at, preview)
}

func (r *ThreadRepository) updateOne(ctx context.Context, id int64, values map[string]any) error {
	res := r.Write(ctx).Model(&ThreadEntity{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSLABreaches stamps sla_breached_at = now on every thread whose deadline
// passed and that is not breached yet. Only threads stamped by this call are
// returned, so concurrent sweeps never report the same thread twice.
func (r *ThreadRepository) MarkSLABreaches(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	// postgres keeps microseconds, the stamp must compare equal after the write
	now = now.UTC().Truncate(time.Microsecond)

	var candidates []int64
	q := r.Write(ctx).Model(&ThreadEntity{}).
		Where("sla_breached_at IS NULL").
		Where("(first_response_due_at IS NOT NULL AND first_response_due_at < ?) OR (follow_up_due_at IS NOT NULL AND follow_up_due_at < ?)", now, now).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &candidates).Error; err != nil {
		return nil, translate(err)
	}
	if len(candidates) == 0 {
		return []int64{}, nil
	}

	res := r.Write(ctx).Model(&ThreadEntity{}).
		Where("id IN ? AND sla_breached_at IS NULL", candidates).
		Update("sla_breached_at", now)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == int64(len(candidates)) {
		return candidates, nil
	}

	stamped := make([]int64, 0, res.RowsAffected)
	if err := r.Write(ctx).Model(&ThreadEntity{}).
		Where("id IN ? AND sla_breached_at = ?", candidates, now).
		Order("id").
		Pluck("id", &stamped).Error; err != nil {
		return nil, translate(err)
	}
	return stamped, nil
}

// Search lists threads with their contact phone, most recent activity first.
// A query matching no phone falls back to message bodies; when neither
// matches the result is empty.
func (r *ThreadRepository) Search(ctx context.Context, q model.ThreadSearch) ([]*model.ThreadSummary, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = 50
	case q.Limit > 200:
		q.Limit = 200
	}

	tx := r.Read(ctx).Table("threads").
		Select("threads.*, contacts.phone_e164").
		Joins("JOIN contacts ON contacts.id = threads.contact_id")

	if q.Query != "" {
		like := "%" + escapeLike(strings.ToLower(q.Query)) + "%"

		var contactIDs []int64
		if err := r.Read(ctx).Model(&ContactEntity{}).
			Where("LOWER(phone_e164) LIKE ? ESCAPE '\\'", like).
			Pluck("id", &contactIDs).Error; err != nil {
			return nil, translate(err)
		}
		if len(contactIDs) > 0 {
			tx = tx.Where("threads.contact_id IN ?", contactIDs)
		} else {
			var threadIDs []int64
			if err := r.Read(ctx).Model(&MessageEntity{}).
				Distinct("thread_id").
				Where("LOWER(body) LIKE ? ESCAPE '\\'", like).
				Limit(100).
				Pluck("thread_id", &threadIDs).Error; err != nil {
				return nil, translate(err)
			}
			if len(threadIDs) == 0 {
				return []*model.ThreadSummary{}, nil
			}
			tx = tx.Where("threads.id IN ?", threadIDs)
		}
	}
	if q.Status != "" {
		tx = tx.Where("threads.status = ?", string(q.Status))
	}
	if q.AssignedTo != "" {
		tx = tx.Where("threads.assigned_to = ?", q.AssignedTo)
	}
	if q.UnreadOnly {
		tx = tx.Where("threads.unread_count > 0")
	}

	var rows []threadSearchRow
	err := tx.Order("threads.last_message_at DESC").
		Order("threads.id DESC").
		Limit(q.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*model.ThreadSummary, len(rows))
	for i := range rows {
		out[i] = &model.ThreadSummary{Thread: toThreadModel(&rows[i].ThreadEntity), Phone: rows[i].Phone}
	}
	return out, nil
}

type threadSearchRow struct {
	ThreadEntity `gorm:"embedded"`
	Phone        string `gorm:"column:phone_e164"`
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
