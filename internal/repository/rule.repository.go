package repository

import (
	"context"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

type RuleRepository struct {
	*pg.DB
}

func NewRuleRepository(db *pg.DB) *RuleRepository {
	return &RuleRepository{
		db,
	}
}

// Create stores a rule. Rules are normally managed by the rule editor; this is
// used by the cli seeding command and tests.
func (r *RuleRepository) Create(ctx context.Context, rule *model.AutomationRule) (*model.AutomationRule, error) {
	entity := toRuleEntity(rule)
	// gorm skips zero-value bools that carry a default, write it explicitly
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, translate(err)
	}
	if !rule.Enabled {
		if err := r.Write(ctx).Model(entity).Update("enabled", false).Error; err != nil {
			return nil, translate(err)
		}
		entity.Enabled = false
	}
	return toRuleModel(entity), nil
}

// ListEnabled returns enabled rules in evaluation order: priority desc, then
// newest first, then id desc.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]*model.AutomationRule, error) {
	var entities []AutomationRuleEntity
	err := r.Read(ctx).
		Where("enabled = ?", true).
		Order("priority DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&entities).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*model.AutomationRule, len(entities))
	for i := range entities {
		out[i] = toRuleModel(&entities[i])
	}
	return out, nil
}
