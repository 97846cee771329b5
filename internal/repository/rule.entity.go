package repository

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

type AutomationRuleEntity struct {
	ID         int64             `gorm:"primaryKey;autoIncrement;column:id"`
	Name       string            `gorm:"column:name;not null"`
	Enabled    bool              `gorm:"column:enabled;not null;default:true"`
	Priority   int               `gorm:"column:priority;not null;default:0"`
	MatchType  string            `gorm:"column:match_type;not null"`
	MatchValue string            `gorm:"column:match_value;not null"`
	Actions    model.RuleActions `gorm:"column:actions;serializer:json;not null"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (AutomationRuleEntity) TableName() string {
	return "automation_rules"
}

func toRuleEntity(r *model.AutomationRule) *AutomationRuleEntity {
	return &AutomationRuleEntity{
		ID:         r.ID,
		Name:       r.Name,
		Enabled:    r.Enabled,
		Priority:   r.Priority,
		MatchType:  string(r.MatchType),
		MatchValue: r.MatchValue,
		Actions:    r.Actions,
		CreatedAt:  r.CreatedAt,
	}
}

func toRuleModel(e *AutomationRuleEntity) *model.AutomationRule {
	return &model.AutomationRule{
		ID:         e.ID,
		Name:       e.Name,
		Enabled:    e.Enabled,
		Priority:   e.Priority,
		MatchType:  model.MatchType(e.MatchType),
		MatchValue: e.MatchValue,
		Actions:    e.Actions,
		CreatedAt:  e.CreatedAt,
	}
}
