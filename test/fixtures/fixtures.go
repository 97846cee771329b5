package fixtures

import (
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
)

const (
	PhoneAlice = "+15551234567"
	PhoneBob   = "+447700900123"
)

// Clock returns a fixed UTC instant shifted by offset.
func Clock(offset time.Duration) time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC).Add(offset)
}

func RefundRule(tagID int64) model.AutomationRule {
	pending := model.ThreadStatusPending
	return model.AutomationRule{
		Name:       "refunds",
		Enabled:    true,
		Priority:   10,
		MatchType:  model.MatchContains,
		MatchValue: "refund",
		Actions:    model.RuleActions{ApplyTag: &tagID, SetStatus: &pending},
		CreatedAt:  Clock(0),
	}
}

func OrderRule(assignee string) model.AutomationRule {
	return model.AutomationRule{
		Name:       "orders",
		Enabled:    true,
		Priority:   5,
		MatchType:  model.MatchContains,
		MatchValue: "order",
		Actions:    model.RuleActions{AssignTo: &assignee},
		CreatedAt:  Clock(0),
	}
}

func AutoReplyRule(templateID int64, cooldownSeconds int) model.AutomationRule {
	return model.AutomationRule{
		Name:       "ack",
		Enabled:    true,
		Priority:   0,
		MatchType:  model.MatchContains,
		MatchValue: "",
		Actions:    model.RuleActions{AutoReplyTemplateID: &templateID, AutoReplyCooldownSeconds: &cooldownSeconds},
		CreatedAt:  Clock(0),
	}
}
