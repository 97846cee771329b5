package model

import "time"

type MatchType string

const (
	MatchContains MatchType = "contains"
	MatchEquals   MatchType = "equals"
	MatchRegex    MatchType = "regex"
	MatchPhone    MatchType = "phone"
)

// RuleActions lists what a matched rule does. Every field is optional.
type RuleActions struct {
	ApplyTag                 *int64        `json:"apply_tag,omitempty"`
	SetStatus                *ThreadStatus `json:"set_status,omitempty"`
	AssignTo                 *string       `json:"assign_to,omitempty"`
	AutoReplyTemplateID      *int64        `json:"auto_reply_template_id,omitempty"`
	AutoReplyCooldownSeconds *int          `json:"auto_reply_cooldown_seconds,omitempty"`
}

type AutomationRule struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Enabled    bool        `json:"enabled"`
	Priority   int         `json:"priority"`
	MatchType  MatchType   `json:"match_type"`
	MatchValue string      `json:"match_value"`
	Actions    RuleActions `json:"actions"`
	CreatedAt  time.Time   `json:"created_at"`
}

// RuleEvent is the inbound message a rule is evaluated against.
type RuleEvent struct {
	Body      string
	Phone     string
	ThreadID  int64
	MessageID int64
}

type ActionKind string

const (
	ActionTag       ActionKind = "apply_tag"
	ActionStatus    ActionKind = "set_status"
	ActionAssign    ActionKind = "assign_to"
	ActionAutoReply ActionKind = "auto_reply"
)

type ActionOutcome string

const (
	OutcomeApplied ActionOutcome = "applied"
	OutcomeSkipped ActionOutcome = "skipped"
	OutcomeFailed  ActionOutcome = "failed"
)

// ActionResult is the outcome of one action of one rule.
type ActionResult struct {
	RuleID  int64
	Action  ActionKind
	Outcome ActionOutcome
	Reason  string
	Err     error
}

func Applied(ruleID int64, action ActionKind) ActionResult {
	return ActionResult{RuleID: ruleID, Action: action, Outcome: OutcomeApplied}
}

func Skipped(ruleID int64, action ActionKind, reason string) ActionResult {
	return ActionResult{RuleID: ruleID, Action: action, Outcome: OutcomeSkipped, Reason: reason}
}

func Failed(ruleID int64, action ActionKind, err error) ActionResult {
	return ActionResult{RuleID: ruleID, Action: action, Outcome: OutcomeFailed, Err: err}
}
