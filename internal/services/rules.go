package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/prom"
	"github.com/patrickmn/go-cache"
)

const enabledRulesKey = "rules:enabled"

type RuleStore interface {
	ListEnabled(ctx context.Context) ([]*model.AutomationRule, error)
}

type ThreadMutator interface {
	SetStatus(ctx context.Context, id int64, status model.ThreadStatus) error
	Assign(ctx context.Context, id int64, assignee *string) error
}

type TagAttacher interface {
	Attach(ctx context.Context, threadID, tagID int64) (bool, error)
}

// AutoReplier sends the auto-reply of a rule when policy allows it.
type AutoReplier interface {
	AutoReply(ctx context.Context, rule *model.AutomationRule, ev model.RuleEvent) model.ActionResult
}

type RuleEngine struct {
	rules    RuleStore
	threads  ThreadMutator
	tags     TagAttacher
	replier  AutoReplier
	cache    *cache.Cache
	patterns sync.Map // pattern -> *regexp.Regexp, nil when invalid
}

// NewRuleEngine builds the engine. A positive cacheTTL keeps the enabled rule
// list in memory for that long; replier may be nil to disable auto-replies.
func NewRuleEngine(rules RuleStore, threads ThreadMutator, tags TagAttacher, replier AutoReplier, cacheTTL time.Duration) *RuleEngine {
	e := &RuleEngine{
		rules:   rules,
		threads: threads,
		tags:    tags,
		replier: replier,
	}
	if cacheTTL > 0 {
		e.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return e
}

// Evaluate returns the enabled rules matching ev, highest priority first and
// newest first within a priority.
func (e *RuleEngine) Evaluate(ctx context.Context, ev model.RuleEvent) ([]*model.AutomationRule, error) {
	rules, err := e.enabled(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]*model.AutomationRule, 0, len(rules))
	for _, r := range rules {
		if e.Matches(r, ev) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// InvalidateCache drops the cached rule list.
func (e *RuleEngine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Delete(enabledRulesKey)
	}
}

func (e *RuleEngine) enabled(ctx context.Context) ([]*model.AutomationRule, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(enabledRulesKey); ok {
			return v.([]*model.AutomationRule), nil
		}
	}
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	rules = slices.Clone(rules)
	slices.SortStableFunc(rules, compareRules)
	if e.cache != nil {
		e.cache.SetDefault(enabledRulesKey, rules)
	}
	return rules, nil
}

func compareRules(a, b *model.AutomationRule) int {
	if a.Priority != b.Priority {
		return b.Priority - a.Priority
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// Matches is pure and never fails: unknown match types and invalid patterns
// do not match.
func (e *RuleEngine) Matches(rule *model.AutomationRule, ev model.RuleEvent) bool {
	if rule == nil {
		return false
	}
	switch rule.MatchType {
	case model.MatchContains:
		return strings.Contains(strings.ToLower(ev.Body), strings.ToLower(rule.MatchValue))
	case model.MatchEquals:
		return strings.EqualFold(ev.Body, rule.MatchValue)
	case model.MatchRegex:
		re := e.compile(rule)
		return re != nil && re.MatchString(ev.Body)
	case model.MatchPhone:
		want := rule.MatchValue
		if want == "" || ev.Phone == "" {
			return false
		}
		return ev.Phone == want || strings.HasSuffix(ev.Phone, want)
	}
	return false
}

func (e *RuleEngine) compile(rule *model.AutomationRule) *regexp.Regexp {
	if v, ok := e.patterns.Load(rule.MatchValue); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + rule.MatchValue)
	if err != nil {
		logger.Warn("invalid rule pattern, treating as no match", "rule_id", rule.ID, "pattern", rule.MatchValue, "error", err)
		re = nil
	}
	e.patterns.Store(rule.MatchValue, re)
	return re
}

// ApplyActions runs the actions of rule in order tag, status, assign,
// auto-reply. Each action runs even if an earlier one failed.
func (e *RuleEngine) ApplyActions(ctx context.Context, rule *model.AutomationRule, ev model.RuleEvent) []model.ActionResult {
	a := rule.Actions
	results := make([]model.ActionResult, 0, 4)

	if a.ApplyTag != nil {
		results = append(results, e.run(rule.ID, model.ActionTag, func() model.ActionResult {
			dup, err := e.tags.Attach(ctx, ev.ThreadID, *a.ApplyTag)
			if err != nil {
				return model.Failed(rule.ID, model.ActionTag, storeError(err))
			}
			if dup {
				return model.Skipped(rule.ID, model.ActionTag, "tag already applied")
			}
			return model.Applied(rule.ID, model.ActionTag)
		}))
	}

	if a.SetStatus != nil {
		results = append(results, e.run(rule.ID, model.ActionStatus, func() model.ActionResult {
			if !a.SetStatus.Valid() {
				return model.Failed(rule.ID, model.ActionStatus, validationError("unknown status %q", *a.SetStatus))
			}
			if err := e.threads.SetStatus(ctx, ev.ThreadID, *a.SetStatus); err != nil {
				return model.Failed(rule.ID, model.ActionStatus, storeError(err))
			}
			return model.Applied(rule.ID, model.ActionStatus)
		}))
	}

	if a.AssignTo != nil {
		results = append(results, e.run(rule.ID, model.ActionAssign, func() model.ActionResult {
			if err := e.threads.Assign(ctx, ev.ThreadID, a.AssignTo); err != nil {
				return model.Failed(rule.ID, model.ActionAssign, storeError(err))
			}
			return model.Applied(rule.ID, model.ActionAssign)
		}))
	}

	if a.AutoReplyTemplateID != nil {
		results = append(results, e.run(rule.ID, model.ActionAutoReply, func() model.ActionResult {
			if e.replier == nil {
				return model.Skipped(rule.ID, model.ActionAutoReply, "auto-reply disabled")
			}
			return e.replier.AutoReply(ctx, rule, ev)
		}))
	}

	return results
}

// Run evaluates and applies every matching rule. It never fails: a rule load
// error yields no results and is logged.
func (e *RuleEngine) Run(ctx context.Context, ev model.RuleEvent) []model.ActionResult {
	rules, err := e.Evaluate(ctx, ev)
	if err != nil {
		logger.Error("rule evaluation failed", "thread_id", ev.ThreadID, "message_id", ev.MessageID, "error", err)
		return nil
	}

	var results []model.ActionResult
	for _, r := range rules {
		results = append(results, e.ApplyActions(ctx, r, ev)...)
	}
	for _, res := range results {
		prom.RecordRuleAction(string(res.Action), string(res.Outcome))
		switch res.Outcome {
		case model.OutcomeFailed:
			logger.Warn("rule action failed", "rule_id", res.RuleID, "action", res.Action, "thread_id", ev.ThreadID, "error", res.Err)
		case model.OutcomeSkipped:
			logger.Debug("rule action skipped", "rule_id", res.RuleID, "action", res.Action, "thread_id", ev.ThreadID, "reason", res.Reason)
		default:
			logger.Debug("rule action applied", "rule_id", res.RuleID, "action", res.Action, "thread_id", ev.ThreadID)
		}
	}
	return results
}

func (e *RuleEngine) run(ruleID int64, kind model.ActionKind, fn func() model.ActionResult) (res model.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.Failed(ruleID, kind, fmt.Errorf("action panicked: %v", r))
		}
	}()
	res = fn()
	if res.Outcome == model.OutcomeFailed && res.Err == nil {
		res.Err = errors.New("action failed")
	}
	return res
}
