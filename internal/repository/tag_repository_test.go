package repository

import (
	"context"
	"testing"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTagRepository(db)
	ctx := context.Background()

	vip, err := repo.Create(ctx, "vip", ptr("#ff0000"))
	require.NoError(t, err)
	billing, err := repo.Create(ctx, "billing", nil)
	require.NoError(t, err)

	_, err = repo.Create(ctx, "vip", nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	dup, err := repo.Attach(ctx, 1, vip.ID)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = repo.Attach(ctx, 1, vip.ID)
	require.NoError(t, err)
	assert.True(t, dup, "second attach reports duplicate")

	_, err = repo.Attach(ctx, 1, billing.ID)
	require.NoError(t, err)

	tags, err := repo.ListForThread(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "billing", tags[0].Name)

	require.NoError(t, repo.Detach(ctx, 1, vip.ID))
	require.NoError(t, repo.Detach(ctx, 1, vip.ID))

	tags, err = repo.ListForThread(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, billing.ID, tags[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRuleRepository_ListEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleRepository(db)
	ctx := context.Background()

	low, err := repo.Create(ctx, &model.AutomationRule{Name: "low", Enabled: true, Priority: 1, MatchType: model.MatchContains, MatchValue: "a", CreatedAt: at(9, 0)})
	require.NoError(t, err)
	olderHigh, err := repo.Create(ctx, &model.AutomationRule{Name: "older-high", Enabled: true, Priority: 5, MatchType: model.MatchContains, MatchValue: "b", CreatedAt: at(9, 0)})
	require.NoError(t, err)
	newerHigh, err := repo.Create(ctx, &model.AutomationRule{
		Name: "newer-high", Enabled: true, Priority: 5, MatchType: model.MatchEquals, MatchValue: "c", CreatedAt: at(10, 0),
		Actions: model.RuleActions{ApplyTag: ptr(int64(3)), AssignTo: ptr("bob")},
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.AutomationRule{Name: "off", Enabled: false, Priority: 9, MatchType: model.MatchContains, MatchValue: "d"})
	require.NoError(t, err)

	rules, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, newerHigh.ID, rules[0].ID)
	assert.Equal(t, olderHigh.ID, rules[1].ID)
	assert.Equal(t, low.ID, rules[2].ID)

	require.NotNil(t, rules[0].Actions.ApplyTag)
	assert.Equal(t, int64(3), *rules[0].Actions.ApplyTag)
	assert.Equal(t, "bob", *rules[0].Actions.AssignTo)
	assert.Nil(t, rules[0].Actions.SetStatus)
}

func TestTemplateAndHeartbeat(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	templates := NewTemplateRepository(db)
	tpl, err := templates.Create(ctx, "welcome", "Hi {name}")
	require.NoError(t, err)
	got, err := templates.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi {name}", got.Body)

	_, err = templates.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	beats := NewHeartbeatRepository(db)
	seen, err := beats.Get(ctx, model.HeartbeatWebhookInbound)
	require.NoError(t, err)
	assert.Nil(t, seen)

	require.NoError(t, beats.Touch(ctx, model.HeartbeatWebhookInbound, at(9, 0)))
	require.NoError(t, beats.Touch(ctx, model.HeartbeatWebhookInbound, at(9, 5)))

	seen, err = beats.Get(ctx, model.HeartbeatWebhookInbound)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.True(t, seen.Equal(at(9, 5)))
}

func TestDeliveryReportRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeliveryReportRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.DeliveryReport{JobID: 1, MessageID: 2, Attempt: 2, Provider: "primary", Status: model.JobStatusSent, ReportedAt: at(9, 1)})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.DeliveryReport{JobID: 1, MessageID: 2, Attempt: 1, Provider: "primary", Status: model.JobStatusFailed, Error: ptr("timeout"), ReportedAt: at(9, 0)})
	require.NoError(t, err)

	reports, err := repo.ListByJob(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Attempt)
	assert.Equal(t, "timeout", *reports[0].Error)
	assert.Equal(t, model.JobStatusSent, reports[1].Status)
}
