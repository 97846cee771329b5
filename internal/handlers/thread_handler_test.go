package handlers

import (
	"context"
	"fmt"
	"testing"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockThreadService struct {
	mock.Mock
}

func (m *MockThreadService) Get(ctx context.Context, id int64) (*services.ThreadDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ThreadDetail), args.Error(1)
}

func (m *MockThreadService) Messages(ctx context.Context, id int64, limit int) ([]*model.Message, error) {
	args := m.Called(ctx, id, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Message), args.Error(1)
}

func (m *MockThreadService) MarkRead(ctx context.Context, id int64) (*model.Thread, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thread), args.Error(1)
}

func (m *MockThreadService) SetStatus(ctx context.Context, id int64, status model.ThreadStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockThreadService) Assign(ctx context.Context, id int64, assignee *string) (*string, error) {
	args := m.Called(ctx, id, assignee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

func (m *MockThreadService) AddTag(ctx context.Context, threadID, tagID int64) (bool, error) {
	args := m.Called(ctx, threadID, tagID)
	return args.Bool(0), args.Error(1)
}

func (m *MockThreadService) RemoveTag(ctx context.Context, threadID, tagID int64) error {
	return m.Called(ctx, threadID, tagID).Error(0)
}

func (m *MockThreadService) ListTags(ctx context.Context, threadID int64) ([]*model.Tag, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Tag), args.Error(1)
}

func (m *MockThreadService) TagCatalog(ctx context.Context) ([]*model.Tag, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Tag), args.Error(1)
}

func (m *MockThreadService) CreateTag(ctx context.Context, name string, color *string) (*model.Tag, error) {
	args := m.Called(ctx, name, color)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tag), args.Error(1)
}

func (m *MockThreadService) Search(ctx context.Context, q model.ThreadSearch) ([]*model.ThreadSummary, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ThreadSummary), args.Error(1)
}

func (m *MockThreadService) Notes(ctx context.Context, threadID int64) ([]*model.ThreadNote, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ThreadNote), args.Error(1)
}

func (m *MockThreadService) AddNote(ctx context.Context, threadID int64, note string, createdBy *string) (*model.ThreadNote, error) {
	args := m.Called(ctx, threadID, note, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ThreadNote), args.Error(1)
}

func threadRouter(svc ThreadService) *xhttp.Router {
	h := NewThreadHandler(svc, testTimeout)
	return newRouter(func(g *xhttp.Group) { RegisterThreadRoutes(g, h) })
}

func TestThreadHandler_GetThread(t *testing.T) {
	svc := new(MockThreadService)
	svc.On("Get", mock.Anything, int64(3)).Return(&services.ThreadDetail{
		Thread:  &model.Thread{ID: 3, Status: model.ThreadStatusOpen, UnreadCount: 2},
		Contact: &model.Contact{ID: 1, Phone: "+15551234567"},
		Tags:    []*model.Tag{{ID: 5, Name: "refund"}},
	}, nil).Once()
	svc.On("Get", mock.Anything, int64(4)).Return(nil, fmt.Errorf("%w: thread", services.ErrNotFound)).Once()
	r := threadRouter(svc)

	ctx := do(r, "GET", "/api/v1/threads/3", nil, nil)
	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	out := decode(t, ctx)
	assert.Equal(t, float64(3), out["id"])
	assert.Equal(t, "open", out["status"])
	assert.Equal(t, "+15551234567", out["contact"].(map[string]any)["phone_e164"])
	assert.Len(t, out["tags"], 1)

	ctx = do(r, "GET", "/api/v1/threads/4", nil, nil)
	assert.Equal(t, xhttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = do(r, "GET", "/api/v1/threads/abc", nil, nil)
	assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
	svc.AssertExpectations(t)
}

func TestThreadHandler_ListMessages(t *testing.T) {
	svc := new(MockThreadService)
	svc.On("Messages", mock.Anything, int64(3), 2).
		Return([]*model.Message{{ID: 1, Body: "a"}, {ID: 2, Body: "b"}}, nil).Once()
	svc.On("Messages", mock.Anything, int64(3), 0).Return(nil, nil).Once()
	r := threadRouter(svc)

	ctx := do(r, "GET", "/api/v1/threads/3/messages?limit=2", nil, nil)
	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	out := decode(t, ctx)
	assert.Equal(t, true, out["ok"])
	assert.Len(t, out["items"], 2)

	ctx = do(r, "GET", "/api/v1/threads/3/messages", nil, nil)
	assert.Equal(t, []any{}, decode(t, ctx)["items"])

	ctx = do(r, "GET", "/api/v1/threads/3/messages?limit=ten", nil, nil)
	assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
	svc.AssertExpectations(t)
}

func TestThreadHandler_Updates(t *testing.T) {
	t.Run("mark read", func(t *testing.T) {
		svc := new(MockThreadService)
		svc.On("MarkRead", mock.Anything, int64(3)).Return(&model.Thread{ID: 3}, nil).Once()

		ctx := do(threadRouter(svc), "PATCH", "/api/v1/threads/3/read", nil, nil)
		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, float64(0), decode(t, ctx)["unread_count"])
	})

	t.Run("status", func(t *testing.T) {
		svc := new(MockThreadService)
		svc.On("SetStatus", mock.Anything, int64(3), model.ThreadStatusResolved).Return(nil).Once()
		svc.On("SetStatus", mock.Anything, int64(3), model.ThreadStatus("archived")).
			Return(fmt.Errorf("%w: status must be one of open, pending, resolved, closed", services.ErrValidation)).Once()
		r := threadRouter(svc)

		ctx := do(r, "PATCH", "/api/v1/threads/3/status", []byte(`{"status":"resolved"}`), nil)
		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "resolved", decode(t, ctx)["status"])

		ctx = do(r, "PATCH", "/api/v1/threads/3/status", []byte(`{"status":"archived"}`), nil)
		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, decode(t, ctx)["error"], "status must be one of")

		ctx = do(r, "PATCH", "/api/v1/threads/3/status", []byte(`{}`), nil)
		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("assign and unassign", func(t *testing.T) {
		svc := new(MockThreadService)
		agent := "agent-7"
		svc.On("Assign", mock.Anything, int64(3), &agent).Return(&agent, nil).Once()
		svc.On("Assign", mock.Anything, int64(3), (*string)(nil)).Return(nil, nil).Once()
		r := threadRouter(svc)

		ctx := do(r, "PATCH", "/api/v1/threads/3/assign", []byte(`{"assigned_to":"agent-7"}`), nil)
		assert.Equal(t, "agent-7", decode(t, ctx)["assigned_to"])

		ctx = do(r, "PATCH", "/api/v1/threads/3/assign", []byte(`{"assigned_to":null}`), nil)
		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		out := decode(t, ctx)
		assert.Contains(t, out, "assigned_to")
		assert.Nil(t, out["assigned_to"])
		svc.AssertExpectations(t)
	})
}

func TestThreadHandler_Tags(t *testing.T) {
	t.Run("attach reports duplicates", func(t *testing.T) {
		svc := new(MockThreadService)
		svc.On("AddTag", mock.Anything, int64(3), int64(5)).Return(false, nil).Once()
		svc.On("AddTag", mock.Anything, int64(3), int64(5)).Return(true, nil).Once()
		r := threadRouter(svc)

		ctx := do(r, "POST", "/api/v1/threads/3/tags", []byte(`{"tag_id":5}`), nil)
		assert.Equal(t, false, decode(t, ctx)["duplicate"])
		ctx = do(r, "POST", "/api/v1/threads/3/tags", []byte(`{"tag_id":5}`), nil)
		assert.Equal(t, true, decode(t, ctx)["duplicate"])

		ctx = do(r, "POST", "/api/v1/threads/3/tags", []byte(`{"tag_id":0}`), nil)
		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("list and detach", func(t *testing.T) {
		svc := new(MockThreadService)
		svc.On("ListTags", mock.Anything, int64(3)).Return([]*model.Tag{{ID: 5, Name: "refund"}}, nil).Once()
		svc.On("RemoveTag", mock.Anything, int64(3), int64(5)).Return(nil).Once()
		r := threadRouter(svc)

		ctx := do(r, "GET", "/api/v1/threads/3/tags", nil, nil)
		assert.Len(t, decode(t, ctx)["items"], 1)

		ctx = do(r, "DELETE", "/api/v1/threads/3/tags/5", nil, nil)
		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, true, decode(t, ctx)["ok"])

		ctx = do(r, "DELETE", "/api/v1/threads/3/tags/x", nil, nil)
		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("catalogue", func(t *testing.T) {
		svc := new(MockThreadService)
		color := "#ff0000"
		svc.On("TagCatalog", mock.Anything).Return(nil, nil).Once()
		svc.On("CreateTag", mock.Anything, "vip", &color).Return(&model.Tag{ID: 8, Name: "vip", Color: &color}, nil).Once()
		svc.On("CreateTag", mock.Anything, "vip", (*string)(nil)).
			Return(nil, fmt.Errorf("%w: tag \"vip\" already exists", services.ErrValidation)).Once()
		r := threadRouter(svc)

		ctx := do(r, "GET", "/api/v1/tags", nil, nil)
		assert.Equal(t, []any{}, decode(t, ctx)["items"])

		ctx = do(r, "POST", "/api/v1/tags", []byte(`{"name":"vip","color":"#ff0000"}`), nil)
		assert.Equal(t, xhttp.StatusCreated, ctx.Response.StatusCode())
		assert.Equal(t, "vip", decode(t, ctx)["tag"].(map[string]any)["name"])

		ctx = do(r, "POST", "/api/v1/tags", []byte(`{"name":"vip"}`), nil)
		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, decode(t, ctx)["error"], "already exists")
		svc.AssertExpectations(t)
	})
}

func TestThreadHandler_Search(t *testing.T) {
	svc := new(MockThreadService)
	svc.On("Search", mock.Anything, model.ThreadSearch{
		Query: "+1555", Status: model.ThreadStatusOpen, AssignedTo: "agent-1", UnreadOnly: true, Limit: 5,
	}).Return([]*model.ThreadSummary{{Thread: &model.Thread{ID: 3}, Phone: "+15551234567"}}, nil).Once()
	svc.On("Search", mock.Anything, model.ThreadSearch{}).Return(nil, nil).Once()
	svc.On("Search", mock.Anything, model.ThreadSearch{Status: "archived"}).
		Return(nil, fmt.Errorf("%w: status must be one of open, pending, resolved, closed", services.ErrValidation)).Once()
	r := threadRouter(svc)

	ctx := do(r, "GET", "/api/v1/threads?q=%2B1555&status=open&assigned_to=agent-1&unread=true&limit=5", nil, nil)
	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	out := decode(t, ctx)
	assert.Equal(t, true, out["ok"])
	items := out["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "+15551234567", items[0].(map[string]any)["phone_e164"])

	ctx = do(r, "GET", "/api/v1/threads", nil, nil)
	assert.Equal(t, []any{}, decode(t, ctx)["items"])

	ctx = do(r, "GET", "/api/v1/threads?status=archived", nil, nil)
	assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = do(r, "GET", "/api/v1/threads?limit=many", nil, nil)
	assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
	svc.AssertExpectations(t)
}

func TestThreadHandler_Notes(t *testing.T) {
	svc := new(MockThreadService)
	svc.On("Notes", mock.Anything, int64(3)).Return([]*model.ThreadNote{{ID: 2, ThreadID: 3, Note: "second"}, {ID: 1, ThreadID: 3, Note: "first"}}, nil).Once()
	svc.On("AddNote", mock.Anything, int64(3), "called back", (*string)(nil)).
		Return(&model.ThreadNote{ID: 4, ThreadID: 3, Note: "called back"}, nil).Once()
	svc.On("AddNote", mock.Anything, int64(3), "   ", (*string)(nil)).
		Return(nil, fmt.Errorf("%w: note is required", services.ErrValidation)).Once()
	r := threadRouter(svc)

	ctx := do(r, "GET", "/api/v1/threads/3/notes", nil, nil)
	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	items := decode(t, ctx)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].(map[string]any)["note"])

	ctx = do(r, "POST", "/api/v1/threads/3/notes", []byte(`{"note":"called back"}`), nil)
	assert.Equal(t, xhttp.StatusCreated, ctx.Response.StatusCode())
	assert.Equal(t, float64(4), decode(t, ctx)["note"].(map[string]any)["id"])

	ctx = do(r, "POST", "/api/v1/threads/3/notes", []byte(`{"note":"   "}`), nil)
	assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Contains(t, decode(t, ctx)["error"], "note is required")

	ctx = do(r, "POST", "/api/v1/threads/3/notes", []byte(`{}`), nil)
	assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
	svc.AssertExpectations(t)
}
