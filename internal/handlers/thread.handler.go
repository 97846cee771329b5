package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
)

type ThreadService interface {
	Get(ctx context.Context, id int64) (*services.ThreadDetail, error)
	Messages(ctx context.Context, id int64, limit int) ([]*model.Message, error)
	MarkRead(ctx context.Context, id int64) (*model.Thread, error)
	SetStatus(ctx context.Context, id int64, status model.ThreadStatus) error
	Assign(ctx context.Context, id int64, assignee *string) (*string, error)
	AddTag(ctx context.Context, threadID, tagID int64) (bool, error)
	RemoveTag(ctx context.Context, threadID, tagID int64) error
	ListTags(ctx context.Context, threadID int64) ([]*model.Tag, error)
	TagCatalog(ctx context.Context) ([]*model.Tag, error)
	CreateTag(ctx context.Context, name string, color *string) (*model.Tag, error)
	Search(ctx context.Context, q model.ThreadSearch) ([]*model.ThreadSummary, error)
	Notes(ctx context.Context, threadID int64) ([]*model.ThreadNote, error)
	AddNote(ctx context.Context, threadID int64, note string, createdBy *string) (*model.ThreadNote, error)
}

type ThreadHandler struct {
	svc     ThreadService
	timeout time.Duration
}

func RegisterThreadRoutes(e *xhttp.Group, h *ThreadHandler) {
	e.GET("/threads", h.SearchThreads)
	e.GET("/threads/{id}", h.GetThread)
	e.GET("/threads/{id}/messages", h.ListMessages)
	e.PATCH("/threads/{id}/read", h.MarkRead)
	e.PATCH("/threads/{id}/status", h.SetStatus)
	e.PATCH("/threads/{id}/assign", h.Assign)
	e.GET("/threads/{id}/tags", h.ListThreadTags)
	e.POST("/threads/{id}/tags", h.AddTag)
	e.DELETE("/threads/{id}/tags/{tag_id}", h.RemoveTag)
	e.GET("/threads/{id}/notes", h.ListNotes)
	e.POST("/threads/{id}/notes", h.AddNote)
	e.GET("/tags", h.ListTags)
	e.POST("/tags", h.CreateTag)
}

func NewThreadHandler(svc ThreadService, timeout time.Duration) *ThreadHandler {
	return &ThreadHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type setStatusRequest struct {
	Status model.ThreadStatus `json:"status" validate:"required"`
}

type assignRequest struct {
	AssignedTo *string `json:"assigned_to" validate:"omitempty,max=255"`
}

type addTagRequest struct {
	TagID int64 `json:"tag_id" validate:"required,gt=0"`
}

type createTagRequest struct {
	Name  string  `json:"name" validate:"required,max=64"`
	Color *string `json:"color" validate:"omitempty,max=32"`
}

type addNoteRequest struct {
	Note      string  `json:"note" validate:"required,max=4000"`
	CreatedBy *string `json:"created_by" validate:"omitempty,max=255"`
}

type searchResponse struct {
	OK    bool                   `json:"ok"`
	Items []*model.ThreadSummary `json:"items"`
}

type notesResponse struct {
	OK    bool                `json:"ok"`
	Items []*model.ThreadNote `json:"items"`
}

type messagesResponse struct {
	OK    bool             `json:"ok"`
	Items []*model.Message `json:"items"`
}

type tagsResponse struct {
	Items []*model.Tag `json:"items"`
}

func (h *ThreadHandler) GetThread(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	t, err := h.svc.Get(c, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, t)
}

func (h *ThreadHandler) ListMessages(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	limit := 0
	if v := query(ctx, "limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	msgs, err := h.svc.Messages(c, id, limit)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(ctx, xhttp.StatusOK, messagesResponse{OK: true, Items: msgs})
}

func (h *ThreadHandler) MarkRead(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	t, err := h.svc.MarkRead(c, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"ok": true, "unread_count": t.UnreadCount})
}

func (h *ThreadHandler) SetStatus(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	if err := h.svc.SetStatus(c, id, req.Status); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"ok": true, "status": req.Status})
}

func (h *ThreadHandler) Assign(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	var req assignRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	assignee, err := h.svc.Assign(c, id, req.AssignedTo)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"ok": true, "assigned_to": assignee})
}

func (h *ThreadHandler) ListThreadTags(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	tags, err := h.svc.ListTags(c, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, tagsResponse{Items: nonNilTags(tags)})
}

func (h *ThreadHandler) AddTag(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	var req addTagRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	dup, err := h.svc.AddTag(c, id, req.TagID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"ok": true, "duplicate": dup})
}

func (h *ThreadHandler) RemoveTag(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	tagID, err := pathInt64(ctx, "tag_id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid tag id")
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	if err := h.svc.RemoveTag(c, id, tagID); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, okResponse{OK: true})
}

func (h *ThreadHandler) ListTags(ctx *xhttp.RequestCtx) {
	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	tags, err := h.svc.TagCatalog(c)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, tagsResponse{Items: nonNilTags(tags)})
}

func (h *ThreadHandler) CreateTag(ctx *xhttp.RequestCtx) {
	var req createTagRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	tag, err := h.svc.CreateTag(c, req.Name, req.Color)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, map[string]any{"ok": true, "tag": tag})
}

// SearchThreads filters threads by ?q=, status, assigned_to, unread=true and limit.
func (h *ThreadHandler) SearchThreads(ctx *xhttp.RequestCtx) {
	args := ctx.QueryArgs()
	q := model.ThreadSearch{
		Query:      string(args.Peek("q")),
		Status:     model.ThreadStatus(args.Peek("status")),
		AssignedTo: string(args.Peek("assigned_to")),
		UnreadOnly: string(args.Peek("unread")) == "true",
	}
	if v := args.Peek("limit"); len(v) > 0 {
		n, err := strconv.Atoi(string(v))
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "limit must be a number")
			return
		}
		q.Limit = n
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	threads, err := h.svc.Search(c, q)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if threads == nil {
		threads = []*model.ThreadSummary{}
	}
	writeJSON(ctx, xhttp.StatusOK, searchResponse{OK: true, Items: threads})
}

func (h *ThreadHandler) ListNotes(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	notes, err := h.svc.Notes(c, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if notes == nil {
		notes = []*model.ThreadNote{}
	}
	writeJSON(ctx, xhttp.StatusOK, notesResponse{OK: true, Items: notes})
}

func (h *ThreadHandler) AddNote(ctx *xhttp.RequestCtx) {
	id, ok := h.threadID(ctx)
	if !ok {
		return
	}
	var req addNoteRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	note, err := h.svc.AddNote(c, id, req.Note, req.CreatedBy)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, map[string]any{"ok": true, "note": note})
}

func (h *ThreadHandler) threadID(ctx *xhttp.RequestCtx) (int64, bool) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid thread id")
		return 0, false
	}
	return id, true
}

func nonNilTags(tags []*model.Tag) []*model.Tag {
	if tags == nil {
		return []*model.Tag{}
	}
	return tags
}
