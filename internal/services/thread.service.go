package services

import (
	"context"
	"errors"
	"strings"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
)

type ThreadStore interface {
	GetByID(ctx context.Context, id int64) (*model.Thread, error)
	SetStatus(ctx context.Context, id int64, status model.ThreadStatus) error
	Assign(ctx context.Context, id int64, assignee *string) error
	Search(ctx context.Context, q model.ThreadSearch) ([]*model.ThreadSummary, error)
}

type NoteStore interface {
	Create(ctx context.Context, threadID int64, note string, createdBy *string) (*model.ThreadNote, error)
	ListByThread(ctx context.Context, threadID int64) ([]*model.ThreadNote, error)
}

type TagStore interface {
	Create(ctx context.Context, name string, color *string) (*model.Tag, error)
	GetByID(ctx context.Context, id int64) (*model.Tag, error)
	List(ctx context.Context) ([]*model.Tag, error)
	Attach(ctx context.Context, threadID, tagID int64) (bool, error)
	Detach(ctx context.Context, threadID, tagID int64) error
	ListForThread(ctx context.Context, threadID int64) ([]*model.Tag, error)
}

type MessageLister interface {
	ListByThread(ctx context.Context, threadID int64, limit int) ([]*model.Message, error)
}

// ThreadDetail is a thread with its contact and tags.
type ThreadDetail struct {
	*model.Thread
	Contact *model.Contact `json:"contact"`
	Tags    []*model.Tag   `json:"tags"`
}

// ThreadService backs the agent facing thread endpoints.
type ThreadService struct {
	threads  ThreadStore
	contacts ContactStore
	tags     TagStore
	messages MessageLister
	notes    NoteStore
	sla      *SLATracker
}

func NewThreadService(threads ThreadStore, contacts ContactStore, tags TagStore, messages MessageLister, notes NoteStore, sla *SLATracker) *ThreadService {
	return &ThreadService{
		threads:  threads,
		contacts: contacts,
		tags:     tags,
		messages: messages,
		notes:    notes,
		sla:      sla,
	}
}

func (s *ThreadService) Get(ctx context.Context, id int64) (*ThreadDetail, error) {
	t, err := s.threads.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	c, err := s.contacts.GetByID(ctx, t.ContactID)
	if err != nil {
		return nil, storeError(err)
	}
	tags, err := s.tags.ListForThread(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return &ThreadDetail{Thread: t, Contact: c, Tags: tags}, nil
}

func (s *ThreadService) Messages(ctx context.Context, id int64, limit int) ([]*model.Message, error) {
	if _, err := s.threads.GetByID(ctx, id); err != nil {
		return nil, storeError(err)
	}
	msgs, err := s.messages.ListByThread(ctx, id, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return msgs, nil
}

// Search trims the query and rejects unknown statuses; an empty filter lists
// every thread.
func (s *ThreadService) Search(ctx context.Context, q model.ThreadSearch) ([]*model.ThreadSummary, error) {
	q.Query = strings.TrimSpace(q.Query)
	q.AssignedTo = strings.TrimSpace(q.AssignedTo)
	if q.Status != "" && !q.Status.Valid() {
		return nil, validationError("status must be one of open, pending, resolved, closed")
	}
	threads, err := s.threads.Search(ctx, q)
	if err != nil {
		return nil, storeError(err)
	}
	return threads, nil
}

func (s *ThreadService) Notes(ctx context.Context, threadID int64) ([]*model.ThreadNote, error) {
	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return nil, storeError(err)
	}
	notes, err := s.notes.ListByThread(ctx, threadID)
	if err != nil {
		return nil, storeError(err)
	}
	return notes, nil
}

// AddNote stores the trimmed note text. createdBy is optional until agents
// authenticate.
func (s *ThreadService) AddNote(ctx context.Context, threadID int64, note string, createdBy *string) (*model.ThreadNote, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, validationError("note is required")
	}
	if createdBy != nil {
		if v := strings.TrimSpace(*createdBy); v == "" {
			createdBy = nil
		} else {
			createdBy = &v
		}
	}
	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return nil, storeError(err)
	}
	n, err := s.notes.Create(ctx, threadID, note, createdBy)
	if err != nil {
		return nil, storeError(err)
	}
	return n, nil
}

func (s *ThreadService) MarkRead(ctx context.Context, id int64) (*model.Thread, error) {
	return s.sla.MarkRead(ctx, id)
}

func (s *ThreadService) SetStatus(ctx context.Context, id int64, status model.ThreadStatus) error {
	if !status.Valid() {
		return validationError("status must be one of open, pending, resolved, closed")
	}
	return storeError(s.threads.SetStatus(ctx, id, status))
}

// Assign sets the assignee; nil or blank clears it.
func (s *ThreadService) Assign(ctx context.Context, id int64, assignee *string) (*string, error) {
	if assignee != nil {
		v := strings.TrimSpace(*assignee)
		if v == "" {
			assignee = nil
		} else {
			assignee = &v
		}
	}
	if err := s.threads.Assign(ctx, id, assignee); err != nil {
		return nil, storeError(err)
	}
	return assignee, nil
}

// AddTag attaches an existing tag. duplicate is true when it was already there.
func (s *ThreadService) AddTag(ctx context.Context, threadID, tagID int64) (duplicate bool, err error) {
	if tagID <= 0 {
		return false, validationError("tag_id is required")
	}
	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return false, storeError(err)
	}
	if _, err := s.tags.GetByID(ctx, tagID); err != nil {
		return false, storeError(err)
	}
	dup, err := s.tags.Attach(ctx, threadID, tagID)
	if err != nil {
		return false, storeError(err)
	}
	return dup, nil
}

func (s *ThreadService) RemoveTag(ctx context.Context, threadID, tagID int64) error {
	return storeError(s.tags.Detach(ctx, threadID, tagID))
}

func (s *ThreadService) ListTags(ctx context.Context, threadID int64) ([]*model.Tag, error) {
	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return nil, storeError(err)
	}
	tags, err := s.tags.ListForThread(ctx, threadID)
	if err != nil {
		return nil, storeError(err)
	}
	return tags, nil
}

func (s *ThreadService) TagCatalog(ctx context.Context) ([]*model.Tag, error) {
	tags, err := s.tags.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return tags, nil
}

// CreateTag adds a tag to the catalogue. Names are unique.
func (s *ThreadService) CreateTag(ctx context.Context, name string, color *string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	tag, err := s.tags.Create(ctx, name, color)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, validationError("tag %q already exists", name)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return tag, nil
}
