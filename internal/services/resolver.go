package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
)

type ContactStore interface {
	Upsert(ctx context.Context, phone string) (*model.Contact, error)
	GetByID(ctx context.Context, id int64) (*model.Contact, error)
	GetByPhone(ctx context.Context, phone string) (*model.Contact, error)
}

type ThreadCreator interface {
	GetByContactID(ctx context.Context, contactID int64) (*model.Thread, error)
	Create(ctx context.Context, t *model.Thread) (*model.Thread, error)
}

// NormalizePhone trims whitespace and adds the leading + when missing.
// NormalizePhone(NormalizePhone(p)) == NormalizePhone(p).
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" || p == "+" {
		return "", validationError("phone is required")
	}
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p, nil
}

// Resolution identifies the contact and thread an inbound message belongs to.
type Resolution struct {
	ContactID int64
	ThreadID  int64
	Phone     string
	IsNew     bool
}

type ContactThreadResolver struct {
	contacts ContactStore
	threads  ThreadCreator
}

func NewContactThreadResolver(contacts ContactStore, threads ThreadCreator) *ContactThreadResolver {
	return &ContactThreadResolver{
		contacts: contacts,
		threads:  threads,
	}
}

// Resolve finds or creates the contact for rawPhone and its single thread. A
// new thread is seeded with at and a preview of body.
func (r *ContactThreadResolver) Resolve(ctx context.Context, rawPhone string, at time.Time, body string) (*Resolution, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	contact, err := r.contacts.Upsert(ctx, phone)
	if err != nil {
		return nil, storeError(err)
	}
	res := &Resolution{ContactID: contact.ID, Phone: phone}

	thread, err := r.threads.GetByContactID(ctx, contact.ID)
	if err == nil {
		res.ThreadID = thread.ID
		return res, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err)
	}

	thread, err = r.threads.Create(ctx, &model.Thread{
		ContactID:          contact.ID,
		Status:             model.ThreadStatusOpen,
		LastMessageAt:      at,
		LastMessagePreview: model.Preview(body),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent request created the thread first
		thread, err = r.threads.GetByContactID(ctx, contact.ID)
		if err != nil {
			return nil, storeError(err)
		}
		res.ThreadID = thread.ID
		return res, nil
	}
	if err != nil {
		return nil, storeError(err)
	}

	res.ThreadID = thread.ID
	res.IsNew = true
	return res, nil
}
