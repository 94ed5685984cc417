package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Repository reads audit events. Events are written by the wallet store in
// the same unit of work as the change they record (see AppendTx), and the
// trail has no Update/Delete path.
type Repository interface {
	List(ctx context.Context, businessID uuid.UUID, f Filter) ([]Event, int, error)
}

// Service reads the admin wallet audit trail.
// Audit is internal-only: it is exposed to admins, never to business users.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// check requires an account, a known action and an actor.
func (e Event) check() error {
	if e.BusinessAccountID == uuid.Nil || !e.ActionType.Valid() || e.AdminUserID == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Stamp fills in id and timestamp when missing.
func Stamp(e Event, now time.Time) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	return e
}

// List returns one page of a business account's audit trail, newest first.
// Limit defaults to 50 and is clamped to 500.
func (s *Service) List(ctx context.Context, businessID uuid.UUID, f Filter) (Page, error) {
	f = NormalizeFilter(f)
	events, total, err := s.repo.List(ctx, businessID, f)
	if err != nil {
		return Page{}, err
	}
	return Page{
		AuditLogs: events,
		Pagination: Pagination{
			Total:   total,
			Limit:   f.Limit,
			Offset:  f.Offset,
			HasMore: f.Offset+len(events) < total,
		},
	}, nil
}

func NormalizeFilter(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	valid := f.ActionTypes[:0:0]
	for _, a := range f.ActionTypes {
		if a.Valid() {
			valid = append(valid, a)
		}
	}
	f.ActionTypes = valid
	return f
}
