package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAppendRequiresAccountActionAndActor(t *testing.T) {
	repo := NewMemoryRepo()
	biz := uuid.New()

	if err := repo.Append(context.Background(), Event{ActionType: ActionFreeze, AdminUserID: "a"}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent without business account, got %v", err)
	}
	if err := repo.Append(context.Background(), Event{BusinessAccountID: biz, AdminUserID: "a", ActionType: "bogus"}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent for unknown action, got %v", err)
	}
	if err := repo.Append(context.Background(), Event{BusinessAccountID: biz, ActionType: ActionFreeze}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent without actor, got %v", err)
	}
	if n := len(repo.Events()); n != 0 {
		t.Fatalf("expected no stored events, got %d", n)
	}
}

func TestService_ListFiltersAndPaginates(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	biz := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		action := ActionFreeze
		if i%2 == 1 {
			action = ActionUnfreeze
		}
		e := Event{BusinessAccountID: biz, AdminUserID: "admin", ActionType: action, Reason: "routine review", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Append(context.Background(), Stamp(e, base)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// Another tenant's event never leaks.
	_ = repo.Append(context.Background(), Stamp(Event{BusinessAccountID: uuid.New(), AdminUserID: "admin", ActionType: ActionFreeze}, base))

	page, err := svc.List(context.Background(), biz, Filter{ActionTypes: []ActionType{ActionFreeze}, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 3 || len(page.AuditLogs) != 2 || !page.Pagination.HasMore {
		t.Fatalf("unexpected page: %+v", page.Pagination)
	}
	if !page.AuditLogs[0].CreatedAt.After(page.AuditLogs[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	start := base.Add(3 * time.Hour)
	page, _ = svc.List(context.Background(), biz, Filter{StartDate: &start})
	if page.Pagination.Total != 2 || page.Pagination.HasMore {
		t.Fatalf("unexpected date-filtered page: %+v", page.Pagination)
	}
}

func TestNormalizeFilter_ClampsLimit(t *testing.T) {
	if got := NormalizeFilter(Filter{}).Limit; got != DefaultLimit {
		t.Fatalf("expected default %d, got %d", DefaultLimit, got)
	}
	if got := NormalizeFilter(Filter{Limit: 10_000}).Limit; got != MaxLimit {
		t.Fatalf("expected clamp to %d, got %d", MaxLimit, got)
	}
	if got := NormalizeFilter(Filter{Offset: -3}).Offset; got != 0 {
		t.Fatalf("expected offset 0, got %d", got)
	}
}
