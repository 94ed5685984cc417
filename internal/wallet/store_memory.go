package wallet

import (
	"context"
	"sync"
	"time"

	"bizwallet/internal/audit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. One mutex serializes every unit of work.
// It backs tests and local tooling; it is not intended for production use.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	txs      map[uuid.UUID][]Transaction
	audit    *audit.MemoryRepo
	clock    func() time.Time
}

func NewMemoryStore(auditRepo *audit.MemoryRepo) *MemoryStore {
	if auditRepo == nil {
		auditRepo = audit.NewMemoryRepo()
	}
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*Account),
		txs:      make(map[uuid.UUID][]Transaction),
		audit:    auditRepo,
		clock:    time.Now,
	}
}

// Seed inserts or replaces an account. Missing id and timestamps are filled in.
func (s *MemoryStore) Seed(a Account) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Currency == "" {
		a.Currency = "EUR"
	}
	now := s.clock().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.accounts[a.ID] = &a
	return a
}

// Transactions returns a copy of an account's ledger in append order.
func (s *MemoryStore) Transactions(businessID uuid.UUID) []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transaction(nil), s.txs[businessID]...)
}

func (s *MemoryStore) AuditRepo() *audit.MemoryRepo { return s.audit }

func (s *MemoryStore) Account(_ context.Context, id uuid.UUID) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (s *MemoryStore) Apply(_ context.Context, op Operation) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[op.BusinessAccountID]
	if !ok {
		return Result{}, ErrAccountNotFound
	}
	if op.ExternalPaymentReference != "" {
		if existing, found := s.findRef(op.BusinessAccountID, op.ExternalPaymentReference); found {
			return Result{Transaction: existing, PreviousBalance: existing.BalanceAfter, Balance: existing.BalanceAfter, AlreadyProcessed: true}, nil
		}
	}
	if a.Frozen {
		return Result{}, ErrWalletFrozen
	}
	prev := a.Balance
	next := prev.Add(op.Amount)
	if op.Amount.IsNegative() && next.IsNegative() {
		return Result{}, ErrInsufficientBalance
	}

	t := s.append(a, Transaction{
		Type:                     op.Type,
		Amount:                   op.Amount,
		Description:              op.Description,
		ReferenceID:              op.ReferenceID,
		ExternalPaymentReference: op.ExternalPaymentReference,
		CreatedBy:                op.CreatedBy,
	})
	return Result{Transaction: t, PreviousBalance: prev, Balance: a.Balance}, nil
}

func (s *MemoryStore) AdminAdjust(_ context.Context, adj Adjustment) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[adj.BusinessAccountID]
	if !ok {
		return Result{}, ErrAccountNotFound
	}
	if a.Frozen {
		return Result{}, ErrWalletFrozen
	}
	if adj.Currency != a.Currency {
		return Result{}, ErrCurrencyMismatch
	}
	prev := a.Balance
	next := prev.Add(adj.Amount)
	if adj.Amount.IsNegative() && next.IsNegative() && !adj.AllowNegative {
		return Result{}, ErrInsufficientBalance
	}

	ev := audit.Stamp(audit.Event{
		BusinessAccountID: a.ID,
		AdminUserID:       adj.AdminUserID,
		ActionType:        audit.ActionAdjustment,
		Reason:            adj.Reason,
		Amount:            decimalPtr(adj.Amount),
		PreviousBalance:   decimalPtr(prev),
		NewBalance:        decimalPtr(next),
		Currency:          a.Currency,
		IPAddress:         adj.IPAddress,
	}, s.clock())

	t := s.append(a, Transaction{
		Type:        TypeAdminAdjustment,
		Amount:      adj.Amount,
		Description: adjustmentDescription(adj.Reason),
		ReferenceID: ev.ID.String(),
		CreatedBy:   adj.AdminUserID,
	})
	_ = s.audit.Append(context.Background(), ev)
	return Result{Transaction: t, PreviousBalance: prev, Balance: a.Balance}, nil
}

func (s *MemoryStore) SetFrozen(_ context.Context, ch FreezeChange) (FreezeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[ch.BusinessAccountID]
	if !ok {
		return FreezeResult{}, ErrAccountNotFound
	}
	if ch.Freeze && a.Frozen {
		return FreezeResult{}, ErrAlreadyFrozen
	}
	if !ch.Freeze && !a.Frozen {
		return FreezeResult{}, ErrNotFrozen
	}

	now := s.clock().UTC()
	a.Frozen = ch.Freeze
	a.UpdatedAt = now
	action := audit.ActionUnfreeze
	if ch.Freeze {
		action = audit.ActionFreeze
		a.FrozenAt = &now
		a.FrozenReason = ch.Reason
	} else {
		a.FrozenAt = nil
		a.FrozenReason = ""
	}

	ev := audit.Stamp(audit.Event{
		BusinessAccountID: a.ID,
		AdminUserID:       ch.AdminUserID,
		ActionType:        action,
		Reason:            ch.Reason,
		IPAddress:         ch.IPAddress,
	}, now)
	_ = s.audit.Append(context.Background(), ev)
	return FreezeResult{BusinessAccountID: a.ID, Frozen: a.Frozen, AuditID: ev.ID, ChangedAt: now}, nil
}

func (s *MemoryStore) FindByExternalReference(_ context.Context, businessID uuid.UUID, ref string) (Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findRef(businessID, ref)
	return t, ok, nil
}

func (s *MemoryStore) Transaction(_ context.Context, businessID, id uuid.UUID) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs[businessID] {
		if t.ID == id {
			return t, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

// append must be called with mu held.
func (s *MemoryStore) append(a *Account, t Transaction) Transaction {
	now := s.clock().UTC()
	a.Balance = a.Balance.Add(t.Amount)
	a.UpdatedAt = now

	t.ID = uuid.New()
	t.BusinessAccountID = a.ID
	t.Currency = a.Currency
	t.BalanceAfter = a.Balance
	t.CreatedAt = now
	s.txs[a.ID] = append(s.txs[a.ID], t)
	return t
}

func (s *MemoryStore) findRef(businessID uuid.UUID, ref string) (Transaction, bool) {
	for _, t := range s.txs[businessID] {
		if t.ExternalPaymentReference == ref {
			return t, true
		}
	}
	return Transaction{}, false
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func adjustmentDescription(reason string) string {
	return "Admin adjustment: " + reason
}
