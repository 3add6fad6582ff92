// Package store provides an in-memory lending.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

// state holds the records. Its methods assume the caller holds the lock.
type state struct {
	clients      map[lending.ClientID]lending.Client
	dni          map[string]lending.ClientID
	loans        map[lending.LoanID]lending.Loan
	installments map[lending.InstallmentID]lending.Installment
	byLoan       map[lending.LoanID][]lending.InstallmentID
	payments     map[lending.LoanID][]lending.Payment
	methods      map[lending.PaymentMethodID]lending.PaymentMethod
}

func newState() *state {
	return &state{
		clients:      make(map[lending.ClientID]lending.Client),
		dni:          make(map[string]lending.ClientID),
		loans:        make(map[lending.LoanID]lending.Loan),
		installments: make(map[lending.InstallmentID]lending.Installment),
		byLoan:       make(map[lending.LoanID][]lending.InstallmentID),
		payments:     make(map[lending.LoanID][]lending.Payment),
		methods:      make(map[lending.PaymentMethodID]lending.PaymentMethod),
	}
}

// NewMemory returns an empty store seeded with the default payment methods.
func NewMemory() *Memory {
	st := newState()
	for _, m := range lending.DefaultPaymentMethods() {
		st.methods[m.ID] = m
	}
	return &Memory{st: st}
}

func (m *Memory) CreateClient(ctx context.Context, c lending.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateClient(ctx, c)
}

func (m *Memory) GetClient(ctx context.Context, id lending.ClientID) (lending.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetClient(ctx, id)
}

func (m *Memory) ListClients(ctx context.Context) ([]lending.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListClients(ctx)
}

func (m *Memory) CreateLoan(ctx context.Context, loan lending.Loan, schedule []lending.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateLoan(ctx, loan, schedule)
}

func (m *Memory) GetLoan(ctx context.Context, id lending.LoanID) (lending.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetLoan(ctx, id)
}

func (m *Memory) ListLoans(ctx context.Context, filter lending.LoanFilter) ([]lending.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListLoans(ctx, filter)
}

func (m *Memory) SetLoanStatus(ctx context.Context, id lending.LoanID, status lending.LoanStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetLoanStatus(ctx, id, status)
}

func (m *Memory) GetInstallment(ctx context.Context, id lending.InstallmentID) (lending.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetInstallment(ctx, id)
}

func (m *Memory) ListInstallments(ctx context.Context, loanID lending.LoanID) ([]lending.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListInstallments(ctx, loanID)
}

func (m *Memory) ListInstallmentsDue(ctx context.Context, filter lending.InstallmentFilter) ([]lending.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListInstallmentsDue(ctx, filter)
}

func (m *Memory) MarkInstallmentPaid(ctx context.Context, id lending.InstallmentID, paidDate lending.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkInstallmentPaid(ctx, id, paidDate)
}

func (m *Memory) CreatePayment(ctx context.Context, p lending.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreatePayment(ctx, p)
}

func (m *Memory) ListPayments(ctx context.Context, loanID lending.LoanID) ([]lending.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListPayments(ctx, loanID)
}

func (m *Memory) ListPaymentMethods(ctx context.Context, activeOnly bool) ([]lending.PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListPaymentMethods(ctx, activeOnly)
}

func (m *Memory) GetPaymentMethod(ctx context.Context, id lending.PaymentMethodID) (lending.PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetPaymentMethod(ctx, id)
}

func (m *Memory) SavePaymentMethod(ctx context.Context, pm lending.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SavePaymentMethod(ctx, pm)
}

// =============================================================================
// RECORD OPERATIONS
// =============================================================================

func (s *state) CreateClient(_ context.Context, c lending.Client) error {
	if _, exists := s.dni[c.DNI]; exists {
		return lending.ErrDuplicateClient
	}
	s.clients[c.ID] = c
	s.dni[c.DNI] = c.ID
	return nil
}

func (s *state) GetClient(_ context.Context, id lending.ClientID) (lending.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return lending.Client{}, lending.NotFound("client", string(id))
	}
	return c, nil
}

func (s *state) ListClients(_ context.Context) ([]lending.Client, error) {
	out := make([]lending.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (s *state) CreateLoan(_ context.Context, loan lending.Loan, schedule []lending.Installment) error {
	if _, ok := s.clients[loan.ClientID]; !ok {
		return lending.NotFound("client", string(loan.ClientID))
	}
	ids := make([]lending.InstallmentID, 0, len(schedule))
	for _, inst := range schedule {
		inst.LoanID = loan.ID
		s.installments[inst.ID] = inst
		ids = append(ids, inst.ID)
	}
	s.loans[loan.ID] = loan
	s.byLoan[loan.ID] = ids
	return nil
}

func (s *state) GetLoan(_ context.Context, id lending.LoanID) (lending.Loan, error) {
	l, ok := s.loans[id]
	if !ok {
		return lending.Loan{}, lending.NotFound("loan", string(id))
	}
	return l, nil
}

func (s *state) ListLoans(_ context.Context, filter lending.LoanFilter) ([]lending.Loan, error) {
	var out []lending.Loan
	for _, l := range s.loans {
		if filter.Matches(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *state) SetLoanStatus(_ context.Context, id lending.LoanID, status lending.LoanStatus) error {
	l, ok := s.loans[id]
	if !ok {
		return lending.NotFound("loan", string(id))
	}
	l.Status = status
	s.loans[id] = l
	return nil
}

func (s *state) GetInstallment(_ context.Context, id lending.InstallmentID) (lending.Installment, error) {
	inst, ok := s.installments[id]
	if !ok {
		return lending.Installment{}, lending.NotFound("installment", string(id))
	}
	return inst, nil
}

func (s *state) ListInstallments(_ context.Context, loanID lending.LoanID) ([]lending.Installment, error) {
	ids := s.byLoan[loanID]
	out := make([]lending.Installment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.installments[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *state) ListInstallmentsDue(_ context.Context, filter lending.InstallmentFilter) ([]lending.Installment, error) {
	var out []lending.Installment
	for _, inst := range s.installments {
		if filter.Matches(inst) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if a.LoanID != b.LoanID {
			return a.LoanID < b.LoanID
		}
		return a.SequenceNumber < b.SequenceNumber
	})
	return out, nil
}

func (s *state) MarkInstallmentPaid(_ context.Context, id lending.InstallmentID, paidDate lending.Date) error {
	inst, ok := s.installments[id]
	if !ok {
		return lending.NotFound("installment", string(id))
	}
	if inst.IsPaid() {
		return lending.ErrAlreadyPaid
	}
	inst.Status = lending.StatusPaid
	inst.PaidDate = paidDate
	s.installments[id] = inst
	return nil
}

func (s *state) CreatePayment(_ context.Context, p lending.Payment) error {
	for _, existing := range s.payments[p.LoanID] {
		if existing.InstallmentID == p.InstallmentID {
			return lending.ErrAlreadyPaid
		}
	}
	s.payments[p.LoanID] = append(s.payments[p.LoanID], p)
	return nil
}

func (s *state) ListPayments(_ context.Context, loanID lending.LoanID) ([]lending.Payment, error) {
	out := append([]lending.Payment{}, s.payments[loanID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *state) ListPaymentMethods(_ context.Context, activeOnly bool) ([]lending.PaymentMethod, error) {
	var out []lending.PaymentMethod
	for _, m := range s.methods {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) GetPaymentMethod(_ context.Context, id lending.PaymentMethodID) (lending.PaymentMethod, error) {
	m, ok := s.methods[id]
	if !ok {
		return lending.PaymentMethod{}, lending.NotFound("payment method", string(id))
	}
	return m, nil
}

func (s *state) SavePaymentMethod(_ context.Context, m lending.PaymentMethod) error {
	s.methods[m.ID] = m
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(lending.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()
	if err := fn(tm.st); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.dni {
		c.dni[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.installments {
		c.installments[k] = v
	}
	for k, v := range s.byLoan {
		c.byLoan[k] = append([]lending.InstallmentID{}, v...)
	}
	for k, v := range s.payments {
		c.payments[k] = append([]lending.Payment{}, v...)
	}
	for k, v := range s.methods {
		c.methods[k] = v
	}
	return c
}

var (
	_ lending.Store   = (*Memory)(nil)
	_ lending.TxStore = (*TxMemory)(nil)
)
