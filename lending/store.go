/*
store.go - Persistence collaborator contract

PURPOSE:
  Defines the interface between the lending engine and whatever holds the
  records. The engine itself never stores anything; the back-office service
  reads terms and installments through these interfaces and writes back the
  two mutations the system has.

THE TWO MUTATIONS:
  - CreateLoan():          loan + its whole schedule, atomically
  - MarkInstallmentPaid(): single-record pending -> paid with a paid date
  Installments are never deleted and never edited otherwise.

ATOMICITY:
  TxStore.WithTx() runs a function against a transactional view. Recording a
  payment (payment row + installment flip + loan completion) goes through it,
  so a failure leaves nothing half-written.

IMPLEMENTATIONS:
  - lending/store/memory.go:  in-memory, for tests and dev
  - store/sqlite/sqlite.go:   embedded SQLite
  - store/postgres/store.go:  hosted PostgreSQL via pgx

SEE ALSO:
  - backoffice/service.go: the only caller
  - errors.go: ErrNotFound, ErrAlreadyPaid, ErrDuplicateClient
*/
package lending

import "context"

// =============================================================================
// STORE - Record persistence
// =============================================================================

type ClientStore interface {
	// CreateClient inserts a client. Returns ErrDuplicateClient if the DNI exists.
	CreateClient(ctx context.Context, c Client) error

	// GetClient returns ErrNotFound for an unknown ID.
	GetClient(ctx context.Context, id ClientID) (Client, error)

	// ListClients returns all clients ordered by last name, first name.
	ListClients(ctx context.Context) ([]Client, error)
}

type LoanStore interface {
	// CreateLoan inserts the loan and its schedule. Either all rows are written or none.
	CreateLoan(ctx context.Context, loan Loan, schedule []Installment) error

	// GetLoan returns ErrNotFound for an unknown ID.
	GetLoan(ctx context.Context, id LoanID) (Loan, error)

	// ListLoans returns loans ordered by creation, newest first.
	ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error)

	// SetLoanStatus updates the loan lifecycle status.
	SetLoanStatus(ctx context.Context, id LoanID, status LoanStatus) error
}

type InstallmentStore interface {
	// GetInstallment returns ErrNotFound for an unknown ID.
	GetInstallment(ctx context.Context, id InstallmentID) (Installment, error)

	// ListInstallments returns one loan's schedule ordered by sequence number.
	ListInstallments(ctx context.Context, loanID LoanID) ([]Installment, error)

	// ListInstallmentsDue returns installments across loans ordered by due
	// date, then loan, then sequence number.
	ListInstallmentsDue(ctx context.Context, filter InstallmentFilter) ([]Installment, error)

	// MarkInstallmentPaid flips a pending installment to paid.
	// Returns ErrNotFound or ErrAlreadyPaid.
	MarkInstallmentPaid(ctx context.Context, id InstallmentID, paidDate Date) error
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p Payment) error

	// ListPayments returns a loan's payments ordered by installment sequence.
	ListPayments(ctx context.Context, loanID LoanID) ([]Payment, error)

	ListPaymentMethods(ctx context.Context, activeOnly bool) ([]PaymentMethod, error)

	// GetPaymentMethod returns ErrNotFound for an unknown ID.
	GetPaymentMethod(ctx context.Context, id PaymentMethodID) (PaymentMethod, error)

	// SavePaymentMethod inserts or replaces a method.
	SavePaymentMethod(ctx context.Context, m PaymentMethod) error
}

// Store is the full persistence collaborator.
type Store interface {
	ClientStore
	LoanStore
	InstallmentStore
	PaymentStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// FILTERS
// =============================================================================

// LoanFilter narrows ListLoans. Zero fields match everything.
type LoanFilter struct {
	ClientID ClientID
	Status   LoanStatus
}

func (f LoanFilter) Matches(l Loan) bool {
	if f.ClientID != "" && l.ClientID != f.ClientID {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	return true
}

// InstallmentFilter narrows ListInstallmentsDue. Zero fields match everything.
type InstallmentFilter struct {
	DueFrom Date
	DueTo   Date // inclusive
	Status  InstallmentStatus
	LoanIDs []LoanID
}

func (f InstallmentFilter) Matches(i Installment) bool {
	if !f.DueFrom.IsZero() && i.DueDate.Before(f.DueFrom) {
		return false
	}
	if !f.DueTo.IsZero() && i.DueDate.After(f.DueTo) {
		return false
	}
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if len(f.LoanIDs) > 0 {
		for _, id := range f.LoanIDs {
			if id == i.LoanID {
				return true
			}
		}
		return false
	}
	return true
}
