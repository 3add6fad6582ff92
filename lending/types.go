/*
Package lending provides the loan amortization and payment-prioritization engine.

PURPOSE:
  Everything with real computational rules lives here: turning loan terms into
  a schedule of installments, classifying outstanding installments by urgency,
  and computing late interest for overdue ones. The rest of the repository is
  CRUD glue around these functions.

KEY CONCEPTS IN THIS FILE (types.go):
  - LoanTerms: principal, installment count, interest rate, start date
  - Installment: one scheduled repayment (persisted once, flipped to paid once)
  - DueStatus: read-time projection of an installment against "today"
  - Client, Loan, Payment, PaymentMethod: records owned by the stores

DESIGN PRINCIPLES:
  1. Purity: BuildSchedule and Classify do no I/O and hold no state
  2. Precision: amounts are decimal.Decimal, never float64
  3. Calendar dates: Date has no time of day, so day math is exact
  4. Derived values are never stored: DueStatus is recomputed on every read

USAGE:
  terms := lending.LoanTerms{
      Principal:        lending.MoneyFromInt(5000),
      InstallmentCount: 12,
      InterestRate:     decimal.RequireFromString("0.10"),
      StartDate:        lending.NewDate(2025, time.January, 1),
  }
  schedule, err := lending.BuildSchedule(terms)

  status, err := lending.Classify(schedule[0], lending.Today())

SEE ALSO:
  - schedule.go: BuildSchedule
  - classify.go: Classify and Project
  - listing.go: which installments a dashboard shows
  - store.go: persistence collaborator contract
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type LoanID string
type InstallmentID string
type PaymentID string
type PaymentMethodID string

// =============================================================================
// LOAN TERMS - Input to the schedule builder
// =============================================================================

// LoanTerms are the immutable inputs of a loan.
// Invariant: Principal > 0, InstallmentCount >= 1, InterestRate >= 0.
type LoanTerms struct {
	Principal        Money
	InstallmentCount int
	InterestRate     decimal.Decimal // fraction: 0.10 is 10%
	StartDate        Date
}

// TotalAmount is principal * (1 + rate) rounded to cents.
func (t LoanTerms) TotalAmount() Money {
	return t.Principal.Mul(one.Add(t.InterestRate)).RoundCents()
}

// =============================================================================
// INSTALLMENT - One scheduled repayment
// =============================================================================

type InstallmentStatus string

const (
	StatusPending InstallmentStatus = "pending"
	StatusPaid    InstallmentStatus = "paid"
)

// ParseInstallmentStatus accepts only the two stored statuses.
func ParseInstallmentStatus(s string) (InstallmentStatus, bool) {
	switch InstallmentStatus(s) {
	case StatusPending, StatusPaid:
		return InstallmentStatus(s), true
	}
	return "", false
}

type Installment struct {
	ID             InstallmentID
	LoanID         LoanID
	SequenceNumber int
	DueDate        Date
	BaseAmount     Money
	Status         InstallmentStatus
	PaidDate       Date // zero unless Status == StatusPaid
}

func (i Installment) IsPaid() bool    { return i.Status == StatusPaid }
func (i Installment) IsPending() bool { return i.Status == StatusPending }

// =============================================================================
// DUE STATUS - Derived, never persisted
// =============================================================================

// Priority is the urgency bucket driving the visual treatment of a row.
type Priority string

const (
	PriorityOverdue  Priority = "overdue"
	PriorityToday    Priority = "today"
	PriorityThisWeek Priority = "this-week"
	PriorityNormal   Priority = "normal"
)

// ParsePriority accepts the four bucket names.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityOverdue, PriorityToday, PriorityThisWeek, PriorityNormal:
		return Priority(s), true
	}
	return "", false
}

type DueStatus struct {
	DaysUntilDue   int // negative = overdue
	Priority       Priority
	LateInterest   Money
	TotalAmountDue Money
}

// ClassifiedInstallment pairs an installment with its projection.
// Due is nil for paid installments.
type ClassifiedInstallment struct {
	Installment
	Due *DueStatus
}

// AmountDue is TotalAmountDue for unpaid rows and BaseAmount for paid ones.
func (c ClassifiedInstallment) AmountDue() Money {
	if c.Due == nil {
		return c.BaseAmount
	}
	return c.Due.TotalAmountDue
}

// =============================================================================
// CLIENTS, LOANS, PAYMENTS - Stored records
// =============================================================================

type Client struct {
	ID        ClientID
	DNI       string // national identity document, 8 digits
	FirstName string
	LastName  string
	Address   string
	Phone     string
	Email     string
	CreatedAt time.Time
}

func (c Client) FullName() string { return c.FirstName + " " + c.LastName }

type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
)

type Loan struct {
	ID               LoanID
	ClientID         ClientID
	Principal        Money
	InterestRate     decimal.Decimal
	InstallmentCount int
	TotalAmount      Money
	StartDate        Date
	PaymentDay       int // day of month of the first due date
	Status           LoanStatus
	CreatedAt        time.Time
}

// Terms recovers the inputs the schedule was built from.
func (l Loan) Terms() LoanTerms {
	return LoanTerms{
		Principal:        l.Principal,
		InstallmentCount: l.InstallmentCount,
		InterestRate:     l.InterestRate,
		StartDate:        l.StartDate,
	}
}

type MethodType string

const (
	MethodCash     MethodType = "cash"
	MethodCard     MethodType = "card"
	MethodQR       MethodType = "qr"
	MethodTransfer MethodType = "transfer"
)

type PaymentMethod struct {
	ID     PaymentMethodID
	Name   string
	Type   MethodType
	Active bool
}

// DefaultPaymentMethods are seeded by every store on migration.
func DefaultPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{ID: "cash", Name: "Cash", Type: MethodCash, Active: true},
		{ID: "card", Name: "Card", Type: MethodCard, Active: true},
		{ID: "qr", Name: "QR", Type: MethodQR, Active: true},
	}
}

// Payment records the settlement of one installment.
type Payment struct {
	ID             PaymentID
	LoanID         LoanID
	ClientID       ClientID
	InstallmentID  InstallmentID
	SequenceNumber int
	MethodID       PaymentMethodID
	BaseAmount     Money
	LateInterest   Money
	TotalAmount    Money
	DueDate        Date
	PaidDate       Date
	ReceiptNumber  string
	Notes          string
	CreatedAt      time.Time
}
