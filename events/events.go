// Package events defines the domain events published after a loan is
// registered or an installment is paid, and the publisher contract.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicLoanCreated     = "loan.created"
	TopicInstallmentPaid = "installment.paid"
)

// Publisher delivers an event to a topic. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Event is anything with a partition key.
type Event interface {
	Key() string
}

type LoanCreated struct {
	LoanID           string          `json:"loan_id"`
	ClientID         string          `json:"client_id"`
	Principal        decimal.Decimal `json:"principal"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	InstallmentCount int             `json:"installment_count"`
	StartDate        string          `json:"start_date"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

func (e LoanCreated) Key() string { return e.LoanID }

type InstallmentPaid struct {
	PaymentID      string          `json:"payment_id"`
	LoanID         string          `json:"loan_id"`
	ClientID       string          `json:"client_id"`
	InstallmentID  string          `json:"installment_id"`
	SequenceNumber int             `json:"sequence_number"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	LateInterest   decimal.Decimal `json:"late_interest"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ReceiptNumber  string          `json:"receipt_number"`
	PaidDate       string          `json:"paid_date"`
	LoanCompleted  bool            `json:"loan_completed"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func (e InstallmentPaid) Key() string { return e.LoanID }

// =============================================================================
// IN-PROCESS PUBLISHERS
// =============================================================================

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, Event) error { return nil }

// Recorded is one captured publication.
type Recorded struct {
	Topic string
	Event Event
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, topic string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Topic: topic, Event: event})
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Topics lists the topics in publication order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Topic
	}
	return out
}
