package backoffice

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/events"
	"github.com/warp/lending-engine/lending"
)

// LoanInput is a loan request. Nil InterestRate and zero StartDate take the
// product default and today.
type LoanInput struct {
	ClientID         lending.ClientID
	Principal        lending.Money
	InstallmentCount int
	InterestRate     *decimal.Decimal
	StartDate        lending.Date
}

// LoanDetail is a loan with its client and schedule.
type LoanDetail struct {
	Loan         lending.Loan
	Client       lending.Client
	Installments []lending.Installment
}

// Terms resolves defaults and checks the installment count against the product.
func (s *Service) Terms(in LoanInput) (lending.LoanTerms, error) {
	terms := lending.LoanTerms{
		Principal:        in.Principal,
		InstallmentCount: in.InstallmentCount,
		InterestRate:     s.product.DefaultInterestRate,
		StartDate:        in.StartDate,
	}
	if in.InterestRate != nil {
		terms.InterestRate = *in.InterestRate
	}
	if terms.StartDate.IsZero() {
		terms.StartDate = s.clock.Today()
	}
	if err := terms.Validate(); err != nil {
		return lending.LoanTerms{}, err
	}
	if !s.product.allows(terms.InstallmentCount) {
		return lending.LoanTerms{}, &lending.InvalidLoanTermsError{
			Field:  "installment_count",
			Reason: "must be one of " + joinInts(s.product.InstallmentCounts),
		}
	}
	return terms, nil
}

// PreviewSchedule builds the schedule without persisting anything.
func (s *Service) PreviewSchedule(in LoanInput) (lending.LoanTerms, []lending.Installment, error) {
	terms, err := s.Terms(in)
	if err != nil {
		return lending.LoanTerms{}, nil, err
	}
	schedule, err := lending.BuildSchedule(terms)
	if err != nil {
		return lending.LoanTerms{}, nil, err
	}
	return terms, schedule, nil
}

// RegisterLoan builds the schedule and stores loan and installments atomically.
func (s *Service) RegisterLoan(ctx context.Context, in LoanInput) (LoanDetail, error) {
	client, err := s.store.GetClient(ctx, in.ClientID)
	if err != nil {
		return LoanDetail{}, err
	}

	terms, schedule, err := s.PreviewSchedule(in)
	if err != nil {
		return LoanDetail{}, err
	}

	loan := lending.Loan{
		ID:               lending.LoanID(s.newID()),
		ClientID:         client.ID,
		Principal:        terms.Principal,
		InterestRate:     terms.InterestRate,
		InstallmentCount: terms.InstallmentCount,
		TotalAmount:      terms.TotalAmount(),
		StartDate:        terms.StartDate,
		PaymentDay:       schedule[0].DueDate.Day(),
		Status:           lending.LoanActive,
		CreatedAt:        s.now().UTC(),
	}
	for i := range schedule {
		schedule[i].ID = lending.InstallmentID(s.newID())
		schedule[i].LoanID = loan.ID
	}

	if err := s.store.CreateLoan(ctx, loan, schedule); err != nil {
		return LoanDetail{}, err
	}

	s.log.Info().
		Str("loan_id", string(loan.ID)).
		Str("client_id", string(client.ID)).
		Str("principal", loan.Principal.String()).
		Int("installments", loan.InstallmentCount).
		Msg("loan registered")

	s.publish(ctx, events.TopicLoanCreated, events.LoanCreated{
		LoanID:           string(loan.ID),
		ClientID:         string(loan.ClientID),
		Principal:        loan.Principal.Value,
		InterestRate:     loan.InterestRate,
		TotalAmount:      loan.TotalAmount.Value,
		InstallmentCount: loan.InstallmentCount,
		StartDate:        loan.StartDate.String(),
		OccurredAt:       loan.CreatedAt,
	})

	return LoanDetail{Loan: loan, Client: client, Installments: schedule}, nil
}

func (s *Service) GetLoan(ctx context.Context, id lending.LoanID) (LoanDetail, error) {
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return LoanDetail{}, err
	}
	client, err := s.store.GetClient(ctx, loan.ClientID)
	if err != nil {
		return LoanDetail{}, err
	}
	insts, err := s.store.ListInstallments(ctx, id)
	if err != nil {
		return LoanDetail{}, err
	}
	return LoanDetail{Loan: loan, Client: client, Installments: insts}, nil
}

func (s *Service) ListLoans(ctx context.Context, filter lending.LoanFilter) ([]lending.Loan, error) {
	if filter.ClientID != "" {
		if _, err := s.store.GetClient(ctx, filter.ClientID); err != nil {
			return nil, err
		}
	}
	return s.store.ListLoans(ctx, filter)
}

// =============================================================================
// STATEMENT
// =============================================================================

// Statement is a loan with every installment projected at Today.
type Statement struct {
	Loan             lending.Loan
	Client           lending.Client
	Today            lending.Date
	Installments     []lending.ClassifiedInstallment
	Payments         []lending.Payment
	Paid             int
	Pending          int
	RemainingBalance lending.Money // sum of pending base amounts
	AmountDueToday   lending.Money // overdue and due-today totals, late interest included
}

func (s *Service) Statement(ctx context.Context, id lending.LoanID) (Statement, error) {
	today := s.clock.Today()

	detail, err := s.GetLoan(ctx, id)
	if err != nil {
		return Statement{}, err
	}
	rows, err := s.classifier.Project(detail.Installments, today)
	if err != nil {
		return Statement{}, fmt.Errorf("project loan %s: %w", id, err)
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return Statement{}, err
	}

	st := Statement{
		Loan:             detail.Loan,
		Client:           detail.Client,
		Today:            today,
		Installments:     rows,
		Payments:         payments,
		RemainingBalance: lending.Zero,
		AmountDueToday:   lending.Zero,
	}
	for _, r := range rows {
		if r.Due == nil {
			st.Paid++
			continue
		}
		st.Pending++
		st.RemainingBalance = st.RemainingBalance.Add(r.BaseAmount)
		if r.Due.DaysUntilDue <= 0 {
			st.AmountDueToday = st.AmountDueToday.Add(r.Due.TotalAmountDue)
		}
	}
	return st, nil
}

func (s *Service) publish(ctx context.Context, topic string, e events.Event) {
	if err := s.publisher.Publish(ctx, topic, e); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Str("key", e.Key()).Msg("failed to publish event")
	}
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
