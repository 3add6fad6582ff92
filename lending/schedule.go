package lending

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULE BUILDER - Loan terms to installments
// =============================================================================

// Validate checks the LoanTerms invariant.
func (t LoanTerms) Validate() error {
	switch {
	case !t.Principal.IsPositive():
		return &InvalidLoanTermsError{Field: "principal", Reason: "must be greater than zero"}
	case t.InstallmentCount <= 0:
		return &InvalidLoanTermsError{Field: "installment_count", Reason: "must be at least 1"}
	case t.InterestRate.IsNegative():
		return &InvalidLoanTermsError{Field: "interest_rate", Reason: "must not be negative"}
	case t.StartDate.IsZero():
		return fmt.Errorf("%w: start date is required", ErrInvalidDate)
	}
	return nil
}

// InstallmentAmount is round(principal * (1 + rate) / n, 2).
//
// The unrounded total is divided before rounding, so n * InstallmentAmount can
// differ from TotalAmount by up to half a cent per installment. The remainder is
// not pushed onto the last installment.
func (t LoanTerms) InstallmentAmount() Money {
	total := t.Principal.Mul(one.Add(t.InterestRate))
	return total.Div(decimal.NewFromInt(int64(t.InstallmentCount))).RoundCents()
}

// BuildSchedule produces the ordered installments of a loan: one per month,
// due StartDate + i months, all for the same amount, all pending.
// The returned installments carry no IDs; the caller assigns them on insert.
func BuildSchedule(terms LoanTerms) ([]Installment, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	amount := terms.InstallmentAmount()
	schedule := make([]Installment, terms.InstallmentCount)
	for i := range schedule {
		seq := i + 1
		schedule[i] = Installment{
			SequenceNumber: seq,
			DueDate:        terms.StartDate.AddMonths(seq),
			BaseAmount:     amount,
			Status:         StatusPending,
		}
	}
	return schedule, nil
}

// ScheduleTotal sums the base amounts of a schedule.
func ScheduleTotal(schedule []Installment) Money {
	total := Zero
	for _, inst := range schedule {
		total = total.Add(inst.BaseAmount)
	}
	return total
}
