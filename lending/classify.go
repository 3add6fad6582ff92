package lending

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DUE STATUS CLASSIFIER - Installment vs "today"
// =============================================================================

// Late fee model: a flat 25% rate applied pro rata by day over a 30-day
// reference month. No compounding, no cap.
var (
	DefaultLateFeeRate          = decimal.RequireFromString("0.25")
	DefaultLateFeeReferenceDays = 30
)

// ThisWeekDays is the inclusive upper bound of the this-week bucket.
const ThisWeekDays = 7

// Classifier holds the late fee parameters. The zero value is not usable;
// start from DefaultClassifier.
type Classifier struct {
	LateFeeRate   decimal.Decimal
	ReferenceDays int
}

// DefaultClassifier uses the 25% / 30-day late fee.
var DefaultClassifier = Classifier{
	LateFeeRate:   DefaultLateFeeRate,
	ReferenceDays: DefaultLateFeeReferenceDays,
}

// Classify projects inst against today with the default late fee model.
func Classify(inst Installment, today Date) (DueStatus, error) {
	return DefaultClassifier.Classify(inst, today)
}

// Classify computes days until due, the priority bucket, and late interest.
//
// Both dates are calendar days, so the ceiling of the day difference is the
// difference itself: 0 means due today, negative means overdue.
func (c Classifier) Classify(inst Installment, today Date) (DueStatus, error) {
	if inst.DueDate.IsZero() {
		return DueStatus{}, fmt.Errorf("%w: installment %d has no due date", ErrInvalidDate, inst.SequenceNumber)
	}
	if today.IsZero() {
		return DueStatus{}, fmt.Errorf("%w: evaluation date is required", ErrInvalidDate)
	}

	days := DaysBetween(today, inst.DueDate)
	status := DueStatus{
		DaysUntilDue: days,
		Priority:     PriorityFor(days),
		LateInterest: Zero,
	}
	if days < 0 && inst.Status == StatusPending {
		status.LateInterest = c.LateInterest(inst.BaseAmount, -days)
	}
	status.TotalAmountDue = inst.BaseAmount.Add(status.LateInterest)
	return status, nil
}

// LateInterest is base * rate * daysLate / referenceDays, rounded to cents.
func (c Classifier) LateInterest(base Money, daysLate int) Money {
	if daysLate <= 0 || c.ReferenceDays <= 0 {
		return Zero
	}
	return base.
		Mul(c.LateFeeRate).
		Mul(decimal.NewFromInt(int64(daysLate))).
		Div(decimal.NewFromInt(int64(c.ReferenceDays))).
		RoundCents()
}

// PriorityFor buckets a signed day count. First match wins.
func PriorityFor(daysUntilDue int) Priority {
	switch {
	case daysUntilDue < 0:
		return PriorityOverdue
	case daysUntilDue == 0:
		return PriorityToday
	case daysUntilDue <= ThisWeekDays:
		return PriorityThisWeek
	default:
		return PriorityNormal
	}
}

// =============================================================================
// PROJECTION - Classify a set of installments
// =============================================================================

// Project classifies every pending installment and passes paid ones through
// with a nil Due. Input order is preserved. Fails on the first malformed date;
// nothing is returned in that case.
func (c Classifier) Project(insts []Installment, today Date) ([]ClassifiedInstallment, error) {
	out := make([]ClassifiedInstallment, len(insts))
	for i, inst := range insts {
		out[i] = ClassifiedInstallment{Installment: inst}
		if inst.IsPaid() {
			continue
		}
		status, err := c.Classify(inst, today)
		if err != nil {
			return nil, err
		}
		out[i].Due = &status
	}
	return out, nil
}

// Project uses DefaultClassifier.
func Project(insts []Installment, today Date) ([]ClassifiedInstallment, error) {
	return DefaultClassifier.Project(insts, today)
}
