package lending

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the closed range [Start, End].
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// MonthOf returns the calendar month containing d.
func MonthOf(d Date) Period {
	return Period{
		Start: StartOfMonth(d.Year(), d.Month()),
		End:   EndOfMonth(d.Year(), d.Month()),
	}
}

// =============================================================================
// LISTING POLICY - What a dashboard shows
// =============================================================================

// InListing reports whether an installment belongs on the outstanding view
// for today: anything due this calendar month, plus every pending installment
// due strictly before today. The second clause keeps arrears from earlier
// months visible.
func InListing(inst Installment, today Date) bool {
	if MonthOf(today).Contains(inst.DueDate) {
		return true
	}
	return inst.IsPending() && inst.DueDate.Before(today)
}

// FilterListing keeps the classified installments that InListing accepts.
func FilterListing(rows []ClassifiedInstallment, today Date) []ClassifiedInstallment {
	out := make([]ClassifiedInstallment, 0, len(rows))
	for _, r := range rows {
		if InListing(r.Installment, today) {
			out = append(out, r)
		}
	}
	return out
}
