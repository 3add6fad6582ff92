package backoffice

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/lending-engine/lending"
)

// OutstandingQuery filters the outstanding payments view. Zero values match
// everything; a zero AsOf means today.
type OutstandingQuery struct {
	AsOf     lending.Date
	Status   lending.InstallmentStatus
	Priority lending.Priority
	Q        string
}

// OutstandingRow is one listed installment with its loan and client.
type OutstandingRow struct {
	lending.ClassifiedInstallment
	Loan   lending.Loan
	Client lending.Client
}

type OutstandingSummary struct {
	Overdue  int
	DueToday int
	ThisWeek int
	Total    lending.Money
}

type Outstanding struct {
	AsOf    lending.Date
	Period  lending.Period
	Rows    []OutstandingRow
	Summary OutstandingSummary
}

// Outstanding lists every installment due in the current month plus every
// earlier installment still pending, each projected at AsOf.
func (s *Service) Outstanding(ctx context.Context, q OutstandingQuery) (Outstanding, error) {
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = s.clock.Today()
	}
	period := lending.MonthOf(asOf)

	insts, err := s.store.ListInstallmentsDue(ctx, lending.InstallmentFilter{DueTo: period.End})
	if err != nil {
		return Outstanding{}, err
	}
	projected, err := s.classifier.Project(insts, asOf)
	if err != nil {
		return Outstanding{}, fmt.Errorf("project outstanding: %w", err)
	}
	listed := lending.FilterListing(projected, asOf)

	j := newJoiner(s.store)
	needle := strings.ToLower(strings.TrimSpace(q.Q))

	out := Outstanding{
		AsOf:    asOf,
		Period:  period,
		Rows:    make([]OutstandingRow, 0, len(listed)),
		Summary: OutstandingSummary{Total: lending.Zero},
	}
	for _, row := range listed {
		if q.Status != "" && row.Status != q.Status {
			continue
		}
		if q.Priority != "" && (row.Due == nil || row.Due.Priority != q.Priority) {
			continue
		}

		loan, client, err := j.lookup(ctx, row.LoanID)
		if err != nil {
			return Outstanding{}, err
		}
		if needle != "" && !matchesClient(client, needle) {
			continue
		}

		out.Rows = append(out.Rows, OutstandingRow{ClassifiedInstallment: row, Loan: loan, Client: client})
		out.Summary.Total = out.Summary.Total.Add(row.AmountDue())
		if row.Due != nil {
			switch row.Due.Priority {
			case lending.PriorityOverdue:
				out.Summary.Overdue++
			case lending.PriorityToday:
				out.Summary.DueToday++
			case lending.PriorityThisWeek:
				out.Summary.ThisWeek++
			}
		}
	}
	return out, nil
}

// joiner caches loan and client lookups for one request.
type joiner struct {
	store   lending.Store
	loans   map[lending.LoanID]lending.Loan
	clients map[lending.ClientID]lending.Client
}

func newJoiner(st lending.Store) *joiner {
	return &joiner{
		store:   st,
		loans:   make(map[lending.LoanID]lending.Loan),
		clients: make(map[lending.ClientID]lending.Client),
	}
}

func (j *joiner) lookup(ctx context.Context, id lending.LoanID) (lending.Loan, lending.Client, error) {
	loan, ok := j.loans[id]
	if !ok {
		var err error
		if loan, err = j.store.GetLoan(ctx, id); err != nil {
			return lending.Loan{}, lending.Client{}, err
		}
		j.loans[id] = loan
	}
	client, ok := j.clients[loan.ClientID]
	if !ok {
		var err error
		if client, err = j.store.GetClient(ctx, loan.ClientID); err != nil {
			return lending.Loan{}, lending.Client{}, err
		}
		j.clients[loan.ClientID] = client
	}
	return loan, client, nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

type Dashboard struct {
	Today                lending.Date
	Clients              int
	ActiveLoans          int
	CompletedLoans       int
	OutstandingPrincipal lending.Money // pending base amounts
	OverdueCount         int
	OverdueTotal         lending.Money // overdue amounts with late interest
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	today := s.clock.Today()
	d := Dashboard{Today: today, OutstandingPrincipal: lending.Zero, OverdueTotal: lending.Zero}

	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	d.Clients = len(clients)

	loans, err := s.store.ListLoans(ctx, lending.LoanFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	for _, l := range loans {
		switch l.Status {
		case lending.LoanActive:
			d.ActiveLoans++
		case lending.LoanCompleted:
			d.CompletedLoans++
		}
	}

	pending, err := s.store.ListInstallmentsDue(ctx, lending.InstallmentFilter{Status: lending.StatusPending})
	if err != nil {
		return Dashboard{}, err
	}
	for _, inst := range pending {
		d.OutstandingPrincipal = d.OutstandingPrincipal.Add(inst.BaseAmount)
		if !inst.DueDate.Before(today) {
			continue
		}
		due, err := s.classifier.Classify(inst, today)
		if err != nil {
			return Dashboard{}, err
		}
		d.OverdueCount++
		d.OverdueTotal = d.OverdueTotal.Add(due.TotalAmountDue)
	}
	return d, nil
}
