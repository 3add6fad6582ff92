package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/lending/store"
)

func TestLoadSampleData(t *testing.T) {
	// GIVEN: An empty store on 2025-03-11
	// WHEN: Loading 6 sample clients
	// THEN: Each gets one loan, past installments are paid on their due date,
	//       and clients 1 and 4 are left with one overdue installment each

	svc := backoffice.NewService(store.NewTxMemory(),
		backoffice.WithClock(lending.FixedClock{Date: lending.MustParseDate("2025-03-11")}),
	)
	ctx := context.Background()

	res, err := LoadSampleData(ctx, svc, SampleOptions{Clients: 6, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Clients)
	assert.Equal(t, 6, res.Loans)
	assert.Positive(t, res.Payments)

	view, err := svc.Outstanding(ctx, backoffice.OutstandingQuery{Status: lending.StatusPending, Priority: lending.PriorityOverdue})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Summary.Overdue)

	loans, err := svc.ListLoans(ctx, lending.LoanFilter{})
	require.NoError(t, err)
	for _, l := range loans {
		payments, err := svc.ListPayments(ctx, l.ID)
		require.NoError(t, err)
		for _, p := range payments {
			assert.True(t, p.LateInterest.IsZero(), "sample payments are on time")
			assert.Equal(t, p.DueDate, p.PaidDate)
		}
	}
}

func TestSampleInstallmentCount(t *testing.T) {
	assert.Equal(t, 12, sampleInstallmentCount([]int{1, 6, 12, 24}))
	assert.Equal(t, 6, sampleInstallmentCount([]int{1, 3, 6, 18}))
	assert.Equal(t, 18, sampleInstallmentCount([]int{24, 18}))
}
