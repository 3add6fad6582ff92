package lending_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/lending"
)

func TestInListing(t *testing.T) {
	today := d("2025-03-11")

	tests := []struct {
		name   string
		due    string
		status lending.InstallmentStatus
		want   bool
	}{
		{"last month pending", "2025-02-10", lending.StatusPending, true},
		{"last month paid", "2025-02-10", lending.StatusPaid, false},
		{"last year pending", "2024-11-01", lending.StatusPending, true},
		{"this month paid", "2025-03-01", lending.StatusPaid, true},
		{"this month later", "2025-03-31", lending.StatusPending, true},
		{"due today", "2025-03-11", lending.StatusPending, true},
		{"next month", "2025-04-01", lending.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := pending(tt.due, "100.00")
			inst.Status = tt.status
			assert.Equal(t, tt.want, lending.InListing(inst, today))
		})
	}
}

func TestFilterListing_KeepsOrder(t *testing.T) {
	today := d("2025-03-11")

	arrears := pending("2025-01-05", "100.00")
	arrears.SequenceNumber = 1
	settled := pending("2025-02-05", "100.00")
	settled.SequenceNumber = 2
	settled.Status = lending.StatusPaid
	current := pending("2025-03-05", "100.00")
	current.SequenceNumber = 3
	future := pending("2025-04-05", "100.00")
	future.SequenceNumber = 4

	rows, err := lending.Project([]lending.Installment{arrears, settled, current, future}, today)
	require.NoError(t, err)

	listed := lending.FilterListing(rows, today)
	require.Len(t, listed, 2)
	assert.Equal(t, 1, listed[0].SequenceNumber)
	assert.Equal(t, 3, listed[1].SequenceNumber)
}

func TestMonthOf(t *testing.T) {
	p := lending.MonthOf(d("2024-02-17"))
	assert.Equal(t, "2024-02-01", p.Start.String())
	assert.Equal(t, "2024-02-29", p.End.String())
	assert.True(t, p.Contains(d("2024-02-29")))
	assert.False(t, p.Contains(d("2024-03-01")))
}
