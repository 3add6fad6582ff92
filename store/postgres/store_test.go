package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/lending"
)

func TestQuery_NumbersPlaceholders(t *testing.T) {
	q := newQuery("SELECT 1 FROM installments WHERE TRUE")
	q.where("due_date <= %s::text::date", "2025-03-31")
	q.where("status = %s", "pending")

	assert.Equal(t, "SELECT 1 FROM installments WHERE TRUE AND due_date <= $1::text::date AND status = $2", q.sql)
	assert.Equal(t, []any{"2025-03-31", "pending"}, q.args)
}

func TestTextOrNil(t *testing.T) {
	assert.Nil(t, textOrNil(""))
	assert.Nil(t, textOrNil("   "))
	require.NotNil(t, textOrNil("999 888 777"))
	assert.Equal(t, "999 888 777", *textOrNil("999 888 777"))
}

func TestMigrations_Embedded(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS installments")

	_, err = migrationsFS.ReadFile("migrations/000001_init.down.sql")
	require.NoError(t, err)
}

// TestStore_Integration runs against a real database when LENDING_TEST_POSTGRES_URL is set.
func TestStore_Integration(t *testing.T) {
	url := os.Getenv("LENDING_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("LENDING_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	require.NoError(t, Migrate(url))
	t.Cleanup(func() { _ = MigrateDown(url) })

	store, err := New(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := lending.Client{ID: "c-pg", DNI: "87654321", FirstName: "Ana", LastName: "Flores", Address: "Calle 1", CreatedAt: time.Now()}
	require.NoError(t, store.CreateClient(ctx, client))
	assert.ErrorIs(t, store.CreateClient(ctx, client), lending.ErrDuplicateClient)

	terms := lending.LoanTerms{
		Principal:        lending.MoneyFromInt(1000),
		InstallmentCount: 2,
		InterestRate:     decimal.RequireFromString("0.10"),
		StartDate:        lending.MustParseDate("2025-01-15"),
	}
	schedule, err := lending.BuildSchedule(terms)
	require.NoError(t, err)
	schedule[0].ID, schedule[1].ID = "i-pg-1", "i-pg-2"

	loan := lending.Loan{ID: "l-pg", ClientID: client.ID, Principal: terms.Principal, InterestRate: terms.InterestRate,
		InstallmentCount: 2, TotalAmount: terms.TotalAmount(), StartDate: terms.StartDate, PaymentDay: 15,
		Status: lending.LoanActive, CreatedAt: time.Now()}
	require.NoError(t, store.CreateLoan(ctx, loan, schedule))

	insts, err := store.ListInstallments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "550.00", insts[0].BaseAmount.String())
	assert.Equal(t, "2025-02-15", insts[0].DueDate.String())

	require.NoError(t, store.MarkInstallmentPaid(ctx, "i-pg-1", lending.MustParseDate("2025-02-15")))
	assert.ErrorIs(t, store.MarkInstallmentPaid(ctx, "i-pg-1", lending.MustParseDate("2025-02-15")), lending.ErrAlreadyPaid)

	due, err := store.ListInstallmentsDue(ctx, lending.InstallmentFilter{Status: lending.StatusPending, LoanIDs: []lending.LoanID{loan.ID}})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].SequenceNumber)
}
