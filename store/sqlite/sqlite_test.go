package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedLoan(t *testing.T, store *sqlite.Store) (lending.Loan, []lending.Installment) {
	ctx := context.Background()
	client := lending.Client{
		ID: "c-1", DNI: "45678912", FirstName: "Rosa", LastName: "Quispe",
		Address: "Av. Grau 120", CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateClient(ctx, client))

	terms := lending.LoanTerms{
		Principal:        lending.MoneyFromInt(5000),
		InstallmentCount: 12,
		InterestRate:     decimal.RequireFromString("0.10"),
		StartDate:        lending.MustParseDate("2025-01-01"),
	}
	schedule, err := lending.BuildSchedule(terms)
	require.NoError(t, err)
	for i := range schedule {
		schedule[i].ID = lending.InstallmentID("i-" + string(rune('a'+i)))
	}

	loan := lending.Loan{
		ID: "l-1", ClientID: client.ID, Principal: terms.Principal, InterestRate: terms.InterestRate,
		InstallmentCount: 12, TotalAmount: terms.TotalAmount(), StartDate: terms.StartDate,
		PaymentDay: 1, Status: lending.LoanActive, CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateLoan(ctx, loan, schedule))
	return loan, schedule
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestStore_Client_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := lending.Client{ID: "c-9", DNI: "12345678", FirstName: "Luis", LastName: "Torres", Address: "Jr. Lima 5", Email: "luis@example.com"}
	require.NoError(t, store.CreateClient(ctx, c))

	got, err := store.GetClient(ctx, "c-9")
	require.NoError(t, err)
	assert.Equal(t, "Luis Torres", got.FullName())
	assert.Equal(t, "luis@example.com", got.Email)
	assert.Empty(t, got.Phone)
}

func TestStore_Client_DuplicateDNI(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateClient(ctx, lending.Client{ID: "a", DNI: "11111111", FirstName: "A", LastName: "A", Address: "x"}))
	err := store.CreateClient(ctx, lending.Client{ID: "b", DNI: "11111111", FirstName: "B", LastName: "B", Address: "y"})
	assert.ErrorIs(t, err, lending.ErrDuplicateClient)
}

func TestStore_GetClient_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetClient(context.Background(), "missing")
	assert.True(t, lending.IsNotFound(err))
}

// =============================================================================
// LOANS AND INSTALLMENTS
// =============================================================================

func TestStore_CreateLoan_PersistsSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	loan, _ := seedLoan(t, store)

	got, err := store.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "5500.00", got.TotalAmount.String())
	assert.True(t, got.InterestRate.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, "2025-01-01", got.StartDate.String())

	insts, err := store.ListInstallments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, insts, 12)
	assert.Equal(t, 1, insts[0].SequenceNumber)
	assert.Equal(t, "2025-02-01", insts[0].DueDate.String())
	assert.Equal(t, "458.33", insts[11].BaseAmount.String())
	assert.Equal(t, lending.StatusPending, insts[11].Status)
}

func TestStore_CreateLoan_UnknownClient_WritesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := lending.Loan{ID: "l-x", ClientID: "nobody", Principal: lending.MoneyFromInt(100),
		InterestRate: decimal.Zero, InstallmentCount: 1, TotalAmount: lending.MoneyFromInt(100),
		StartDate: lending.MustParseDate("2025-01-01"), PaymentDay: 1, Status: lending.LoanActive}
	err := store.CreateLoan(ctx, loan, []lending.Installment{{ID: "i-x", SequenceNumber: 1,
		DueDate: lending.MustParseDate("2025-02-01"), BaseAmount: lending.MoneyFromInt(100), Status: lending.StatusPending}})
	assert.True(t, lending.IsNotFound(err))

	_, err = store.GetLoan(ctx, "l-x")
	assert.True(t, lending.IsNotFound(err))
}

func TestStore_MarkInstallmentPaid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, schedule := seedLoan(t, store)
	paidOn := lending.MustParseDate("2025-02-03")

	require.NoError(t, store.MarkInstallmentPaid(ctx, schedule[0].ID, paidOn))

	got, err := store.GetInstallment(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid())
	assert.Equal(t, paidOn, got.PaidDate)

	err = store.MarkInstallmentPaid(ctx, schedule[0].ID, paidOn)
	assert.ErrorIs(t, err, lending.ErrAlreadyPaid)

	err = store.MarkInstallmentPaid(ctx, "missing", paidOn)
	assert.True(t, lending.IsNotFound(err))
}

func TestStore_ListInstallmentsDue_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, schedule := seedLoan(t, store)
	require.NoError(t, store.MarkInstallmentPaid(ctx, schedule[0].ID, lending.MustParseDate("2025-02-01")))

	rows, err := store.ListInstallmentsDue(ctx, lending.InstallmentFilter{
		DueTo: lending.MustParseDate("2025-04-30"),
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = store.ListInstallmentsDue(ctx, lending.InstallmentFilter{
		DueTo:  lending.MustParseDate("2025-04-30"),
		Status: lending.StatusPending,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-03-01", rows[0].DueDate.String())

	rows, err = store.ListInstallmentsDue(ctx, lending.InstallmentFilter{LoanIDs: []lending.LoanID{"other"}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	loan, schedule := seedLoan(t, store)

	boom := errors.New("receipt printer on fire")
	err := store.WithTx(ctx, func(tx lending.Store) error {
		if err := tx.MarkInstallmentPaid(ctx, schedule[0].ID, lending.MustParseDate("2025-02-01")); err != nil {
			return err
		}
		if err := tx.SetLoanStatus(ctx, loan.ID, lending.LoanCompleted); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetInstallment(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())

	l, err := store.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.LoanActive, l.Status)
}

func TestStore_Payments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	loan, schedule := seedLoan(t, store)

	p := lending.Payment{
		ID: "p-1", LoanID: loan.ID, ClientID: loan.ClientID, InstallmentID: schedule[0].ID,
		SequenceNumber: 1, MethodID: "cash", BaseAmount: lending.MustParseMoney("458.33"),
		LateInterest: lending.MustParseMoney("38.19"), TotalAmount: lending.MustParseMoney("496.52"),
		DueDate: schedule[0].DueDate, PaidDate: lending.MustParseDate("2025-02-11"),
		ReceiptNumber: "REC-20250211-000001",
	}
	require.NoError(t, store.CreatePayment(ctx, p))

	dup := p
	dup.ID = "p-2"
	dup.ReceiptNumber = "REC-20250211-000002"
	assert.ErrorIs(t, store.CreatePayment(ctx, dup), lending.ErrAlreadyPaid)

	payments, err := store.ListPayments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "496.52", payments[0].TotalAmount.String())
	assert.Equal(t, "REC-20250211-000001", payments[0].ReceiptNumber)
}

func TestStore_PaymentMethods(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	methods, err := store.ListPaymentMethods(ctx, true)
	require.NoError(t, err)
	assert.Len(t, methods, 3)

	require.NoError(t, store.SavePaymentMethod(ctx, lending.PaymentMethod{ID: "qr", Name: "QR", Type: lending.MethodQR, Active: false}))
	require.NoError(t, store.SavePaymentMethod(ctx, lending.PaymentMethod{ID: "bcp", Name: "BCP transfer", Type: lending.MethodTransfer, Active: true}))

	methods, err = store.ListPaymentMethods(ctx, true)
	require.NoError(t, err)
	assert.Len(t, methods, 3)

	all, err := store.ListPaymentMethods(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = store.GetPaymentMethod(ctx, "crypto")
	assert.True(t, lending.IsNotFound(err))
}
