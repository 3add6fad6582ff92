package backoffice_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/events"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/lending/store"
	"github.com/warp/lending-engine/notify"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	svc     *backoffice.Service
	store   *store.TxMemory
	events  *events.Recorder
	mailbox *notify.Recorder
}

func newFixture(t *testing.T, today string, opts ...backoffice.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewTxMemory(),
		events:  events.NewRecorder(),
		mailbox: &notify.Recorder{},
	}
	n := 0
	base := []backoffice.Option{
		backoffice.WithClock(lending.FixedClock{Date: lending.MustParseDate(today)}),
		backoffice.WithPublisher(f.events),
		backoffice.WithNotifier(f.mailbox),
		backoffice.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	}
	f.svc = backoffice.NewService(f.store, append(base, opts...)...)
	return f
}

func (f *fixture) client(t *testing.T, dni, email string) lending.Client {
	t.Helper()
	c, err := f.svc.RegisterClient(context.Background(), backoffice.ClientInput{
		DNI:       dni,
		FirstName: "Rosa",
		LastName:  "Quispe",
		Address:   "Av. Arequipa 123",
		Email:     email,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) loan(t *testing.T, clientID lending.ClientID, start string, count int) backoffice.LoanDetail {
	t.Helper()
	detail, err := f.svc.RegisterLoan(context.Background(), backoffice.LoanInput{
		ClientID:         clientID,
		Principal:        lending.MoneyFromInt(5000),
		InstallmentCount: count,
		StartDate:        lending.MustParseDate(start),
	})
	require.NoError(t, err)
	return detail
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestRegisterClient(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	ctx := context.Background()

	c, err := f.svc.RegisterClient(ctx, backoffice.ClientInput{
		DNI:       " 45678912 ",
		FirstName: "Rosa",
		LastName:  "Quispe",
		Address:   "Av. Arequipa 123",
		Phone:     "987654321",
	})
	require.NoError(t, err)
	assert.Equal(t, lending.ClientID("id-1"), c.ID)
	assert.Equal(t, "45678912", c.DNI)

	got, err := f.svc.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rosa Quispe", got.FullName())
}

func TestRegisterClient_Validation(t *testing.T) {
	f := newFixture(t, "2025-03-11")

	tests := []struct {
		name  string
		in    backoffice.ClientInput
		field string
	}{
		{"short dni", backoffice.ClientInput{DNI: "1234", FirstName: "A", LastName: "B", Address: "C"}, "dni"},
		{"letters in dni", backoffice.ClientInput{DNI: "1234567a", FirstName: "A", LastName: "B", Address: "C"}, "dni"},
		{"missing address", backoffice.ClientInput{DNI: "12345678", FirstName: "A", LastName: "B"}, "address"},
		{"bad email", backoffice.ClientInput{DNI: "12345678", FirstName: "A", LastName: "B", Address: "C", Email: "nope"}, "email"},
		{"missing first name", backoffice.ClientInput{DNI: "12345678", LastName: "B", Address: "C"}, "first_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RegisterClient(context.Background(), tt.in)
			assert.ErrorIs(t, err, lending.ErrInvalidClient)

			var verr *backoffice.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestRegisterClient_DuplicateDNI(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	f.client(t, "45678912", "")

	_, err := f.svc.RegisterClient(context.Background(), backoffice.ClientInput{
		DNI: "45678912", FirstName: "Other", LastName: "Person", Address: "Jr. Lima 1",
	})
	assert.ErrorIs(t, err, lending.ErrDuplicateClient)
}

func TestListClients_Search(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	ctx := context.Background()
	f.client(t, "45678912", "")
	_, err := f.svc.RegisterClient(ctx, backoffice.ClientInput{
		DNI: "11112222", FirstName: "Jorge", LastName: "Mamani", Address: "Jr. Puno 5",
	})
	require.NoError(t, err)

	all, err := f.svc.ListClients(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byName, err := f.svc.ListClients(ctx, "mamani")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Jorge", byName[0].FirstName)

	byDNI, err := f.svc.ListClients(ctx, "4567")
	require.NoError(t, err)
	require.Len(t, byDNI, 1)
	assert.Equal(t, "Rosa", byDNI[0].FirstName)
}

// =============================================================================
// LOANS
// =============================================================================

func TestRegisterLoan(t *testing.T) {
	// GIVEN: A registered client
	// WHEN: Registering 5000 over 12 installments from 2025-01-01 at the default rate
	// THEN: The loan and its 12 installments are stored and loan.created is published

	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")

	detail := f.loan(t, c.ID, "2025-01-01", 12)
	assert.Equal(t, "5500.00", detail.Loan.TotalAmount.String())
	assert.True(t, detail.Loan.InterestRate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, 1, detail.Loan.PaymentDay)
	assert.Equal(t, lending.LoanActive, detail.Loan.Status)
	require.Len(t, detail.Installments, 12)

	stored, err := f.svc.GetLoan(context.Background(), detail.Loan.ID)
	require.NoError(t, err)
	require.Len(t, stored.Installments, 12)
	assert.Equal(t, "2025-02-01", stored.Installments[0].DueDate.String())
	assert.Equal(t, detail.Loan.ID, stored.Installments[0].LoanID)
	assert.Equal(t, c.ID, stored.Client.ID)

	assert.Equal(t, []string{events.TopicLoanCreated}, f.events.Topics())
	ev := f.events.Events()[0].Event.(events.LoanCreated)
	assert.True(t, ev.TotalAmount.Equal(decimal.RequireFromString("5500")))
	assert.Equal(t, "2025-01-01", ev.StartDate)
}

func TestRegisterLoan_Defaults(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")

	rate := decimal.RequireFromString("0.20")
	detail, err := f.svc.RegisterLoan(context.Background(), backoffice.LoanInput{
		ClientID:         c.ID,
		Principal:        lending.MoneyFromInt(1000),
		InstallmentCount: 4,
		InterestRate:     &rate,
	})
	require.NoError(t, err)

	assert.Equal(t, "2025-03-11", detail.Loan.StartDate.String())
	assert.Equal(t, 11, detail.Loan.PaymentDay)
	assert.Equal(t, "1200.00", detail.Loan.TotalAmount.String())
	assert.Equal(t, "300.00", detail.Installments[0].BaseAmount.String())
}

func TestRegisterLoan_Rejections(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")
	ctx := context.Background()

	_, err := f.svc.RegisterLoan(ctx, backoffice.LoanInput{
		ClientID: c.ID, Principal: lending.MoneyFromInt(1000), InstallmentCount: 5,
	})
	assert.ErrorIs(t, err, lending.ErrInvalidLoanTerms)
	var termsErr *lending.InvalidLoanTermsError
	require.True(t, errors.As(err, &termsErr))
	assert.Equal(t, "installment_count", termsErr.Field)

	_, err = f.svc.RegisterLoan(ctx, backoffice.LoanInput{
		ClientID: c.ID, Principal: lending.Zero, InstallmentCount: 12,
	})
	assert.ErrorIs(t, err, lending.ErrInvalidLoanTerms)

	_, err = f.svc.RegisterLoan(ctx, backoffice.LoanInput{
		ClientID: "ghost", Principal: lending.MoneyFromInt(1000), InstallmentCount: 12,
	})
	assert.ErrorIs(t, err, lending.ErrNotFound)

	loans, err := f.svc.ListLoans(ctx, lending.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, loans)
	assert.Empty(t, f.events.Events())
}

func TestPreviewSchedule_DoesNotPersist(t *testing.T) {
	f := newFixture(t, "2025-03-11")

	terms, schedule, err := f.svc.PreviewSchedule(backoffice.LoanInput{
		Principal: lending.MoneyFromInt(5000), InstallmentCount: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", terms.StartDate.String())
	assert.Len(t, schedule, 12)
	assert.Equal(t, "2025-04-11", schedule[0].DueDate.String())

	loans, err := f.svc.ListLoans(context.Background(), lending.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestListLoans_UnknownClient(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	_, err := f.svc.ListLoans(context.Background(), lending.LoanFilter{ClientID: "ghost"})
	assert.ErrorIs(t, err, lending.ErrNotFound)
}
