package backoffice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/events"
	"github.com/warp/lending-engine/lending"
)

type brokenIssuer struct{}

func (brokenIssuer) Next(context.Context, lending.Date) (string, error) {
	return "", errors.New("counter offline")
}

func TestRecordPayment_Overdue(t *testing.T) {
	// GIVEN: 5000 over 12 from 2025-01-01; the second installment (due 2025-03-01)
	//        is 10 days late on 2025-03-11
	// WHEN: Paying it in cash
	// THEN: Late interest 38.19 is fixed on the payment, the installment is paid
	//       and installment.paid is published after commit

	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")
	detail := f.loan(t, c.ID, "2025-01-01", 12)
	second := detail.Installments[1]

	res, err := f.svc.RecordPayment(context.Background(), backoffice.PaymentInput{
		InstallmentID: second.ID,
		MethodID:      "cash",
		Notes:         "  paid at the counter ",
	})
	require.NoError(t, err)

	p := res.Payment
	assert.Equal(t, "458.33", p.BaseAmount.String())
	assert.Equal(t, "38.19", p.LateInterest.String())
	assert.Equal(t, "496.52", p.TotalAmount.String())
	assert.Equal(t, "REC-20250311-000001", p.ReceiptNumber)
	assert.Equal(t, "2025-03-01", p.DueDate.String())
	assert.Equal(t, "2025-03-11", p.PaidDate.String())
	assert.Equal(t, "paid at the counter", p.Notes)
	assert.Equal(t, c.ID, p.ClientID)
	assert.False(t, res.LoanCompleted)

	inst, err := f.store.GetInstallment(context.Background(), second.ID)
	require.NoError(t, err)
	assert.True(t, inst.IsPaid())
	assert.Equal(t, "2025-03-11", inst.PaidDate.String())

	payments, err := f.svc.ListPayments(context.Background(), detail.Loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, 2, payments[0].SequenceNumber)

	assert.Equal(t, []string{events.TopicLoanCreated, events.TopicInstallmentPaid}, f.events.Topics())
	ev := f.events.Events()[1].Event.(events.InstallmentPaid)
	assert.Equal(t, "496.52", ev.TotalAmount.StringFixed(2))
	assert.Equal(t, p.ReceiptNumber, ev.ReceiptNumber)
}

func TestRecordPayment_AlreadyPaid(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")
	detail := f.loan(t, c.ID, "2025-01-01", 12)
	first := detail.Installments[0]
	ctx := context.Background()

	_, err := f.svc.RecordPayment(ctx, backoffice.PaymentInput{InstallmentID: first.ID, MethodID: "card"})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, backoffice.PaymentInput{InstallmentID: first.ID, MethodID: "card"})
	assert.ErrorIs(t, err, lending.ErrAlreadyPaid)

	payments, err := f.svc.ListPayments(ctx, detail.Loan.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRecordPayment_NotFound(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")
	detail := f.loan(t, c.ID, "2025-01-01", 12)
	ctx := context.Background()

	_, err := f.svc.RecordPayment(ctx, backoffice.PaymentInput{InstallmentID: "ghost", MethodID: "cash"})
	assert.ErrorIs(t, err, lending.ErrNotFound)

	_, err = f.svc.RecordPayment(ctx, backoffice.PaymentInput{InstallmentID: detail.Installments[0].ID, MethodID: "crypto"})
	assert.ErrorIs(t, err, lending.ErrNotFound)
}

func TestRecordPayment_InactiveMethod(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")
	detail := f.loan(t, c.ID, "2025-01-01", 12)
	ctx := context.Background()

	_, err := f.svc.SavePaymentMethod(ctx, backoffice.PaymentMethodInput{
		ID: "transfer", Name: "Bank transfer", Type: "transfer", Active: false,
	})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, backoffice.PaymentInput{InstallmentID: detail.Installments[0].ID, MethodID: "transfer"})
	assert.ErrorIs(t, err, lending.ErrInactiveMethod)
	assert.True(t, lending.IsClientError(err))
}

func TestRecordPayment_CompletesLoan(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	c := f.client(t, "45678912", "")
	detail := f.loan(t, c.ID, "2025-02-11", 1)

	res, err := f.svc.RecordPayment(context.Background(), backoffice.PaymentInput{
		InstallmentID: detail.Installments[0].ID,
		MethodID:      "qr",
	})
	require.NoError(t, err)
	assert.True(t, res.LoanCompleted)
	assert.Equal(t, "5500.00", res.Payment.TotalAmount.String())

	loan, err := f.store.GetLoan(context.Background(), detail.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.LoanCompleted, loan.Status)
}

func TestRecordPayment_RollsBackOnFailure(t *testing.T) {
	// GIVEN: A receipt issuer that always fails
	// WHEN: Paying an installment
	// THEN: Nothing is written and no event is published

	f := newFixture(t, "2025-03-11", backoffice.WithReceipts(brokenIssuer{}))
	c := f.client(t, "45678912", "")
	detail := f.loan(t, c.ID, "2025-01-01", 12)
	ctx := context.Background()

	_, err := f.svc.RecordPayment(ctx, backoffice.PaymentInput{InstallmentID: detail.Installments[0].ID, MethodID: "cash"})
	require.Error(t, err)

	inst, err := f.store.GetInstallment(ctx, detail.Installments[0].ID)
	require.NoError(t, err)
	assert.True(t, inst.IsPending())

	payments, err := f.svc.ListPayments(ctx, detail.Loan.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Equal(t, []string{events.TopicLoanCreated}, f.events.Topics())
}

func TestPaymentMethods(t *testing.T) {
	f := newFixture(t, "2025-03-11")
	ctx := context.Background()

	active, err := f.svc.PaymentMethods(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	_, err = f.svc.SavePaymentMethod(ctx, backoffice.PaymentMethodInput{ID: "Yape", Name: "Yape", Type: "qr", Active: true})
	require.NoError(t, err)
	_, err = f.svc.SavePaymentMethod(ctx, backoffice.PaymentMethodInput{ID: "card", Name: "Card", Type: "card", Active: false})
	require.NoError(t, err)

	active, err = f.svc.PaymentMethods(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	all, err := f.svc.PaymentMethods(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	m, err := f.store.GetPaymentMethod(ctx, "yape")
	require.NoError(t, err)
	assert.Equal(t, lending.MethodQR, m.Type)

	_, err = f.svc.SavePaymentMethod(ctx, backoffice.PaymentMethodInput{ID: "gold", Name: "Gold", Type: "barter"})
	assert.ErrorIs(t, err, lending.ErrInvalidPaymentMethod)
}
