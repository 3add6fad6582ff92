package backoffice

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/lending-engine/events"
	"github.com/warp/lending-engine/lending"
)

type PaymentInput struct {
	InstallmentID lending.InstallmentID
	MethodID      lending.PaymentMethodID
	Notes         string
}

// PaymentResult is the stored payment plus whether it closed the loan.
type PaymentResult struct {
	Payment       lending.Payment
	Installment   lending.Installment
	LoanCompleted bool
}

// RecordPayment settles one installment in full.
//
// Late interest is fixed at the moment of payment. The payment row, the
// installment flip and the loan completion commit together; the
// installment.paid event is published only after commit.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	today := s.clock.Today()
	var res PaymentResult

	err := s.store.WithTx(ctx, func(tx lending.Store) error {
		inst, err := tx.GetInstallment(ctx, in.InstallmentID)
		if err != nil {
			return err
		}
		if inst.IsPaid() {
			return fmt.Errorf("installment %s: %w", inst.ID, lending.ErrAlreadyPaid)
		}

		method, err := tx.GetPaymentMethod(ctx, in.MethodID)
		if err != nil {
			return err
		}
		if !method.Active {
			return fmt.Errorf("%s: %w", method.ID, lending.ErrInactiveMethod)
		}

		loan, err := tx.GetLoan(ctx, inst.LoanID)
		if err != nil {
			return err
		}

		due, err := s.classifier.Classify(inst, today)
		if err != nil {
			return err
		}

		number, err := s.receipts.Next(ctx, today)
		if err != nil {
			return fmt.Errorf("issue receipt: %w", err)
		}

		p := lending.Payment{
			ID:             lending.PaymentID(s.newID()),
			LoanID:         loan.ID,
			ClientID:       loan.ClientID,
			InstallmentID:  inst.ID,
			SequenceNumber: inst.SequenceNumber,
			MethodID:       method.ID,
			BaseAmount:     inst.BaseAmount,
			LateInterest:   due.LateInterest,
			TotalAmount:    due.TotalAmountDue,
			DueDate:        inst.DueDate,
			PaidDate:       today,
			ReceiptNumber:  number,
			Notes:          strings.TrimSpace(in.Notes),
			CreatedAt:      s.now().UTC(),
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.MarkInstallmentPaid(ctx, inst.ID, today); err != nil {
			return err
		}

		remaining, err := tx.ListInstallmentsDue(ctx, lending.InstallmentFilter{
			Status:  lending.StatusPending,
			LoanIDs: []lending.LoanID{loan.ID},
		})
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := tx.SetLoanStatus(ctx, loan.ID, lending.LoanCompleted); err != nil {
				return err
			}
			res.LoanCompleted = true
		}

		inst.Status = lending.StatusPaid
		inst.PaidDate = today
		res.Payment = p
		res.Installment = inst
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	p := res.Payment
	s.log.Info().
		Str("payment_id", string(p.ID)).
		Str("loan_id", string(p.LoanID)).
		Int("sequence", p.SequenceNumber).
		Str("total", p.TotalAmount.String()).
		Str("receipt", p.ReceiptNumber).
		Bool("loan_completed", res.LoanCompleted).
		Msg("payment recorded")

	s.publish(ctx, events.TopicInstallmentPaid, events.InstallmentPaid{
		PaymentID:      string(p.ID),
		LoanID:         string(p.LoanID),
		ClientID:       string(p.ClientID),
		InstallmentID:  string(p.InstallmentID),
		SequenceNumber: p.SequenceNumber,
		BaseAmount:     p.BaseAmount.Value,
		LateInterest:   p.LateInterest.Value,
		TotalAmount:    p.TotalAmount.Value,
		ReceiptNumber:  p.ReceiptNumber,
		PaidDate:       p.PaidDate.String(),
		LoanCompleted:  res.LoanCompleted,
		OccurredAt:     p.CreatedAt,
	})

	return res, nil
}

func (s *Service) ListPayments(ctx context.Context, loanID lending.LoanID) ([]lending.Payment, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, loanID)
}

// =============================================================================
// PAYMENT METHODS
// =============================================================================

// PaymentMethods lists active methods, or all of them when all is set.
func (s *Service) PaymentMethods(ctx context.Context, all bool) ([]lending.PaymentMethod, error) {
	return s.store.ListPaymentMethods(ctx, !all)
}

type PaymentMethodInput struct {
	ID     string `json:"id" validate:"required,max=32,alphanum"`
	Name   string `json:"name" validate:"required,max=50"`
	Type   string `json:"type" validate:"required,oneof=cash card qr transfer"`
	Active bool   `json:"active"`
}

// SavePaymentMethod creates or replaces a payment method.
func (s *Service) SavePaymentMethod(ctx context.Context, in PaymentMethodInput) (lending.PaymentMethod, error) {
	in.ID = strings.ToLower(strings.TrimSpace(in.ID))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return lending.PaymentMethod{}, validationError(err, lending.ErrInvalidPaymentMethod)
	}

	m := lending.PaymentMethod{
		ID:     lending.PaymentMethodID(in.ID),
		Name:   in.Name,
		Type:   lending.MethodType(in.Type),
		Active: in.Active,
	}
	if err := s.store.SavePaymentMethod(ctx, m); err != nil {
		return lending.PaymentMethod{}, err
	}
	s.log.Info().Str("method_id", in.ID).Bool("active", in.Active).Msg("payment method saved")
	return m, nil
}
