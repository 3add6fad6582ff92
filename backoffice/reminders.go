package backoffice

import (
	"context"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/notify"
)

// ReminderRun reports one pass of SendOverdueReminders.
type ReminderRun struct {
	Today   lending.Date
	Overdue int // overdue pending installments found
	Sent    int
	Skipped int // no email on file, or already reminded today
	Failed  int
}

// SendOverdueReminders notifies every client with an email about each of
// their overdue installments. An installment is reminded at most once per day.
// Delivery failures are logged and counted, never returned.
func (s *Service) SendOverdueReminders(ctx context.Context) (ReminderRun, error) {
	today := s.clock.Today()
	run := ReminderRun{Today: today}

	overdue, err := s.store.ListInstallmentsDue(ctx, lending.InstallmentFilter{
		DueTo:  today.AddDays(-1),
		Status: lending.StatusPending,
	})
	if err != nil {
		return run, err
	}
	run.Overdue = len(overdue)

	j := newJoiner(s.store)
	for _, inst := range overdue {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		loan, client, err := j.lookup(ctx, inst.LoanID)
		if err != nil {
			return run, err
		}
		if client.Email == "" || s.remindedToday(inst.ID, today) {
			run.Skipped++
			continue
		}

		due, err := s.classifier.Classify(inst, today)
		if err != nil {
			return run, err
		}

		r := notify.Reminder{
			To:             client.Email,
			ClientName:     client.FullName(),
			LoanID:         loan.ID,
			SequenceNumber: inst.SequenceNumber,
			DueDate:        inst.DueDate,
			DaysOverdue:    -due.DaysUntilDue,
			BaseAmount:     inst.BaseAmount,
			LateInterest:   due.LateInterest,
			AmountDue:      due.TotalAmountDue,
			Currency:       s.product.Currency,
		}
		if err := s.notifier.SendReminder(ctx, r); err != nil {
			run.Failed++
			s.log.Error().Err(err).
				Str("installment_id", string(inst.ID)).
				Str("to", client.Email).
				Msg("failed to send reminder")
			continue
		}
		s.markReminded(inst.ID, today)
		run.Sent++
	}

	s.log.Info().
		Str("today", today.String()).
		Int("overdue", run.Overdue).
		Int("sent", run.Sent).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Msg("overdue reminders run")
	return run, nil
}

func (s *Service) remindedToday(id lending.InstallmentID, today lending.Date) bool {
	s.remindMu.Lock()
	defer s.remindMu.Unlock()
	last, ok := s.reminded[id]
	return ok && last.Equal(today)
}

func (s *Service) markReminded(id lending.InstallmentID, today lending.Date) {
	s.remindMu.Lock()
	defer s.remindMu.Unlock()
	for k, d := range s.reminded {
		if d.Before(today) {
			delete(s.reminded, k)
		}
	}
	s.reminded[id] = today
}
