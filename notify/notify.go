/*
Package notify delivers overdue-payment reminders to borrowers.

NOTIFIERS:
  - Mailer:      SMTP through gomail
  - LogNotifier: writes the reminder to the log; used when SMTP is not set
  - Recorder:    keeps reminders in memory for tests
*/
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warp/lending-engine/lending"
	"gopkg.in/gomail.v2"
)

// Reminder is one overdue installment addressed to one client.
type Reminder struct {
	To             string
	ClientName     string
	LoanID         lending.LoanID
	SequenceNumber int
	DueDate        lending.Date
	DaysOverdue    int
	BaseAmount     lending.Money
	LateInterest   lending.Money
	AmountDue      lending.Money
	Currency       string
}

type Notifier interface {
	SendReminder(ctx context.Context, r Reminder) error
}

// =============================================================================
// SMTP
// =============================================================================

var reminderBody = template.Must(template.New("reminder").Parse(`
<h2>Payment reminder</h2>
<p>Dear {{.ClientName}},</p>
<p>Installment #{{.SequenceNumber}} of your loan was due on {{.DueDate.Format "02/01/2006"}}
and is {{.DaysOverdue}} day(s) overdue.</p>
<table>
  <tr><td>Installment</td><td>{{.Currency}} {{.BaseAmount}}</td></tr>
  <tr><td>Late interest</td><td>{{.Currency}} {{.LateInterest}}</td></tr>
  <tr><td><b>Amount due today</b></td><td><b>{{.Currency}} {{.AmountDue}}</b></td></tr>
</table>
<p>Late interest grows every day the installment remains unpaid.</p>
`))

// RenderReminder returns the HTML body of a reminder email.
func RenderReminder(r Reminder) (string, error) {
	var buf bytes.Buffer
	if err := reminderBody.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to render reminder: %w", err)
	}
	return buf.String(), nil
}

type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	subject string
}

func NewMailer(host string, port int, username, password, from, subject string) *Mailer {
	return &Mailer{
		dialer:  gomail.NewDialer(host, port, username, password),
		from:    from,
		subject: subject,
	}
}

func (m *Mailer) SendReminder(_ context.Context, r Reminder) error {
	body, err := RenderReminder(r)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", r.To)
	msg.SetHeader("Subject", m.subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send reminder to %s: %w", r.To, err)
	}
	return nil
}

// =============================================================================
// LOG AND MEMORY
// =============================================================================

type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) SendReminder(_ context.Context, r Reminder) error {
	n.log.Info().
		Str("to", r.To).
		Str("loan_id", string(r.LoanID)).
		Int("installment", r.SequenceNumber).
		Int("days_overdue", r.DaysOverdue).
		Str("amount_due", r.AmountDue.String()).
		Msg("overdue reminder")
	return nil
}

type Recorder struct {
	mu   sync.Mutex
	sent []Reminder
}

func (r *Recorder) SendReminder(_ context.Context, rem Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, rem)
	return nil
}

func (r *Recorder) Sent() []Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reminder(nil), r.sent...)
}
