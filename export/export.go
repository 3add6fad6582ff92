// Package export renders a loan's payment schedule as a printable text
// document or as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/lending"
)

const rule = "----------------------------------------------------------------"

// Schedule is everything a schedule document shows.
type Schedule struct {
	Client       lending.Client
	Loan         lending.Loan
	Installments []lending.Installment
	Currency     string
}

// Filename is schedule_<last>_<first>.<ext>, lower-cased with spaces removed.
func Filename(c lending.Client, ext string) string {
	clean := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), "-"))
	}
	return fmt.Sprintf("schedule_%s_%s.%s", clean(c.LastName), clean(c.FirstName), ext)
}

// WriteText writes the plain-text schedule.
func WriteText(w io.Writer, s Schedule) error {
	var b strings.Builder
	pct := s.Loan.InterestRate.Mul(decimal.NewFromInt(100))

	b.WriteString("PAYMENT SCHEDULE\n\n")
	fmt.Fprintf(&b, "Client: %s\n", s.Client.FullName())
	fmt.Fprintf(&b, "DNI: %s\n", s.Client.DNI)
	fmt.Fprintf(&b, "Loan amount: %s %s\n", s.Currency, s.Loan.Principal)
	fmt.Fprintf(&b, "Interest: %s%%\n", pct.String())
	fmt.Fprintf(&b, "Total amount: %s %s\n", s.Currency, s.Loan.TotalAmount)
	fmt.Fprintf(&b, "Installments: %d\n\n", s.Loan.InstallmentCount)
	b.WriteString("INSTALLMENT DETAIL:\n")
	b.WriteString(rule + "\n")
	b.WriteString("No.   |  Due date    |  Amount        |  Status\n")
	b.WriteString(rule + "\n")

	for _, inst := range s.Installments {
		fmt.Fprintf(&b, "%4d  |  %s  |  %s %10s  |  %s\n",
			inst.SequenceNumber,
			inst.DueDate.Format("02/01/2006"),
			s.Currency,
			inst.BaseAmount.String(),
			inst.Status,
		)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteCSV writes sequence,due_date,amount,status,paid_date rows with a header.
func WriteCSV(w io.Writer, s Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sequence", "due_date", "amount", "status", "paid_date"}); err != nil {
		return err
	}
	for _, inst := range s.Installments {
		record := []string{
			strconv.Itoa(inst.SequenceNumber),
			inst.DueDate.String(),
			inst.BaseAmount.String(),
			string(inst.Status),
			inst.PaidDate.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
