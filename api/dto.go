/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in lending/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE FORMAT:
  - Amounts are strings with exactly two decimals ("458.33")
  - Rates are decimal strings ("0.10" is 10%)
  - Dates are "YYYY-MM-DD"; timestamps are RFC 3339

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  decodeAndValidate before touching the service.

SEE ALSO:
  - handlers.go: Uses these types
  - backoffice/: Service inputs and outputs
*/
package api

import (
	"time"

	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CreateLoanRequest registers or previews a loan. InterestRate and StartDate
// are optional.
type CreateLoanRequest struct {
	ClientID         string  `json:"client_id,omitempty"`
	Principal        string  `json:"principal" validate:"required,numeric"`
	InstallmentCount int     `json:"installment_count" validate:"required,gt=0"`
	InterestRate     *string `json:"interest_rate,omitempty" validate:"omitempty,numeric"`
	StartDate        string  `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type PayInstallmentRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	Notes           string `json:"notes,omitempty" validate:"max=500"`
}

type SampleRequest struct {
	Clients int   `json:"clients,omitempty" validate:"omitempty,min=1,max=200"`
	Seed    int64 `json:"seed,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type ClientDTO struct {
	ID        string `json:"id"`
	DNI       string `json:"dni"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Address   string `json:"address"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type LoanDTO struct {
	ID               string `json:"id"`
	ClientID         string `json:"client_id"`
	Principal        string `json:"principal"`
	InterestRate     string `json:"interest_rate"`
	InstallmentCount int    `json:"installment_count"`
	TotalAmount      string `json:"total_amount"`
	StartDate        string `json:"start_date"`
	PaymentDay       int    `json:"payment_day"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// InstallmentDTO is an installment with its projection. The projection fields
// are absent for paid installments and for freshly built schedules.
type InstallmentDTO struct {
	ID             string `json:"id,omitempty"`
	LoanID         string `json:"loan_id,omitempty"`
	SequenceNumber int    `json:"sequence_number"`
	DueDate        string `json:"due_date"`
	BaseAmount     string `json:"base_amount"`
	Status         string `json:"status"`
	PaidDate       string `json:"paid_date,omitempty"`
	DaysUntilDue   *int   `json:"days_until_due,omitempty"`
	Priority       string `json:"priority,omitempty"`
	LateInterest   string `json:"late_interest,omitempty"`
	TotalAmountDue string `json:"total_amount_due"`
}

type LoanDetailDTO struct {
	Loan         LoanDTO          `json:"loan"`
	Client       ClientDTO        `json:"client"`
	Installments []InstallmentDTO `json:"installments"`
}

type StatementDTO struct {
	Loan             LoanDTO          `json:"loan"`
	Client           ClientDTO        `json:"client"`
	Today            string           `json:"today"`
	Installments     []InstallmentDTO `json:"installments"`
	Payments         []PaymentDTO     `json:"payments"`
	Paid             int              `json:"paid"`
	Pending          int              `json:"pending"`
	RemainingBalance string           `json:"remaining_balance"`
	AmountDueToday   string           `json:"amount_due_today"`
}

type PreviewDTO struct {
	Principal         string           `json:"principal"`
	InterestRate      string           `json:"interest_rate"`
	InstallmentCount  int              `json:"installment_count"`
	StartDate         string           `json:"start_date"`
	InstallmentAmount string           `json:"installment_amount"`
	TotalAmount       string           `json:"total_amount"`
	ScheduleTotal     string           `json:"schedule_total"`
	Installments      []InstallmentDTO `json:"installments"`
}

type OutstandingRowDTO struct {
	InstallmentDTO
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	DNI        string `json:"dni"`
	Phone      string `json:"phone,omitempty"`
}

type OutstandingSummaryDTO struct {
	Overdue  int    `json:"overdue"`
	DueToday int    `json:"due_today"`
	ThisWeek int    `json:"this_week"`
	Total    string `json:"total"`
}

type OutstandingDTO struct {
	AsOf        string                `json:"as_of"`
	PeriodStart string                `json:"period_start"`
	PeriodEnd   string                `json:"period_end"`
	Rows        []OutstandingRowDTO   `json:"rows"`
	Summary     OutstandingSummaryDTO `json:"summary"`
}

type PaymentDTO struct {
	ID             string `json:"id"`
	LoanID         string `json:"loan_id"`
	ClientID       string `json:"client_id"`
	InstallmentID  string `json:"installment_id"`
	SequenceNumber int    `json:"sequence_number"`
	MethodID       string `json:"payment_method_id"`
	BaseAmount     string `json:"base_amount"`
	LateInterest   string `json:"late_interest"`
	TotalAmount    string `json:"total_amount"`
	DueDate        string `json:"due_date"`
	PaidDate       string `json:"paid_date"`
	ReceiptNumber  string `json:"receipt_number"`
	Notes          string `json:"notes,omitempty"`
}

type PaymentResultDTO struct {
	Payment       PaymentDTO     `json:"payment"`
	Installment   InstallmentDTO `json:"installment"`
	LoanCompleted bool           `json:"loan_completed"`
}

type PaymentMethodDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type DashboardDTO struct {
	Today                string `json:"today"`
	Clients              int    `json:"clients"`
	ActiveLoans          int    `json:"active_loans"`
	CompletedLoans       int    `json:"completed_loans"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	OverdueCount         int    `json:"overdue_count"`
	OverdueTotal         string `json:"overdue_total"`
	Currency             string `json:"currency"`
}

type ReminderRunDTO struct {
	Today   string `json:"today"`
	Overdue int    `json:"overdue"`
	Sent    int    `json:"sent"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

type SampleResultDTO struct {
	Clients  int `json:"clients"`
	Loans    int `json:"loans"`
	Payments int `json:"payments"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toClientDTO(c lending.Client) ClientDTO {
	return ClientDTO{
		ID:        string(c.ID),
		DNI:       c.DNI,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		FullName:  c.FullName(),
		Address:   c.Address,
		Phone:     c.Phone,
		Email:     c.Email,
		CreatedAt: formatTimestamp(c.CreatedAt),
	}
}

func toLoanDTO(l lending.Loan) LoanDTO {
	return LoanDTO{
		ID:               string(l.ID),
		ClientID:         string(l.ClientID),
		Principal:        l.Principal.String(),
		InterestRate:     l.InterestRate.String(),
		InstallmentCount: l.InstallmentCount,
		TotalAmount:      l.TotalAmount.String(),
		StartDate:        l.StartDate.String(),
		PaymentDay:       l.PaymentDay,
		Status:           string(l.Status),
		CreatedAt:        formatTimestamp(l.CreatedAt),
	}
}

func toInstallmentDTO(i lending.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:             string(i.ID),
		LoanID:         string(i.LoanID),
		SequenceNumber: i.SequenceNumber,
		DueDate:        i.DueDate.String(),
		BaseAmount:     i.BaseAmount.String(),
		Status:         string(i.Status),
		TotalAmountDue: i.BaseAmount.String(),
	}
	if !i.PaidDate.IsZero() {
		dto.PaidDate = i.PaidDate.String()
	}
	return dto
}

func toClassifiedDTO(c lending.ClassifiedInstallment) InstallmentDTO {
	dto := toInstallmentDTO(c.Installment)
	if c.Due != nil {
		days := c.Due.DaysUntilDue
		dto.DaysUntilDue = &days
		dto.Priority = string(c.Due.Priority)
		dto.LateInterest = c.Due.LateInterest.String()
		dto.TotalAmountDue = c.Due.TotalAmountDue.String()
	}
	return dto
}

func toInstallmentDTOs(insts []lending.Installment) []InstallmentDTO {
	out := make([]InstallmentDTO, len(insts))
	for i, inst := range insts {
		out[i] = toInstallmentDTO(inst)
	}
	return out
}

func toLoanDetailDTO(d backoffice.LoanDetail) LoanDetailDTO {
	return LoanDetailDTO{
		Loan:         toLoanDTO(d.Loan),
		Client:       toClientDTO(d.Client),
		Installments: toInstallmentDTOs(d.Installments),
	}
}

func toPaymentDTO(p lending.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             string(p.ID),
		LoanID:         string(p.LoanID),
		ClientID:       string(p.ClientID),
		InstallmentID:  string(p.InstallmentID),
		SequenceNumber: p.SequenceNumber,
		MethodID:       string(p.MethodID),
		BaseAmount:     p.BaseAmount.String(),
		LateInterest:   p.LateInterest.String(),
		TotalAmount:    p.TotalAmount.String(),
		DueDate:        p.DueDate.String(),
		PaidDate:       p.PaidDate.String(),
		ReceiptNumber:  p.ReceiptNumber,
		Notes:          p.Notes,
	}
}

func toPaymentDTOs(ps []lending.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(ps))
	for i, p := range ps {
		out[i] = toPaymentDTO(p)
	}
	return out
}

func toPaymentMethodDTO(m lending.PaymentMethod) PaymentMethodDTO {
	return PaymentMethodDTO{ID: string(m.ID), Name: m.Name, Type: string(m.Type), Active: m.Active}
}

func toStatementDTO(st backoffice.Statement) StatementDTO {
	rows := make([]InstallmentDTO, len(st.Installments))
	for i, r := range st.Installments {
		rows[i] = toClassifiedDTO(r)
	}
	return StatementDTO{
		Loan:             toLoanDTO(st.Loan),
		Client:           toClientDTO(st.Client),
		Today:            st.Today.String(),
		Installments:     rows,
		Payments:         toPaymentDTOs(st.Payments),
		Paid:             st.Paid,
		Pending:          st.Pending,
		RemainingBalance: st.RemainingBalance.String(),
		AmountDueToday:   st.AmountDueToday.String(),
	}
}

func toOutstandingDTO(o backoffice.Outstanding) OutstandingDTO {
	rows := make([]OutstandingRowDTO, len(o.Rows))
	for i, r := range o.Rows {
		rows[i] = OutstandingRowDTO{
			InstallmentDTO: toClassifiedDTO(r.ClassifiedInstallment),
			ClientID:       string(r.Client.ID),
			ClientName:     r.Client.FullName(),
			DNI:            r.Client.DNI,
			Phone:          r.Client.Phone,
		}
	}
	return OutstandingDTO{
		AsOf:        o.AsOf.String(),
		PeriodStart: o.Period.Start.String(),
		PeriodEnd:   o.Period.End.String(),
		Rows:        rows,
		Summary: OutstandingSummaryDTO{
			Overdue:  o.Summary.Overdue,
			DueToday: o.Summary.DueToday,
			ThisWeek: o.Summary.ThisWeek,
			Total:    o.Summary.Total.String(),
		},
	}
}

func toReminderRunDTO(r backoffice.ReminderRun) ReminderRunDTO {
	return ReminderRunDTO{
		Today:   r.Today.String(),
		Overdue: r.Overdue,
		Sent:    r.Sent,
		Skipped: r.Skipped,
		Failed:  r.Failed,
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
