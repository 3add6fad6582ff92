/*
handlers.go - HTTP API handlers for the lending back office

PURPOSE:
  Exposes the backoffice service via REST API. Handles HTTP request/response,
  JSON serialization and error mapping, and delegates everything else to
  backoffice.Service.

ENDPOINTS:
  Health and auth:
    GET    /healthz                          Liveness and store ping
    POST   /api/auth/login                   Exchange credentials for a JWT

  Clients:
    GET    /api/clients?q=                   List or search clients
    POST   /api/clients                      Register client
    GET    /api/clients/{id}                 Client detail
    GET    /api/clients/{id}/loans           Loans of one client
    POST   /api/clients/{id}/loans           Register loan for the client

  Loans:
    GET    /api/loans?status=                List loans
    POST   /api/loans/preview                Build a schedule without saving
    GET    /api/loans/{id}                   Statement (installments projected at today)
    GET    /api/loans/{id}/schedule          Export as text (default) or ?format=csv
    GET    /api/loans/{id}/payments          Payments recorded for the loan

  Payments:
    GET    /api/payments/outstanding         Current month plus arrears
    POST   /api/installments/{id}/pay        Pay one installment in full
    GET    /api/payment-methods?all=         Payment methods
    POST   /api/payment-methods              Create or update a method

  Admin:
    GET    /api/dashboard                    Portfolio summary
    POST   /api/admin/reminders              Send overdue reminders now
    POST   /api/scenarios/sample             Load fake clients and loans

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with:
  - 400: Validation errors, invalid input, invalid loan terms
  - 401: Missing or invalid token, wrong credentials
  - 404: Resource not found
  - 409: Conflict (already paid, duplicate DNI)
  - 500: Internal errors (details logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - backoffice/: Operations behind every endpoint
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/auth"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/export"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *backoffice.Service
	Auth      *auth.Authenticator // nil disables login and token checks
	Reminders *ReminderScheduler  // optional; admin trigger falls back to the service
	Health    Pinger              // optional
	Log       zerolog.Logger

	validate *validator.Validate
}

// NewHandler creates a handler around the service.
func NewHandler(svc *backoffice.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Service:  svc,
		Log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// HEALTH AND AUTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "today": h.Service.Today().String()})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Auth == nil {
		writeError(w, http.StatusNotFound, "Authentication is disabled", nil)
		return
	}
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, expires, err := h.Auth.Login(req.Username, req.Password)
	if err != nil {
		h.Log.Warn().Str("username", req.Username).Msg("failed login")
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339)})
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Service.ListClients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var in backoffice.ClientInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c, err := h.Service.RegisterClient(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetClient(r.Context(), lending.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

func (h *Handler) ListClientLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Service.ListLoans(r.Context(), lending.LoanFilter{ClientID: lending.ClientID(chi.URLParam(r, "id"))})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

func (h *Handler) CreateClientLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := loanInput(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in.ClientID = lending.ClientID(chi.URLParam(r, "id"))

	detail, err := h.Service.RegisterLoan(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDetailDTO(detail))
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	var filter lending.LoanFilter
	switch s := r.URL.Query().Get("status"); s {
	case "":
	case string(lending.LoanActive), string(lending.LoanCompleted):
		filter.Status = lending.LoanStatus(s)
	default:
		writeError(w, http.StatusBadRequest, "status must be active or completed", nil)
		return
	}

	loans, err := h.Service.ListLoans(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

func (h *Handler) PreviewLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := loanInput(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	terms, schedule, err := h.Service.PreviewSchedule(in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewDTO{
		Principal:         terms.Principal.String(),
		InterestRate:      terms.InterestRate.String(),
		InstallmentCount:  terms.InstallmentCount,
		StartDate:         terms.StartDate.String(),
		InstallmentAmount: terms.InstallmentAmount().String(),
		TotalAmount:       terms.TotalAmount().String(),
		ScheduleTotal:     lending.ScheduleTotal(schedule).String(),
		Installments:      toInstallmentDTOs(schedule),
	})
}

// GetLoan returns the loan statement.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.Statement(r.Context(), lending.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// ExportSchedule downloads the schedule as a text document or CSV.
func (h *Handler) ExportSchedule(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Service.GetLoan(r.Context(), lending.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc := export.Schedule{
		Client:       detail.Client,
		Loan:         detail.Loan,
		Installments: detail.Installments,
		Currency:     h.Service.Product().Currency,
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "text", "txt":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(detail.Client, "txt")))
		err = export.WriteText(w, doc)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(detail.Client, "csv")))
		err = export.WriteCSV(w, doc)
	default:
		writeError(w, http.StatusBadRequest, "format must be text or csv", nil)
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Str("loan_id", string(detail.Loan.ID)).Msg("failed to write schedule export")
	}
}

func (h *Handler) ListLoanPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.ListPayments(r.Context(), lending.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) Outstanding(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := backoffice.OutstandingQuery{Q: q.Get("q")}

	if s := q.Get("as_of"); s != "" {
		asOf, err := lending.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD", err)
			return
		}
		query.AsOf = asOf
	}
	if s := q.Get("status"); s != "" {
		status, ok := lending.ParseInstallmentStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "status must be pending or paid", nil)
			return
		}
		query.Status = status
	}
	if s := q.Get("priority"); s != "" {
		p, ok := lending.ParsePriority(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "priority must be overdue, today, this-week or normal", nil)
			return
		}
		query.Priority = p
	}

	view, err := h.Service.Outstanding(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutstandingDTO(view))
}

func (h *Handler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	var req PayInstallmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.RecordPayment(r.Context(), backoffice.PaymentInput{
		InstallmentID: lending.InstallmentID(chi.URLParam(r, "id")),
		MethodID:      lending.PaymentMethodID(req.PaymentMethodID),
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.Log.Info().
		Str("operator", auth.Operator(r.Context())).
		Str("receipt", res.Payment.ReceiptNumber).
		Msg("installment paid")

	writeJSON(w, http.StatusCreated, PaymentResultDTO{
		Payment:       toPaymentDTO(res.Payment),
		Installment:   toInstallmentDTO(res.Installment),
		LoanCompleted: res.LoanCompleted,
	})
}

func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	methods, err := h.Service.PaymentMethods(r.Context(), all)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PaymentMethodDTO, len(methods))
	for i, m := range methods {
		dtos[i] = toPaymentMethodDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SavePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in backoffice.PaymentMethodInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	m, err := h.Service.SavePaymentMethod(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentMethodDTO(m))
}

// =============================================================================
// DASHBOARD AND ADMIN
// =============================================================================

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		Today:                d.Today.String(),
		Clients:              d.Clients,
		ActiveLoans:          d.ActiveLoans,
		CompletedLoans:       d.CompletedLoans,
		OutstandingPrincipal: d.OutstandingPrincipal.String(),
		OverdueCount:         d.OverdueCount,
		OverdueTotal:         d.OverdueTotal.String(),
		Currency:             h.Service.Product().Currency,
	})
}

func (h *Handler) TriggerReminders(w http.ResponseWriter, r *http.Request) {
	var (
		run backoffice.ReminderRun
		err error
	)
	if h.Reminders != nil {
		run, err = h.Reminders.RunNow(r.Context())
	} else {
		run, err = h.Service.SendOverdueReminders(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderRunDTO(run))
}

func (h *Handler) LoadSample(w http.ResponseWriter, r *http.Request) {
	var req SampleRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	res, err := LoadSampleData(r.Context(), h.Service, SampleOptions{Clients: req.Clients, Seed: req.Seed})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SampleResultDTO{Clients: res.Clients, Loans: res.Loans, Payments: res.Payments})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeError(w, http.StatusBadRequest, "Validation failed", nil, fields)
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func loanInput(req CreateLoanRequest) (backoffice.LoanInput, error) {
	principal, err := lending.ParseMoney(req.Principal)
	if err != nil {
		return backoffice.LoanInput{}, &lending.InvalidLoanTermsError{Field: "principal", Reason: "must be a decimal amount"}
	}
	in := backoffice.LoanInput{
		ClientID:         lending.ClientID(req.ClientID),
		Principal:        principal,
		InstallmentCount: req.InstallmentCount,
	}
	if req.InterestRate != nil {
		rate, err := decimal.NewFromString(*req.InterestRate)
		if err != nil {
			return backoffice.LoanInput{}, &lending.InvalidLoanTermsError{Field: "interest_rate", Reason: "must be a decimal fraction"}
		}
		in.InterestRate = &rate
	}
	if req.StartDate != "" {
		start, err := lending.ParseDate(req.StartDate)
		if err != nil {
			return backoffice.LoanInput{}, err
		}
		in.StartDate = start
	}
	return in, nil
}

// fail maps domain errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *backoffice.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Err.Error(), nil, verr.Fields)
	case lending.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case lending.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case lending.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "Request cancelled", nil)
	default:
		h.Log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func toLoanDTOs(loans []lending.Loan) []LoanDTO {
	out := make([]LoanDTO, len(loans))
	for i, l := range loans {
		out[i] = toLoanDTO(l)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an ErrorResponse. err, when set, becomes the details
// unless explicit details are given.
func writeError(w http.ResponseWriter, status int, message string, err error, details ...any) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	writeJSON(w, status, resp)
}
