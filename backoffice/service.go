/*
Package backoffice is the application layer of the lending engine.

PURPOSE:
  Orchestrates the pure lending core with its collaborators: the store,
  the clock, the receipt issuer, the event publisher and the notifier.
  HTTP handlers and CLI commands call Service; they never touch the store.

OPERATIONS:
  Clients:   RegisterClient, GetClient, ListClients
  Loans:     PreviewSchedule, RegisterLoan, GetLoan, ListLoans, Statement
  Payments:  RecordPayment, ListPayments, PaymentMethods, SavePaymentMethod
  Views:     Outstanding, Dashboard
  Jobs:      SendOverdueReminders

"TODAY":
  Every date-sensitive operation reads the injected lending.Clock once at
  the start, so a request sees a single consistent day.

SEE ALSO:
  - lending/: schedule builder, classifier, listing policy
  - api/handlers.go: HTTP surface
*/
package backoffice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/events"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/notify"
	"github.com/warp/lending-engine/receipt"
)

// Product holds the configurable loan product.
type Product struct {
	DefaultInterestRate decimal.Decimal
	InstallmentCounts   []int
	Currency            string
}

// DefaultProduct is 10% flat interest, 1 to 24 installments, soles.
func DefaultProduct() Product {
	return Product{
		DefaultInterestRate: decimal.RequireFromString("0.10"),
		InstallmentCounts:   []int{1, 2, 3, 4, 6, 12, 18, 24},
		Currency:            "S/",
	}
}

func (p Product) allows(count int) bool {
	for _, c := range p.InstallmentCounts {
		if c == count {
			return true
		}
	}
	return false
}

type Service struct {
	store      lending.TxStore
	clock      lending.Clock
	classifier lending.Classifier
	receipts   receipt.Issuer
	publisher  events.Publisher
	notifier   notify.Notifier
	product    Product
	log        zerolog.Logger
	validate   *validator.Validate
	newID      func() string
	now        func() time.Time

	remindMu sync.Mutex
	reminded map[lending.InstallmentID]lending.Date
}

type Option func(*Service)

func WithClock(c lending.Clock) Option           { return func(s *Service) { s.clock = c } }
func WithClassifier(c lending.Classifier) Option { return func(s *Service) { s.classifier = c } }
func WithReceipts(r receipt.Issuer) Option       { return func(s *Service) { s.receipts = r } }
func WithPublisher(p events.Publisher) Option    { return func(s *Service) { s.publisher = p } }
func WithNotifier(n notify.Notifier) Option      { return func(s *Service) { s.notifier = n } }
func WithProduct(p Product) Option               { return func(s *Service) { s.product = p } }
func WithLogger(l zerolog.Logger) Option         { return func(s *Service) { s.log = l } }
func WithIDGenerator(f func() string) Option     { return func(s *Service) { s.newID = f } }

// NewService wires a service. Unset collaborators get in-process defaults.
func NewService(store lending.TxStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		clock:      lending.SystemClock{},
		classifier: lending.DefaultClassifier,
		receipts:   receipt.NewMemoryIssuer(),
		publisher:  events.Noop{},
		product:    DefaultProduct(),
		log:        zerolog.Nop(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		newID:      uuid.NewString,
		now:        time.Now,
		reminded:   make(map[lending.InstallmentID]lending.Date),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.log)
	}
	return s
}

func (s *Service) Product() Product { return s.product }

// AsOf returns a service sharing every collaborator that sees day as today.
// Sample data uses it to record payments on their due dates.
func (s *Service) AsOf(day lending.Date) *Service {
	return &Service{
		store:      s.store,
		clock:      lending.FixedClock{Date: day},
		classifier: s.classifier,
		receipts:   s.receipts,
		publisher:  s.publisher,
		notifier:   s.notifier,
		product:    s.product,
		log:        s.log,
		validate:   s.validate,
		newID:      s.newID,
		now:        func() time.Time { return day.Time() },
		reminded:   make(map[lending.InstallmentID]lending.Date),
	}
}

func (s *Service) Today() lending.Date { return s.clock.Today() }

// =============================================================================
// CLIENTS
// =============================================================================

type ClientInput struct {
	DNI       string `json:"dni" validate:"required,len=8,numeric"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Address   string `json:"address" validate:"required,max=200"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
}

func (in *ClientInput) normalize() {
	in.DNI = strings.TrimSpace(in.DNI)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Address = strings.TrimSpace(in.Address)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
}

// RegisterClient validates and stores a new borrower.
func (s *Service) RegisterClient(ctx context.Context, in ClientInput) (lending.Client, error) {
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return lending.Client{}, validationError(err, lending.ErrInvalidClient)
	}

	c := lending.Client{
		ID:        lending.ClientID(s.newID()),
		DNI:       in.DNI,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Address:   in.Address,
		Phone:     in.Phone,
		Email:     in.Email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateClient(ctx, c); err != nil {
		return lending.Client{}, err
	}

	s.log.Info().Str("client_id", string(c.ID)).Str("dni", c.DNI).Msg("client registered")
	return c, nil
}

func (s *Service) GetClient(ctx context.Context, id lending.ClientID) (lending.Client, error) {
	return s.store.GetClient(ctx, id)
}

// ListClients returns clients whose name or DNI contains q (case-insensitive).
func (s *Service) ListClients(ctx context.Context, q string) ([]lending.Client, error) {
	all, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return all, nil
	}
	out := make([]lending.Client, 0, len(all))
	for _, c := range all {
		if matchesClient(c, q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matchesClient(c lending.Client, lowerQ string) bool {
	return strings.Contains(strings.ToLower(c.FullName()), lowerQ) ||
		strings.Contains(strings.ToLower(c.LastName+" "+c.FirstName), lowerQ) ||
		strings.Contains(c.DNI, lowerQ)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError lists the offending fields and unwraps to the sentinel of
// the record being validated.
type ValidationError struct {
	Err    error
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return e.Err.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

func validationError(err, sentinel error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[toSnake(fe.Field())] = describe(fe)
	}
	return &ValidationError{Err: sentinel, Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "alphanum":
		return "must contain only letters and digits"
	}
	return "is invalid"
}

func toSnake(s string) string {
	if s == "DNI" {
		return "dni"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
