/*
Package postgres provides a PostgreSQL implementation of lending.TxStore.

PURPOSE:
  Hosted persistence for multi-terminal offices. Table layout matches
  store/sqlite; the schema is versioned with golang-migrate (migrate.go).

TYPES:
  - Amounts are NUMERIC(14,2). They cross the wire as text and are parsed
    into decimal.Decimal, so no float ever touches a balance.
  - Dates are DATE and cross the wire as "YYYY-MM-DD".

TRANSACTIONS:
  WithTx uses pgx.BeginFunc. Calling WithTx on a transactional view opens a
  savepoint instead of a new transaction.

USAGE:
  if err := postgres.Migrate(url); err != nil { ... }
  store, err := postgres.New(ctx, url, 10)
  defer store.Close()
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/lending"
)

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

// New connects a pool. maxConns <= 0 keeps the pgxpool default.
func New(ctx context.Context, url string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, db: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) WithTx(ctx context.Context, fn func(lending.Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, db: tx})
	})
}

// =============================================================================
// CLIENTS
// =============================================================================

func (s *Store) CreateClient(ctx context.Context, c lending.Client) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO clients (id, dni, first_name, last_name, address, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(c.ID), c.DNI, c.FirstName, c.LastName, c.Address,
		textOrNil(c.Phone), textOrNil(c.Email), timestamp(c.CreatedAt),
	)
	if isUniqueViolation(err) {
		return lending.ErrDuplicateClient
	}
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

const clientColumns = `id, dni, first_name, last_name, address,
	COALESCE(phone, ''), COALESCE(email, ''), created_at`

func (s *Store) GetClient(ctx context.Context, id lending.ClientID) (lending.Client, error) {
	c, err := scanClient(s.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return lending.Client{}, lending.NotFound("client", string(id))
	}
	return c, err
}

func (s *Store) ListClients(ctx context.Context) ([]lending.Client, error) {
	rows, err := s.db.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	return collect(rows, scanClient)
}

func scanClient(row pgx.Row) (lending.Client, error) {
	var c lending.Client
	var id string
	err := row.Scan(&id, &c.DNI, &c.FirstName, &c.LastName, &c.Address, &c.Phone, &c.Email, &c.CreatedAt)
	c.ID = lending.ClientID(id)
	return c, err
}

// =============================================================================
// LOANS
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, loan lending.Loan, schedule []lending.Installment) error {
	return s.WithTx(ctx, func(st lending.Store) error {
		tx := st.(*Store).db

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, string(loan.ClientID)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return lending.NotFound("client", string(loan.ClientID))
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO loans (id, client_id, principal, interest_rate, installment_count,
			                   total_amount, start_date, payment_day, status, created_at)
			VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5,
			        $6::text::numeric, $7::text::date, $8, $9, $10)`,
			string(loan.ID), string(loan.ClientID), loan.Principal.String(), loan.InterestRate.String(),
			loan.InstallmentCount, loan.TotalAmount.String(), loan.StartDate.String(),
			loan.PaymentDay, string(loan.Status), timestamp(loan.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert loan: %w", err)
		}

		batch := &pgx.Batch{}
		for _, inst := range schedule {
			batch.Queue(`
				INSERT INTO installments (id, loan_id, sequence_number, due_date, base_amount, status)
				VALUES ($1, $2, $3, $4::text::date, $5::text::numeric, $6)`,
				string(inst.ID), string(loan.ID), inst.SequenceNumber, inst.DueDate.String(),
				inst.BaseAmount.String(), string(inst.Status),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert schedule: %w", err)
		}
		return nil
	})
}

const loanColumns = `id, client_id, principal::text, interest_rate::text, installment_count,
	total_amount::text, start_date::text, payment_day, status, created_at`

func (s *Store) GetLoan(ctx context.Context, id lending.LoanID) (lending.Loan, error) {
	l, err := scanLoan(s.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return lending.Loan{}, lending.NotFound("loan", string(id))
	}
	return l, err
}

func (s *Store) ListLoans(ctx context.Context, filter lending.LoanFilter) ([]lending.Loan, error) {
	q := newQuery(`SELECT ` + loanColumns + ` FROM loans WHERE TRUE`)
	if filter.ClientID != "" {
		q.where("client_id = %s", string(filter.ClientID))
	}
	if filter.Status != "" {
		q.where("status = %s", string(filter.Status))
	}
	rows, err := s.db.Query(ctx, q.sql+` ORDER BY created_at DESC, id DESC`, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	return collect(rows, scanLoan)
}

func (s *Store) SetLoanStatus(ctx context.Context, id lending.LoanID, status lending.LoanStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE loans SET status = $1 WHERE id = $2`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lending.NotFound("loan", string(id))
	}
	return nil
}

func scanLoan(row pgx.Row) (lending.Loan, error) {
	var l lending.Loan
	var id, clientID, principal, rate, total, start, status string
	if err := row.Scan(&id, &clientID, &principal, &rate, &l.InstallmentCount,
		&total, &start, &l.PaymentDay, &status, &l.CreatedAt); err != nil {
		return lending.Loan{}, err
	}
	l.ID, l.ClientID, l.Status = lending.LoanID(id), lending.ClientID(clientID), lending.LoanStatus(status)

	var err error
	if l.Principal, err = lending.ParseMoney(principal); err != nil {
		return lending.Loan{}, err
	}
	if l.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return lending.Loan{}, fmt.Errorf("invalid interest rate %q: %w", rate, err)
	}
	if l.TotalAmount, err = lending.ParseMoney(total); err != nil {
		return lending.Loan{}, err
	}
	if l.StartDate, err = lending.ParseDate(start); err != nil {
		return lending.Loan{}, err
	}
	return l, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

const installmentColumns = `id, loan_id, sequence_number, due_date::text, base_amount::text,
	status, COALESCE(paid_date::text, '')`

func (s *Store) GetInstallment(ctx context.Context, id lending.InstallmentID) (lending.Installment, error) {
	inst, err := scanInstallment(s.db.QueryRow(ctx, `SELECT `+installmentColumns+` FROM installments WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return lending.Installment{}, lending.NotFound("installment", string(id))
	}
	return inst, err
}

func (s *Store) ListInstallments(ctx context.Context, loanID lending.LoanID) ([]lending.Installment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE loan_id = $1 ORDER BY sequence_number`,
		string(loanID))
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	return collect(rows, scanInstallment)
}

func (s *Store) ListInstallmentsDue(ctx context.Context, filter lending.InstallmentFilter) ([]lending.Installment, error) {
	q := newQuery(`SELECT ` + installmentColumns + ` FROM installments WHERE TRUE`)
	if !filter.DueFrom.IsZero() {
		q.where("due_date >= %s::text::date", filter.DueFrom.String())
	}
	if !filter.DueTo.IsZero() {
		q.where("due_date <= %s::text::date", filter.DueTo.String())
	}
	if filter.Status != "" {
		q.where("status = %s", string(filter.Status))
	}
	if len(filter.LoanIDs) > 0 {
		ids := make([]string, len(filter.LoanIDs))
		for i, id := range filter.LoanIDs {
			ids[i] = string(id)
		}
		q.where("loan_id = ANY(%s)", ids)
	}

	rows, err := s.db.Query(ctx, q.sql+` ORDER BY due_date, loan_id, sequence_number`, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	return collect(rows, scanInstallment)
}

func (s *Store) MarkInstallmentPaid(ctx context.Context, id lending.InstallmentID, paidDate lending.Date) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE installments SET status = 'paid', paid_date = $1::text::date WHERE id = $2 AND status = 'pending'`,
		paidDate.String(), string(id))
	if err != nil {
		return fmt.Errorf("failed to mark installment paid: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetInstallment(ctx, id); err != nil {
		return err
	}
	return lending.ErrAlreadyPaid
}

func scanInstallment(row pgx.Row) (lending.Installment, error) {
	var inst lending.Installment
	var id, loanID, due, amount, status, paid string
	if err := row.Scan(&id, &loanID, &inst.SequenceNumber, &due, &amount, &status, &paid); err != nil {
		return lending.Installment{}, err
	}
	inst.ID, inst.LoanID, inst.Status = lending.InstallmentID(id), lending.LoanID(loanID), lending.InstallmentStatus(status)

	var err error
	if inst.DueDate, err = lending.ParseDate(due); err != nil {
		return lending.Installment{}, err
	}
	if inst.BaseAmount, err = lending.ParseMoney(amount); err != nil {
		return lending.Installment{}, err
	}
	if paid != "" {
		if inst.PaidDate, err = lending.ParseDate(paid); err != nil {
			return lending.Installment{}, err
		}
	}
	return inst, nil
}

// =============================================================================
// PAYMENTS AND METHODS
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, p lending.Payment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payments (id, loan_id, client_id, installment_id, sequence_number, method_id,
		                      base_amount, late_interest, total_amount, due_date, paid_date,
		                      receipt_number, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9::text::numeric,
		        $10::text::date, $11::text::date, $12, $13, $14)`,
		string(p.ID), string(p.LoanID), string(p.ClientID), string(p.InstallmentID),
		p.SequenceNumber, string(p.MethodID), p.BaseAmount.String(), p.LateInterest.String(),
		p.TotalAmount.String(), p.DueDate.String(), p.PaidDate.String(), p.ReceiptNumber,
		textOrNil(p.Notes), timestamp(p.CreatedAt),
	)
	if isUniqueViolation(err) {
		return lending.ErrAlreadyPaid
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, loanID lending.LoanID) ([]lending.Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, loan_id, client_id, installment_id, sequence_number, method_id,
		       base_amount::text, late_interest::text, total_amount::text,
		       due_date::text, paid_date::text, receipt_number, COALESCE(notes, ''), created_at
		FROM payments WHERE loan_id = $1 ORDER BY sequence_number`, string(loanID))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	return collect(rows, scanPayment)
}

func scanPayment(row pgx.Row) (lending.Payment, error) {
	var p lending.Payment
	var id, loanID, clientID, instID, methodID, base, late, total, due, paid string
	if err := row.Scan(&id, &loanID, &clientID, &instID, &p.SequenceNumber, &methodID,
		&base, &late, &total, &due, &paid, &p.ReceiptNumber, &p.Notes, &p.CreatedAt); err != nil {
		return lending.Payment{}, err
	}
	p.ID = lending.PaymentID(id)
	p.LoanID = lending.LoanID(loanID)
	p.ClientID = lending.ClientID(clientID)
	p.InstallmentID = lending.InstallmentID(instID)
	p.MethodID = lending.PaymentMethodID(methodID)

	var err error
	for _, f := range []struct {
		dst *lending.Money
		src string
	}{{&p.BaseAmount, base}, {&p.LateInterest, late}, {&p.TotalAmount, total}} {
		if *f.dst, err = lending.ParseMoney(f.src); err != nil {
			return lending.Payment{}, err
		}
	}
	if p.DueDate, err = lending.ParseDate(due); err != nil {
		return lending.Payment{}, err
	}
	if p.PaidDate, err = lending.ParseDate(paid); err != nil {
		return lending.Payment{}, err
	}
	return p, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context, activeOnly bool) ([]lending.PaymentMethod, error) {
	sql := `SELECT id, name, type, active FROM payment_methods`
	if activeOnly {
		sql += ` WHERE active`
	}
	rows, err := s.db.Query(ctx, sql+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	return collect(rows, scanMethod)
}

func (s *Store) GetPaymentMethod(ctx context.Context, id lending.PaymentMethodID) (lending.PaymentMethod, error) {
	m, err := scanMethod(s.db.QueryRow(ctx, `SELECT id, name, type, active FROM payment_methods WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return lending.PaymentMethod{}, lending.NotFound("payment method", string(id))
	}
	return m, err
}

func (s *Store) SavePaymentMethod(ctx context.Context, m lending.PaymentMethod) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_methods (id, name, type, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, active = EXCLUDED.active`,
		string(m.ID), m.Name, string(m.Type), m.Active)
	if err != nil {
		return fmt.Errorf("failed to save payment method: %w", err)
	}
	return nil
}

func scanMethod(row pgx.Row) (lending.PaymentMethod, error) {
	var m lending.PaymentMethod
	var id, typ string
	err := row.Scan(&id, &m.Name, &typ, &m.Active)
	m.ID, m.Type = lending.PaymentMethodID(id), lending.MethodType(typ)
	return m, err
}

// =============================================================================
// HELPERS
// =============================================================================

// query accumulates AND clauses with numbered placeholders.
type query struct {
	sql  string
	args []any
}

func newQuery(base string) *query { return &query{sql: base} }

// where appends " AND <clause>" with %s replaced by the next placeholder.
func (q *query) where(clause string, arg any) {
	q.args = append(q.args, arg)
	q.sql += " AND " + fmt.Sprintf(clause, "$"+strconv.Itoa(len(q.args)))
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func textOrNil(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ lending.TxStore = (*Store)(nil)
