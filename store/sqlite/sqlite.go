/*
Package sqlite provides a SQLite-backed implementation of lending.TxStore.

PURPOSE:
  Embedded persistence for single-office deployments and tests. The same
  tables exist in store/postgres; only the SQL dialect differs.

KEY TABLES:
  clients:         borrowers, unique by DNI
  loans:           loan terms and lifecycle status
  installments:    the schedule; only status/paid_date ever change
  payments:        one row per settled installment, with its receipt
  payment_methods: cash, card, qr, transfer

STORAGE FORMATS:
  - Dates are TEXT "YYYY-MM-DD" so lexical order is calendar order
  - Amounts and rates are TEXT decimal strings, never REAL
  - Timestamps are TEXT RFC 3339 UTC

CONCURRENCY:
  The pool is capped at one connection. SQLite allows a single writer anyway,
  and ":memory:" databases are per-connection, so a larger pool would see
  several empty databases.

USAGE:
  store, err := sqlite.New("./data/lending.db")
  if err != nil {
      return err
  }
  defer store.Close()

  svc := backoffice.NewService(store, ...)

SEE ALSO:
  - lending/store.go: interface definitions
  - lending/store/memory.go: in-memory implementation for testing
  - store/postgres: hosted implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/lending"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements lending.TxStore using SQLite.
type Store struct {
	db *sql.DB
	q  queryer
}

// New creates a new SQLite store with the given database path and applies the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if missing and seeds the default payment methods.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		dni TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		address TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_name
		ON clients(last_name, first_name);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		installment_count INTEGER NOT NULL CHECK (installment_count > 0),
		total_amount TEXT NOT NULL,
		start_date TEXT NOT NULL,
		payment_day INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_client
		ON loans(client_id);

	-- Installments: inserted once with the loan, then only flipped to paid
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		sequence_number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid')),
		paid_date TEXT,
		UNIQUE (loan_id, sequence_number)
	);

	-- Hot path: outstanding view scans by due date
	CREATE INDEX IF NOT EXISTS idx_installments_due
		ON installments(due_date, status);

	CREATE TABLE IF NOT EXISTS payment_methods (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		client_id TEXT NOT NULL REFERENCES clients(id),
		installment_id TEXT NOT NULL UNIQUE REFERENCES installments(id),
		sequence_number INTEGER NOT NULL,
		method_id TEXT NOT NULL REFERENCES payment_methods(id),
		base_amount TEXT NOT NULL,
		late_interest TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		paid_date TEXT NOT NULL,
		receipt_number TEXT NOT NULL UNIQUE,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_loan
		ON payments(loan_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	for _, m := range lending.DefaultPaymentMethods() {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO payment_methods (id, name, type, active) VALUES (?, ?, ?, ?)`,
			m.ID, m.Name, m.Type, m.Active)
		if err != nil {
			return fmt.Errorf("failed to seed payment method %s: %w", m.ID, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store lending.Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// atomic runs fn in the current transaction, or a new one if there is none.
func (s *Store) atomic(ctx context.Context, fn func(q queryer) error) error {
	return s.WithTx(ctx, func(st lending.Store) error {
		return fn(st.(*Store).q)
	})
}

// =============================================================================
// CLIENTS
// =============================================================================

func (s *Store) CreateClient(ctx context.Context, c lending.Client) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO clients (id, dni, first_name, last_name, address, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DNI, c.FirstName, c.LastName, c.Address,
		nullString(c.Phone), nullString(c.Email), formatTime(c.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return lending.ErrDuplicateClient
		}
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

const clientColumns = `id, dni, first_name, last_name, address, phone, email, created_at`

func (s *Store) GetClient(ctx context.Context, id lending.ClientID) (lending.Client, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lending.Client{}, lending.NotFound("client", string(id))
	}
	return c, err
}

func (s *Store) ListClients(ctx context.Context) ([]lending.Client, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var out []lending.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClient(row scanner) (lending.Client, error) {
	var c lending.Client
	var phone, email sql.NullString
	var createdAt string
	if err := row.Scan(&c.ID, &c.DNI, &c.FirstName, &c.LastName, &c.Address, &phone, &email, &createdAt); err != nil {
		return lending.Client{}, err
	}
	c.Phone = phone.String
	c.Email = email.String
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return c, nil
}

// =============================================================================
// LOANS
// =============================================================================

// CreateLoan inserts the loan and its schedule in one transaction.
func (s *Store) CreateLoan(ctx context.Context, loan lending.Loan, schedule []lending.Installment) error {
	return s.atomic(ctx, func(q queryer) error {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients WHERE id = ?`, loan.ClientID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return lending.NotFound("client", string(loan.ClientID))
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO loans (id, client_id, principal, interest_rate, installment_count,
			                   total_amount, start_date, payment_day, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			loan.ID, loan.ClientID, loan.Principal.String(), loan.InterestRate.String(),
			loan.InstallmentCount, loan.TotalAmount.String(), loan.StartDate.String(),
			loan.PaymentDay, loan.Status, formatTime(loan.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert loan: %w", err)
		}

		for _, inst := range schedule {
			_, err := q.ExecContext(ctx, `
				INSERT INTO installments (id, loan_id, sequence_number, due_date, base_amount, status, paid_date)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				inst.ID, loan.ID, inst.SequenceNumber, inst.DueDate.String(),
				inst.BaseAmount.String(), inst.Status, nullString(inst.PaidDate.String()),
			)
			if err != nil {
				return fmt.Errorf("failed to insert installment %d: %w", inst.SequenceNumber, err)
			}
		}
		return nil
	})
}

const loanColumns = `id, client_id, principal, interest_rate, installment_count,
	total_amount, start_date, payment_day, status, created_at`

func (s *Store) GetLoan(ctx context.Context, id lending.LoanID) (lending.Loan, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lending.Loan{}, lending.NotFound("loan", string(id))
	}
	return l, err
}

func (s *Store) ListLoans(ctx context.Context, filter lending.LoanFilter) ([]lending.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE 1=1`
	var args []any
	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var out []lending.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) SetLoanStatus(ctx context.Context, id lending.LoanID, status lending.LoanStatus) error {
	res, err := s.q.ExecContext(ctx, `UPDATE loans SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lending.NotFound("loan", string(id))
	}
	return nil
}

func scanLoan(row scanner) (lending.Loan, error) {
	var l lending.Loan
	var principal, rate, total, start, createdAt string
	if err := row.Scan(&l.ID, &l.ClientID, &principal, &rate, &l.InstallmentCount,
		&total, &start, &l.PaymentDay, &l.Status, &createdAt); err != nil {
		return lending.Loan{}, err
	}

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
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return l, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

const installmentColumns = `id, loan_id, sequence_number, due_date, base_amount, status, paid_date`

func (s *Store) GetInstallment(ctx context.Context, id lending.InstallmentID) (lending.Installment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+installmentColumns+` FROM installments WHERE id = ?`, id)
	inst, err := scanInstallment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lending.Installment{}, lending.NotFound("installment", string(id))
	}
	return inst, err
}

func (s *Store) ListInstallments(ctx context.Context, loanID lending.LoanID) ([]lending.Installment, error) {
	return s.queryInstallments(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE loan_id = ? ORDER BY sequence_number`,
		loanID)
}

func (s *Store) ListInstallmentsDue(ctx context.Context, filter lending.InstallmentFilter) ([]lending.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE 1=1`
	var args []any
	if !filter.DueFrom.IsZero() {
		query += ` AND due_date >= ?`
		args = append(args, filter.DueFrom.String())
	}
	if !filter.DueTo.IsZero() {
		query += ` AND due_date <= ?`
		args = append(args, filter.DueTo.String())
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if len(filter.LoanIDs) > 0 {
		query += ` AND loan_id IN (?` + strings.Repeat(`, ?`, len(filter.LoanIDs)-1) + `)`
		for _, id := range filter.LoanIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY due_date, loan_id, sequence_number`

	return s.queryInstallments(ctx, query, args...)
}

// MarkInstallmentPaid flips pending to paid. The status guard in the WHERE
// clause makes a second payment of the same installment a no-op update.
func (s *Store) MarkInstallmentPaid(ctx context.Context, id lending.InstallmentID, paidDate lending.Date) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE installments SET status = 'paid', paid_date = ? WHERE id = ? AND status = 'pending'`,
		paidDate.String(), id)
	if err != nil {
		return fmt.Errorf("failed to mark installment paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if _, err := s.GetInstallment(ctx, id); err != nil {
		return err
	}
	return lending.ErrAlreadyPaid
}

func (s *Store) queryInstallments(ctx context.Context, query string, args ...any) ([]lending.Installment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var out []lending.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanInstallment(row scanner) (lending.Installment, error) {
	var inst lending.Installment
	var due, amount string
	var paid sql.NullString
	if err := row.Scan(&inst.ID, &inst.LoanID, &inst.SequenceNumber, &due, &amount, &inst.Status, &paid); err != nil {
		return lending.Installment{}, err
	}

	var err error
	if inst.DueDate, err = lending.ParseDate(due); err != nil {
		return lending.Installment{}, err
	}
	if inst.BaseAmount, err = lending.ParseMoney(amount); err != nil {
		return lending.Installment{}, err
	}
	if paid.Valid {
		if inst.PaidDate, err = lending.ParseDate(paid.String); err != nil {
			return lending.Installment{}, err
		}
	}
	return inst, nil
}

// =============================================================================
// PAYMENTS AND METHODS
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, p lending.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (id, loan_id, client_id, installment_id, sequence_number, method_id,
		                      base_amount, late_interest, total_amount, due_date, paid_date,
		                      receipt_number, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LoanID, p.ClientID, p.InstallmentID, p.SequenceNumber, p.MethodID,
		p.BaseAmount.String(), p.LateInterest.String(), p.TotalAmount.String(),
		p.DueDate.String(), p.PaidDate.String(), p.ReceiptNumber, nullString(p.Notes),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return lending.ErrAlreadyPaid
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, loanID lending.LoanID) ([]lending.Payment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, loan_id, client_id, installment_id, sequence_number, method_id,
		       base_amount, late_interest, total_amount, due_date, paid_date,
		       receipt_number, notes, created_at
		FROM payments WHERE loan_id = ? ORDER BY sequence_number`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []lending.Payment
	for rows.Next() {
		var p lending.Payment
		var base, late, total, due, paid, createdAt string
		var notes sql.NullString
		if err := rows.Scan(&p.ID, &p.LoanID, &p.ClientID, &p.InstallmentID, &p.SequenceNumber,
			&p.MethodID, &base, &late, &total, &due, &paid, &p.ReceiptNumber, &notes, &createdAt); err != nil {
			return nil, err
		}
		if p.BaseAmount, err = lending.ParseMoney(base); err != nil {
			return nil, err
		}
		if p.LateInterest, err = lending.ParseMoney(late); err != nil {
			return nil, err
		}
		if p.TotalAmount, err = lending.ParseMoney(total); err != nil {
			return nil, err
		}
		if p.DueDate, err = lending.ParseDate(due); err != nil {
			return nil, err
		}
		if p.PaidDate, err = lending.ParseDate(paid); err != nil {
			return nil, err
		}
		p.Notes = notes.String
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListPaymentMethods(ctx context.Context, activeOnly bool) ([]lending.PaymentMethod, error) {
	query := `SELECT id, name, type, active FROM payment_methods`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	defer rows.Close()

	var out []lending.PaymentMethod
	for rows.Next() {
		var m lending.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Active); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetPaymentMethod(ctx context.Context, id lending.PaymentMethodID) (lending.PaymentMethod, error) {
	var m lending.PaymentMethod
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, type, active FROM payment_methods WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Type, &m.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return lending.PaymentMethod{}, lending.NotFound("payment method", string(id))
	}
	return m, err
}

func (s *Store) SavePaymentMethod(ctx context.Context, m lending.PaymentMethod) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payment_methods (id, name, type, active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, type = excluded.type, active = excluded.active`,
		m.ID, m.Name, m.Type, m.Active)
	if err != nil {
		return fmt.Errorf("failed to save payment method: %w", err)
	}
	return nil
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var _ lending.TxStore = (*Store)(nil)
