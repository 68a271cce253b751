// Package storage provides SQLite persistence for ventures, expenses and
// the audit log. It holds no business rules; lifecycle decisions live in
// the services package.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cantiere/internal/core"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

func Open(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ExpenseFilter narrows ListExpenses. Zero values mean "no filter";
// CreatedBy scopes the listing to one owner for non-privileged callers.
type ExpenseFilter struct {
	VentureID     string
	CreatedBy     string
	PaymentStates []core.PaymentState
	Category      core.Category
	Search        string
	Page          int
	Limit         int
}

// Window is an inclusive due-date range, optionally scoped to a venture.
type Window struct {
	Start     core.Date
	End       core.Date
	VentureID string
}

// Totals carries the sums and counts of one aggregation window.
type Totals struct {
	TotalCents   int64
	TotalCount   int64
	PendingCents int64
	PendingCount int64
	PaidCents    int64
	PaidCount    int64
}

// AuditEntry is one lifecycle event recorded by the audit worker.
type AuditEntry struct {
	ExpenseID  string
	VentureID  string
	Operation  string
	Actor      string
	Detail     string
	OccurredAt time.Time
}

const expenseColumns = `id, venture_id, description, value_cents, expense_date, due_date,
	category, payment_state, approval_state, payment_method, notes, attachments,
	created_by, reviewed_by, reviewed_at, created_at, updated_at`

// --- Ventures ---

func (r *Repository) CreateVenture(ctx context.Context, v core.Venture) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ventures (id, name, ledger_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.LedgerID, v.CreatedAt.Format(time.RFC3339), v.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert venture: %w", err)
	}
	return nil
}

func (r *Repository) GetVenture(ctx context.Context, id string) (core.Venture, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, ledger_id, created_at, updated_at FROM ventures WHERE id = ?`, id)
	var v core.Venture
	var createdAt, updatedAt string
	if err := row.Scan(&v.ID, &v.Name, &v.LedgerID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Venture{}, fmt.Errorf("venture %s: %w", id, core.ErrNotFound)
		}
		return core.Venture{}, fmt.Errorf("get venture: %w", err)
	}
	v.CreatedAt = parseTimestamp(createdAt)
	v.UpdatedAt = parseTimestamp(updatedAt)
	return v, nil
}

func (r *Repository) ListVentures(ctx context.Context) ([]core.Venture, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, ledger_id, created_at, updated_at FROM ventures ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list ventures: %w", err)
	}
	defer rows.Close()

	var out []core.Venture
	for rows.Next() {
		var v core.Venture
		var createdAt, updatedAt string
		if err := rows.Scan(&v.ID, &v.Name, &v.LedgerID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan venture: %w", err)
		}
		v.CreatedAt = parseTimestamp(createdAt)
		v.UpdatedAt = parseTimestamp(updatedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) CountVentures(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ventures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ventures: %w", err)
	}
	return n, nil
}

// SetVentureLedger stores the external ledger id on the venture.
func (r *Repository) SetVentureLedger(ctx context.Context, id, ledgerID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ventures SET ledger_id = ?, updated_at = ? WHERE id = ?`,
		ledgerID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("set venture ledger: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("venture %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// --- Expenses ---

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) error {
	attachments, err := json.Marshal(e.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.VentureID, e.Description, e.Value.Cents,
		e.Date.String(), e.DueDate.String(),
		string(e.Category), string(e.PaymentState), string(e.ApprovalState),
		e.PaymentMethod, e.Notes, string(attachments),
		e.CreatedBy, e.ReviewedBy, formatNullableTime(e.ReviewedAt),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"venture_id", e.VentureID,
		"value_cents", e.Value.Cents,
		"payment_state", e.PaymentState)

	return nil
}

func (r *Repository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
		}
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// UpdateExpense overwrites the mutable fields of an expense. The
// attachment list replaces the stored one wholesale.
func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	attachments, err := json.Marshal(e.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET description = ?, value_cents = ?, expense_date = ?, due_date = ?,
		 category = ?, payment_state = ?, payment_method = ?, notes = ?, attachments = ?, updated_at = ?
		 WHERE id = ?`,
		e.Description, e.Value.Cents, e.Date.String(), e.DueDate.String(),
		string(e.Category), string(e.PaymentState), e.PaymentMethod, e.Notes,
		string(attachments), e.UpdatedAt.Format(time.RFC3339), e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", e.ID, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// ReviewExpense performs the review transition as a conditional write:
// the update only lands if approval_state still equals expected, closing
// the window between the precondition read and the write. A zero row
// count against an existing record means the record was reviewed in the
// meantime.
func (r *Repository) ReviewExpense(ctx context.Context, id string, expected, decision core.ApprovalState, payment core.PaymentState, reviewedBy string, reviewedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET approval_state = ?, payment_state = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		 WHERE id = ? AND approval_state = ?`,
		string(decision), string(payment), reviewedBy,
		reviewedAt.Format(time.RFC3339), reviewedAt.Format(time.RFC3339),
		id, string(expected))
	if err != nil {
		return fmt.Errorf("review expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("review expense rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM expenses WHERE id = ?`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
		}
		return fmt.Errorf("review expense existence check: %w", err)
	}
	return fmt.Errorf("expense %s already reviewed: %w", id, core.ErrInvalidState)
}

// ListExpenses applies the filter and returns one page plus the total
// match count. Malformed rows are skipped and logged rather than failing
// the listing.
func (r *Repository) ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, int64, error) {
	where, args := buildExpenseFilter(f)

	var total int64
	countQuery := `SELECT COUNT(*) FROM expenses` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := `SELECT ` + expenseColumns + ` FROM expenses` + where +
		` ORDER BY expense_date DESC, created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed expense row", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func buildExpenseFilter(f ExpenseFilter) (string, []any) {
	var conds []string
	var args []any
	if f.VentureID != "" {
		conds = append(conds, "venture_id = ?")
		args = append(args, f.VentureID)
	}
	if f.CreatedBy != "" {
		conds = append(conds, "created_by = ?")
		args = append(args, f.CreatedBy)
	}
	if len(f.PaymentStates) > 0 {
		placeholders := make([]string, len(f.PaymentStates))
		for i, s := range f.PaymentStates {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "payment_state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Search != "" {
		conds = append(conds, "description LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// --- Aggregation ---

// WindowTotals sums expenses whose due date falls inside the window.
// Dates are stored as ISO strings, so range comparison is lexicographic.
func (r *Repository) WindowTotals(ctx context.Context, w Window) (Totals, error) {
	query := `SELECT
		COALESCE(SUM(value_cents), 0), COUNT(*),
		COALESCE(SUM(CASE WHEN payment_state IN ('pending', 'due') THEN value_cents ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN payment_state IN ('pending', 'due') THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN payment_state = 'paid' THEN value_cents ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN payment_state = 'paid' THEN 1 ELSE 0 END), 0)
	FROM expenses WHERE due_date >= ? AND due_date <= ?`
	args := []any{w.Start.String(), w.End.String()}
	if w.VentureID != "" {
		query += ` AND venture_id = ?`
		args = append(args, w.VentureID)
	}

	var t Totals
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&t.TotalCents, &t.TotalCount,
		&t.PendingCents, &t.PendingCount,
		&t.PaidCents, &t.PaidCount)
	if err != nil {
		return Totals{}, fmt.Errorf("window totals: %w", err)
	}
	return t, nil
}

// UpcomingDue counts records still awaiting review or payment whose due
// date falls inside [from, to].
func (r *Repository) UpcomingDue(ctx context.Context, from, to core.Date, ventureID string) (int64, int64, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(value_cents), 0) FROM expenses
		WHERE due_date >= ? AND due_date <= ?
		AND (approval_state = 'pending' OR payment_state IN ('pending', 'due'))`
	args := []any{from.String(), to.String()}
	if ventureID != "" {
		query += ` AND venture_id = ?`
		args = append(args, ventureID)
	}

	var count, cents int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count, &cents); err != nil {
		return 0, 0, fmt.Errorf("upcoming due: %w", err)
	}
	return count, cents, nil
}

// --- Audit log ---

func (r *Repository) AppendAudit(ctx context.Context, entry AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (expense_id, venture_id, operation, actor, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ExpenseID, entry.VentureID, entry.Operation, entry.Actor, entry.Detail,
		entry.OccurredAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// --- Scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	var value int64
	var date, dueDate, category, paymentState, approvalState string
	var attachments, reviewedAt, createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.VentureID, &e.Description, &value, &date, &dueDate,
		&category, &paymentState, &approvalState, &e.PaymentMethod, &e.Notes, &attachments,
		&e.CreatedBy, &e.ReviewedBy, &reviewedAt, &createdAt, &updatedAt)
	if err != nil {
		return core.Expense{}, err
	}

	e.Value = core.Money{Cents: value}
	e.Category = core.Category(category)
	e.PaymentState = core.PaymentState(paymentState)
	e.ApprovalState = core.ApprovalState(approvalState)

	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s date %q: %w", e.ID, date, err)
	}
	if e.DueDate, err = core.ParseDate(dueDate); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s due date %q: %w", e.ID, dueDate, err)
	}
	if err := json.Unmarshal([]byte(attachments), &e.Attachments); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s attachments: %w", e.ID, err)
	}
	if reviewedAt != "" {
		e.ReviewedAt = parseTimestamp(reviewedAt)
	}
	e.CreatedAt = parseTimestamp(createdAt)
	e.UpdatedAt = parseTimestamp(updatedAt)
	return e, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatNullableTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
