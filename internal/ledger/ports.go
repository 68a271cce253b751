// Package ledger defines the outbound port for the external spreadsheet
// ledger that mirrors expense records. The ledger is a convenience mirror,
// never the record of truth: callers treat every failure here as a
// warning, not a request failure.
package ledger

import (
	"context"
	"errors"

	"cantiere/internal/core"
)

// ErrRowNotFound is returned when a key scan finds no matching row.
// A missing row is a real failure, not a silent success.
var ErrRowNotFound = errors.New("ledger row not found")

// Client is the port for the four ledger operations. The first column of
// every row holds the expense id and acts as the join key; lookups scan
// that column top to bottom for the first exact match.
type Client interface {
	// CreateLedger provisions a new ledger resource for a venture, writes
	// the header row, grants access to the configured identity, and files
	// it under the configured root container.
	CreateLedger(ctx context.Context, ventureID, ventureName string) (ledgerID string, err error)

	// AppendRow appends a formatted expense row.
	AppendRow(ctx context.Context, ledgerID string, row []string) error

	// UpdateRowByKey overwrites the full column range of the first row
	// whose key column matches key. Returns ErrRowNotFound when absent.
	UpdateRowByKey(ctx context.Context, ledgerID, key string, row []string) error

	// DeleteRowByKey removes the single row whose key column matches key.
	// Returns ErrRowNotFound when absent.
	DeleteRowByKey(ctx context.Context, ledgerID, key string) error
}

// Columns is the fixed width of a ledger row.
const Columns = 9

// Header returns the ledger header row.
func Header() []string {
	return []string{
		"Expense ID", "Description", "Category", "Amount",
		"Date", "Due Date", "Payment Status", "Approval Status", "Recorded By",
	}
}

// ExpenseRow formats an expense as its ledger row. Column A carries the
// expense id (the join key).
func ExpenseRow(e core.Expense) []string {
	return []string{
		e.ID,
		e.Description,
		string(e.Category),
		e.Value.String(),
		e.Date.String(),
		e.DueDate.String(),
		string(e.PaymentState),
		string(e.ApprovalState),
		e.CreatedBy,
	}
}
