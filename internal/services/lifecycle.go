// Package services orchestrates the expense lifecycle: input validation,
// authorization, the primary store write, and the best-effort ledger
// mirror. The store is the record of truth; ledger failures downgrade to
// response warnings.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cantiere/internal/amqp"
	"cantiere/internal/auth"
	"cantiere/internal/core"
	"cantiere/internal/ledger"
	"cantiere/internal/storage"
)

// LifecycleManager runs create/edit/review/delete for expense records.
type LifecycleManager struct {
	store  ExpenseStore
	ledger ledger.Client
	events EventPublisher
	now    func() time.Time
}

// NewLifecycleManager wires the manager. ledgerClient and events may be
// nil; the corresponding side effects are then skipped.
func NewLifecycleManager(store ExpenseStore, ledgerClient ledger.Client, events EventPublisher) *LifecycleManager {
	return &LifecycleManager{
		store:  store,
		ledger: ledgerClient,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MutationResult is the outcome of a lifecycle mutation. Warning carries
// a ledger sync failure description; empty means the mirror is current
// (or no ledger is configured).
type MutationResult struct {
	Expense core.Expense
	Warning string
}

// CreateInput holds the fields a caller supplies for a new expense.
type CreateInput struct {
	VentureID     string
	Description   string
	Value         core.Money
	Date          core.Date
	DueDate       core.Date
	Category      core.Category
	PaymentState  core.PaymentState
	PaymentMethod string
	Notes         string
	Attachments   []core.Attachment
}

// EditInput carries a partial update. Nil pointers leave the field
// untouched. A non-nil Attachments list replaces the stored list
// wholesale.
type EditInput struct {
	Description   *string
	Value         *core.Money
	Date          *core.Date
	DueDate       *core.Date
	Category      *core.Category
	PaymentState  *core.PaymentState
	PaymentMethod *string
	Notes         *string
	Attachments   []core.Attachment
}

// ListInput narrows and pages an expense listing.
type ListInput struct {
	VentureID     string
	PaymentStates []core.PaymentState
	Category      core.Category
	Search        string
	Page          int
	Limit         int
}

// ListResult is one listing page plus the total match count.
type ListResult struct {
	Items []core.Expense
	Total int64
}

func (m *LifecycleManager) Create(ctx context.Context, actor auth.Identity, in CreateInput) (MutationResult, error) {
	now := m.now()
	e := core.Expense{
		ID:            uuid.NewString(),
		VentureID:     in.VentureID,
		Description:   in.Description,
		Value:         in.Value,
		Date:          in.Date,
		DueDate:       in.DueDate,
		Category:      in.Category,
		PaymentState:  in.PaymentState,
		ApprovalState: core.ApprovalPending,
		PaymentMethod: in.PaymentMethod,
		Notes:         in.Notes,
		Attachments:   in.Attachments,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Validate(); err != nil {
		return MutationResult{}, err
	}
	if !core.CreatablePaymentState(e.PaymentState) {
		return MutationResult{}, fmt.Errorf("payment state %q: %w", e.PaymentState, core.ErrInvalidPaymentState)
	}

	if _, err := m.store.GetVenture(ctx, e.VentureID); err != nil {
		return MutationResult{}, fmt.Errorf("venture %s: %w", e.VentureID, core.ErrMissingVenture)
	}

	if err := m.store.CreateExpense(ctx, e); err != nil {
		return MutationResult{}, err
	}

	m.publishEvent(ctx, e, amqp.OperationCreate, actor.UserID, "")
	return MutationResult{Expense: e}, nil
}

func (m *LifecycleManager) Get(ctx context.Context, actor auth.Identity, id string) (core.Expense, error) {
	e, err := m.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if !auth.CanView(actor.Role, e.CreatedBy == actor.UserID) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrForbidden)
	}
	return e, nil
}

// List applies role scoping: plain users only ever see their own records.
func (m *LifecycleManager) List(ctx context.Context, actor auth.Identity, in ListInput) (ListResult, error) {
	filter := storage.ExpenseFilter{
		VentureID: in.VentureID,
		Category:  in.Category,
		Search:    in.Search,
		Page:      in.Page,
		Limit:     in.Limit,
	}
	for _, s := range in.PaymentStates {
		switch s {
		case core.PaymentPaid, core.PaymentPending, core.PaymentDue, core.PaymentRejected:
			filter.PaymentStates = append(filter.PaymentStates, s)
		}
	}
	if !auth.SeesAllRecords(actor.Role) {
		filter.CreatedBy = actor.UserID
	}

	items, total, err := m.store.ListExpenses(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

func (m *LifecycleManager) Edit(ctx context.Context, actor auth.Identity, id string, in EditInput) (MutationResult, error) {
	e, err := m.store.GetExpense(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	if err := m.authorizeModify(actor, e); err != nil {
		return MutationResult{}, err
	}

	applyEdit(&e, in)
	e.UpdatedAt = m.now()
	if err := e.Validate(); err != nil {
		return MutationResult{}, err
	}

	if err := m.store.UpdateExpense(ctx, e); err != nil {
		return MutationResult{}, err
	}

	warning := m.syncLedger(ctx, e, ledgerUpdate)
	m.publishEvent(ctx, e, amqp.OperationEdit, actor.UserID, warning)
	return MutationResult{Expense: e, Warning: warning}, nil
}

// Review applies the one-time approval decision. The store write is
// conditional on the approval state still being pending, so two
// concurrent reviews cannot both land.
func (m *LifecycleManager) Review(ctx context.Context, actor auth.Identity, id string, decision core.ApprovalState) (MutationResult, error) {
	if decision != core.ApprovalApproved && decision != core.ApprovalRejected {
		return MutationResult{}, fmt.Errorf("review decision %q: %w", decision, core.ErrInvalidState)
	}
	if !auth.CanReview(actor.Role) {
		return MutationResult{}, fmt.Errorf("review: %w", core.ErrForbidden)
	}

	e, err := m.store.GetExpense(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	if e.ApprovalState != core.ApprovalPending {
		return MutationResult{}, fmt.Errorf("expense %s already reviewed: %w", id, core.ErrInvalidState)
	}

	payment := e.PaymentState
	if decision == core.ApprovalApproved {
		if payment != core.PaymentPaid {
			payment = core.PaymentDue
		}
	} else {
		payment = core.PaymentRejected
	}

	now := m.now()
	if err := m.store.ReviewExpense(ctx, id, core.ApprovalPending, decision, payment, actor.UserID, now); err != nil {
		return MutationResult{}, err
	}

	e.ApprovalState = decision
	e.PaymentState = payment
	e.ReviewedBy = actor.UserID
	e.ReviewedAt = now
	e.UpdatedAt = now

	// Only an approval lands in the ledger; rejected records never
	// appear there.
	var warning string
	if decision == core.ApprovalApproved {
		warning = m.syncLedger(ctx, e, ledgerAppend)
	}
	m.publishEvent(ctx, e, amqp.OperationReview, actor.UserID, joinDetail(string(decision), warning))
	return MutationResult{Expense: e, Warning: warning}, nil
}

func (m *LifecycleManager) Delete(ctx context.Context, actor auth.Identity, id string) (string, error) {
	e, err := m.store.GetExpense(ctx, id)
	if err != nil {
		return "", err
	}
	if err := m.authorizeModify(actor, e); err != nil {
		return "", err
	}

	if err := m.store.DeleteExpense(ctx, id); err != nil {
		return "", err
	}

	warning := m.syncLedger(ctx, e, ledgerDelete)
	m.publishEvent(ctx, e, amqp.OperationDelete, actor.UserID, warning)
	return warning, nil
}

// authorizeModify distinguishes the two refusal flavors: strangers are
// forbidden outright, creators lose edit rights once the record is
// reviewed.
func (m *LifecycleManager) authorizeModify(actor auth.Identity, e core.Expense) error {
	if actor.IsAdmin() {
		return nil
	}
	if e.CreatedBy != actor.UserID {
		return fmt.Errorf("expense %s: %w", e.ID, core.ErrForbidden)
	}
	if e.ApprovalState != core.ApprovalPending {
		return fmt.Errorf("expense %s already reviewed: %w", e.ID, core.ErrInvalidState)
	}
	return nil
}

type ledgerOp int

const (
	ledgerAppend ledgerOp = iota
	ledgerUpdate
	ledgerDelete
)

func (op ledgerOp) String() string {
	switch op {
	case ledgerAppend:
		return "append"
	case ledgerUpdate:
		return "update"
	case ledgerDelete:
		return "delete"
	}
	return "unknown"
}

// syncLedger mirrors the mutation into the venture's ledger. Ventures
// without a ledger are skipped silently; any failure becomes a warning
// string with enough detail for manual reconciliation.
func (m *LifecycleManager) syncLedger(ctx context.Context, e core.Expense, op ledgerOp) string {
	if m.ledger == nil {
		return ""
	}
	venture, err := m.store.GetVenture(ctx, e.VentureID)
	if err != nil {
		slog.WarnContext(ctx, "Ledger sync skipped, venture lookup failed",
			"expense_id", e.ID, "venture_id", e.VentureID, "error", err)
		return fmt.Sprintf("ledger sync skipped: venture %s not found", e.VentureID)
	}
	if !venture.HasLedger() {
		return ""
	}

	switch op {
	case ledgerAppend:
		err = m.ledger.AppendRow(ctx, venture.LedgerID, ledger.ExpenseRow(e))
	case ledgerUpdate:
		err = m.ledger.UpdateRowByKey(ctx, venture.LedgerID, e.ID, ledger.ExpenseRow(e))
	case ledgerDelete:
		err = m.ledger.DeleteRowByKey(ctx, venture.LedgerID, e.ID)
	}
	if err == nil {
		return ""
	}

	slog.WarnContext(ctx, "Ledger sync failed",
		"expense_id", e.ID,
		"venture_id", e.VentureID,
		"ledger_id", venture.LedgerID,
		"operation", op.String(),
		"error", err)
	return fmt.Sprintf("ledger %s failed for expense %s: %v", op, e.ID, err)
}

func (m *LifecycleManager) publishEvent(ctx context.Context, e core.Expense, operation, actor, detail string) {
	if m.events == nil {
		return
	}
	msg := amqp.NewExpenseEventMessage(e.ID, e.VentureID, operation, actor, detail)
	if err := m.events.PublishExpenseEvent(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish expense event",
			"expense_id", e.ID, "operation", operation, "error", err)
	}
}

func applyEdit(e *core.Expense, in EditInput) {
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Value != nil {
		e.Value = *in.Value
	}
	if in.Date != nil {
		e.Date = *in.Date
	}
	if in.DueDate != nil {
		e.DueDate = *in.DueDate
	}
	if in.Category != nil {
		e.Category = *in.Category
	}
	if in.PaymentState != nil {
		e.PaymentState = *in.PaymentState
	}
	if in.PaymentMethod != nil {
		e.PaymentMethod = *in.PaymentMethod
	}
	if in.Notes != nil {
		e.Notes = *in.Notes
	}
	if in.Attachments != nil {
		e.Attachments = in.Attachments
	}
}

func joinDetail(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += p
	}
	return out
}
