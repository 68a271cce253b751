package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cantiere/internal/amqp"
	"cantiere/internal/auth"
	"cantiere/internal/core"
	"cantiere/internal/ledger"
	ledgermem "cantiere/internal/ledger/memory"
	"cantiere/internal/storage"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*amqp.ExpenseEventMessage
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, msg *amqp.ExpenseEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) operations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ops []string
	for _, m := range p.messages {
		ops = append(ops, m.Operation)
	}
	return ops
}

type fixture struct {
	repo    *storage.Repository
	ledger  *ledgermem.Store
	events  *recordingPublisher
	manager *LifecycleManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "cantiere.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	mem := ledgermem.New()
	events := &recordingPublisher{}
	manager := NewLifecycleManager(repo, ledger.WithRetry(mem, ledger.ZeroDelayPolicies()), events)
	return &fixture{repo: repo, ledger: mem, events: events, manager: manager}
}

func (f *fixture) addVenture(t *testing.T, id string, withLedger bool) core.Venture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	v := core.Venture{ID: id, Name: "Harbor Tower", CreatedAt: now, UpdatedAt: now}
	if err := f.repo.CreateVenture(ctx, v); err != nil {
		t.Fatalf("CreateVenture() error = %v", err)
	}
	if withLedger {
		ledgerID, err := f.ledger.CreateLedger(ctx, v.ID, v.Name)
		if err != nil {
			t.Fatalf("CreateLedger() error = %v", err)
		}
		if err := f.repo.SetVentureLedger(ctx, v.ID, ledgerID); err != nil {
			t.Fatalf("SetVentureLedger() error = %v", err)
		}
		v.LedgerID = ledgerID
	}
	return v
}

var (
	adminActor   = auth.Identity{UserID: "admin-1", Role: core.RoleAdmin}
	managerActor = auth.Identity{UserID: "manager-1", Role: core.RoleManager}
	userActor    = auth.Identity{UserID: "user-1", Role: core.RoleUser}
	otherActor   = auth.Identity{UserID: "user-2", Role: core.RoleUser}
)

func createInput(ventureID string) CreateInput {
	return CreateInput{
		VentureID:    ventureID,
		Description:  "Rebar delivery",
		Value:        core.Money{Cents: 100000},
		Date:         core.NewDate(2026, 8, 1),
		DueDate:      core.NewDate(2026, 8, 6),
		Category:     core.CategoryMaterial,
		PaymentState: core.PaymentPending,
	}
}

func TestCreateExpense(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	res, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.Expense.ID == "" {
		t.Error("expense id should be assigned")
	}
	if res.Expense.ApprovalState != core.ApprovalPending {
		t.Errorf("approval state = %s, want pending", res.Expense.ApprovalState)
	}
	if res.Expense.CreatedBy != "user-1" {
		t.Errorf("created by = %q, want user-1", res.Expense.CreatedBy)
	}
	if res.Warning != "" {
		t.Errorf("warning = %q, want empty", res.Warning)
	}
	if ops := f.events.operations(); len(ops) != 1 || ops[0] != amqp.OperationCreate {
		t.Errorf("events = %v, want [create]", ops)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*CreateInput)
		wantErr error
	}{
		{"zero value", func(in *CreateInput) { in.Value = core.Money{} }, core.ErrInvalidAmount},
		{"empty description", func(in *CreateInput) { in.Description = " " }, core.ErrEmptyDescription},
		{"bad category", func(in *CreateInput) { in.Category = "gold" }, core.ErrInvalidCategory},
		{"rejected at creation", func(in *CreateInput) { in.PaymentState = core.PaymentRejected }, core.ErrInvalidPaymentState},
		{"missing venture", func(in *CreateInput) { in.VentureID = "ghost" }, core.ErrMissingVenture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := createInput("v-1")
			tt.mutate(&in)
			_, err := f.manager.Create(ctx, userActor, in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApproveSetsPaymentDue(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if res.Expense.ApprovalState != core.ApprovalApproved {
		t.Errorf("approval state = %s, want approved", res.Expense.ApprovalState)
	}
	if res.Expense.PaymentState != core.PaymentDue {
		t.Errorf("payment state = %s, want due", res.Expense.PaymentState)
	}
	if res.Expense.ReviewedBy != "admin-1" || res.Expense.ReviewedAt.IsZero() {
		t.Errorf("review fields = %q/%v", res.Expense.ReviewedBy, res.Expense.ReviewedAt)
	}
	if res.Warning != "" {
		t.Errorf("warning = %q, want empty", res.Warning)
	}
	// Venture has no ledger; no ledger call should have happened.
	if n := f.ledger.Calls("append"); n != 0 {
		t.Errorf("append calls = %d, want 0", n)
	}
}

func TestApprovePaidStaysPaid(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	in := createInput("v-1")
	in.PaymentState = core.PaymentPaid
	created, err := f.manager.Create(ctx, userActor, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if res.Expense.PaymentState != core.PaymentPaid {
		t.Errorf("payment state = %s, want paid", res.Expense.PaymentState)
	}
}

func TestRejectSetsPaymentRejected(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", true)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalRejected)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if res.Expense.ApprovalState != core.ApprovalRejected {
		t.Errorf("approval state = %s, want rejected", res.Expense.ApprovalState)
	}
	if res.Expense.PaymentState != core.PaymentRejected {
		t.Errorf("payment state = %s, want rejected", res.Expense.PaymentState)
	}
	// Rejected records are never mirrored.
	if n := f.ledger.Calls("append"); n != 0 {
		t.Errorf("append calls = %d, want 0", n)
	}
}

func TestReviewIsOneShot(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved); err != nil {
		t.Fatalf("first Review() error = %v", err)
	}

	_, err = f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalRejected)
	if !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("second review error = %v, want ErrInvalidState", err)
	}

	// State must be unchanged by the failed second review.
	e, err := f.manager.Get(ctx, adminActor, created.Expense.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.ApprovalState != core.ApprovalApproved {
		t.Errorf("approval state = %s, want approved", e.ApprovalState)
	}
}

func TestReviewRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, actor := range []auth.Identity{managerActor, userActor} {
		if _, err := f.manager.Review(ctx, actor, created.Expense.ID, core.ApprovalApproved); !errors.Is(err, core.ErrForbidden) {
			t.Errorf("%s review error = %v, want ErrForbidden", actor.Role, err)
		}
	}
}

func TestReviewRejectsBadDecision(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Review(context.Background(), adminActor, "e-1", core.ApprovalPending)
	if !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

func TestApproveAppendsLedgerRow(t *testing.T) {
	f := newFixture(t)
	v := f.addVenture(t, "v-1", true)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	res, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if res.Warning != "" {
		t.Errorf("warning = %q, want empty", res.Warning)
	}

	rows := f.ledger.Rows(v.LedgerID)
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0][0] != created.Expense.ID {
		t.Errorf("join key = %q, want %q", rows[0][0], created.Expense.ID)
	}
}

func TestApproveWithFailingLedgerWarnsButSucceeds(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", true)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Exhaust the append policy: first try plus two retries.
	f.ledger.FailNext("append", 3)

	res, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if res.Expense.ApprovalState != core.ApprovalApproved || res.Expense.PaymentState != core.PaymentDue {
		t.Errorf("state = %s/%s, want approved/due", res.Expense.ApprovalState, res.Expense.PaymentState)
	}
	if res.Warning == "" {
		t.Error("warning should be set when ledger sync fails")
	}
	if n := f.ledger.Calls("append"); n != 3 {
		t.Errorf("append calls = %d, want 3", n)
	}
}

func TestApproveRecoversAfterTransientLedgerFailure(t *testing.T) {
	f := newFixture(t)
	v := f.addVenture(t, "v-1", true)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	f.ledger.FailNext("append", 2)

	res, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if res.Warning != "" {
		t.Errorf("warning = %q, want empty after recovery", res.Warning)
	}
	if len(f.ledger.Rows(v.LedgerID)) != 1 {
		t.Error("row should land after retries")
	}
}

func TestEditByCreatorWhilePending(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	desc := "Rebar delivery, revised"
	value := core.Money{Cents: 88000}
	res, err := f.manager.Edit(ctx, userActor, created.Expense.ID, EditInput{Description: &desc, Value: &value})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if res.Expense.Description != desc || res.Expense.Value.Cents != 88000 {
		t.Errorf("edited = %q/%d", res.Expense.Description, res.Expense.Value.Cents)
	}
	// Untouched fields stay put.
	if res.Expense.Category != core.CategoryMaterial {
		t.Errorf("category = %s, want material", res.Expense.Category)
	}
}

func TestEditAuthorization(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	id := created.Expense.ID
	desc := "changed"

	// A stranger is forbidden outright; managers hold no edit rights.
	for _, actor := range []auth.Identity{otherActor, managerActor} {
		if _, err := f.manager.Edit(ctx, actor, id, EditInput{Description: &desc}); !errors.Is(err, core.ErrForbidden) {
			t.Errorf("%s edit error = %v, want ErrForbidden", actor.Role, err)
		}
	}

	if _, err := f.manager.Review(ctx, adminActor, id, core.ApprovalApproved); err != nil {
		t.Fatalf("Review() error = %v", err)
	}

	// The creator loses edit rights once reviewed.
	if _, err := f.manager.Edit(ctx, userActor, id, EditInput{Description: &desc}); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("creator edit after review error = %v, want ErrInvalidState", err)
	}

	// The admin keeps them.
	if _, err := f.manager.Edit(ctx, adminActor, id, EditInput{Description: &desc}); err != nil {
		t.Errorf("admin edit after review error = %v", err)
	}
}

func TestEditReplacesAttachmentsWholesale(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	in := createInput("v-1")
	in.Attachments = []core.Attachment{
		{FileID: "f-1", Name: "quote.pdf", URL: "https://files/f-1"},
		{FileID: "f-2", Name: "photo.jpg", URL: "https://files/f-2"},
	}
	created, err := f.manager.Create(ctx, userActor, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	replacement := []core.Attachment{{FileID: "f-3", Name: "invoice.pdf", URL: "https://files/f-3"}}
	res, err := f.manager.Edit(ctx, userActor, created.Expense.ID, EditInput{Attachments: replacement})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(res.Expense.Attachments) != 1 || res.Expense.Attachments[0].FileID != "f-3" {
		t.Errorf("attachments = %+v, want the replacement list only", res.Expense.Attachments)
	}
}

func TestEditSyncsLedgerRow(t *testing.T) {
	f := newFixture(t)
	v := f.addVenture(t, "v-1", true)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved); err != nil {
		t.Fatalf("Review() error = %v", err)
	}

	desc := "Rebar delivery, revised"
	res, err := f.manager.Edit(ctx, adminActor, created.Expense.ID, EditInput{Description: &desc})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if res.Warning != "" {
		t.Errorf("warning = %q, want empty", res.Warning)
	}

	rows := f.ledger.Rows(v.LedgerID)
	if len(rows) != 1 || rows[0][1] != desc {
		t.Errorf("ledger rows = %v", rows)
	}
}

func TestEditUnappendedRowWarnsNotFound(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", true)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Never approved, so no ledger row exists; the update must surface
	// an explicit warning rather than silently succeed.
	desc := "changed"
	res, err := f.manager.Edit(ctx, userActor, created.Expense.ID, EditInput{Description: &desc})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if res.Warning == "" {
		t.Error("warning should be set for a missing ledger row")
	}
	// A missing row is permanent; it must not be retried.
	if n := f.ledger.Calls("update"); n != 1 {
		t.Errorf("update calls = %d, want 1", n)
	}
}

func TestDeleteExpense(t *testing.T) {
	f := newFixture(t)
	v := f.addVenture(t, "v-1", true)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved); err != nil {
		t.Fatalf("Review() error = %v", err)
	}

	warning, err := f.manager.Delete(ctx, adminActor, created.Expense.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if warning != "" {
		t.Errorf("warning = %q, want empty", warning)
	}
	if len(f.ledger.Rows(v.LedgerID)) != 0 {
		t.Error("ledger row should be removed")
	}
	if _, err := f.manager.Get(ctx, adminActor, created.Expense.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("after delete error = %v, want ErrNotFound", err)
	}
}

func TestGetRBAC(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	id := created.Expense.ID

	for _, actor := range []auth.Identity{adminActor, managerActor, userActor} {
		if _, err := f.manager.Get(ctx, actor, id); err != nil {
			t.Errorf("%s get error = %v", actor.Role, err)
		}
	}
	if _, err := f.manager.Get(ctx, otherActor, id); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("stranger get error = %v, want ErrForbidden", err)
	}
}

func TestListScopesAndFilters(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	if _, err := f.manager.Create(ctx, userActor, createInput("v-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	other := createInput("v-1")
	other.Description = "Crane rental"
	if _, err := f.manager.Create(ctx, otherActor, other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// A plain user only sees their own records.
	res, err := f.manager.List(ctx, userActor, ListInput{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Items) != 1 || res.Items[0].CreatedBy != "user-1" {
		t.Errorf("user listing = %d items, total %d", len(res.Items), res.Total)
	}

	// Managers and admins see everything.
	res, err = f.manager.List(ctx, managerActor, ListInput{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("manager total = %d, want 2", res.Total)
	}

	// Status filter with an invalid value drops it rather than failing.
	res, err = f.manager.List(ctx, adminActor, ListInput{
		PaymentStates: []core.PaymentState{core.PaymentPending, "bogus"},
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("filtered total = %d, want 2", res.Total)
	}

	// An unknown venture id yields an empty list, not an error.
	res, err = f.manager.List(ctx, adminActor, ListInput{VentureID: "ghost"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 0 || len(res.Items) != 0 {
		t.Errorf("ghost venture listing = %d items, total %d", len(res.Items), res.Total)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	f := newFixture(t)
	f.addVenture(t, "v-1", false)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, userActor, createInput("v-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.manager.Review(ctx, adminActor, created.Expense.ID, core.ApprovalApproved); err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if _, err := f.manager.Delete(ctx, adminActor, created.Expense.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	want := []string{amqp.OperationCreate, amqp.OperationReview, amqp.OperationDelete}
	got := f.events.operations()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}
