package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cantiere/internal/auth"
	"cantiere/internal/core"
	"cantiere/internal/ledger"
)

// VentureService manages ventures and provisions their ledgers.
type VentureService struct {
	store  VentureStore
	ledger ledger.Client
	now    func() time.Time
}

func NewVentureService(store VentureStore, ledgerClient ledger.Client) *VentureService {
	return &VentureService{
		store:  store,
		ledger: ledgerClient,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// VentureResult carries the venture plus a warning when ledger
// provisioning failed. The venture is still created; it simply has no
// ledger until one is provisioned later.
type VentureResult struct {
	Venture core.Venture
	Warning string
}

func (s *VentureService) Create(ctx context.Context, actor auth.Identity, name string) (VentureResult, error) {
	if !auth.SeesAllRecords(actor.Role) {
		return VentureResult{}, fmt.Errorf("create venture: %w", core.ErrForbidden)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return VentureResult{}, core.ErrEmptyVentureName
	}

	now := s.now()
	v := core.Venture{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateVenture(ctx, v); err != nil {
		return VentureResult{}, err
	}

	warning := s.provisionLedger(ctx, &v)
	return VentureResult{Venture: v, Warning: warning}, nil
}

// ProvisionLedger creates a ledger for an existing venture that has
// none. Used by the provisioning command and retried manually after a
// create-time failure.
func (s *VentureService) ProvisionLedger(ctx context.Context, id string) (core.Venture, error) {
	v, err := s.store.GetVenture(ctx, id)
	if err != nil {
		return core.Venture{}, err
	}
	if v.HasLedger() {
		return v, fmt.Errorf("venture %s already has ledger %s: %w", id, v.LedgerID, core.ErrInvalidState)
	}
	if s.ledger == nil {
		return v, fmt.Errorf("no ledger client configured")
	}

	ledgerID, err := s.ledger.CreateLedger(ctx, v.ID, v.Name)
	if err != nil {
		return v, fmt.Errorf("create ledger for venture %s: %w", id, err)
	}
	if err := s.store.SetVentureLedger(ctx, v.ID, ledgerID); err != nil {
		return v, err
	}
	v.LedgerID = ledgerID
	return v, nil
}

func (s *VentureService) Get(ctx context.Context, id string) (core.Venture, error) {
	return s.store.GetVenture(ctx, id)
}

func (s *VentureService) List(ctx context.Context) ([]core.Venture, error) {
	return s.store.ListVentures(ctx)
}

// provisionLedger is the create-time best-effort variant: a failure
// leaves the venture without a ledger and produces a warning.
func (s *VentureService) provisionLedger(ctx context.Context, v *core.Venture) string {
	if s.ledger == nil {
		return ""
	}
	ledgerID, err := s.ledger.CreateLedger(ctx, v.ID, v.Name)
	if err != nil {
		slog.WarnContext(ctx, "Ledger provisioning failed",
			"venture_id", v.ID, "error", err)
		return fmt.Sprintf("ledger provisioning failed for venture %s: %v", v.ID, err)
	}
	if err := s.store.SetVentureLedger(ctx, v.ID, ledgerID); err != nil {
		slog.ErrorContext(ctx, "Failed to record ledger id",
			"venture_id", v.ID, "ledger_id", ledgerID, "error", err)
		return fmt.Sprintf("ledger %s created but not recorded for venture %s", ledgerID, v.ID)
	}
	v.LedgerID = ledgerID
	return ""
}
