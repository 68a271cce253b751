package core

import (
	"errors"
	"strings"
	"time"
)

const (
	CategoryMaterial  Category = "material"
	CategoryService   Category = "service"
	CategoryEquipment Category = "equipment"
	CategoryFees      Category = "fees"
	CategoryOther     Category = "other"
)

const (
	PaymentPaid     PaymentState = "paid"
	PaymentPending  PaymentState = "pending"
	PaymentDue      PaymentState = "due"
	PaymentRejected PaymentState = "rejected"
)

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

type (
	Category      string
	PaymentState  string
	ApprovalState string
	Role          string

	Date struct {
		time.Time
	}

	// Attachment is an externally stored file descriptor. The document
	// store owns the file; this core only keeps the reference.
	Attachment struct {
		FileID string
		Name   string
		URL    string
	}

	// Expense is a single venture expense moving through the
	// payment/approval lifecycle.
	Expense struct {
		ID            string
		VentureID     string
		Description   string
		Value         Money
		Date          Date
		DueDate       Date
		Category      Category
		PaymentState  PaymentState
		ApprovalState ApprovalState
		PaymentMethod string
		Notes         string
		Attachments   []Attachment
		CreatedBy     string
		ReviewedBy    string
		ReviewedAt    time.Time
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// Venture is a construction project owning expenses. LedgerID refers
	// to the external spreadsheet mirror; empty means no ledger configured.
	Venture struct {
		ID        string
		Name      string
		LedgerID  string
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidDueDate      = errors.New("invalid due date")
	ErrInvalidCategory     = errors.New("invalid category")
	ErrInvalidPaymentState = errors.New("invalid payment state")
	ErrMissingVenture      = errors.New("missing venture reference")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
	ErrEmptyVentureName    = errors.New("empty venture name")
	ErrVentureNameTooLong  = errors.New("venture name too long (max 120 characters)")

	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("operation not allowed")
	ErrInvalidState = errors.New("invalid state transition")
)

// ValidCategory reports whether c is one of the known expense categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryMaterial, CategoryService, CategoryEquipment, CategoryFees, CategoryOther:
		return true
	}
	return false
}

// ValidRole reports whether r is a known role claim.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// CreatablePaymentState reports whether s may be set on a new expense.
// Rejected is reserved for the reject transition.
func CreatablePaymentState(s PaymentState) bool {
	switch s {
	case PaymentPaid, PaymentPending, PaymentDue:
		return true
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// NewDate creates a calendar date (UTC midnight).
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a yyyy-mm-dd calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time) / (24 * time.Hour))
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.VentureID) == "" {
		return ErrMissingVenture
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if err := e.Value.Validate(); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.DueDate.IsZero() {
		return ErrInvalidDueDate
	}
	if !ValidCategory(e.Category) {
		return ErrInvalidCategory
	}
	if !CreatablePaymentState(e.PaymentState) && e.PaymentState != PaymentRejected {
		return ErrInvalidPaymentState
	}
	return nil
}

func (v Venture) Validate() error {
	if len(strings.TrimSpace(v.Name)) == 0 {
		return ErrEmptyVentureName
	}
	if len(v.Name) > 120 {
		return ErrVentureNameTooLong
	}
	return nil
}

// HasLedger reports whether the venture has an external ledger configured.
func (v Venture) HasLedger() bool {
	return strings.TrimSpace(v.LedgerID) != ""
}
