package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cantiere/internal/core"
	"cantiere/internal/services"
)

// maxBodySize caps request bodies. Expense payloads are small; anything
// past this is abuse.
const maxBodySize = 1 << 20

// decodeJSON parses the request body into dst, rejecting unknown fields
// and trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// normalizeToken folds an enum value to the canonical lowercase form, so
// clients may send "Approved" or "approved" interchangeably.
func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type attachmentJSON struct {
	FileID string `json:"fileId"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

// uploadJSON carries inline attachment bytes. Content is base64 on the
// wire; encoding/json handles the conversion.
type uploadJSON struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Content  []byte `json:"content"`
}

type createExpenseRequest struct {
	VentureID     string           `json:"ventureId"`
	Description   string           `json:"description"`
	Value         string           `json:"value"`
	Date          string           `json:"date"`
	DueDate       string           `json:"dueDate"`
	Category      string           `json:"category"`
	PaymentState  string           `json:"paymentState"`
	PaymentMethod string           `json:"paymentMethod"`
	Notes         string           `json:"notes"`
	Attachments   []attachmentJSON `json:"attachments"`
	Upload        *uploadJSON      `json:"upload"`
}

func (req createExpenseRequest) toInput() (services.CreateInput, error) {
	cents, err := core.ParseDecimalToCents(req.Value)
	if err != nil {
		return services.CreateInput{}, fmt.Errorf("value %q: %w", req.Value, err)
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return services.CreateInput{}, fmt.Errorf("date %q: %w", req.Date, err)
	}
	due, err := core.ParseDate(req.DueDate)
	if err != nil {
		return services.CreateInput{}, fmt.Errorf("due date %q: %w", req.DueDate, core.ErrInvalidDueDate)
	}
	return services.CreateInput{
		VentureID:     req.VentureID,
		Description:   req.Description,
		Value:         core.Money{Cents: cents},
		Date:          date,
		DueDate:       due,
		Category:      core.Category(normalizeToken(req.Category)),
		PaymentState:  core.PaymentState(normalizeToken(req.PaymentState)),
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Attachments:   attachmentsFromJSON(req.Attachments),
	}, nil
}

// editExpenseRequest is a partial update. Absent fields stay untouched;
// a present attachments list replaces the stored one wholesale.
type editExpenseRequest struct {
	Description   *string          `json:"description"`
	Value         *string          `json:"value"`
	Date          *string          `json:"date"`
	DueDate       *string          `json:"dueDate"`
	Category      *string          `json:"category"`
	PaymentState  *string          `json:"paymentState"`
	PaymentMethod *string          `json:"paymentMethod"`
	Notes         *string          `json:"notes"`
	Attachments   []attachmentJSON `json:"attachments"`
	Upload        *uploadJSON      `json:"upload"`
}

func (req editExpenseRequest) toInput() (services.EditInput, error) {
	var in services.EditInput
	in.Description = req.Description
	in.PaymentMethod = req.PaymentMethod
	in.Notes = req.Notes
	if req.Value != nil {
		cents, err := core.ParseDecimalToCents(*req.Value)
		if err != nil {
			return services.EditInput{}, fmt.Errorf("value %q: %w", *req.Value, err)
		}
		in.Value = &core.Money{Cents: cents}
	}
	if req.Date != nil {
		d, err := core.ParseDate(*req.Date)
		if err != nil {
			return services.EditInput{}, fmt.Errorf("date %q: %w", *req.Date, err)
		}
		in.Date = &d
	}
	if req.DueDate != nil {
		d, err := core.ParseDate(*req.DueDate)
		if err != nil {
			return services.EditInput{}, fmt.Errorf("due date %q: %w", *req.DueDate, core.ErrInvalidDueDate)
		}
		in.DueDate = &d
	}
	if req.Category != nil {
		c := core.Category(normalizeToken(*req.Category))
		in.Category = &c
	}
	if req.PaymentState != nil {
		s := core.PaymentState(normalizeToken(*req.PaymentState))
		in.PaymentState = &s
	}
	if req.Attachments != nil {
		in.Attachments = attachmentsFromJSON(req.Attachments)
	}
	return in, nil
}

type reviewRequest struct {
	ApprovalState string `json:"approvalState"`
}

func (req reviewRequest) decision() core.ApprovalState {
	return core.ApprovalState(normalizeToken(req.ApprovalState))
}

type createVentureRequest struct {
	Name string `json:"name"`
}

// parseListQuery reads the filter parameters of GET /expenses. Repeated
// status parameters accumulate.
func parseListQuery(r *http.Request) services.ListInput {
	q := r.URL.Query()
	in := services.ListInput{
		VentureID: q.Get("ventureId"),
		Category:  core.Category(normalizeToken(q.Get("category"))),
		Search:    q.Get("search"),
	}
	for _, s := range q["status"] {
		in.PaymentStates = append(in.PaymentStates, core.PaymentState(normalizeToken(s)))
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		in.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		in.Limit = limit
	}
	return in
}

type expenseJSON struct {
	ID            string           `json:"id"`
	VentureID     string           `json:"ventureId"`
	Description   string           `json:"description"`
	Value         string           `json:"value"`
	Date          string           `json:"date"`
	DueDate       string           `json:"dueDate"`
	Category      string           `json:"category"`
	PaymentState  string           `json:"paymentState"`
	ApprovalState string           `json:"approvalState"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Attachments   []attachmentJSON `json:"attachments,omitempty"`
	CreatedBy     string           `json:"createdBy"`
	ReviewedBy    string           `json:"reviewedBy,omitempty"`
	ReviewedAt    string           `json:"reviewedAt,omitempty"`
	CreatedAt     string           `json:"createdAt"`
	UpdatedAt     string           `json:"updatedAt"`
}

func expenseToJSON(e core.Expense) expenseJSON {
	out := expenseJSON{
		ID:            e.ID,
		VentureID:     e.VentureID,
		Description:   e.Description,
		Value:         e.Value.String(),
		Date:          e.Date.String(),
		DueDate:       e.DueDate.String(),
		Category:      string(e.Category),
		PaymentState:  string(e.PaymentState),
		ApprovalState: string(e.ApprovalState),
		PaymentMethod: e.PaymentMethod,
		Notes:         e.Notes,
		CreatedBy:     e.CreatedBy,
		ReviewedBy:    e.ReviewedBy,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     e.UpdatedAt.Format(time.RFC3339),
	}
	if !e.ReviewedAt.IsZero() {
		out.ReviewedAt = e.ReviewedAt.Format(time.RFC3339)
	}
	for _, a := range e.Attachments {
		out.Attachments = append(out.Attachments, attachmentJSON{FileID: a.FileID, Name: a.Name, URL: a.URL})
	}
	return out
}

func attachmentsFromJSON(in []attachmentJSON) []core.Attachment {
	if in == nil {
		return nil
	}
	out := make([]core.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, core.Attachment{FileID: a.FileID, Name: a.Name, URL: a.URL})
	}
	return out
}

type mutationResponse struct {
	Expense expenseJSON `json:"expense"`
	Warning string      `json:"warning,omitempty"`
}

type deleteResponse struct {
	Deleted bool   `json:"deleted"`
	Warning string `json:"warning,omitempty"`
}

type paginationJSON struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	HasMore bool  `json:"hasMore"`
}

type listResponse struct {
	Items      []expenseJSON  `json:"items"`
	Pagination paginationJSON `json:"pagination"`
}

type ventureJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LedgerID  string `json:"ledgerId,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func ventureToJSON(v core.Venture) ventureJSON {
	return ventureJSON{
		ID:        v.ID,
		Name:      v.Name,
		LedgerID:  v.LedgerID,
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
		UpdatedAt: v.UpdatedAt.Format(time.RFC3339),
	}
}

type ventureResponse struct {
	Venture ventureJSON `json:"venture"`
	Warning string      `json:"warning,omitempty"`
}

type periodJSON struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	Total        string `json:"total"`
	TotalCount   int64  `json:"totalCount"`
	Pending      string `json:"pending"`
	PendingCount int64  `json:"pendingCount"`
	Paid         string `json:"paid"`
	PaidCount    int64  `json:"paidCount"`
}

type changesJSON struct {
	Total   float64 `json:"total"`
	Pending float64 `json:"pending"`
	Paid    float64 `json:"paid"`
}

type upcomingDueJSON struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int64  `json:"count"`
	Total string `json:"total"`
}

type dashboardJSON struct {
	Current      periodJSON      `json:"current"`
	Previous     periodJSON      `json:"previous"`
	Changes      changesJSON     `json:"changes"`
	UpcomingDue  upcomingDueJSON `json:"upcomingDue"`
	VentureCount int64           `json:"ventureCount"`
}

func dashboardToJSON(d services.Dashboard) dashboardJSON {
	return dashboardJSON{
		Current:      periodToJSON(d.Current),
		Previous:     periodToJSON(d.Previous),
		Changes:      changesJSON{Total: d.Changes.Total, Pending: d.Changes.Pending, Paid: d.Changes.Paid},
		UpcomingDue: upcomingDueJSON{
			From:  d.UpcomingDue.From.String(),
			To:    d.UpcomingDue.To.String(),
			Count: d.UpcomingDue.Count,
			Total: core.Money{Cents: d.UpcomingDue.TotalCents}.String(),
		},
		VentureCount: d.VentureCount,
	}
}

func periodToJSON(p services.PeriodSummary) periodJSON {
	return periodJSON{
		Start:        p.Start.String(),
		End:          p.End.String(),
		Total:        core.Money{Cents: p.TotalCents}.String(),
		TotalCount:   p.TotalCount,
		Pending:      core.Money{Cents: p.PendingCents}.String(),
		PendingCount: p.PendingCount,
		Paid:         core.Money{Cents: p.PaidCents}.String(),
		PaidCount:    p.PaidCount,
	}
}
