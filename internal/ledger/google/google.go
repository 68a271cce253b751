// Package google implements the ledger port on Google Sheets, with Drive
// used for sharing and filing the created spreadsheets.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"cantiere/internal/ledger"
)

const defaultTab = "Expenses"

type Client struct {
	sheets       *gsheet.Service
	drive        *gdrive.Service
	tab          string
	shareEmail   string
	rootFolderID string
}

// Ensure interface conformance
var _ ledger.Client = (*Client)(nil)

// NewFromEnv creates a ledger client using environment variables.
// Required: LEDGER_SHARE_EMAIL (identity granted on every new ledger),
// LEDGER_ROOT_FOLDER_ID (Drive folder the ledgers are filed under).
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
// Optional: LEDGER_SHEET_TAB (default "Expenses").
func NewFromEnv(ctx context.Context) (*Client, error) {
	shareEmail := strings.TrimSpace(os.Getenv("LEDGER_SHARE_EMAIL"))
	if shareEmail == "" {
		return nil, errors.New("missing LEDGER_SHARE_EMAIL")
	}
	rootFolderID := strings.TrimSpace(os.Getenv("LEDGER_ROOT_FOLDER_ID"))
	if rootFolderID == "" {
		return nil, errors.New("missing LEDGER_ROOT_FOLDER_ID")
	}
	tab := strings.TrimSpace(os.Getenv("LEDGER_SHEET_TAB"))
	if tab == "" {
		tab = defaultTab
	}

	credentialsJSON, err := loadCredentials(ctx)
	if err != nil {
		return nil, err
	}

	sheetsSvc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	driveSvc, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gdrive.DriveScope))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Client{
		sheets:       sheetsSvc,
		drive:        driveSvc,
		tab:          tab,
		shareEmail:   shareEmail,
		rootFolderID: rootFolderID,
	}, nil
}

// loadCredentials reads service account credentials from the environment.
func loadCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Loaded service account credentials", "path", serviceAccountFile, "size", len(b))
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// CreateLedger provisions a new spreadsheet for the venture: one tab,
// a header row, write access for the configured identity, filed under
// the configured root folder.
func (c *Client) CreateLedger(ctx context.Context, ventureID, ventureName string) (string, error) {
	if c.sheets == nil || c.drive == nil {
		return "", errors.New("ledger client not initialized")
	}
	if strings.TrimSpace(ventureID) == "" || strings.TrimSpace(ventureName) == "" {
		return "", errors.New("venture id and name required")
	}

	spreadsheet := &gsheet.Spreadsheet{
		Properties: &gsheet.SpreadsheetProperties{
			Title: fmt.Sprintf("%s - Expense Ledger", ventureName),
		},
		Sheets: []*gsheet.Sheet{
			{Properties: &gsheet.SheetProperties{Title: c.tab}},
		},
	}
	created, err := c.sheets.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create spreadsheet for venture %s: %w", ventureID, err)
	}
	ledgerID := created.SpreadsheetId

	header := make([]any, 0, ledger.Columns)
	for _, h := range ledger.Header() {
		header = append(header, h)
	}
	headerRange := fmt.Sprintf("%s!A1:%s1", c.tab, lastColumn())
	vr := &gsheet.ValueRange{Values: [][]any{header}}
	if _, err := c.sheets.Spreadsheets.Values.Update(ledgerID, headerRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("write header row in %s: %w", ledgerID, err)
	}

	perm := &gdrive.Permission{Type: "user", Role: "writer", EmailAddress: c.shareEmail}
	if _, err := c.drive.Permissions.Create(ledgerID, perm).
		SendNotificationEmail(false).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("grant access on %s to %s: %w", ledgerID, c.shareEmail, err)
	}

	if _, err := c.drive.Files.Update(ledgerID, nil).
		AddParents(c.rootFolderID).RemoveParents("root").
		Fields("id, parents").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("move %s into folder %s: %w", ledgerID, c.rootFolderID, err)
	}

	slog.InfoContext(ctx, "Created venture ledger",
		"venture_id", ventureID,
		"ledger_id", ledgerID,
		"folder", c.rootFolderID)

	return ledgerID, nil
}

// AppendRow appends a formatted expense row to the ledger tab.
func (c *Client) AppendRow(ctx context.Context, ledgerID string, row []string) error {
	if c.sheets == nil {
		return errors.New("ledger client not initialized")
	}
	if len(row) != ledger.Columns {
		return fmt.Errorf("expected %d columns, got %d", ledger.Columns, len(row))
	}
	rng := fmt.Sprintf("%s!A:%s", c.tab, lastColumn())
	vr := &gsheet.ValueRange{Values: [][]any{toAnyRow(row)}}
	_, err := c.sheets.Spreadsheets.Values.Append(ledgerID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", ledgerID, err)
	}
	return nil
}

// UpdateRowByKey scans the key column for the first exact match and
// overwrites that row's full column range.
func (c *Client) UpdateRowByKey(ctx context.Context, ledgerID, key string, row []string) error {
	if c.sheets == nil {
		return errors.New("ledger client not initialized")
	}
	if len(row) != ledger.Columns {
		return fmt.Errorf("expected %d columns, got %d", ledger.Columns, len(row))
	}
	rowIndex, err := c.findRowByKey(ctx, ledgerID, key)
	if err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", c.tab, rowIndex, lastColumn(), rowIndex)
	vr := &gsheet.ValueRange{Values: [][]any{toAnyRow(row)}}
	if _, err := c.sheets.Spreadsheets.Values.Update(ledgerID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update row %d in %s: %w", rowIndex, ledgerID, err)
	}
	return nil
}

// DeleteRowByKey scans the key column, resolves the numeric tab id, and
// removes the matched row with a dimension delete.
func (c *Client) DeleteRowByKey(ctx context.Context, ledgerID, key string) error {
	if c.sheets == nil {
		return errors.New("ledger client not initialized")
	}
	rowIndex, err := c.findRowByKey(ctx, ledgerID, key)
	if err != nil {
		return err
	}
	sheetID, err := c.tabID(ctx, ledgerID)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowIndex - 1),
					EndIndex:   int64(rowIndex),
				},
			},
		}},
	}
	if _, err := c.sheets.Spreadsheets.BatchUpdate(ledgerID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", rowIndex, ledgerID, err)
	}
	return nil
}

// findRowByKey scans column A top to bottom for the first exact match and
// returns its 1-based row index.
func (c *Client) findRowByKey(ctx context.Context, ledgerID, key string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.tab)
	resp, err := c.sheets.Spreadsheets.Values.Get(ledgerID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read key column of %s: %w", ledgerID, err)
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == key {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("key %s in %s: %w", key, ledgerID, ledger.ErrRowNotFound)
}

// tabID resolves the numeric sheet id of the ledger tab.
func (c *Client) tabID(ctx context.Context, ledgerID string) (int64, error) {
	meta, err := c.sheets.Spreadsheets.Get(ledgerID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet metadata of %s: %w", ledgerID, err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.tab {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("tab %q missing in %s", c.tab, ledgerID)
}

func toAnyRow(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// lastColumn returns the letter of the ledger's last column.
func lastColumn() string {
	return string(rune('A' + ledger.Columns - 1))
}
