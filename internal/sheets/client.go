package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/avandelay/sheetspend/internal/expense"
	"github.com/avandelay/sheetspend/internal/instrumentation"
)

// expenseHeader is the first row of every ledger spreadsheet the client
// creates. Column order matches rowValues and parseRow.
var expenseHeader = []interface{}{
	"Date", "Receipt ID", "Category", "Note", "Amount", "Currency", "Amount (home)",
}

// conversionRateRange holds the exchange rate from the record currency to
// the home currency, maintained by the spreadsheet owner.
const conversionRateRange = "conversion!B2"

// TokenInvalidator drops a cached access token the remote side rejected,
// so the next request through the token source picks up a fresh one.
type TokenInvalidator interface {
	Invalidate()
}

// Client wraps the Google Sheets API service for the expense ledger.
type Client struct {
	service        *gsheets.Service
	maxRetries     int
	initialBackoff time.Duration
	invalidator    TokenInvalidator
	metrics        *instrumentation.Metrics
	logger         *slog.Logger
}

// Options configures a Client. Exactly one of TokenSource or HTTPClient
// must be set; HTTPClient and Endpoint exist for tests against a fake API.
type Options struct {
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	Endpoint    string

	// Invalidator, when set, lets the client re-acquire a token and retry
	// a single call once after the remote side rejects the token
	// mid-flight. Without it a rejection surfaces as ErrTokenExpired.
	Invalidator TokenInvalidator

	// MaxRetries defaults to DefaultMaxRetries.
	MaxRetries int
	// InitialBackoff defaults to DefaultInitialBackoff.
	InitialBackoff time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// NewClient creates a Sheets API client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	var clientOpts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	case opts.TokenSource != nil:
		clientOpts = append(clientOpts, option.WithTokenSource(opts.TokenSource))
	default:
		return nil, fmt.Errorf("either TokenSource or HTTPClient is required")
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := gsheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		service:        service,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		invalidator:    opts.Invalidator,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}, nil
}

// CreateSpreadsheet creates a new spreadsheet with the given title and
// writes the ledger header row.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (*SpreadsheetRef, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	var created *gsheets.Spreadsheet
	err := c.withRetry(ctx, "spreadsheets.create", func() error {
		var err error
		created, err = c.service.Spreadsheets.Create(&gsheets.Spreadsheet{
			Properties: &gsheets.SpreadsheetProperties{Title: title},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create spreadsheet: %w", err)
	}

	header := &gsheets.ValueRange{Values: [][]interface{}{expenseHeader}}
	err = c.withRetry(ctx, "values.update", func() error {
		_, err := c.service.Spreadsheets.Values.Update(created.SpreadsheetId, "A1:G1", header).
			ValueInputOption("RAW").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("spreadsheet %s created but header row write failed: %w", created.SpreadsheetId, err)
	}

	return &SpreadsheetRef{
		ID:    created.SpreadsheetId,
		Title: title,
		URL:   created.SpreadsheetUrl,
	}, nil
}

// AppendRow appends one expense record to the first sheet of the
// spreadsheet and returns where it landed.
func (c *Client) AppendRow(ctx context.Context, spreadsheetID string, rec expense.Record) (*RowLocation, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheetID is required")
	}

	sheetTitle, err := c.FirstSheetTitle(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}

	body := &gsheets.ValueRange{Values: [][]interface{}{rowValues(rec)}}
	var resp *gsheets.AppendValuesResponse
	err = c.withRetry(ctx, "values.append", func() error {
		var err error
		resp, err = c.service.Spreadsheets.Values.Append(spreadsheetID, appendRange(sheetTitle), body).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append expense row: %w", err)
	}

	loc := &RowLocation{SpreadsheetID: spreadsheetID}
	if resp.Updates != nil {
		loc.Range = resp.Updates.UpdatedRange
	}
	return loc, nil
}

// ReadRecent returns up to limit expense rows from the spreadsheet, in
// sheet order with the most recent entry last.
func (c *Client) ReadRecent(ctx context.Context, spreadsheetID string, limit int) ([]expense.Record, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheetID is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	var resp *gsheets.ValueRange
	err := c.withRetry(ctx, "values.get", func() error {
		var err error
		resp, err = c.service.Spreadsheets.Values.Get(spreadsheetID, "A2:G").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read expense rows: %w", err)
	}

	// Parse before trimming so hand-edited junk rows inside the window do
	// not shrink the result below limit while older valid rows exist.
	records := make([]expense.Record, 0, len(resp.Values))
	for _, row := range resp.Values {
		rec, ok := parseRow(row)
		if !ok {
			c.logger.Debug("skipping unparseable ledger row", "row", fmt.Sprint(row))
			continue
		}
		records = append(records, rec)
	}
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// ConversionRate reads the home-currency exchange rate from the
// spreadsheet's conversion sheet. Returns ErrNoConversionRate when the
// sheet or cell is missing or not a number.
func (c *Client) ConversionRate(ctx context.Context, spreadsheetID string) (float64, error) {
	if spreadsheetID == "" {
		return 0, fmt.Errorf("spreadsheetID is required")
	}

	var resp *gsheets.ValueRange
	err := c.withRetry(ctx, "values.get", func() error {
		var err error
		resp, err = c.service.Spreadsheets.Values.Get(spreadsheetID, conversionRateRange).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		var remoteErr *RemoteError
		// A 400 here means the conversion sheet does not exist
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusBadRequest {
			return 0, ErrNoConversionRate
		}
		return 0, fmt.Errorf("failed to read conversion rate: %w", err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return 0, ErrNoConversionRate
	}
	rate, ok := parseCellFloat(resp.Values[0][0])
	if !ok || rate <= 0 {
		return 0, ErrNoConversionRate
	}
	return rate, nil
}

// FirstSheetTitle returns the title of the spreadsheet's first sheet.
func (c *Client) FirstSheetTitle(ctx context.Context, spreadsheetID string) (string, error) {
	var resp *gsheets.Spreadsheet
	err := c.withRetry(ctx, "spreadsheets.get", func() error {
		var err error
		resp, err = c.service.Spreadsheets.Get(spreadsheetID).
			Fields("sheets.properties.title").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up sheet title: %w", err)
	}
	if len(resp.Sheets) == 0 || resp.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no sheets", spreadsheetID)
	}
	return resp.Sheets[0].Properties.Title, nil
}

func appendRange(sheetTitle string) string {
	return fmt.Sprintf("'%s'!A:G", strings.ReplaceAll(sheetTitle, "'", "''"))
}

// rowValues lays a record out in header-column order. The home amount is
// left blank when no conversion was applied.
func rowValues(rec expense.Record) []interface{} {
	homeAmount := interface{}("")
	if rec.HomeAmount > 0 {
		homeAmount = rec.HomeAmount
	}
	return []interface{}{
		rec.Date.Format(expense.DateFormat),
		rec.ReceiptID,
		rec.Category,
		rec.Note,
		rec.Amount,
		rec.Currency,
		homeAmount,
	}
}

// parseRow converts a sheet row back into a record. Rows with an
// unparseable date or amount are reported as not ok.
func parseRow(row []interface{}) (expense.Record, bool) {
	var rec expense.Record

	date, err := expense.ParseDate(cellString(row, 0))
	if err != nil {
		return rec, false
	}
	amount, ok := parseCell(row, 4)
	if !ok {
		return rec, false
	}

	rec.Date = date
	rec.ReceiptID = cellString(row, 1)
	rec.Category = cellString(row, 2)
	rec.Note = cellString(row, 3)
	rec.Amount = amount
	rec.Currency = cellString(row, 5)
	if home, ok := parseCell(row, 6); ok {
		rec.HomeAmount = home
	}
	return rec, true
}

func cellString(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, _ := row[idx].(string)
	return strings.TrimSpace(s)
}

func parseCell(row []interface{}, idx int) (float64, bool) {
	if idx >= len(row) {
		return 0, false
	}
	return parseCellFloat(row[idx])
}

// parseCellFloat tolerates both JSON numbers and formatted strings,
// including comma decimal separators.
func parseCellFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case string:
		value = strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
		if value == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
