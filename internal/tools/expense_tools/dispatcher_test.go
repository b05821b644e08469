package expense_tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/avandelay/sheetspend/internal/authflow"
	"github.com/avandelay/sheetspend/internal/expense"
	"github.com/avandelay/sheetspend/internal/sheets"
	"github.com/avandelay/sheetspend/internal/token"
)

// fakeGateway records calls and pops queued errors per method.
type fakeGateway struct {
	createCalls int
	appendCalls int
	readCalls   int
	rateCalls   int

	appendErrs []error
	readErrs   []error
	createErrs []error

	rate    float64
	rateErr error

	lastAppend expense.Record
	lastLimit  int
	records    []expense.Record
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (g *fakeGateway) CreateSpreadsheet(ctx context.Context, title string) (*sheets.SpreadsheetRef, error) {
	g.createCalls++
	if err := popErr(&g.createErrs); err != nil {
		return nil, err
	}
	return &sheets.SpreadsheetRef{ID: "sheet-123", Title: title}, nil
}

func (g *fakeGateway) AppendRow(ctx context.Context, spreadsheetID string, rec expense.Record) (*sheets.RowLocation, error) {
	g.appendCalls++
	g.lastAppend = rec
	if err := popErr(&g.appendErrs); err != nil {
		return nil, err
	}
	return &sheets.RowLocation{SpreadsheetID: spreadsheetID, Range: "Sheet1!A2:G2"}, nil
}

func (g *fakeGateway) ReadRecent(ctx context.Context, spreadsheetID string, limit int) ([]expense.Record, error) {
	g.readCalls++
	g.lastLimit = limit
	if err := popErr(&g.readErrs); err != nil {
		return nil, err
	}
	return g.records, nil
}

func (g *fakeGateway) ConversionRate(ctx context.Context, spreadsheetID string) (float64, error) {
	g.rateCalls++
	return g.rate, g.rateErr
}

// fakeTokens counts token requests.
type fakeTokens struct {
	tokenCalls int
	errs       []error
}

func (f *fakeTokens) AccessToken(ctx context.Context) (*oauth2.Token, error) {
	f.tokenCalls++
	if err := popErr(&f.errs); err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: "access", Expiry: time.Now().Add(time.Hour)}, nil
}

func newTestDispatcher(t *testing.T, gateway *fakeGateway, tokens *fakeTokens, cfg Config) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(gateway, tokens, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	return d
}

func validAddArgs() map[string]interface{} {
	return map[string]interface{}{
		"spreadsheet_id": "sheet-123",
		"amount":         "12.50",
		"currency":       "EUR",
		"category":       "food",
		"date":           "2026-08-30",
		"note":           "lunch",
	}
}

func TestAddExpenseAppendsExactlyOnce(t *testing.T) {
	gateway := &fakeGateway{}
	tokens := &fakeTokens{}
	d := newTestDispatcher(t, gateway, tokens, Config{})

	res := d.Dispatch(context.Background(), ToolAddExpense, validAddArgs())
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.appendCalls != 1 {
		t.Errorf("append calls = %d, want 1", gateway.appendCalls)
	}

	rec := gateway.lastAppend
	if rec.Amount != 12.5 {
		t.Errorf("Amount = %v, want 12.5", rec.Amount)
	}
	if rec.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", rec.Currency)
	}
	if rec.Date.Format(expense.DateFormat) != "2026-08-30" {
		t.Errorf("Date = %v, want 2026-08-30", rec.Date)
	}
	if rec.ReceiptID == "" {
		t.Error("ReceiptID was not assigned")
	}

	// The token must be obtained before the gateway is touched
	if tokens.tokenCalls != 1 {
		t.Errorf("token calls = %d, want 1", tokens.tokenCalls)
	}
}

func TestAddExpenseValidationNeverReachesGateway(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(args map[string]interface{})
	}{
		{"zero amount", func(args map[string]interface{}) { args["amount"] = "0" }},
		{"negative amount", func(args map[string]interface{}) { args["amount"] = "-5" }},
		{"garbage amount", func(args map[string]interface{}) { args["amount"] = "twelve" }},
		{"missing amount", func(args map[string]interface{}) { delete(args, "amount") }},
		{"unknown currency", func(args map[string]interface{}) { args["currency"] = "ZZZ" }},
		{"missing currency", func(args map[string]interface{}) { delete(args, "currency") }},
		{"bad date", func(args map[string]interface{}) { args["date"] = "30.08.2026" }},
		{"missing category", func(args map[string]interface{}) { delete(args, "category") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &fakeGateway{}
			tokens := &fakeTokens{}
			d := newTestDispatcher(t, gateway, tokens, Config{})

			args := validAddArgs()
			tt.mutate(args)

			res := d.Dispatch(context.Background(), ToolAddExpense, args)
			if res.OK {
				t.Fatal("expected failure")
			}
			if res.Kind != KindInvalidArgument {
				t.Errorf("Kind = %s, want %s", res.Kind, KindInvalidArgument)
			}
			if gateway.appendCalls != 0 || gateway.rateCalls != 0 {
				t.Error("gateway was invoked for invalid input")
			}
			if tokens.tokenCalls != 0 {
				t.Error("token was requested for invalid input")
			}
		})
	}
}

func TestAddExpenseCommaDecimalAmount(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

	args := validAddArgs()
	args["amount"] = "12,50"

	res := d.Dispatch(context.Background(), ToolAddExpense, args)
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.lastAppend.Amount != 12.5 {
		t.Errorf("Amount = %v, want 12.5", gateway.lastAppend.Amount)
	}
}

func TestAddExpenseDateDefaultsToToday(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})
	fixed := time.Date(2026, 8, 31, 15, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	args := validAddArgs()
	delete(args, "date")

	res := d.Dispatch(context.Background(), ToolAddExpense, args)
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if got := gateway.lastAppend.Date.Format(expense.DateFormat); got != "2026-08-31" {
		t.Errorf("Date = %s, want 2026-08-31", got)
	}
}

func TestAddExpenseUsesDefaultSpreadsheet(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{DefaultSpreadsheetID: "default-sheet"})

	args := validAddArgs()
	delete(args, "spreadsheet_id")

	res := d.Dispatch(context.Background(), ToolAddExpense, args)
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.appendCalls != 1 {
		t.Errorf("append calls = %d, want 1", gateway.appendCalls)
	}
}

func TestAddExpenseMissingSpreadsheetWithoutDefault(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

	args := validAddArgs()
	delete(args, "spreadsheet_id")

	res := d.Dispatch(context.Background(), ToolAddExpense, args)
	if res.OK || res.Kind != KindInvalidArgument {
		t.Errorf("result = %+v, want %s failure", res, KindInvalidArgument)
	}
}

func TestAddExpenseHomeConversion(t *testing.T) {
	gateway := &fakeGateway{rate: 0.9}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{HomeCurrency: "usd"})

	args := validAddArgs() // EUR expense
	args["amount"] = "10"

	res := d.Dispatch(context.Background(), ToolAddExpense, args)
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.rateCalls != 1 {
		t.Errorf("rate calls = %d, want 1", gateway.rateCalls)
	}
	if gateway.lastAppend.HomeAmount != 9.0 {
		t.Errorf("HomeAmount = %v, want 9", gateway.lastAppend.HomeAmount)
	}
}

func TestAddExpenseSkipsConversionForHomeCurrency(t *testing.T) {
	gateway := &fakeGateway{rate: 0.9}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{HomeCurrency: "EUR"})

	res := d.Dispatch(context.Background(), ToolAddExpense, validAddArgs())
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.rateCalls != 0 {
		t.Errorf("rate calls = %d, want 0 for home-currency expense", gateway.rateCalls)
	}
	if gateway.lastAppend.HomeAmount != 0 {
		t.Errorf("HomeAmount = %v, want 0", gateway.lastAppend.HomeAmount)
	}
}

func TestAddExpenseMissingConversionRateIsNotFatal(t *testing.T) {
	gateway := &fakeGateway{rateErr: sheets.ErrNoConversionRate}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{HomeCurrency: "USD"})

	res := d.Dispatch(context.Background(), ToolAddExpense, validAddArgs())
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.appendCalls != 1 {
		t.Errorf("append calls = %d, want 1", gateway.appendCalls)
	}
	if gateway.lastAppend.HomeAmount != 0 {
		t.Errorf("HomeAmount = %v, want 0 without a rate", gateway.lastAppend.HomeAmount)
	}
}

func TestAddExpenseTokenRejectedIsAuthError(t *testing.T) {
	gateway := &fakeGateway{appendErrs: []error{sheets.ErrTokenExpired}}
	tokens := &fakeTokens{}
	d := newTestDispatcher(t, gateway, tokens, Config{})

	res := d.Dispatch(context.Background(), ToolAddExpense, validAddArgs())
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Kind != KindAuthError {
		t.Errorf("Kind = %s, want %s", res.Kind, KindAuthError)
	}
	// The gateway already re-acquired and replayed the rejected call; the
	// dispatcher must not stack a second append on top of that.
	if gateway.appendCalls != 1 {
		t.Errorf("append calls = %d, want 1", gateway.appendCalls)
	}
	if tokens.tokenCalls != 1 {
		t.Errorf("token calls = %d, want 1", tokens.tokenCalls)
	}
}

func TestAuthFailureMappings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"timeout", fmt.Errorf("wrapped: %w", authflow.ErrTimeout), KindAuthTimeout},
		{"in progress", authflow.ErrInProgress, KindAuthInProgress},
		{"reauth required", token.ErrReauthRequired, KindReauthRequired},
		{"other", fmt.Errorf("token endpoint unreachable"), KindAuthError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &fakeGateway{}
			tokens := &fakeTokens{errs: []error{tt.err}}
			d := newTestDispatcher(t, gateway, tokens, Config{})

			res := d.Dispatch(context.Background(), ToolAddExpense, validAddArgs())
			if res.OK {
				t.Fatal("expected failure")
			}
			if res.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", res.Kind, tt.kind)
			}
			if gateway.appendCalls != 0 {
				t.Error("gateway was invoked without a token")
			}
		})
	}
}

func TestGatewayFailureMappings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"rejected", &sheets.RemoteError{StatusCode: 403, Message: "forbidden"}, KindRemoteRejected},
		{"unavailable", fmt.Errorf("wrapped: %w", sheets.ErrUnavailable), KindUnavailable},
		{"unexpected", fmt.Errorf("connection reset"), KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &fakeGateway{appendErrs: []error{tt.err}}
			d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

			res := d.Dispatch(context.Background(), ToolAddExpense, validAddArgs())
			if res.OK {
				t.Fatal("expected failure")
			}
			if res.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", res.Kind, tt.kind)
			}
		})
	}
}

func TestCreateSpreadsheet_RequiresTitle(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

	res := d.Dispatch(context.Background(), ToolCreateSpreadsheet, map[string]interface{}{})
	if res.OK || res.Kind != KindInvalidArgument {
		t.Errorf("result = %+v, want %s failure", res, KindInvalidArgument)
	}
	if gateway.createCalls != 0 {
		t.Error("gateway was invoked without a title")
	}
}

func TestCreateSpreadsheet_Success(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

	res := d.Dispatch(context.Background(), ToolCreateSpreadsheet, map[string]interface{}{
		"title": "Travel 2026",
	})
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	ref, ok := res.Data.(*sheets.SpreadsheetRef)
	if !ok {
		t.Fatalf("Data = %T, want *sheets.SpreadsheetRef", res.Data)
	}
	if ref.ID != "sheet-123" || ref.Title != "Travel 2026" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestListRecentExpenses(t *testing.T) {
	gateway := &fakeGateway{records: []expense.Record{
		{Date: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), Amount: 5, Currency: "EUR", Category: "food"},
		{Date: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), Amount: 7, Currency: "EUR", Category: "food"},
	}}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

	res := d.Dispatch(context.Background(), ToolListRecentExpenses, map[string]interface{}{
		"spreadsheet_id": "sheet-123",
	})
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.lastLimit != DefaultListLimit {
		t.Errorf("limit = %d, want default %d", gateway.lastLimit, DefaultListLimit)
	}

	data, ok := res.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Data = %T, want map", res.Data)
	}
	if data["count"] != 2 {
		t.Errorf("count = %v, want 2", data["count"])
	}
}

func TestListRecentExpensesLimitArgument(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

	// MCP number arguments arrive as float64
	res := d.Dispatch(context.Background(), ToolListRecentExpenses, map[string]interface{}{
		"spreadsheet_id": "sheet-123",
		"limit":          float64(3),
	})
	if !res.OK {
		t.Fatalf("Dispatch failed: %s: %s", res.Kind, res.Message)
	}
	if gateway.lastLimit != 3 {
		t.Errorf("limit = %d, want 3", gateway.lastLimit)
	}
}

func TestListRecentExpensesRejectsBadLimit(t *testing.T) {
	for _, limit := range []interface{}{float64(0), float64(-1), float64(2.5), "many"} {
		gateway := &fakeGateway{}
		d := newTestDispatcher(t, gateway, &fakeTokens{}, Config{})

		res := d.Dispatch(context.Background(), ToolListRecentExpenses, map[string]interface{}{
			"spreadsheet_id": "sheet-123",
			"limit":          limit,
		})
		if res.OK || res.Kind != KindInvalidArgument {
			t.Errorf("limit %v: result = %+v, want %s failure", limit, res, KindInvalidArgument)
		}
		if gateway.readCalls != 0 {
			t.Errorf("limit %v: gateway was invoked", limit)
		}
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, &fakeGateway{}, &fakeTokens{}, Config{})

	res := d.Dispatch(context.Background(), "transfer_funds", nil)
	if res.OK || res.Kind != KindInvalidArgument {
		t.Errorf("result = %+v, want %s failure", res, KindInvalidArgument)
	}
}
