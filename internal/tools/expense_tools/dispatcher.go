package expense_tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/avandelay/sheetspend/internal/authflow"
	"github.com/avandelay/sheetspend/internal/expense"
	"github.com/avandelay/sheetspend/internal/instrumentation"
	"github.com/avandelay/sheetspend/internal/logging"
	"github.com/avandelay/sheetspend/internal/sheets"
	"github.com/avandelay/sheetspend/internal/token"
)

// Tool names as exposed over MCP.
const (
	ToolCreateSpreadsheet  = "create_new_spreadsheet"
	ToolAddExpense         = "add_expense"
	ToolListRecentExpenses = "list_recent_expenses"
)

// DefaultListLimit is how many expenses list_recent_expenses returns when
// no limit argument is given.
const DefaultListLimit = 10

// Gateway is the subset of the Sheets client the dispatcher drives.
type Gateway interface {
	CreateSpreadsheet(ctx context.Context, title string) (*sheets.SpreadsheetRef, error)
	AppendRow(ctx context.Context, spreadsheetID string, rec expense.Record) (*sheets.RowLocation, error)
	ReadRecent(ctx context.Context, spreadsheetID string, limit int) ([]expense.Record, error)
	ConversionRate(ctx context.Context, spreadsheetID string) (float64, error)
}

// TokenProvider supplies access tokens, triggering refresh or the
// interactive flow as needed.
type TokenProvider interface {
	AccessToken(ctx context.Context) (*oauth2.Token, error)
}

// Config carries the operator-level defaults for tool invocations.
type Config struct {
	// DefaultSpreadsheetID is used when a tool call omits spreadsheet_id.
	DefaultSpreadsheetID string
	// HomeCurrency enables home-amount conversion for expenses recorded
	// in a different currency. Empty disables conversion.
	HomeCurrency string
}

// Dispatcher validates tool arguments and executes them against the
// Sheets gateway.
type Dispatcher struct {
	gateway Gateway
	tokens  TokenProvider
	cfg     Config
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. Metrics may be nil.
func NewDispatcher(gateway Gateway, tokens TokenProvider, cfg Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*Dispatcher, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.HomeCurrency = expense.NormalizeCurrency(cfg.HomeCurrency)

	return &Dispatcher{
		gateway: gateway,
		tokens:  tokens,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Dispatch executes one tool invocation and returns its result. It never
// panics and never returns an error: failures are encoded in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, tool string, args map[string]interface{}) Result {
	start := d.now()

	var res Result
	switch tool {
	case ToolCreateSpreadsheet:
		res = d.createSpreadsheet(ctx, args)
	case ToolAddExpense:
		res = d.addExpense(ctx, args)
	case ToolListRecentExpenses:
		res = d.listRecentExpenses(ctx, args)
	default:
		res = Failure(KindInvalidArgument, "unknown tool %q", tool)
	}

	status := instrumentation.ResultSuccess
	if !res.OK {
		status = instrumentation.ResultFailure
		d.logger.Warn("tool invocation failed",
			logging.Tool(tool),
			slog.String("kind", string(res.Kind)),
			slog.String("detail", res.Message))
	}
	if d.metrics != nil {
		d.metrics.RecordToolInvocation(ctx, tool, status, time.Since(start))
	}
	return res
}

func (d *Dispatcher) createSpreadsheet(ctx context.Context, args map[string]interface{}) Result {
	title := stringArg(args, "title")
	if title == "" {
		return Failure(KindInvalidArgument, "title is required")
	}

	if fail := d.ensureToken(ctx); fail != nil {
		return *fail
	}

	ref, err := d.gateway.CreateSpreadsheet(ctx, title)
	if err != nil {
		return failureFromError(err)
	}
	return Success(ref)
}

func (d *Dispatcher) addExpense(ctx context.Context, args map[string]interface{}) Result {
	spreadsheetID := d.spreadsheetID(args)
	if spreadsheetID == "" {
		return Failure(KindInvalidArgument, "spreadsheet_id is required and no default is configured")
	}

	rawAmount, ok := amountArg(args)
	if !ok {
		return Failure(KindInvalidArgument, "amount is required")
	}
	amount, err := expense.ParseAmount(rawAmount)
	if err != nil {
		return Failure(KindInvalidArgument, "%v", err)
	}

	currency := expense.NormalizeCurrency(stringArg(args, "currency"))
	if currency == "" {
		return Failure(KindInvalidArgument, "currency is required")
	}
	if !expense.IsKnownCurrency(currency) {
		return Failure(KindInvalidArgument, "unknown currency %q", currency)
	}

	category := stringArg(args, "category")
	if category == "" {
		return Failure(KindInvalidArgument, "category is required")
	}

	date := d.now().UTC().Truncate(24 * time.Hour)
	if raw := stringArg(args, "date"); raw != "" {
		date, err = expense.ParseDate(raw)
		if err != nil {
			return Failure(KindInvalidArgument, "%v", err)
		}
	}

	note := stringArg(args, "note")

	rec := expense.Record{
		Date:      date,
		Amount:    amount,
		Currency:  currency,
		Category:  category,
		Note:      note,
		ReceiptID: expense.NewReceiptID(note, rawAmount, d.now().Format(time.RFC3339Nano)),
	}
	if err := rec.Validate(); err != nil {
		return Failure(KindInvalidArgument, "%v", err)
	}

	if fail := d.ensureToken(ctx); fail != nil {
		return *fail
	}

	d.applyHomeConversion(ctx, spreadsheetID, &rec)

	loc, err := d.gateway.AppendRow(ctx, spreadsheetID, rec)
	if err != nil {
		return failureFromError(err)
	}

	return Success(map[string]interface{}{
		"location": loc,
		"expense":  rec,
	})
}

func (d *Dispatcher) listRecentExpenses(ctx context.Context, args map[string]interface{}) Result {
	spreadsheetID := d.spreadsheetID(args)
	if spreadsheetID == "" {
		return Failure(KindInvalidArgument, "spreadsheet_id is required and no default is configured")
	}

	limit := DefaultListLimit
	if raw, present := args["limit"]; present {
		parsed, ok := intArg(raw)
		if !ok || parsed <= 0 {
			return Failure(KindInvalidArgument, "limit must be a positive integer")
		}
		limit = parsed
	}

	if fail := d.ensureToken(ctx); fail != nil {
		return *fail
	}

	records, err := d.gateway.ReadRecent(ctx, spreadsheetID, limit)
	if err != nil {
		return failureFromError(err)
	}

	return Success(map[string]interface{}{
		"count":    len(records),
		"expenses": records,
	})
}

// applyHomeConversion stamps the home-currency amount on the record when a
// home currency is configured and a conversion rate is available. The
// conversion is best effort: a missing rate never fails the expense.
func (d *Dispatcher) applyHomeConversion(ctx context.Context, spreadsheetID string, rec *expense.Record) {
	if d.cfg.HomeCurrency == "" || rec.Currency == d.cfg.HomeCurrency {
		return
	}

	rate, err := d.gateway.ConversionRate(ctx, spreadsheetID)
	if err != nil {
		if !errors.Is(err, sheets.ErrNoConversionRate) {
			d.logger.Warn("conversion rate lookup failed, recording expense without home amount",
				logging.Spreadsheet(spreadsheetID),
				logging.Error(err))
		}
		return
	}
	rec.HomeAmount = math.Round(rec.Amount*rate*100) / 100
}

// ensureToken obtains a usable access token before any gateway call,
// triggering the interactive flow on first use. Returns a failure result
// when no token can be obtained.
func (d *Dispatcher) ensureToken(ctx context.Context) *Result {
	if _, err := d.tokens.AccessToken(ctx); err != nil {
		res := authFailure(err)
		return &res
	}
	return nil
}

// failureFromError maps gateway and auth errors to failure kinds.
func failureFromError(err error) Result {
	switch {
	case errors.Is(err, sheets.ErrTokenExpired):
		// The gateway already re-acquired and replayed the call once
		return Failure(KindAuthError, "access token rejected after refresh: %v", err)
	case errors.Is(err, sheets.ErrUnavailable):
		return Failure(KindUnavailable, "%v", err)
	case isAuthError(err):
		return authFailure(err)
	default:
		var remoteErr *sheets.RemoteError
		if errors.As(err, &remoteErr) {
			return Failure(KindRemoteRejected, "%v", remoteErr)
		}
		return Failure(KindUnavailable, "%v", err)
	}
}

func authFailure(err error) Result {
	switch {
	case errors.Is(err, authflow.ErrTimeout):
		return Failure(KindAuthTimeout, "authorization timed out: %v", err)
	case errors.Is(err, authflow.ErrInProgress):
		return Failure(KindAuthInProgress, "%v", err)
	case errors.Is(err, token.ErrReauthRequired):
		return Failure(KindReauthRequired, "%v", err)
	default:
		return Failure(KindAuthError, "failed to obtain access token: %v", err)
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, authflow.ErrTimeout) ||
		errors.Is(err, authflow.ErrInProgress) ||
		errors.Is(err, token.ErrReauthRequired)
}

func (d *Dispatcher) spreadsheetID(args map[string]interface{}) string {
	if id := stringArg(args, "spreadsheet_id"); id != "" {
		return id
	}
	return d.cfg.DefaultSpreadsheetID
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// amountArg accepts the amount as a string or, for clients that send
// JSON numbers, as a float.
func amountArg(args map[string]interface{}) (string, bool) {
	switch v := args["amount"].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func intArg(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
