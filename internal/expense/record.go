package expense

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the only accepted date layout for expense records.
// Ambiguous formats (e.g. 03/04/2024) are rejected rather than guessed.
const DateFormat = "2006-01-02"

// Record is one logical expense row.
type Record struct {
	Date      time.Time
	Amount    float64
	Currency  string
	Category  string
	Note      string
	ReceiptID string

	// HomeAmount is the amount converted to the configured home currency.
	// Zero when no conversion was applied.
	HomeAmount float64
}

// recordJSON is the wire shape of a record in tool results.
type recordJSON struct {
	Date       string  `json:"date"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Category   string  `json:"category"`
	Note       string  `json:"note,omitempty"`
	ReceiptID  string  `json:"receipt_id,omitempty"`
	HomeAmount float64 `json:"home_amount,omitempty"`
}

// MarshalJSON renders the date in the fixed record format.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Date:       r.Date.Format(DateFormat),
		Amount:     r.Amount,
		Currency:   r.Currency,
		Category:   r.Category,
		Note:       r.Note,
		ReceiptID:  r.ReceiptID,
		HomeAmount: r.HomeAmount,
	})
}

// UnmarshalJSON parses the date from the fixed record format.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return err
	}

	r.Date = date
	r.Amount = raw.Amount
	r.Currency = raw.Currency
	r.Category = raw.Category
	r.Note = raw.Note
	r.ReceiptID = raw.ReceiptID
	r.HomeAmount = raw.HomeAmount
	return nil
}

// Validate checks the record invariants: positive amount, recognized
// currency, non-zero date and non-empty category.
func (r *Record) Validate() error {
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be greater than 0, got %v", r.Amount)
	}
	if !IsKnownCurrency(r.Currency) {
		return fmt.Errorf("unrecognized currency code %q", r.Currency)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("category is required")
	}
	return nil
}

// ParseAmount parses a decimal amount, tolerating a comma as the decimal
// separator. The amount must be strictly positive.
func ParseAmount(raw string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if normalized == "" {
		return 0, fmt.Errorf("amount is required")
	}

	amount, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be greater than 0, got %v", amount)
	}

	return amount, nil
}

// ParseDate parses a date string in the fixed record format.
func ParseDate(raw string) (time.Time, error) {
	date, err := time.Parse(DateFormat, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected format %s", raw, DateFormat)
	}
	return date, nil
}

// NewReceiptID derives a short, stable identifier for an expense from its
// note, raw amount and timestamp: the first 8 hex characters of the MD5 of
// the concatenation, uppercased.
func NewReceiptID(note, amount, timestamp string) string {
	sum := md5.Sum([]byte(note + amount + timestamp))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}
