package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Expense represents a single expense record owned by exactly one user.
type Expense struct {
	// ID is the unique, immutable identifier of the expense.
	ID int64 `json:"pk,omitempty" db:"id"`

	// UserID references the owning user.
	UserID int64 `json:"-" db:"user_id"`

	// Username is the owning user's username, joined in for serialization.
	Username string `json:"user,omitempty" db:"-"`

	// Date is the calendar date of the expense. Defaults to the
	// creation date when unspecified.
	Date Date `json:"date" db:"date"`

	// Time is the time of day of the expense. Defaults to the
	// creation time when unspecified.
	Time TimeOfDay `json:"time" db:"time"`

	// Amount is the expense amount: up to 10 significant digits with
	// exactly two fractional digits on the wire.
	Amount Amount `json:"amount" db:"amount"`

	// Description is an optional free-form description.
	Description string `json:"description" db:"description"`

	// Comment is an optional free-form comment.
	Comment string `json:"comment" db:"comment"`

	// ReceiptKey is the object-storage key of the attached receipt,
	// empty when no receipt has been uploaded. Not serialized.
	ReceiptKey string `json:"-" db:"receipt_key"`

	// ReceiptContentType is the MIME type of the attached receipt.
	ReceiptContentType string `json:"-" db:"receipt_content_type"`

	// CreatedAt is the timestamp when the record was created.
	CreatedAt time.Time `json:"-" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date without a time component.
// It serializes as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate constructs a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current local calendar date.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: parsed}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// ISOWeek returns the ISO 8601 week number of the date.
func (d Date) ISOWeek() int {
	_, week := d.Time.ISOWeek()
	return week
}

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool {
	return d.String() < other.String()
}

// After reports whether d falls strictly after other.
func (d Date) After(other Date) bool {
	return d.String() > other.String()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch value := src.(type) {
	case time.Time:
		*d = NewDate(value.Year(), value.Month(), value.Day())
		return nil
	case []byte:
		parsed, err := ParseDate(string(value))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDate(value)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// TimeOfDay is a wall-clock time without a date component.
// It serializes as "HH:MM:SS".
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// CurrentTime returns the current local time of day, truncated to seconds.
func CurrentTime() TimeOfDay {
	now := time.Now()
	return TimeOfDay{Hour: now.Hour(), Minute: now.Minute(), Second: now.Second()}
}

// ParseTimeOfDay parses "HH:MM:SS", "HH:MM" or "HH:MM:SS.ffffff" strings.
// Fractional seconds are truncated.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05.999999999", "15:04:05", "15:04"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", value)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Seconds returns the time as seconds since midnight, for ordering.
func (t TimeOfDay) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements sql.Scanner.
func (t *TimeOfDay) Scan(src any) error {
	switch value := src.(type) {
	case time.Time:
		*t = TimeOfDay{Hour: value.Hour(), Minute: value.Minute(), Second: value.Second()}
		return nil
	case []byte:
		parsed, err := ParseTimeOfDay(string(value))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case string:
		parsed, err := ParseTimeOfDay(value)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

// Amount is a fixed-point monetary value. Arithmetic is exact decimal
// arithmetic and the wire format always carries two fractional digits
// (e.g. "666.00").
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal value as an Amount.
func NewAmount(value decimal.Decimal) Amount {
	return Amount{Decimal: value}
}

// ParseAmount parses a decimal string into an Amount.
func ParseAmount(value string) (Amount, error) {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Decimal: parsed}, nil
}

func (a Amount) String() string {
	return a.StringFixed(2)
}

// DecimalPlaces returns the number of fractional digits carried by the value.
func (a Amount) DecimalPlaces() int {
	if exp := a.Exponent(); exp < 0 {
		return int(-exp)
	}
	return 0
}

// TotalDigits returns the number of significant digits carried by the value.
func (a Amount) TotalDigits() int {
	return int(a.NumDigits())
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if len(raw) >= 2 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	a.Decimal = parsed
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch value := src.(type) {
	case []byte:
		parsed, err := decimal.NewFromString(string(value))
		if err != nil {
			return err
		}
		a.Decimal = parsed
		return nil
	case string:
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return err
		}
		a.Decimal = parsed
		return nil
	case float64:
		a.Decimal = decimal.NewFromFloat(value)
		return nil
	case int64:
		a.Decimal = decimal.NewFromInt(value)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}
