package core

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Money is a currency-scale decimal amount. It is serialized with exactly two decimals.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{d.Round(2)}
}

// MustMoney parses s and panics on failure. Meant for constants and tests.
func MustMoney(s string) Money {
	return NewMoney(decimal.RequireFromString(s))
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.StringFixed(2) + `"`), nil
}

func (m Money) String() string {
	return m.StringFixed(2)
}

// Date is a calendar date without time zone handling (UTC midnight).
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the local calendar date of t.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// MustDate parses a `YYYY-MM-DD` date and panics on error.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time.AddDate(0, 0, n))
}

// YearMonth returns the `YYYY-MM` key of the date.
func (d Date) YearMonth() string {
	return d.Format("2006-01")
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalParam lets echo bind dates from query params.
func (d *Date) UnmarshalParam(param string) error {
	return d.UnmarshalJSON([]byte(param))
}

func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = DateOf(v)
	case []byte:
		return d.UnmarshalJSON(v)
	case string:
		return d.UnmarshalJSON([]byte(v))
	default:
		return errors.Errorf("core.Date: cannot scan %T", value)
	}
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}
