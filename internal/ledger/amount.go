package ledger

import (
	"strings"
	"time"

	"github.com/govalues/money"
)

// DateLayout is the ISO-8601 calendar date used on the wire and in exports.
const DateLayout = "2006-01-02"

// Zero returns a zero amount in curr.
func Zero(curr string) money.Amount {
	a, err := money.NewAmountFromMinorUnits(curr, 0)
	if err != nil {
		return money.MustNewAmount("XXX", 0, 0)
	}
	return a
}

// ParseAmount parses a decimal string in curr. Blank input is zero.
func ParseAmount(curr, s string) (money.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero(curr), nil
	}
	return money.ParseAmount(curr, s)
}

// FormatAmount renders a as a plain decimal with the currency's scale, e.g. "150.00".
func FormatAmount(a money.Amount) string {
	return a.RoundToCurr().Decimal().String()
}

// FitsCurrency reports whether a can be written in whole minor units of its
// currency without rounding. "0.004" does not fit PHP; "1.500" does.
func FitsCurrency(a money.Amount) bool {
	return a.MinScale() <= a.Curr().Scale()
}

// MinorUnits returns a in minor units of its currency, rounding half to even.
func MinorUnits(a money.Amount) int64 {
	units, _ := a.MinorUnits()
	return units
}

// ParseDate accepts a calendar date ("2006-01-02") or an RFC3339 timestamp
// and returns the UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t as "2006-01-02".
func FormatDate(t time.Time) string { return t.UTC().Format(DateLayout) }

// DateRange is an inclusive calendar date filter. Nil bounds are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether the calendar date of t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := DateOf(t)
	if r.From != nil && d.Before(DateOf(*r.From)) {
		return false
	}
	if r.To != nil && d.After(DateOf(*r.To)) {
		return false
	}
	return true
}

// IsZero reports whether the range has no bounds.
func (r DateRange) IsZero() bool { return r.From == nil && r.To == nil }
