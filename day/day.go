package day

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

const Layout = "2006-01-02"

var ErrInvalidDay = errors.New("day must be formatted as YYYY-MM-DD")

// Day is a calendar date anchored to UTC midnight. Readings and trips are
// keyed by Day, so every caller must produce it through Of or Parse.
type Day struct {
	t time.Time
}

// Of returns the UTC calendar day containing t.
func Of(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func Date(year int, month time.Month, d int) Day {
	return Of(time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
}

func Parse(s string) (Day, error) {
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return Day{t: t}, nil
}

func (d Day) Time() time.Time { return d.t }

func (d Day) IsZero() bool { return d.t.IsZero() }

func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

func (d Day) After(o Day) bool { return d.t.After(o.t) }

// AddDays returns the day n days after d (n may be negative).
func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(Layout)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan accepts the time.Time that lib/pq returns for DATE columns as well as
// the textual form.
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = Of(v)
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case nil:
		*d = Day{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into day.Day", src)
	}
}

func (d Day) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}
