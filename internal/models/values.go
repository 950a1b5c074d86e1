package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Amount is a numeric field as sent by the upstream API. It accepts JSON
// numbers and numeric strings; anything else decodes to NaN so that the
// aggregation layer can drop it explicitly.
type Amount float64

func (a Amount) Float() float64 { return float64(a) }

// Finite reports whether a is neither NaN nor ±Inf.
func (a Amount) Finite() bool {
	f := float64(a)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// OrZero returns the value, or 0 when it is not finite.
func (a Amount) OrZero() float64 {
	if !a.Finite() {
		return 0
	}
	return float64(a)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = Amount(math.NaN())
			return nil
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*a = Amount(math.NaN())
			return nil
		}
		*a = Amount(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*a = Amount(math.NaN())
		return nil
	}
	*a = Amount(f)
	return nil
}

// MarshalJSON writes non-finite values as null; encoding/json rejects NaN.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Finite() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(a), 'f', -1, 64)), nil
}

// Date is a nullable timestamp. Missing or unparseable values decode to the
// zero Date and sort as the Unix epoch.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NewDate wraps t.
func NewDate(t time.Time) Date { return Date{Time: t} }

// Valid reports whether the date carries a usable value.
func (d Date) Valid() bool { return !d.IsZero() }

// Millis returns milliseconds since the epoch; 0 for an invalid date.
func (d Date) Millis() int64 {
	if d.IsZero() {
		return 0
	}
	return d.UnixMilli()
}

func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*d = Date{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err == nil && ms > 0 {
			d.Time = time.UnixMilli(ms)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	d.Time = ParseDate(s)
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format(time.RFC3339Nano))
}

// ParseDate parses the date formats the upstream API emits. Date-only values
// are read as local calendar dates. Returns the zero time on failure.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}

// UserRef is a createdBy/assignedTo value. The API sends either a raw id
// string or an embedded {_id, username} document.
type UserRef struct {
	ID       string `json:"_id,omitempty"`
	Username string `json:"username,omitempty"`
}

func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*u = UserRef{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &u.ID)
	}
	var doc struct {
		MongoID  string `json:"_id"`
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	u.ID = doc.MongoID
	if u.ID == "" {
		u.ID = doc.ID
	}
	u.Username = doc.Username
	return nil
}
