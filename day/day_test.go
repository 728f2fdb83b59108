package day

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfTruncatesToUTCDate(t *testing.T) {
	// 23:30 in UTC-3 is already the next day in UTC.
	loc := time.FixedZone("BRT", -3*60*60)
	d := Of(time.Date(2026, 3, 9, 23, 30, 0, 0, loc))

	assert.Equal(t, "2026-03-10", d.String())
	assert.True(t, d.Equal(Date(2026, 3, 10)))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "iso day", input: "2026-01-31", want: "2026-01-31"},
		{name: "timestamp rejected", input: "2026-01-31T10:00:00Z", wantErr: true},
		{name: "garbage", input: "yesterday", wantErr: true},
		{name: "out of range", input: "2026-02-30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDay)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Date Day `json:"date"`
	}

	data, err := json.Marshal(payload{Date: Date(2026, 10, 17)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2026-10-17"}`, string(data))

	var decoded payload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Date.Equal(Date(2026, 10, 17)))
}

func TestScan(t *testing.T) {
	var d Day
	require.NoError(t, d.Scan(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-05-01", d.String())

	require.NoError(t, d.Scan("2026-05-02"))
	assert.Equal(t, "2026-05-02", d.String())

	assert.Error(t, d.Scan(42))
}

func TestOrdering(t *testing.T) {
	a := Date(2026, 1, 1)
	b := a.AddDays(1)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Equal(b))
}
