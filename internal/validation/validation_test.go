package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidatorRequired(t *testing.T) {
	v := NewValidator()

	v.Required("field", "")
	assert.True(t, v.HasErrors())
	assert.Equal(t, "field", v.Errors()[0].Field)
	assert.Contains(t, v.Errors()[0].Message, "required")

	v = NewValidator()
	v.Required("field", "  ")
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Required("field", "value")
	assert.False(t, v.HasErrors())
}

func TestValidatorTicker(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"SBER", true},
		{"GAZP", true},
		{"ABCDEF", true},
		{"AB", false},
		{"ABCDEFG", false},
		{"sber", false},
		{"SB3R", false},
	}

	for _, tt := range tests {
		v := NewValidator()
		v.Ticker("ticker", tt.value)
		assert.Equal(t, !tt.ok, v.HasErrors(), tt.value)
	}
}

func TestValidatorTimeRange(t *testing.T) {
	now := time.Now()

	v := NewValidator()
	v.TimeRange("range", now, now.Add(time.Hour))
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.TimeRange("range", now, now)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.TimeRange("range", now.Add(time.Hour), now)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.TimeRange("range", time.Time{}, now)
	assert.True(t, v.HasErrors())
}

func TestValidatorPercent(t *testing.T) {
	v := NewValidator()
	v.Percent("take_profit_pct", 5.0, 100)
	assert.False(t, v.HasErrors())

	v = NewValidator()
	v.Percent("take_profit_pct", 0, 100)
	assert.True(t, v.HasErrors())

	v = NewValidator()
	v.Percent("take_profit_pct", 150, 100)
	assert.True(t, v.HasErrors())
}

func TestValidatorErrAggregation(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Err())

	v.Positive("capital", -1)
	v.PositiveInt("holding_hours", 0)

	err := v.Err()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "capital")
	assert.Contains(t, err.Error(), "holding_hours")
}
