package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundToMinute(t *testing.T) {
	ts := time.Date(2026, 9, 1, 12, 30, 45, 123456789, time.UTC)

	rounded := RoundToMinute(ts)

	assert.Equal(t, time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC), rounded)
	// Observations inside one minute collapse to the same key
	assert.Equal(t, rounded, RoundToMinute(ts.Add(10*time.Second)))
	assert.NotEqual(t, rounded, RoundToMinute(ts.Add(time.Minute)))
}

func TestRoundToMinuteNormalizesZone(t *testing.T) {
	zone := time.FixedZone("UTC+8", 8*3600)
	local := time.Date(2026, 9, 1, 20, 30, 45, 0, zone)

	rounded := RoundToMinute(local)

	assert.Equal(t, time.UTC, rounded.Location())
	assert.Equal(t, 12, rounded.Hour())
}

func TestAccountHoldingDefaults(t *testing.T) {
	h := AccountHolding{Asset: "BTC", Quantity: decimal.NewFromInt(2)}

	// Holdings without the split fields treat everything as available
	assert.True(t, h.AvailableQuantity().Equal(decimal.NewFromInt(2)))
	assert.True(t, h.FrozenQuantity().IsZero())

	available := decimal.NewFromInt(1)
	frozen := decimal.NewFromInt(1)
	h.Available = &available
	h.Frozen = &frozen

	assert.True(t, h.AvailableQuantity().Equal(available))
	assert.True(t, h.FrozenQuantity().Equal(frozen))
}
