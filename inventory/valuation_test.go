package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValuation(t *testing.T) {
	var tr Tracker
	tr.Add(d(1), d(100))

	v := tr.Valuation(d(110))
	assert.True(t, v.MarkPrice.Equal(d(110)))
	assert.True(t, v.PnL.Equal(d(10)), v.PnL.String())
	assert.True(t, v.AvgCost.Equal(d(100)), v.AvgCost.String())

	assert.True(t, tr.Valuation(d(90)).PnL.IsNegative())
}

func TestValuation_ShortAndFlat(t *testing.T) {
	var tr Tracker
	tr.Add(d(-5), d(110))
	tr.Add(d(3), d(100))

	v := tr.Valuation(d(100))
	assert.True(t, v.AvgCost.Equal(d(125)), v.AvgCost.String())
	assert.True(t, v.PnL.Equal(d(50)), v.PnL.String())

	tr.Add(d(2), d(100))
	v = tr.Valuation(d(100))
	assert.True(t, v.AvgCost.IsZero())
	assert.True(t, v.PnL.Equal(d(50)))
}
