package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder-maker-go/ladder"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestMemoryLevelRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLevelRepository(ladder.State{Name: "B", Delta: d(1), OriginalVolume: d(1)})

	require.NoError(t, repo.Add(ctx, ladder.State{Name: "A", Delta: d(2), OriginalVolume: d(3)}))
	assert.ErrorIs(t, repo.Add(ctx, ladder.State{Name: "A"}), ErrExists)

	states, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "A", states[0].Name)
	assert.Equal(t, "B", states[1].Name)

	require.NoError(t, repo.UpdateSettings(ctx, "A", d(5), d(7)))
	a, ok := repo.Get("A")
	require.True(t, ok)
	assert.True(t, a.Delta.Equal(d(5)))
	assert.True(t, a.VolumeSell.Equal(d(-7)))
	assert.True(t, a.VolumeBuy.Equal(d(7)))
	assert.ErrorIs(t, repo.UpdateSettings(ctx, "X", d(1), d(1)), ErrNotFound)

	a.Inventory = d(-2)
	require.NoError(t, repo.SaveStates(ctx, []ladder.State{a}))
	assert.Equal(t, 1, repo.SaveCount())
	a, _ = repo.Get("A")
	assert.True(t, a.Inventory.Equal(d(-2)))

	require.NoError(t, repo.Delete(ctx, "A"))
	assert.ErrorIs(t, repo.Delete(ctx, "A"), ErrNotFound)
}

func TestMemoryPriceStore(t *testing.T) {
	ctx := context.Background()
	ps := NewMemoryPriceStore()

	_, ok, err := ps.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ps.Set(ctx, d(101.5)))
	price, ok, err := ps.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, price.Equal(d(101.5)))

	ps.Clear()
	_, ok, _ = ps.Get(ctx)
	assert.False(t, ok)
}

func TestInitialPriceKey(t *testing.T) {
	assert.Equal(t, "ladder:initial_price", initialPriceKey(""))
	assert.Equal(t, "mm-btc:initial_price", initialPriceKey("mm-btc"))
}

func TestParseDecimals(t *testing.T) {
	vals, err := parseDecimals([]string{"1.5", "-0.25", "0"})
	require.NoError(t, err)
	assert.True(t, vals[0].Equal(d(1.5)))
	assert.True(t, vals[1].Equal(d(-0.25)))
	assert.True(t, vals[2].IsZero())

	_, err = parseDecimals([]string{"NaN?"})
	assert.Error(t, err)
}

func TestStateArgs(t *testing.T) {
	args := stateArgs(ladder.State{Name: "L1", Delta: d(10), OriginalVolume: d(5), VolumeSell: d(-5)})
	require.Len(t, args, 10)
	assert.Equal(t, "L1", args[0])
	assert.Equal(t, "10", args[1])
	assert.Equal(t, "-5", args[5])
	assert.False(t, args[9].(interface{ IsZero() bool }).IsZero(), "updated_at defaults to now")
}
