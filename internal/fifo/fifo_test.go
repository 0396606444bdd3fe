package fifo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2025, time.March, n, 0, 0, 0, 0, time.UTC)
}

func TestAllocateConsumesOldestBatchFirst(t *testing.T) {
	lots := []Lot{
		{BatchID: "b", Remaining: 10, UnitCostCents: 120, PurchaseDate: day(5)},
		{BatchID: "a", Remaining: 5, UnitCostCents: 100, PurchaseDate: day(1)},
	}
	Sort(lots)

	draws, short := Allocate(lots, 8)

	require.Equal(t, 0, short)
	require.Len(t, draws, 2)
	assert.Equal(t, Draw{BatchID: "a", Quantity: 5, UnitCostCents: 100}, draws[0])
	assert.Equal(t, Draw{BatchID: "b", Quantity: 3, UnitCostCents: 120}, draws[1])
	assert.Equal(t, int64(860), TotalCost(draws))

	profit := Summarize(8*200, TotalCost(draws))
	assert.Equal(t, int64(1600), profit.TotalSaleCents)
	assert.Equal(t, int64(740), profit.ProfitCents)
	assert.InDelta(t, 46.25, profit.Margin, 0.0001)
}

func TestAllocateReportsShortfall(t *testing.T) {
	lots := []Lot{
		{BatchID: "a", Remaining: 2, UnitCostCents: 100, PurchaseDate: day(1)},
		{BatchID: "b", Remaining: 0, UnitCostCents: 100, PurchaseDate: day(2)},
	}

	draws, short := Allocate(lots, 5)

	assert.Equal(t, 3, short)
	assert.Len(t, draws, 1)
	assert.Equal(t, 2, Available(lots))
}

func TestAllocateStopsOnceSatisfied(t *testing.T) {
	lots := []Lot{
		{BatchID: "a", Remaining: 10, UnitCostCents: 50, PurchaseDate: day(1)},
		{BatchID: "b", Remaining: 10, UnitCostCents: 70, PurchaseDate: day(2)},
	}

	draws, short := Allocate(lots, 4)

	assert.Equal(t, 0, short)
	require.Len(t, draws, 1)
	assert.Equal(t, "a", draws[0].BatchID)
}

func TestSortBreaksDateTiesByCreationThenID(t *testing.T) {
	created := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	lots := []Lot{
		{BatchID: "z", PurchaseDate: day(1), CreatedAt: created},
		{BatchID: "y", PurchaseDate: day(1), CreatedAt: created.Add(-time.Hour)},
		{BatchID: "a", PurchaseDate: day(1), CreatedAt: created},
	}

	Sort(lots)

	assert.Equal(t, []string{"y", "a", "z"}, []string{lots[0].BatchID, lots[1].BatchID, lots[2].BatchID})
}

func TestMarginPercent(t *testing.T) {
	assert.Equal(t, 0.0, MarginPercent(100, 0))
	assert.InDelta(t, 33.33, MarginPercent(1, 3), 0.0001)
	assert.InDelta(t, -25.0, MarginPercent(-250, 1000), 0.0001)
}
