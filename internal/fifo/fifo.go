// Package fifo allocates a requested quantity across purchase batches,
// oldest batch first, and derives the cost and profit of a sale.
package fifo

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is the stock view of one purchase batch.
type Lot struct {
	BatchID       string
	Remaining     int
	UnitCostCents int64
	PurchaseDate  time.Time
	CreatedAt     time.Time
}

// Draw is the quantity taken from one lot.
type Draw struct {
	BatchID       string
	Quantity      int
	UnitCostCents int64
}

func (d Draw) CostCents() int64 {
	return int64(d.Quantity) * d.UnitCostCents
}

// Sort orders lots oldest first. Ties on purchase date fall back to
// creation time and then batch id so the order is deterministic.
func Sort(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].PurchaseDate.Equal(lots[j].PurchaseDate) {
			return lots[i].PurchaseDate.Before(lots[j].PurchaseDate)
		}
		if !lots[i].CreatedAt.Equal(lots[j].CreatedAt) {
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		}
		return lots[i].BatchID < lots[j].BatchID
	})
}

func Available(lots []Lot) int {
	total := 0
	for _, lot := range lots {
		if lot.Remaining > 0 {
			total += lot.Remaining
		}
	}
	return total
}

// Allocate walks lots in the given order and takes min(remaining, still needed)
// from each. It returns the draws and the quantity that could not be covered.
// Lots must already be sorted with Sort.
func Allocate(lots []Lot, qty int) ([]Draw, int) {
	if qty <= 0 {
		return nil, 0
	}
	draws := make([]Draw, 0, 2)
	needed := qty
	for _, lot := range lots {
		if needed == 0 {
			break
		}
		if lot.Remaining < 1 {
			continue
		}
		take := min(lot.Remaining, needed)
		draws = append(draws, Draw{BatchID: lot.BatchID, Quantity: take, UnitCostCents: lot.UnitCostCents})
		needed -= take
	}
	return draws, needed
}

func TotalCost(draws []Draw) int64 {
	var total int64
	for _, d := range draws {
		total += d.CostCents()
	}
	return total
}

// Profit is the aggregate result of a sale.
type Profit struct {
	TotalSaleCents int64
	TotalCostCents int64
	ProfitCents    int64
	Margin         float64
}

// Summarize computes profit and margin (percent of sale, two decimals).
// A zero sale yields a zero margin.
func Summarize(totalSaleCents int64, totalCostCents int64) Profit {
	profit := totalSaleCents - totalCostCents
	return Profit{
		TotalSaleCents: totalSaleCents,
		TotalCostCents: totalCostCents,
		ProfitCents:    profit,
		Margin:         MarginPercent(profit, totalSaleCents),
	}
}

func MarginPercent(profitCents int64, saleCents int64) float64 {
	if saleCents == 0 {
		return 0
	}
	return decimal.NewFromInt(profitCents).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(saleCents), 2).
		InexactFloat64()
}
