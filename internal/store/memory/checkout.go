package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/fifo"
	"dbella/pos/internal/store"
	"dbella/pos/internal/xid"
)

func (s *Store) CreateCheckout(_ context.Context, draft domain.CheckoutDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 || draft.ClientID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.IdempotencyKey != "" {
		if saleID, ok := s.salesByIdem[draft.IdempotencyKey]; ok {
			return s.saleLocked(saleID)
		}
	}
	if _, ok := s.clients[draft.ClientID]; !ok {
		return nil, store.ErrInvalidInput
	}

	// Pre-check every line against live stock before touching anything.
	demand := make(map[string]int, len(draft.Lines))
	var total int64
	for _, line := range draft.Lines {
		if line.Quantity < 1 || line.UnitPriceCents < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, ok := s.products[line.ProductID]; !ok {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		demand[line.ProductID] += line.Quantity
		total += int64(line.Quantity) * line.UnitPriceCents
	}
	for _, line := range draft.Lines {
		available := fifo.Available(s.lotsFor(line.ProductID))
		if available < demand[line.ProductID] {
			return nil, &store.StockError{
				ProductID:   line.ProductID,
				ProductName: s.products[line.ProductID].Name,
				Requested:   demand[line.ProductID],
				Available:   available,
			}
		}
	}

	change := int64(0)
	if draft.PaymentMethod == domain.PaymentCash {
		if draft.AmountReceivedCents < total {
			return nil, store.ErrInsufficientPayment
		}
		change = draft.AmountReceivedCents - total
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:                  draft.SaleID,
		ClientID:            draft.ClientID,
		PaymentMethod:       draft.PaymentMethod,
		TotalCents:          total,
		AmountReceivedCents: draft.AmountReceivedCents,
		ChangeCents:         change,
		IdempotencyKey:      draft.IdempotencyKey,
		CreatedBy:           draft.CreatedBy,
		SaleDate:            draft.SaleDate,
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}

	var totalCost int64
	items := make([]domain.SaleItem, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		draws, short := fifo.Allocate(s.lotsFor(line.ProductID), line.Quantity)
		if short > 0 {
			// Unreachable under the lock; kept so a broken pre-check cannot oversell.
			return nil, store.ErrInsufficientStock
		}
		for _, d := range draws {
			b := s.batches[d.BatchID]
			b.RemainingQuantity -= d.Quantity
			b.UpdatedAt = now
			s.batches[d.BatchID] = b

			items = append(items, domain.SaleItem{
				ID:             xid.New("sit"),
				SaleID:         sale.ID,
				ProductID:      line.ProductID,
				ProductName:    s.products[line.ProductID].Name,
				BatchID:        d.BatchID,
				Quantity:       d.Quantity,
				UnitPriceCents: line.UnitPriceCents,
				SubtotalCents:  int64(d.Quantity) * line.UnitPriceCents,
				UnitCostCents:  d.UnitCostCents,
			})
		}
		totalCost += fifo.TotalCost(draws)

		s.movements = append(s.movements, domain.InventoryMovement{
			ID:           xid.New("mov"),
			ProductID:    line.ProductID,
			MovementType: domain.MovementOut,
			Quantity:     line.Quantity,
			Reason:       "Venta #" + sale.ID,
			CreatedBy:    draft.CreatedBy,
			CreatedAt:    now,
		})
	}

	summary := fifo.Summarize(total, totalCost)
	sale.Items = items
	sale.Profit = &domain.SalesProfit{
		SaleID:         sale.ID,
		TotalCostCents: summary.TotalCostCents,
		TotalSaleCents: summary.TotalSaleCents,
		ProfitCents:    summary.ProfitCents,
		ProfitMargin:   summary.Margin,
		CreatedAt:      now,
	}

	s.sales[sale.ID] = sale
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}
	return s.saleLocked(sale.ID)
}

func (s *Store) saleLocked(id string) (*domain.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := sale
	out.Items = slices.Clone(sale.Items)
	if sale.Profit != nil {
		profit := *sale.Profit
		out.Profit = &profit
	}
	out.ClientName = s.clients[sale.ClientID].Name
	return &out, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saleID, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.saleLocked(saleID)
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.saleLocked(id)
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.SaleRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.SaleRow, 0, len(s.sales))
	for _, sale := range s.sales {
		if !filter.From.IsZero() && sale.SaleDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.SaleDate.Before(filter.To) {
			continue
		}
		if filter.ClientID != "" && sale.ClientID != filter.ClientID {
			continue
		}
		row := domain.SaleRow{
			ID:            sale.ID,
			SaleDate:      sale.SaleDate,
			ClientID:      sale.ClientID,
			ClientName:    s.clients[sale.ClientID].Name,
			PaymentMethod: sale.PaymentMethod,
			TotalCents:    sale.TotalCents,
		}
		if sale.Profit != nil {
			row.TotalCostCents = sale.Profit.TotalCostCents
			row.ProfitCents = sale.Profit.ProfitCents
			row.ProfitMargin = sale.Profit.ProfitMargin
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b domain.SaleRow) int {
		if c := b.SaleDate.Compare(a.SaleDate); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

func (s *Store) GetDashboardTotals(_ context.Context, since time.Time) (domain.DashboardTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := domain.DashboardTotals{
		ProductCount:  len(s.products),
		ClientCount:   len(s.clients),
		LowStockCount: len(s.lowStockLocked()),
	}
	for _, sale := range s.sales {
		if sale.SaleDate.Before(since) {
			continue
		}
		totals.SalesCount++
		totals.RevenueCents += sale.TotalCents
		if sale.Profit != nil {
			totals.ProfitCents += sale.Profit.ProfitCents
		}
	}
	return totals, nil
}
