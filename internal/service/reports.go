package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/fifo"
	"dbella/pos/internal/store"
)

const (
	dashboardWindowDays = 30
	recentSalesLimit    = 5
	maxReportRows       = 5000
)

// Dashboard summarizes the last 30 days. Only the metrics the caller holds a
// capability for are filled in, and the result is cached per capability set.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	principal, _ := PrincipalFromContext(ctx)
	caps := principal.Capabilities
	key := fmt.Sprintf("caps:%d", caps)

	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		log.Ctx(ctx).Warn().Err(genErr).Msg("dashboard cache generation read failed")
	} else if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("dashboard cache read failed")
	} else if ok {
		return *cached, nil
	}

	now := s.now()
	since := now.AddDate(0, 0, -dashboardWindowDays)
	totals, err := s.repo.GetDashboardTotals(ctx, since)
	if err != nil {
		return domain.Dashboard{}, err
	}

	dash := domain.Dashboard{
		Since:       formatDay(since.In(s.loc)),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	if caps.Has(domain.CapProducts) {
		dash.ProductCount = &totals.ProductCount
	}
	if caps.Has(domain.CapSales) {
		dash.SalesCount = &totals.SalesCount
		rows, err := s.repo.ListSales(ctx, domain.SaleFilter{From: since, Limit: recentSalesLimit})
		if err != nil {
			return domain.Dashboard{}, err
		}
		dash.RecentSales = s.saleListItems(rows, caps.Has(domain.CapProfitability))
	}
	if caps.Has(domain.CapProfitability) {
		dash.RevenueCents = &totals.RevenueCents
		dash.ProfitCents = &totals.ProfitCents
	}
	if caps.Has(domain.CapInventory) {
		dash.LowStockCount = &totals.LowStockCount
		low, err := s.repo.ListLowStockProducts(ctx, lowStockDashboardLimit)
		if err != nil {
			return domain.Dashboard{}, err
		}
		dash.LowStock = low
	}
	if caps.Has(domain.CapClients) {
		dash.ClientCount = &totals.ClientCount
	}

	if genErr == nil {
		if err := s.cache.Set(ctx, gen, key, &dash, s.dashboardTTL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("dashboard cache write failed")
		}
	}
	return dash, nil
}

// SalesRows returns the raw joined rows for a date range, used by listings
// and exports. Bounds are inclusive days in the configured timezone.
func (s *Service) SalesRows(ctx context.Context, from string, to string, clientID string, limit int) ([]domain.SaleRow, time.Time, time.Time, error) {
	start, end, err := s.dateRange(from, to)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	if limit < 1 || limit > maxReportRows {
		limit = maxReportRows
	}
	rows, err := s.repo.ListSales(ctx, domain.SaleFilter{
		From:     start,
		To:       end,
		ClientID: strings.TrimSpace(clientID),
		Limit:    limit,
	})
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return rows, start, end, nil
}

func (s *Service) ListSales(ctx context.Context, from string, to string, clientID string, limit int) (domain.SaleListResponse, error) {
	rows, start, end, err := s.SalesRows(ctx, from, to, clientID, limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}

	withProfit := s.canSeeProfit(ctx)
	resp := domain.SaleListResponse{
		From:  formatDay(start),
		To:    formatDay(end.AddDate(0, 0, -1)),
		Count: len(rows),
		Sales: s.saleListItems(rows, withProfit),
	}
	var profit int64
	for _, row := range rows {
		resp.TotalCents += row.TotalCents
		profit += row.ProfitCents
	}
	if withProfit {
		resp.ProfitCents = &profit
	}
	return resp, nil
}

func (s *Service) saleListItems(rows []domain.SaleRow, withProfit bool) []domain.SaleListItem {
	items := make([]domain.SaleListItem, 0, len(rows))
	for _, row := range rows {
		item := domain.SaleListItem{
			ID:            row.ID,
			SaleDate:      row.SaleDate.In(s.loc).Format(time.RFC3339),
			ClientID:      row.ClientID,
			ClientName:    defaultString(row.ClientName, domain.DefaultClientName),
			PaymentMethod: row.PaymentMethod,
			TotalCents:    row.TotalCents,
		}
		if withProfit {
			profit, margin := row.ProfitCents, row.ProfitMargin
			item.ProfitCents = &profit
			item.ProfitMargin = &margin
		}
		items = append(items, item)
	}
	return items
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.redactSale(ctx, sale), nil
}

func (s *Service) Profits(ctx context.Context, from string, to string) (domain.ProfitReport, error) {
	rows, start, end, err := s.SalesRows(ctx, from, to, "", 0)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	report := domain.ProfitReport{
		From:  formatDay(start),
		To:    formatDay(end.AddDate(0, 0, -1)),
		Count: len(rows),
		Rows:  rows,
	}
	for _, row := range rows {
		report.RevenueCents += row.TotalCents
		report.CostCents += row.TotalCostCents
		report.ProfitCents += row.ProfitCents
	}
	report.AverageMargin = fifo.MarginPercent(report.ProfitCents, report.RevenueCents)
	return report, nil
}

// ProfitDetail returns a sale with its items and unit costs. Sales recorded
// without a profit row are reported as missing.
func (s *Service) ProfitDetail(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.Profit == nil {
		return domain.Sale{}, fmt.Errorf("profit for sale %s: %w", saleID, store.ErrNotFound)
	}
	return *sale, nil
}
