package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
)

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	var saleID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM sales WHERE idempotency_key = $1`, key).Scan(&saleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var (
		sale    domain.Sale
		idemKey sql.NullString
		profit  domain.SalesProfit
		cost    sql.NullInt64
		total   sql.NullInt64
		margin  sql.NullFloat64
		gain    sql.NullInt64
		created sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.client_id, c.name, s.payment_method, s.total_cents, s.amount_received_cents,
			s.change_cents, s.idempotency_key, s.created_by, s.sale_date,
			sp.total_cost_cents, sp.total_sale_cents, sp.profit_cents, sp.profit_margin::float8, sp.created_at
		FROM sales s
		JOIN clients c ON c.id = s.client_id
		LEFT JOIN sales_profit sp ON sp.sale_id = s.id
		WHERE s.id = $1
	`, id).Scan(
		&sale.ID, &sale.ClientID, &sale.ClientName, &sale.PaymentMethod, &sale.TotalCents, &sale.AmountReceivedCents,
		&sale.ChangeCents, &idemKey, &sale.CreatedBy, &sale.SaleDate,
		&cost, &total, &gain, &margin, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sale.IdempotencyKey = idemKey.String
	if cost.Valid {
		profit.SaleID = sale.ID
		profit.TotalCostCents = cost.Int64
		profit.TotalSaleCents = total.Int64
		profit.ProfitCents = gain.Int64
		profit.ProfitMargin = margin.Float64
		profit.CreatedAt = created.Time
		sale.Profit = &profit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, p.name, si.batch_id, si.quantity,
			si.unit_price_cents, si.subtotal_cents, si.unit_cost_cents
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		JOIN purchase_batches b ON b.id = si.batch_id
		WHERE si.sale_id = $1
		ORDER BY p.name, b.purchase_date, b.created_at, si.id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sale.Items = make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.BatchID, &item.Quantity,
			&item.UnitPriceCents, &item.SubtotalCents, &item.UnitCostCents,
		); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleRow, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("s.sale_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("s.sale_date < $%d", len(args)))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("s.client_id = $%d", len(args)))
	}

	query := `
		SELECT s.id, s.sale_date, s.client_id, c.name, s.payment_method, s.total_cents,
			COALESCE(sp.total_cost_cents, 0), COALESCE(sp.profit_cents, 0), COALESCE(sp.profit_margin, 0)::float8
		FROM sales s
		JOIN clients c ON c.id = s.client_id
		LEFT JOIN sales_profit sp ON sp.sale_id = s.id
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.sale_date DESC, s.id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SaleRow, 0, 64)
	for rows.Next() {
		var row domain.SaleRow
		if err := rows.Scan(
			&row.ID, &row.SaleDate, &row.ClientID, &row.ClientName, &row.PaymentMethod, &row.TotalCents,
			&row.TotalCostCents, &row.ProfitCents, &row.ProfitMargin,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) GetDashboardTotals(ctx context.Context, since time.Time) (domain.DashboardTotals, error) {
	var totals domain.DashboardTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM clients),
			(SELECT COUNT(*) FROM sales WHERE sale_date >= $1),
			(SELECT COALESCE(SUM(total_cents), 0) FROM sales WHERE sale_date >= $1),
			(SELECT COALESCE(SUM(sp.profit_cents), 0)
				FROM sales_profit sp JOIN sales s ON s.id = sp.sale_id
				WHERE s.sale_date >= $1),
			(SELECT COUNT(*) FROM (
				SELECT p.id
				FROM products p
				LEFT JOIN purchase_batches b ON b.product_id = p.id
				GROUP BY p.id, p.min_stock
				HAVING COALESCE(SUM(b.remaining_quantity), 0) <= p.min_stock
			) low)
	`, since).Scan(
		&totals.ProductCount, &totals.ClientCount, &totals.SalesCount,
		&totals.RevenueCents, &totals.ProfitCents, &totals.LowStockCount,
	)
	return totals, err
}
