package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/fifo"
	"dbella/pos/internal/store"
	"dbella/pos/internal/telemetry"
	"dbella/pos/internal/xid"
)

const maxCheckoutAttempts = 3

// CreateCheckout runs the whole sale in one SERIALIZABLE transaction and
// retries on serialization failures. A duplicate idempotency key returns the
// sale that already owns it.
func (s *Store) CreateCheckout(ctx context.Context, draft domain.CheckoutDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 || draft.ClientID == "" {
		return nil, store.ErrInvalidInput
	}
	if draft.SaleID == "" {
		draft.SaleID = xid.New("sale")
	}
	if draft.SaleDate.IsZero() {
		draft.SaleDate = time.Now().UTC()
	}

	ctx, span := telemetry.Tracer().Start(ctx, "postgres.CreateCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", draft.SaleID), attribute.Int("sale.lines", len(draft.Lines)))

	var (
		saleID string
		err    error
	)
	for attempt := 1; ; attempt++ {
		saleID, err = s.checkoutOnce(ctx, draft)
		if err == nil {
			break
		}
		if draft.IdempotencyKey != "" && isUniqueViolation(err) {
			return s.FindSaleByIdempotency(ctx, draft.IdempotencyKey)
		}
		if isSerializationFailure(err) && attempt < maxCheckoutAttempts {
			span.AddEvent("serialization retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			continue
		}
		span.RecordError(err)
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

func (s *Store) checkoutOnce(ctx context.Context, draft domain.CheckoutDraft) (string, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if draft.IdempotencyKey != "" {
		var existingID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE idempotency_key = $1`, draft.IdempotencyKey).Scan(&existingID)
		if err == nil {
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}

	var clientExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, draft.ClientID).Scan(&clientExists); err != nil {
		return "", err
	}
	if !clientExists {
		return "", fmt.Errorf("client %s: %w", draft.ClientID, store.ErrInvalidInput)
	}

	demand := make(map[string]int, len(draft.Lines))
	productIDs := make([]string, 0, len(draft.Lines))
	var total int64
	for _, line := range draft.Lines {
		if line.Quantity < 1 || line.UnitPriceCents < 1 {
			return "", store.ErrInvalidInput
		}
		if _, seen := demand[line.ProductID]; !seen {
			productIDs = append(productIDs, line.ProductID)
		}
		demand[line.ProductID] += line.Quantity
		total += int64(line.Quantity) * line.UnitPriceCents
	}
	slices.Sort(productIDs)

	names, err := productNames(ctx, tx, productIDs)
	if err != nil {
		return "", err
	}
	lots, err := lockLots(ctx, tx, productIDs)
	if err != nil {
		return "", err
	}

	for _, productID := range productIDs {
		available := fifo.Available(lots[productID])
		if available < demand[productID] {
			return "", &store.StockError{
				ProductID:   productID,
				ProductName: names[productID],
				Requested:   demand[productID],
				Available:   available,
			}
		}
	}

	change := int64(0)
	if draft.PaymentMethod == domain.PaymentCash {
		if draft.AmountReceivedCents < total {
			return "", store.ErrInsufficientPayment
		}
		change = draft.AmountReceivedCents - total
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, client_id, payment_method, total_cents, amount_received_cents,
			change_cents, idempotency_key, created_by, sale_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, draft.SaleID, draft.ClientID, draft.PaymentMethod, total, draft.AmountReceivedCents,
		change, nullIfEmpty(draft.IdempotencyKey), draft.CreatedBy, draft.SaleDate)
	if err != nil {
		return "", err
	}

	var totalCost int64
	for _, line := range draft.Lines {
		draws, short := fifo.Allocate(lots[line.ProductID], line.Quantity)
		if short > 0 {
			return "", &store.StockError{
				ProductID:   line.ProductID,
				ProductName: names[line.ProductID],
				Requested:   line.Quantity,
				Available:   line.Quantity - short,
			}
		}
		lots[line.ProductID] = consume(lots[line.ProductID], draws)

		for _, d := range draws {
			res, err := tx.ExecContext(ctx, `
				UPDATE purchase_batches
				SET remaining_quantity = remaining_quantity - $2, updated_at = now()
				WHERE id = $1 AND remaining_quantity >= $2
			`, d.BatchID, d.Quantity)
			if err != nil {
				return "", err
			}
			if n, err := res.RowsAffected(); err != nil {
				return "", err
			} else if n == 0 {
				return "", &store.StockError{ProductID: line.ProductID, ProductName: names[line.ProductID], Requested: line.Quantity}
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO sale_items (
					id, sale_id, product_id, batch_id, quantity,
					unit_price_cents, subtotal_cents, unit_cost_cents
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, xid.New("sit"), draft.SaleID, line.ProductID, d.BatchID, d.Quantity,
				line.UnitPriceCents, int64(d.Quantity)*line.UnitPriceCents, d.UnitCostCents)
			if err != nil {
				return "", err
			}
		}
		totalCost += fifo.TotalCost(draws)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_movements (id, product_id, movement_type, quantity, reason, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, xid.New("mov"), line.ProductID, domain.MovementOut, line.Quantity, "Venta #"+draft.SaleID, draft.CreatedBy)
		if err != nil {
			return "", err
		}
	}

	summary := fifo.Summarize(total, totalCost)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_profit (sale_id, total_cost_cents, total_sale_cents, profit_cents, profit_margin, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, draft.SaleID, summary.TotalCostCents, summary.TotalSaleCents, summary.ProfitCents, summary.Margin)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return draft.SaleID, nil
}

func productNames(ctx context.Context, tx *sql.Tx, ids []string) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
	}
	return names, nil
}

// lockLots takes row locks on every batch with stock for the given products,
// in a fixed order so concurrent checkouts cannot deadlock each other.
func lockLots(ctx context.Context, tx *sql.Tx, productIDs []string) (map[string][]fifo.Lot, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, remaining_quantity, purchase_price_cents, purchase_date, created_at
		FROM purchase_batches
		WHERE product_id = ANY($1) AND remaining_quantity > 0
		ORDER BY product_id, purchase_date, created_at, id
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make(map[string][]fifo.Lot, len(productIDs))
	for rows.Next() {
		var (
			lot       fifo.Lot
			productID string
		)
		if err := rows.Scan(&lot.BatchID, &productID, &lot.Remaining, &lot.UnitCostCents, &lot.PurchaseDate, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots[productID] = append(lots[productID], lot)
	}
	return lots, rows.Err()
}

// consume subtracts the draws from the in-memory lots so a product listed on
// two cart lines allocates from what the first line left behind.
func consume(lots []fifo.Lot, draws []fifo.Draw) []fifo.Lot {
	taken := make(map[string]int, len(draws))
	for _, d := range draws {
		taken[d.BatchID] += d.Quantity
	}
	out := lots[:0:0]
	for _, lot := range lots {
		lot.Remaining -= taken[lot.BatchID]
		if lot.Remaining > 0 {
			out = append(out, lot)
		}
	}
	return out
}
