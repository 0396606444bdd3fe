package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
	"dbella/pos/internal/xid"
)

const batchColumns = `
	b.id, b.product_id, p.name, COALESCE(b.supplier_id, ''), b.quantity, b.remaining_quantity,
	b.purchase_price_cents, b.purchase_date, b.created_by, b.created_at, b.updated_at
`

func scanBatch(row rowScanner) (domain.PurchaseBatch, error) {
	var b domain.PurchaseBatch
	err := row.Scan(
		&b.ID, &b.ProductID, &b.ProductName, &b.SupplierID, &b.Quantity, &b.RemainingQuantity,
		&b.PurchasePriceCents, &b.PurchaseDate, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (s *Store) CreatePurchaseBatch(ctx context.Context, batch domain.PurchaseBatch) (*domain.PurchaseBatch, error) {
	if batch.ProductID == "" || batch.Quantity < 1 || batch.PurchasePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if batch.ID == "" {
		batch.ID = xid.New("bat")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_batches (
			id, product_id, supplier_id, quantity, remaining_quantity,
			purchase_price_cents, purchase_date, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $4, $5, COALESCE($6, now()), $7, now(), now())
	`, batch.ID, batch.ProductID, nullIfEmpty(batch.SupplierID), batch.Quantity,
		batch.PurchasePriceCents, nullTime(batch.PurchaseDate), batch.CreatedBy)
	if err != nil {
		return nil, classifyWriteError(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, batch_id, movement_type, quantity, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, xid.New("mov"), batch.ProductID, batch.ID, domain.MovementIn, batch.Quantity,
		"Compra lote "+batch.ID, batch.CreatedBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchaseBatch(ctx, batch.ID)
}

func (s *Store) GetPurchaseBatch(ctx context.Context, id string) (*domain.PurchaseBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM purchase_batches b JOIN products p ON p.id = b.product_id
		WHERE b.id = $1
	`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListPurchaseBatches(ctx context.Context, filter domain.BatchFilter) ([]domain.PurchaseBatch, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("b.product_id = $%d", len(args)))
	}
	if filter.InStockOnly {
		where = append(where, "b.remaining_quantity > 0")
	}

	query := `SELECT ` + batchColumns + ` FROM purchase_batches b JOIN products p ON p.id = b.product_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY b.purchase_date DESC, b.id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PurchaseBatch, 0, 32)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// UpdateUntouchedBatch guards the edit with remaining_quantity = quantity in
// the same statement, so a concurrent sale either lands first and locks the
// batch or waits for the update.
func (s *Store) UpdateUntouchedBatch(ctx context.Context, batch domain.PurchaseBatch) (*domain.PurchaseBatch, error) {
	if batch.Quantity < 1 || batch.PurchasePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_batches
		SET quantity = $2, remaining_quantity = $2, purchase_price_cents = $3,
			supplier_id = $4, updated_at = now()
		WHERE id = $1 AND remaining_quantity = quantity
	`, batch.ID, batch.Quantity, batch.PurchasePriceCents, nullIfEmpty(batch.SupplierID))
	if err != nil {
		return nil, classifyWriteError(err)
	}
	if err := s.lockedOrMissing(ctx, res, batch.ID); err != nil {
		return nil, err
	}
	return s.GetPurchaseBatch(ctx, batch.ID)
}

func (s *Store) DeleteUntouchedBatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM purchase_batches
		WHERE id = $1 AND remaining_quantity = quantity
	`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrBatchLocked
		}
		return err
	}
	return s.lockedOrMissing(ctx, res, id)
}

// lockedOrMissing tells apart a guarded write that matched nothing because
// the batch is gone from one that matched nothing because stock was drawn.
func (s *Store) lockedOrMissing(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_batches WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return store.ErrBatchLocked
	}
	return store.ErrNotFound
}

func (s *Store) ListInventoryMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, COALESCE(batch_id, ''), movement_type, quantity, reason, created_by, created_at
		FROM inventory_movements
		WHERE ($1::text = '' OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.BatchID, &m.MovementType, &m.Quantity, &m.Reason, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
