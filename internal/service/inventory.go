package service

import (
	"context"
	"fmt"
	"strings"

	"dbella/pos/internal/domain"
)

const lowStockDashboardLimit = 5

func (s *Service) ListBatches(ctx context.Context, filter domain.BatchFilter) ([]domain.PurchaseBatch, error) {
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	return s.repo.ListPurchaseBatches(ctx, filter)
}

func (s *Service) GetBatch(ctx context.Context, id string) (domain.PurchaseBatch, error) {
	batch, err := s.repo.GetPurchaseBatch(ctx, id)
	if err != nil {
		return domain.PurchaseBatch{}, err
	}
	return *batch, nil
}

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.PurchaseBatch, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if err := s.check(req); err != nil {
		return domain.PurchaseBatch{}, err
	}

	batch := domain.PurchaseBatch{
		ProductID:          req.ProductID,
		SupplierID:         strings.TrimSpace(req.SupplierID),
		Quantity:           req.Quantity,
		PurchasePriceCents: req.PurchasePriceCents,
		CreatedBy:          s.actorID(ctx),
	}
	if req.PurchaseDate != nil {
		batch.PurchaseDate = req.PurchaseDate.UTC()
	}

	created, err := s.repo.CreatePurchaseBatch(ctx, batch)
	if err != nil {
		return domain.PurchaseBatch{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "batch_create", "purchase_batch", created.ID, fmt.Sprintf("product=%s,qty=%d,cost=%d", created.ProductID, created.Quantity, created.PurchasePriceCents))
	return *created, nil
}

// UpdateBatch rewrites an untouched batch. Once any unit has been sold the
// store answers ErrBatchLocked.
func (s *Service) UpdateBatch(ctx context.Context, id string, req domain.BatchUpdateRequest) (domain.PurchaseBatch, error) {
	if err := s.check(req); err != nil {
		return domain.PurchaseBatch{}, err
	}

	saved, err := s.repo.UpdateUntouchedBatch(ctx, domain.PurchaseBatch{
		ID:                 id,
		Quantity:           req.Quantity,
		PurchasePriceCents: req.PurchasePriceCents,
		SupplierID:         strings.TrimSpace(req.SupplierID),
	})
	if err != nil {
		return domain.PurchaseBatch{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "batch_update", "purchase_batch", saved.ID, fmt.Sprintf("qty=%d,cost=%d", saved.Quantity, saved.PurchasePriceCents))
	return *saved, nil
}

func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	if err := s.repo.DeleteUntouchedBatch(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "batch_delete", "purchase_batch", id, "")
	return nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListInventoryMovements(ctx, strings.TrimSpace(productID), limit)
}

func (s *Service) LowStock(ctx context.Context, limit int) ([]domain.LowStockProduct, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListLowStockProducts(ctx, limit)
}
