package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/media"
	"dbella/pos/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	product, err := s.repo.GetProductByBarcode(ctx, strings.TrimSpace(barcode))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:           req.Name,
		Description:    strings.TrimSpace(req.Description),
		Barcode:        req.Barcode,
		CategoryID:     strings.TrimSpace(req.CategoryID),
		SupplierID:     strings.TrimSpace(req.SupplierID),
		SalePriceCents: req.SalePriceCents,
		MinStock:       req.MinStock,
		IsPublic:       isPublic,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.SalePriceCents))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name cannot be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.CategoryID != nil {
		updated.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.SupplierID != nil {
		updated.SupplierID = strings.TrimSpace(*req.SupplierID)
	}
	if req.SalePriceCents != nil {
		updated.SalePriceCents = *req.SalePriceCents
	}
	if req.MinStock != nil {
		updated.MinStock = *req.MinStock
	}
	if req.IsPublic != nil {
		updated.IsPublic = *req.IsPublic
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("price=%d,min_stock=%d,public=%t", saved.SalePriceCents, saved.MinStock, saved.IsPublic))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

// UploadProductImage stores the image through the media store and points the
// product at the returned URL.
func (s *Service) UploadProductImage(ctx context.Context, id string, data []byte) (domain.Product, error) {
	if s.media == nil {
		return domain.Product{}, fmt.Errorf("%w: image uploads are disabled", store.ErrInvalidInput)
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	key, contentType, err := media.ProductImageKey(product.ID, data)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedImage) {
			return domain.Product{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		return domain.Product{}, err
	}
	url, err := s.media.Put(ctx, key, contentType, data)
	if err != nil {
		return domain.Product{}, fmt.Errorf("store product image: %w", err)
	}

	product.ImageURL = url
	saved, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_image", "product", saved.ID, key)
	return *saved, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_create", "category", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryRequest) (domain.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}
	saved, err := s.repo.UpdateCategory(ctx, domain.Category{
		ID:          id,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_update", "category", saved.ID, saved.Name)
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", id, "")
	return nil
}

// PublicCatalog lists public products, newest first.
func (s *Service) PublicCatalog(ctx context.Context, categoryID string, search string) ([]domain.CatalogProduct, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{
		PublicOnly: true,
		CategoryID: strings.TrimSpace(categoryID),
		Search:     search,
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(products, func(a, b domain.Product) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	result := make([]domain.CatalogProduct, 0, len(products))
	for _, p := range products {
		result = append(result, domain.CatalogProduct{
			ID:             p.ID,
			Name:           p.Name,
			SalePriceCents: p.SalePriceCents,
			ImageURL:       p.ImageURL,
			CategoryName:   p.CategoryName,
		})
	}
	return result, nil
}

func (s *Service) PublicCategories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.ListPublicCategories(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names, nil
}
