package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
	"dbella/pos/internal/telemetry"
	"dbella/pos/internal/xid"
)

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	started := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "service.Checkout")
	defer span.End()

	resp, err := s.checkout(ctx, req)
	s.metrics.ObserveCheckout(checkoutResult(resp, err), time.Since(started))

	span.SetAttributes(
		attribute.String("sale.id", resp.SaleID),
		attribute.Int("sale.lines", len(req.Items)),
		attribute.Bool("sale.duplicate", resp.Duplicate),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (s *Service) checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	if req.ClientID == "" {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: client_id is required", store.ErrInvalidInput)
	}

	normalized, err := normalizeItems(req.Items)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
			return s.toCheckoutResponse(ctx, existing, true), nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, err
		}
	}

	if _, err := s.repo.GetClient(ctx, req.ClientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: client %s does not exist", store.ErrInvalidInput, req.ClientID)
		}
		return domain.CheckoutResponse{}, err
	}

	ids := make([]string, 0, len(normalized))
	for _, item := range normalized {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	lines := make([]domain.CheckoutLine, 0, len(normalized))
	var total int64
	for _, item := range normalized {
		product, ok := products[item.ProductID]
		if !ok {
			return domain.CheckoutResponse{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if item.UnitPriceCents > 0 && item.UnitPriceCents != product.SalePriceCents {
			return domain.CheckoutResponse{}, fmt.Errorf("price of %s changed to %d: %w", product.Name, product.SalePriceCents, store.ErrConflict)
		}
		lines = append(lines, domain.CheckoutLine{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: product.SalePriceCents,
		})
		total += int64(item.Quantity) * product.SalePriceCents
	}

	received := req.AmountReceivedCents
	if req.PaymentMethod == domain.PaymentCash {
		if received < total {
			return domain.CheckoutResponse{}, store.ErrInsufficientPayment
		}
	} else {
		received = total
	}

	draft := domain.CheckoutDraft{
		SaleID:              xid.New("sale"),
		IdempotencyKey:      req.IdempotencyKey,
		ClientID:            req.ClientID,
		PaymentMethod:       req.PaymentMethod,
		AmountReceivedCents: received,
		CreatedBy:           s.actorID(ctx),
		SaleDate:            s.now().UTC(),
		Lines:               lines,
	}

	sale, err := s.repo.CreateCheckout(ctx, draft)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	duplicate := sale.ID != draft.SaleID
	if !duplicate {
		s.invalidateDashboard(ctx)
		s.logAudit(ctx, "checkout", "sale", sale.ID, fmt.Sprintf(
			"total=%d,payment=%s,lines=%d,client=%s",
			sale.TotalCents, sale.PaymentMethod, len(lines), sale.ClientID,
		))
	}

	return s.toCheckoutResponse(ctx, sale, duplicate), nil
}

func (s *Service) LookupCheckoutByIdempotency(ctx context.Context, idempotencyKey string) (domain.CheckoutLookupResponse, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return domain.CheckoutLookupResponse{}, store.ErrInvalidInput
	}

	sale, err := s.repo.FindSaleByIdempotency(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutLookupResponse{Found: false}, nil
		}
		return domain.CheckoutLookupResponse{}, err
	}
	checkout := s.toCheckoutResponse(ctx, sale, false)
	return domain.CheckoutLookupResponse{Found: true, Checkout: &checkout}, nil
}

func (s *Service) toCheckoutResponse(ctx context.Context, sale *domain.Sale, duplicate bool) domain.CheckoutResponse {
	redacted := s.redactSale(ctx, sale)
	itemCount := 0
	for _, item := range redacted.Items {
		itemCount += item.Quantity
	}

	return domain.CheckoutResponse{
		SaleID:              redacted.ID,
		ClientID:            redacted.ClientID,
		PaymentMethod:       redacted.PaymentMethod,
		TotalCents:          redacted.TotalCents,
		AmountReceivedCents: redacted.AmountReceivedCents,
		ChangeCents:         redacted.ChangeCents,
		ItemCount:           itemCount,
		Items:               redacted.Items,
		Profit:              redacted.Profit,
		Duplicate:           duplicate,
		SaleDate:            redacted.SaleDate.Format(time.RFC3339),
	}
}

// redactSale drops cost and profit data for callers without rentabilidad.
func (s *Service) redactSale(ctx context.Context, sale *domain.Sale) domain.Sale {
	out := *sale
	out.Items = append([]domain.SaleItem(nil), sale.Items...)
	if s.canSeeProfit(ctx) {
		return out
	}
	out.Profit = nil
	for i := range out.Items {
		out.Items[i].UnitCostCents = 0
	}
	return out
}

// normalizeItems merges lines of the same product, keeping first-seen order.
// A conflicting client price between merged lines is rejected as stale.
func normalizeItems(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", store.ErrInvalidInput)
	}

	index := make(map[string]int, len(items))
	normalized := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" || item.Quantity < 1 {
			return nil, fmt.Errorf("%w: every item needs a product_id and a quantity above zero", store.ErrInvalidInput)
		}
		if item.UnitPriceCents < 0 {
			return nil, fmt.Errorf("%w: unit_price_cents cannot be negative", store.ErrInvalidInput)
		}
		if i, ok := index[item.ProductID]; ok {
			prev := &normalized[i]
			if item.UnitPriceCents > 0 && prev.UnitPriceCents > 0 && item.UnitPriceCents != prev.UnitPriceCents {
				return nil, fmt.Errorf("%w: conflicting prices for %s", store.ErrConflict, item.ProductID)
			}
			prev.Quantity += item.Quantity
			prev.UnitPriceCents = max(prev.UnitPriceCents, item.UnitPriceCents)
			continue
		}
		index[item.ProductID] = len(normalized)
		normalized = append(normalized, item)
	}
	return normalized, nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer:
		return true
	}
	return false
}

func checkoutResult(resp domain.CheckoutResponse, err error) string {
	switch {
	case err == nil && resp.Duplicate:
		return "duplicate"
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict):
		return "invalid"
	}
	return "error"
}
