package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
)

func seedTwoBatches(t *testing.T) (*Store, string) {
	t.Helper()
	ctx := context.Background()
	s := New()

	_, err := s.CreateClient(ctx, domain.Client{ID: "cli_1", Name: "Ana"})
	require.NoError(t, err)
	product, err := s.CreateProduct(ctx, domain.Product{Name: "Labial", SalePriceCents: 200, MinStock: 1})
	require.NoError(t, err)

	older := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	_, err = s.CreatePurchaseBatch(ctx, domain.PurchaseBatch{ID: "bat_b", ProductID: product.ID, Quantity: 10, PurchasePriceCents: 120, PurchaseDate: older.AddDate(0, 1, 0)})
	require.NoError(t, err)
	_, err = s.CreatePurchaseBatch(ctx, domain.PurchaseBatch{ID: "bat_a", ProductID: product.ID, Quantity: 5, PurchasePriceCents: 100, PurchaseDate: older})
	require.NoError(t, err)

	return s, product.ID
}

func draftFor(productID string, qty int) domain.CheckoutDraft {
	return domain.CheckoutDraft{
		ClientID:      "cli_1",
		PaymentMethod: domain.PaymentCard,
		Lines:         []domain.CheckoutLine{{ProductID: productID, Quantity: qty, UnitPriceCents: 200}},
	}
}

func TestCreateCheckoutAllocatesFIFOAndRecordsProfit(t *testing.T) {
	s, productID := seedTwoBatches(t)
	ctx := context.Background()

	sale, err := s.CreateCheckout(ctx, draftFor(productID, 8))
	require.NoError(t, err)

	require.Len(t, sale.Items, 2)
	assert.Equal(t, "bat_a", sale.Items[0].BatchID)
	assert.Equal(t, 5, sale.Items[0].Quantity)
	assert.Equal(t, "bat_b", sale.Items[1].BatchID)
	assert.Equal(t, 3, sale.Items[1].Quantity)

	var subtotal int64
	for _, item := range sale.Items {
		subtotal += item.SubtotalCents
	}
	assert.Equal(t, sale.TotalCents, subtotal)
	assert.Equal(t, int64(1600), sale.TotalCents)

	require.NotNil(t, sale.Profit)
	assert.Equal(t, int64(860), sale.Profit.TotalCostCents)
	assert.Equal(t, int64(740), sale.Profit.ProfitCents)
	assert.InDelta(t, 46.25, sale.Profit.ProfitMargin, 0.0001)

	a, _ := s.GetPurchaseBatch(ctx, "bat_a")
	b, _ := s.GetPurchaseBatch(ctx, "bat_b")
	assert.Equal(t, 0, a.RemainingQuantity)
	assert.Equal(t, 7, b.RemainingQuantity)

	movements, err := s.ListInventoryMovements(ctx, productID, 1)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.MovementOut, movements[0].MovementType)
	assert.Equal(t, "Venta #"+sale.ID, movements[0].Reason)
}

func TestCreateCheckoutInsufficientStockWritesNothing(t *testing.T) {
	s, productID := seedTwoBatches(t)
	ctx := context.Background()
	other, err := s.CreateProduct(ctx, domain.Product{Name: "Rubor", SalePriceCents: 300})
	require.NoError(t, err)
	_, err = s.CreatePurchaseBatch(ctx, domain.PurchaseBatch{ProductID: other.ID, Quantity: 3, PurchasePriceCents: 100})
	require.NoError(t, err)

	draft := draftFor(other.ID, 2)
	draft.Lines = append(draft.Lines, domain.CheckoutLine{ProductID: productID, Quantity: 16, UnitPriceCents: 200})

	_, err = s.CreateCheckout(ctx, draft)

	var stockErr *store.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))
	assert.Equal(t, 15, stockErr.Available)
	assert.Equal(t, "Labial", stockErr.ProductName)

	p, _ := s.GetProduct(ctx, other.ID)
	assert.Equal(t, 3, p.CurrentStock, "first line must not be applied")
	sales, _ := s.ListSales(ctx, domain.SaleFilter{})
	assert.Empty(t, sales)
}

func TestCreateCheckoutCashRequiresEnoughMoney(t *testing.T) {
	s, productID := seedTwoBatches(t)
	draft := draftFor(productID, 2)
	draft.PaymentMethod = domain.PaymentCash
	draft.AmountReceivedCents = 399

	_, err := s.CreateCheckout(context.Background(), draft)
	require.ErrorIs(t, err, store.ErrInsufficientPayment)

	draft.AmountReceivedCents = 500
	sale, err := s.CreateCheckout(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, int64(100), sale.ChangeCents)
}

func TestCreateCheckoutReplaysIdempotencyKey(t *testing.T) {
	s, productID := seedTwoBatches(t)
	draft := draftFor(productID, 1)
	draft.IdempotencyKey = "idem-1"

	first, err := s.CreateCheckout(context.Background(), draft)
	require.NoError(t, err)
	second, err := s.CreateCheckout(context.Background(), draft)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	p, _ := s.GetProduct(context.Background(), productID)
	assert.Equal(t, 14, p.CurrentStock)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	s, productID := seedTwoBatches(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			draft := draftFor(productID, 2)
			draft.IdempotencyKey = fmt.Sprintf("idem-%d", i)
			if _, err := s.CreateCheckout(context.Background(), draft); err == nil {
				mu.Lock()
				sold += 2
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	p, err := s.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, 14, sold)
	assert.Equal(t, 1, p.CurrentStock)
}

func TestUpdateUntouchedBatchLocksAfterSale(t *testing.T) {
	s, productID := seedTwoBatches(t)
	ctx := context.Background()

	updated, err := s.UpdateUntouchedBatch(ctx, domain.PurchaseBatch{ID: "bat_b", Quantity: 12, PurchasePriceCents: 125})
	require.NoError(t, err)
	assert.Equal(t, 12, updated.RemainingQuantity)

	_, err = s.CreateCheckout(ctx, draftFor(productID, 6))
	require.NoError(t, err)

	_, err = s.UpdateUntouchedBatch(ctx, domain.PurchaseBatch{ID: "bat_b", Quantity: 20, PurchasePriceCents: 125})
	require.ErrorIs(t, err, store.ErrBatchLocked)
	require.ErrorIs(t, s.DeleteUntouchedBatch(ctx, "bat_a"), store.ErrBatchLocked)
}

func TestCreateProductRejectsDuplicateBarcode(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, domain.Product{Name: "A", Barcode: "123", SalePriceCents: 10})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, domain.Product{Name: "B", Barcode: "123", SalePriceCents: 10})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestLowStockListsProductsAtOrBelowMinimum(t *testing.T) {
	s, productID := seedTwoBatches(t)
	ctx := context.Background()
	_, err := s.CreateCheckout(ctx, draftFor(productID, 14))
	require.NoError(t, err)

	low, err := s.ListLowStockProducts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, 1, low[0].CurrentStock)
}

func TestNewSeededUsesGivenCredentials(t *testing.T) {
	ctx := context.Background()
	creds := SeedUsers{AdminEmail: " Duena@DBella.co ", AdminPassword: "Rubor-Coral-77", ManagerPassword: "Sombra-Ocre-88"}
	assert.True(t, creds.UsesDefaults(), "seller password still falls back")

	s := NewSeeded(creds)

	admin, err := s.GetUserByEmail(ctx, "duena@dbella.co")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("Rubor-Coral-77")))

	manager, err := s.GetUserByEmail(ctx, "gerente@dbella.co")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(manager.Password), []byte("Sombra-Ocre-88")))

	seller, err := s.GetUserByEmail(ctx, "vendedor@dbella.co")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(seller.Password), []byte("vendedor12345")))
}
