//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dbella_test"),
		tcpostgres.WithUsername("dbella"),
		tcpostgres.WithPassword("dbella"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, url, 20)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func seedLabial(t *testing.T, s *Store) string {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateClient(ctx, domain.Client{ID: "cli_1", Name: "Ana"})
	require.NoError(t, err)
	product, err := s.CreateProduct(ctx, domain.Product{Name: "Labial", SalePriceCents: 200, MinStock: 1, IsPublic: true})
	require.NoError(t, err)

	older := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	_, err = s.CreatePurchaseBatch(ctx, domain.PurchaseBatch{ID: "bat_b", ProductID: product.ID, Quantity: 10, PurchasePriceCents: 120, PurchaseDate: older.AddDate(0, 1, 0)})
	require.NoError(t, err)
	_, err = s.CreatePurchaseBatch(ctx, domain.PurchaseBatch{ID: "bat_a", ProductID: product.ID, Quantity: 5, PurchasePriceCents: 100, PurchaseDate: older})
	require.NoError(t, err)
	return product.ID
}

func TestCheckoutFIFOAgainstPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	productID := seedLabial(t, s)

	sale, err := s.CreateCheckout(ctx, domain.CheckoutDraft{
		ClientID:       "cli_1",
		PaymentMethod:  domain.PaymentCard,
		IdempotencyKey: "idem-pg-1",
		Lines:          []domain.CheckoutLine{{ProductID: productID, Quantity: 8, UnitPriceCents: 200}},
	})
	require.NoError(t, err)

	require.Len(t, sale.Items, 2)
	assert.Equal(t, "bat_a", sale.Items[0].BatchID)
	assert.Equal(t, 5, sale.Items[0].Quantity)
	assert.Equal(t, "bat_b", sale.Items[1].BatchID)
	assert.Equal(t, 3, sale.Items[1].Quantity)
	require.NotNil(t, sale.Profit)
	assert.Equal(t, int64(860), sale.Profit.TotalCostCents)
	assert.Equal(t, int64(740), sale.Profit.ProfitCents)
	assert.InDelta(t, 46.25, sale.Profit.ProfitMargin, 0.0001)

	replay, err := s.CreateCheckout(ctx, domain.CheckoutDraft{
		ClientID:       "cli_1",
		PaymentMethod:  domain.PaymentCard,
		IdempotencyKey: "idem-pg-1",
		Lines:          []domain.CheckoutLine{{ProductID: productID, Quantity: 8, UnitPriceCents: 200}},
	})
	require.NoError(t, err)
	assert.Equal(t, sale.ID, replay.ID)

	p, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 7, p.CurrentStock)

	_, err = s.UpdateUntouchedBatch(ctx, domain.PurchaseBatch{ID: "bat_b", Quantity: 20, PurchasePriceCents: 130})
	require.ErrorIs(t, err, store.ErrBatchLocked)
	require.ErrorIs(t, s.DeleteUntouchedBatch(ctx, "bat_missing"), store.ErrNotFound)
}

func TestConcurrentCheckoutsAgainstPostgresNeverOversell(t *testing.T) {
	s := newIntegrationStore(t)
	productID := seedLabial(t, s)

	var (
		wg   sync.WaitGroup
		sold atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateCheckout(context.Background(), domain.CheckoutDraft{
				ClientID:       "cli_1",
				PaymentMethod:  domain.PaymentTransfer,
				IdempotencyKey: fmt.Sprintf("idem-race-%d", i),
				Lines:          []domain.CheckoutLine{{ProductID: productID, Quantity: 2, UnitPriceCents: 200}},
			})
			if err == nil {
				sold.Add(2)
			}
		}(i)
	}
	wg.Wait()

	p, err := s.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, int64(15-p.CurrentStock), sold.Load())
	assert.GreaterOrEqual(t, p.CurrentStock, 0)
}
