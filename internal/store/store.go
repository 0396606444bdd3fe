package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dbella/pos/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPayment = errors.New("amount received is lower than the total")
	ErrConflict            = errors.New("conflict")
	ErrBatchLocked         = errors.New("este lote ya no puede ser modificado porque se han descontado productos del inventario")
)

// StockError names the product that cannot be covered by its batches.
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListLowStockProducts(ctx context.Context, limit int) ([]domain.LowStockProduct, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListPublicCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreatePurchaseBatch(ctx context.Context, batch domain.PurchaseBatch) (*domain.PurchaseBatch, error)
	GetPurchaseBatch(ctx context.Context, id string) (*domain.PurchaseBatch, error)
	ListPurchaseBatches(ctx context.Context, filter domain.BatchFilter) ([]domain.PurchaseBatch, error)
	// UpdateUntouchedBatch rewrites quantity, price and supplier only while
	// remaining_quantity still equals quantity. The check and the write are one step.
	UpdateUntouchedBatch(ctx context.Context, batch domain.PurchaseBatch) (*domain.PurchaseBatch, error)
	DeleteUntouchedBatch(ctx context.Context, id string) error
	ListInventoryMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error)

	// CreateCheckout allocates every line FIFO across batches and records the
	// sale, its items and its profit atomically.
	CreateCheckout(ctx context.Context, draft domain.CheckoutDraft) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleRow, error)
	GetDashboardTotals(ctx context.Context, since time.Time) (domain.DashboardTotals, error)

	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	DeleteClient(ctx context.Context, id string) error

	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserRole(ctx context.Context, id string, role domain.Role) (*domain.UserAccount, error)
	CountUsers(ctx context.Context) (int, error)
}
