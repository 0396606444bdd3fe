package domain

import "time"

const (
	PaymentCash     = "efectivo"
	PaymentCard     = "tarjeta"
	PaymentTransfer = "transferencia"

	MovementIn  = "entrada"
	MovementOut = "salida"

	DefaultClientName = "Cliente General"
)

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Barcode        string    `json:"barcode,omitempty"`
	CategoryID     string    `json:"category_id,omitempty"`
	CategoryName   string    `json:"category_name,omitempty"`
	SupplierID     string    `json:"supplier_id,omitempty"`
	SalePriceCents int64     `json:"sale_price_cents"`
	MinStock       int       `json:"min_stock"`
	CurrentStock   int       `json:"current_stock"`
	ImageURL       string    `json:"image_url,omitempty"`
	IsPublic       bool      `json:"is_public"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ProductFilter struct {
	Search     string
	CategoryID string
	PublicOnly bool
	Limit      int
}

type ProductCreateRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=2000"`
	Barcode        string `json:"barcode" validate:"omitempty,max=64"`
	CategoryID     string `json:"category_id"`
	SupplierID     string `json:"supplier_id"`
	SalePriceCents int64  `json:"sale_price_cents" validate:"gt=0"`
	MinStock       int    `json:"min_stock" validate:"gte=0"`
	IsPublic       *bool  `json:"is_public"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description    *string `json:"description" validate:"omitempty,max=2000"`
	Barcode        *string `json:"barcode" validate:"omitempty,max=64"`
	CategoryID     *string `json:"category_id"`
	SupplierID     *string `json:"supplier_id"`
	SalePriceCents *int64  `json:"sale_price_cents" validate:"omitempty,gt=0"`
	MinStock       *int    `json:"min_stock" validate:"omitempty,gte=0"`
	IsPublic       *bool   `json:"is_public"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
}

type PurchaseBatch struct {
	ID                 string    `json:"id"`
	ProductID          string    `json:"product_id"`
	ProductName        string    `json:"product_name,omitempty"`
	SupplierID         string    `json:"supplier_id,omitempty"`
	Quantity           int       `json:"quantity"`
	RemainingQuantity  int       `json:"remaining_quantity"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	PurchaseDate       time.Time `json:"purchase_date"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Untouched reports whether no unit of the batch has been sold yet.
func (b PurchaseBatch) Untouched() bool {
	return b.RemainingQuantity == b.Quantity
}

type BatchFilter struct {
	ProductID   string
	InStockOnly bool
	Limit       int
}

type BatchCreateRequest struct {
	ProductID          string     `json:"product_id" validate:"required"`
	SupplierID         string     `json:"supplier_id"`
	Quantity           int        `json:"quantity" validate:"gt=0"`
	PurchasePriceCents int64      `json:"purchase_price_cents" validate:"gte=0"`
	PurchaseDate       *time.Time `json:"purchase_date"`
}

type BatchUpdateRequest struct {
	Quantity           int    `json:"quantity" validate:"gt=0"`
	PurchasePriceCents int64  `json:"purchase_price_cents" validate:"gte=0"`
	SupplierID         string `json:"supplier_id"`
}

type InventoryMovement struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	BatchID      string    `json:"batch_id,omitempty"`
	MovementType string    `json:"movement_type"`
	Quantity     int       `json:"quantity"`
	Reason       string    `json:"reason"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type LowStockProduct struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CurrentStock int    `json:"current_stock"`
	MinStock     int    `json:"min_stock"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ClientRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=40"`
	Address string `json:"address" validate:"max=300"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Contact string `json:"contact" validate:"max=200"`
	Phone   string `json:"phone" validate:"max=40"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=300"`
}

type Expense struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category,omitempty"`
	ExpenseDate time.Time `json:"expense_date"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseRequest struct {
	Description string `json:"description" validate:"required,max=300"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Category    string `json:"category" validate:"max=120"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
}

type ExpenseSummary struct {
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	TotalCents int64                  `json:"total_cents"`
	Count      int                    `json:"count"`
	ByCategory []ExpenseCategoryTotal `json:"by_category"`
}

type ExpenseCategoryTotal struct {
	Category   string `json:"category"`
	Count      int    `json:"count"`
	TotalCents int64  `json:"total_cents"`
}

type Sale struct {
	ID                  string       `json:"id"`
	ClientID            string       `json:"client_id"`
	ClientName          string       `json:"client_name,omitempty"`
	PaymentMethod       string       `json:"payment_method"`
	TotalCents          int64        `json:"total_cents"`
	AmountReceivedCents int64        `json:"amount_received_cents"`
	ChangeCents         int64        `json:"change_cents"`
	IdempotencyKey      string       `json:"idempotency_key,omitempty"`
	CreatedBy           string       `json:"created_by,omitempty"`
	SaleDate            time.Time    `json:"sale_date"`
	Items               []SaleItem   `json:"items,omitempty"`
	Profit              *SalesProfit `json:"profit,omitempty"`
}

type SaleItem struct {
	ID             string `json:"id"`
	SaleID         string `json:"sale_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	BatchID        string `json:"batch_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
}

type SalesProfit struct {
	SaleID         string    `json:"sale_id"`
	TotalCostCents int64     `json:"total_cost_cents"`
	TotalSaleCents int64     `json:"total_sale_cents"`
	ProfitCents    int64     `json:"profit_cents"`
	ProfitMargin   float64   `json:"profit_margin"`
	CreatedAt      time.Time `json:"created_at"`
}

// CheckoutLine is a priced, merged cart line ready for allocation.
type CheckoutLine struct {
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int64
}

// CheckoutDraft is what the service hands to the store once the cart has been validated.
type CheckoutDraft struct {
	SaleID              string
	IdempotencyKey      string
	ClientID            string
	PaymentMethod       string
	AmountReceivedCents int64
	CreatedBy           string
	SaleDate            time.Time
	Lines               []CheckoutLine
}

type CartItem struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
}

type CheckoutRequest struct {
	ClientID            string     `json:"client_id"`
	PaymentMethod       string     `json:"payment_method"`
	AmountReceivedCents int64      `json:"amount_received_cents"`
	IdempotencyKey      string     `json:"idempotency_key"`
	Items               []CartItem `json:"items"`
}

type CheckoutResponse struct {
	SaleID              string       `json:"sale_id"`
	ClientID            string       `json:"client_id"`
	PaymentMethod       string       `json:"payment_method"`
	TotalCents          int64        `json:"total_cents"`
	AmountReceivedCents int64        `json:"amount_received_cents"`
	ChangeCents         int64        `json:"change_cents"`
	ItemCount           int          `json:"item_count"`
	Items               []SaleItem   `json:"items"`
	Profit              *SalesProfit `json:"profit,omitempty"`
	Duplicate           bool         `json:"duplicate"`
	SaleDate            string       `json:"sale_date"`
}

type CheckoutLookupResponse struct {
	Found    bool              `json:"found"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

type SaleFilter struct {
	From     time.Time
	To       time.Time
	ClientID string
	Limit    int
}

// SaleRow is a sale joined with its client and profit, used by listings and exports.
type SaleRow struct {
	ID             string    `json:"id"`
	SaleDate       time.Time `json:"sale_date"`
	ClientID       string    `json:"client_id"`
	ClientName     string    `json:"client_name"`
	PaymentMethod  string    `json:"payment_method"`
	TotalCents     int64     `json:"total_cents"`
	TotalCostCents int64     `json:"total_cost_cents"`
	ProfitCents    int64     `json:"profit_cents"`
	ProfitMargin   float64   `json:"profit_margin"`
}

// SaleListItem hides financial fields unless the caller may see them.
type SaleListItem struct {
	ID            string   `json:"id"`
	SaleDate      string   `json:"sale_date"`
	ClientID      string   `json:"client_id"`
	ClientName    string   `json:"client_name"`
	PaymentMethod string   `json:"payment_method"`
	TotalCents    int64    `json:"total_cents"`
	ProfitCents   *int64   `json:"profit_cents,omitempty"`
	ProfitMargin  *float64 `json:"profit_margin,omitempty"`
}

type SaleListResponse struct {
	From        string         `json:"from"`
	To          string         `json:"to"`
	Count       int            `json:"count"`
	TotalCents  int64          `json:"total_cents"`
	ProfitCents *int64         `json:"profit_cents,omitempty"`
	Sales       []SaleListItem `json:"sales"`
}

type ProfitReport struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Count         int       `json:"count"`
	RevenueCents  int64     `json:"revenue_cents"`
	CostCents     int64     `json:"cost_cents"`
	ProfitCents   int64     `json:"profit_cents"`
	AverageMargin float64   `json:"average_margin"`
	Rows          []SaleRow `json:"rows"`
}

type DashboardTotals struct {
	ProductCount  int
	SalesCount    int
	RevenueCents  int64
	ProfitCents   int64
	LowStockCount int
	ClientCount   int
}

type Dashboard struct {
	Since         string            `json:"since"`
	ProductCount  *int              `json:"product_count,omitempty"`
	SalesCount    *int              `json:"sales_count,omitempty"`
	RevenueCents  *int64            `json:"revenue_cents,omitempty"`
	ProfitCents   *int64            `json:"profit_cents,omitempty"`
	LowStockCount *int              `json:"low_stock_count,omitempty"`
	LowStock      []LowStockProduct `json:"low_stock,omitempty"`
	ClientCount   *int              `json:"client_count,omitempty"`
	RecentSales   []SaleListItem    `json:"recent_sales,omitempty"`
	GeneratedAt   string            `json:"generated_at"`
}

type CatalogProduct struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SalePriceCents int64  `json:"sale_price_cents"`
	ImageURL       string `json:"image_url,omitempty"`
	CategoryName   string `json:"category_name,omitempty"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type UserAccount struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name,omitempty"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=200"`
}

type RoleUpdateRequest struct {
	Role Role `json:"role"`
}

type MeResponse struct {
	UserID      string          `json:"user_id"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Permissions map[string]bool `json:"permissions"`
}
