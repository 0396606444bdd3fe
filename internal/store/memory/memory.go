package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/fifo"
	"dbella/pos/internal/store"
	"dbella/pos/internal/xid"
)

type Store struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	categories  map[string]domain.Category
	batches     map[string]domain.PurchaseBatch
	movements   []domain.InventoryMovement
	sales       map[string]domain.Sale
	salesByIdem map[string]string
	clients     map[string]domain.Client
	suppliers   map[string]domain.Supplier
	expenses    map[string]domain.Expense
	auditLogs   []domain.AuditLog
	users       map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		categories:  make(map[string]domain.Category),
		batches:     make(map[string]domain.PurchaseBatch),
		movements:   make([]domain.InventoryMovement, 0, 64),
		sales:       make(map[string]domain.Sale),
		salesByIdem: make(map[string]string),
		clients:     make(map[string]domain.Client),
		suppliers:   make(map[string]domain.Supplier),
		expenses:    make(map[string]domain.Expense),
		auditLogs:   make([]domain.AuditLog, 0, 64),
		users:       make(map[string]domain.UserAccount),
	}
}

// SeedUsers carries the demo account credentials. Empty fields fall back to
// dev defaults.
type SeedUsers struct {
	AdminEmail      string
	AdminPassword   string
	ManagerPassword string
	SellerPassword  string
}

// UsesDefaults reports whether any password would fall back to a dev default.
func (c SeedUsers) UsesDefaults() bool {
	return c.AdminPassword == "" || c.ManagerPassword == "" || c.SellerPassword == ""
}

// seedUsers builds one account per role for dev/demo mode.
func seedUsers(creds SeedUsers, now time.Time) []domain.UserAccount {
	if creds.UsesDefaults() {
		log.Warn().Msg("memory store: using default dev credentials, set SEED_*_PASSWORD to override")
	}
	adminPwd := orDefault(creds.AdminPassword, "admin12345")
	managerPwd := orDefault(creds.ManagerPassword, "gerente12345")
	sellerPwd := orDefault(creds.SellerPassword, "vendedor12345")

	users := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		id       string
		email    string
		password string
		role     domain.Role
	}{
		{"usr_admin", orDefault(strings.TrimSpace(creds.AdminEmail), "admin@dbella.co"), adminPwd, domain.RoleAdmin},
		{"usr_gerente", "gerente@dbella.co", managerPwd, domain.RoleManager},
		{"usr_vendedor", "vendedor@dbella.co", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("email", u.email).Msg("memory store: hash seed password")
		}
		users = append(users, domain.UserAccount{
			ID:        u.id,
			Email:     strings.ToLower(u.email),
			Password:  string(hash),
			FullName:  string(u.role),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// NewSeeded returns a store with a small cosmetics catalog, stocked batches,
// a walk-in client and one user per role.
func NewSeeded(creds SeedUsers) *Store {
	s := New()
	now := time.Now().UTC()

	for _, u := range seedUsers(creds, now) {
		s.users[u.ID] = u
	}

	categories := []domain.Category{
		{ID: "cat_labios", Name: "Labios", Description: "Labiales y brillos"},
		{ID: "cat_rostro", Name: "Rostro", Description: "Bases, polvos y correctores"},
		{ID: "cat_ojos", Name: "Ojos", Description: "Pestañinas y delineadores"},
		{ID: "cat_cuidado", Name: "Cuidado de la piel", Description: "Cremas y sueros"},
	}
	for _, c := range categories {
		c.CreatedAt = now
		s.categories[c.ID] = c
	}

	s.suppliers["sup_belleza"] = domain.Supplier{ID: "sup_belleza", Name: "Distribuidora Belleza Andina", Contact: "Laura Gómez", Phone: "3001234567", CreatedAt: now}
	s.clients["cli_general"] = domain.Client{ID: "cli_general", Name: domain.DefaultClientName, CreatedAt: now}

	products := []domain.Product{
		{ID: "prd_labial_mate", Name: "Labial Mate Rubí", Barcode: "7701234000011", CategoryID: "cat_labios", SalePriceCents: 3500000, MinStock: 5},
		{ID: "prd_brillo", Name: "Brillo Labial Nude", Barcode: "7701234000028", CategoryID: "cat_labios", SalePriceCents: 2200000, MinStock: 5},
		{ID: "prd_base", Name: "Base Líquida Tono Medio", Barcode: "7701234000035", CategoryID: "cat_rostro", SalePriceCents: 6800000, MinStock: 3},
		{ID: "prd_polvo", Name: "Polvo Compacto Translúcido", Barcode: "7701234000042", CategoryID: "cat_rostro", SalePriceCents: 4500000, MinStock: 3},
		{ID: "prd_pestanina", Name: "Pestañina Volumen", Barcode: "7701234000059", CategoryID: "cat_ojos", SalePriceCents: 3900000, MinStock: 4},
		{ID: "prd_serum", Name: "Sérum Vitamina C", Barcode: "7701234000066", CategoryID: "cat_cuidado", SalePriceCents: 8900000, MinStock: 2},
	}
	for i, p := range products {
		p.SupplierID = "sup_belleza"
		p.IsPublic = true
		p.CreatedAt = now.Add(time.Duration(i) * time.Second)
		p.UpdatedAt = p.CreatedAt
		s.products[p.ID] = p

		batchID := "bat_" + strings.TrimPrefix(p.ID, "prd_")
		s.batches[batchID] = domain.PurchaseBatch{
			ID:                 batchID,
			ProductID:          p.ID,
			SupplierID:         "sup_belleza",
			Quantity:           40,
			RemainingQuantity:  40,
			PurchasePriceCents: p.SalePriceCents * 55 / 100,
			PurchaseDate:       now.AddDate(0, 0, -30),
			CreatedBy:          "usr_admin",
			CreatedAt:          now,
			UpdatedAt:          now,
		}
	}

	return s
}

func (s *Store) stockOf(productID string) int {
	total := 0
	for _, b := range s.batches {
		if b.ProductID == productID {
			total += b.RemainingQuantity
		}
	}
	return total
}

func (s *Store) hydrateProduct(p domain.Product) domain.Product {
	p.CurrentStock = s.stockOf(p.ID)
	if c, ok := s.categories[p.CategoryID]; ok {
		p.CategoryName = c.Name
	}
	return p
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.PublicOnly && !p.IsPublic {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(p.Barcode, search) {
			continue
		}
		result = append(result, s.hydrateProduct(p))
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	hydrated := s.hydrateProduct(p)
	return &hydrated, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if barcode != "" && p.Barcode == barcode {
			hydrated := s.hydrateProduct(p)
			return &hydrated, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = s.hydrateProduct(p)
		}
	}
	return result, nil
}

func (s *Store) barcodeTaken(barcode string, exceptID string) bool {
	if barcode == "" {
		return false
	}
	for _, p := range s.products {
		if p.ID != exceptID && p.Barcode == barcode {
			return true
		}
	}
	return false
}

func (s *Store) checkProductRefs(p domain.Product) error {
	if p.CategoryID != "" {
		if _, ok := s.categories[p.CategoryID]; !ok {
			return store.ErrInvalidInput
		}
	}
	if p.SupplierID != "" {
		if _, ok := s.suppliers[p.SupplierID]; !ok {
			return store.ErrInvalidInput
		}
	}
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SalePriceCents < 1 || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.barcodeTaken(product.Barcode, "") {
		return nil, store.ErrConflict
	}
	if err := s.checkProductRefs(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := s.hydrateProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SalePriceCents < 1 || product.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.barcodeTaken(product.Barcode, product.ID) {
		return nil, store.ErrConflict
	}
	if err := s.checkProductRefs(product); err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := s.hydrateProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, b := range s.batches {
		if b.ProductID == id {
			return store.ErrConflict
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListLowStockProducts(_ context.Context, limit int) ([]domain.LowStockProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.lowStockLocked()
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) lowStockLocked() []domain.LowStockProduct {
	result := make([]domain.LowStockProduct, 0, 8)
	for _, p := range s.products {
		stock := s.stockOf(p.ID)
		if stock <= p.MinStock {
			result = append(result, domain.LowStockProduct{ID: p.ID, Name: p.Name, CurrentStock: stock, MinStock: p.MinStock})
		}
	}
	slices.SortFunc(result, func(a, b domain.LowStockProduct) int {
		if a.CurrentStock != b.CurrentStock {
			return a.CurrentStock - b.CurrentStock
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	sortByName(result, func(c domain.Category) string { return c.Name })
	return result, nil
}

func (s *Store) ListPublicCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	used := make(map[string]struct{})
	for _, p := range s.products {
		if p.IsPublic && p.CategoryID != "" {
			used[p.CategoryID] = struct{}{}
		}
	}
	result := make([]domain.Category, 0, len(used))
	for id := range used {
		if c, ok := s.categories[id]; ok {
			result = append(result, c)
		}
	}
	sortByName(result, func(c domain.Category) string { return c.Name })
	return result, nil
}

func (s *Store) categoryNameTaken(name string, exceptID string) bool {
	for _, c := range s.categories {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.categoryNameTaken(category.Name, "") {
		return nil, store.ErrConflict
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	category.CreatedAt = time.Now().UTC()
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.categories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.categoryNameTaken(category.Name, category.ID) {
		return nil, store.ErrConflict
	}
	category.CreatedAt = existing.CreatedAt
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	for pid, p := range s.products {
		if p.CategoryID == id {
			p.CategoryID = ""
			s.products[pid] = p
		}
	}
	return nil
}

func (s *Store) CreatePurchaseBatch(_ context.Context, batch domain.PurchaseBatch) (*domain.PurchaseBatch, error) {
	if batch.ProductID == "" || batch.Quantity < 1 || batch.PurchasePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[batch.ProductID]
	if !ok {
		return nil, store.ErrInvalidInput
	}
	if batch.SupplierID != "" {
		if _, ok := s.suppliers[batch.SupplierID]; !ok {
			return nil, store.ErrInvalidInput
		}
	}

	now := time.Now().UTC()
	if batch.ID == "" {
		batch.ID = xid.New("bat")
	}
	if batch.PurchaseDate.IsZero() {
		batch.PurchaseDate = now
	}
	batch.RemainingQuantity = batch.Quantity
	batch.CreatedAt = now
	batch.UpdatedAt = now
	s.batches[batch.ID] = batch

	s.movements = append(s.movements, domain.InventoryMovement{
		ID:           xid.New("mov"),
		ProductID:    batch.ProductID,
		BatchID:      batch.ID,
		MovementType: domain.MovementIn,
		Quantity:     batch.Quantity,
		Reason:       "Compra lote " + batch.ID,
		CreatedBy:    batch.CreatedBy,
		CreatedAt:    now,
	})

	batch.ProductName = product.Name
	return &batch, nil
}

func (s *Store) GetPurchaseBatch(_ context.Context, id string) (*domain.PurchaseBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	b.ProductName = s.products[b.ProductID].Name
	return &b, nil
}

func (s *Store) ListPurchaseBatches(_ context.Context, filter domain.BatchFilter) ([]domain.PurchaseBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseBatch, 0, len(s.batches))
	for _, b := range s.batches {
		if filter.ProductID != "" && b.ProductID != filter.ProductID {
			continue
		}
		if filter.InStockOnly && b.RemainingQuantity < 1 {
			continue
		}
		b.ProductName = s.products[b.ProductID].Name
		result = append(result, b)
	}
	slices.SortFunc(result, func(a, b domain.PurchaseBatch) int {
		if c := b.PurchaseDate.Compare(a.PurchaseDate); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateUntouchedBatch(_ context.Context, batch domain.PurchaseBatch) (*domain.PurchaseBatch, error) {
	if batch.Quantity < 1 || batch.PurchasePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.batches[batch.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !existing.Untouched() {
		return nil, store.ErrBatchLocked
	}
	if batch.SupplierID != "" {
		if _, ok := s.suppliers[batch.SupplierID]; !ok {
			return nil, store.ErrInvalidInput
		}
	}

	existing.Quantity = batch.Quantity
	existing.RemainingQuantity = batch.Quantity
	existing.PurchasePriceCents = batch.PurchasePriceCents
	existing.SupplierID = batch.SupplierID
	existing.UpdatedAt = time.Now().UTC()
	s.batches[existing.ID] = existing

	existing.ProductName = s.products[existing.ProductID].Name
	return &existing, nil
}

func (s *Store) DeleteUntouchedBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	if !existing.Untouched() {
		return store.ErrBatchLocked
	}
	delete(s.batches, id)
	return nil
}

func (s *Store) ListInventoryMovements(_ context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryMovement, 0, len(s.movements))
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if productID != "" && m.ProductID != productID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// lotsFor returns the product's batches with stock, oldest first.
func (s *Store) lotsFor(productID string) []fifo.Lot {
	lots := make([]fifo.Lot, 0, 4)
	for _, b := range s.batches {
		if b.ProductID != productID || b.RemainingQuantity < 1 {
			continue
		}
		lots = append(lots, fifo.Lot{
			BatchID:       b.ID,
			Remaining:     b.RemainingQuantity,
			UnitCostCents: b.PurchasePriceCents,
			PurchaseDate:  b.PurchaseDate,
			CreatedAt:     b.CreatedAt,
		})
	}
	fifo.Sort(lots)
	return lots
}

func sortByName[T any](items []T, name func(T) string) {
	slices.SortFunc(items, func(a, b T) int {
		return strings.Compare(strings.ToLower(name(a)), strings.ToLower(name(b)))
	})
}
