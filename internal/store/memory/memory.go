package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/store"
	"stockledger/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	usersByID      map[int64]domain.User
	userIDByEmail  map[string]int64
	categoriesByID map[int64]domain.Category
	productsByID   map[int64]domain.Product
	salesByID      map[string]domain.Sale
	ordersByID     map[string]domain.PurchaseOrder
	inventoryLog   []domain.InventoryLogEntry
	nextUserID     int64
	nextCategoryID int64
	nextProductID  int64
	nextTierID     int64
}

func New() *Store {
	return &Store{
		usersByID:      make(map[int64]domain.User),
		userIDByEmail:  make(map[string]int64),
		categoriesByID: make(map[int64]domain.Category),
		productsByID:   make(map[int64]domain.Product),
		salesByID:      make(map[string]domain.Sale),
		ordersByID:     make(map[string]domain.PurchaseOrder),
		inventoryLog:   make([]domain.InventoryLogEntry, 0, 128),
	}
}

// NewSeeded builds a store with a dev/demo owner and a small catalog. The
// owner password is read from SEED_OWNER_PASSWORD; a hardcoded dev default is
// used with a warning when unset. Seed data is never used in production (the
// backend uses PostgreSQL when DATABASE_URL is set).
func NewSeeded() *Store {
	s := New()

	password := os.Getenv("SEED_OWNER_PASSWORD")
	if password == "" {
		password = "owner123"
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	now := time.Now().UTC()
	owner := domain.User{
		ID:                1,
		Email:             "owner@stockledger.local",
		PasswordHash:      string(hash),
		CreditCardFeeFlat: 150,
		CreatedAt:         now,
	}
	s.usersByID[owner.ID] = owner
	s.userIDByEmail[owner.Email] = owner.ID
	s.nextUserID = 1

	grocerySale := int64(2000)
	beverageSale := int64(2500)
	beverageBase := int64(1000)
	snackBase := int64(1200)
	groceryID := int64(1)
	categories := []domain.Category{
		{ID: 1, OwnerID: owner.ID, Name: "Grocery", DefaultSalePrice: &grocerySale, CreatedAt: now},
		{ID: 2, OwnerID: owner.ID, Name: "Beverages", ParentID: &groceryID, DefaultSalePrice: &beverageSale, BasePurchasePrice: &beverageBase, CreatedAt: now,
			Tiers: []domain.PurchaseTier{
				{ID: 1, CategoryID: 2, Threshold: 50, PriceCents: 900},
				{ID: 2, CategoryID: 2, Threshold: 100, PriceCents: 800},
			}},
		{ID: 3, OwnerID: owner.ID, Name: "Snacks", ParentID: &groceryID, BasePurchasePrice: &snackBase, CreatedAt: now},
	}
	for _, c := range categories {
		s.categoriesByID[c.ID] = c
	}
	s.nextCategoryID = 3
	s.nextTierID = 2

	bevID, snackID := int64(2), int64(3)
	teaSale := int64(3200)
	products := []domain.Product{
		{ID: 1, OwnerID: owner.ID, Name: "Bottled Water 600ml", CategoryID: &bevID, QuantityInStock: 120, ReorderLevel: 20, RestockLevel: 150, CreatedAt: now},
		{ID: 2, OwnerID: owner.ID, Name: "Iced Tea 500ml", CategoryID: &bevID, SalePrice: &teaSale, QuantityInStock: 80, ReorderLevel: 15, RestockLevel: 100, CreatedAt: now},
		{ID: 3, OwnerID: owner.ID, Name: "Cassava Chips", CategoryID: &snackID, QuantityInStock: 40, ReorderLevel: 10, RestockLevel: 60, CreatedAt: now},
		{ID: 4, OwnerID: owner.ID, Name: "Plain Crackers", CategoryID: &snackID, QuantityInStock: 5, ReorderLevel: 10, RestockLevel: 50, CreatedAt: now},
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
	}
	s.nextProductID = 4

	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.userIDByEmail[user.Email]; exists {
		return nil, store.ErrConflict
	}
	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	s.userIDByEmail[user.Email] = user.ID
	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.userIDByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" || category.OwnerID == 0 {
		return nil, store.ErrValidation
	}
	for _, existing := range s.categoriesByID {
		if existing.OwnerID == category.OwnerID && existing.Name == category.Name {
			return nil, store.ErrValidation
		}
	}
	if category.ParentID != nil {
		parent, exists := s.categoriesByID[*category.ParentID]
		if !exists || parent.OwnerID != category.OwnerID {
			return nil, store.ErrNotFound
		}
	}
	if err := validateTierInputs(tiersToInputs(category.Tiers)); err != nil {
		return nil, err
	}

	s.nextCategoryID++
	category.ID = s.nextCategoryID
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	tiers := make([]domain.PurchaseTier, 0, len(category.Tiers))
	for _, t := range sortedTiers(category.Tiers) {
		s.nextTierID++
		tiers = append(tiers, domain.PurchaseTier{
			ID:         s.nextTierID,
			CategoryID: category.ID,
			Threshold:  t.Threshold,
			PriceCents: t.PriceCents,
		})
	}
	category.Tiers = tiers

	s.categoriesByID[category.ID] = cloneCategory(category)
	created := cloneCategory(category)
	return &created, nil
}

func (s *Store) GetCategoryByID(_ context.Context, ownerID, categoryID int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categoriesByID[categoryID]
	if !exists || category.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	copyCategory := cloneCategory(category)
	return &copyCategory, nil
}

func (s *Store) ListCategories(_ context.Context, ownerID int64) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categoriesByID))
	for _, category := range s.categoriesByID {
		if category.OwnerID != ownerID {
			continue
		}
		result = append(result, cloneCategory(category))
	}
	slices.SortFunc(result, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category, cascadeSale, cascadePurchase, force bool) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.categoriesByID[category.ID]
	if !exists || existing.OwnerID != category.OwnerID {
		return nil, store.ErrNotFound
	}
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrValidation
	}
	for id, other := range s.categoriesByID {
		if id != category.ID && other.OwnerID == category.OwnerID && other.Name == category.Name {
			return nil, store.ErrValidation
		}
	}
	if category.ParentID != nil {
		if err := s.checkParentLocked(category.OwnerID, category.ID, *category.ParentID); err != nil {
			return nil, err
		}
	}

	category.Tiers = existing.Tiers
	category.CreatedAt = existing.CreatedAt
	s.categoriesByID[category.ID] = cloneCategory(category)

	// Cascade after the category row itself: force overwrites every member
	// product, otherwise only products that inherit (no override) are set.
	for id, p := range s.productsByID {
		if p.OwnerID != category.OwnerID || p.CategoryID == nil || *p.CategoryID != category.ID {
			continue
		}
		if cascadeSale && (force || p.SalePrice == nil) {
			p.SalePrice = cloneInt64(category.DefaultSalePrice)
		}
		if cascadePurchase && (force || p.UnitCost == nil) {
			p.UnitCost = cloneInt64(category.BasePurchasePrice)
		}
		s.productsByID[id] = p
	}

	updated := cloneCategory(s.categoriesByID[category.ID])
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, ownerID, categoryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, exists := s.categoriesByID[categoryID]
	if !exists || category.OwnerID != ownerID {
		return store.ErrNotFound
	}
	for _, p := range s.productsByID {
		if p.OwnerID == ownerID && p.CategoryID != nil && *p.CategoryID == categoryID {
			return store.ErrConflict
		}
	}

	// Re-parent children to the deleted node's parent so the tree stays whole.
	for id, child := range s.categoriesByID {
		if child.ParentID != nil && *child.ParentID == categoryID {
			child.ParentID = cloneInt64(category.ParentID)
			s.categoriesByID[id] = child
		}
	}
	delete(s.categoriesByID, categoryID)
	return nil
}

func (s *Store) ReplaceTiers(_ context.Context, ownerID, categoryID int64, tiers []domain.TierInput) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, exists := s.categoriesByID[categoryID]
	if !exists || category.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	if err := validateTierInputs(tiers); err != nil {
		return nil, err
	}

	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b domain.TierInput) int { return a.Threshold - b.Threshold })
	next := make([]domain.PurchaseTier, 0, len(sorted))
	for _, t := range sorted {
		s.nextTierID++
		next = append(next, domain.PurchaseTier{
			ID:         s.nextTierID,
			CategoryID: categoryID,
			Threshold:  t.Threshold,
			PriceCents: t.PriceCents,
		})
	}
	category.Tiers = next
	s.categoriesByID[categoryID] = cloneCategory(category)
	updated := cloneCategory(category)
	return &updated, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.OwnerID == 0 {
		return nil, store.ErrValidation
	}
	if (product.SalePrice != nil && *product.SalePrice < 0) || (product.UnitCost != nil && *product.UnitCost < 0) {
		return nil, store.ErrValidation
	}
	for _, existing := range s.productsByID {
		if existing.OwnerID == product.OwnerID && existing.Name == product.Name {
			return nil, store.ErrValidation
		}
	}
	if product.CategoryID != nil {
		category, exists := s.categoriesByID[*product.CategoryID]
		if !exists || category.OwnerID != product.OwnerID {
			return nil, store.ErrNotFound
		}
	}

	s.nextProductID++
	product.ID = s.nextProductID
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, ownerID, productID int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[productID]
	if !exists || product.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context, ownerID int64) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.productsByID))
	for _, product := range s.productsByID {
		if product.OwnerID != ownerID {
			continue
		}
		result = append(result, product)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists || existing.OwnerID != product.OwnerID {
		return nil, store.ErrNotFound
	}
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return nil, store.ErrValidation
	}
	for id, other := range s.productsByID {
		if id != product.ID && other.OwnerID == product.OwnerID && other.Name == product.Name {
			return nil, store.ErrValidation
		}
	}
	if product.CategoryID != nil {
		category, catExists := s.categoriesByID[*product.CategoryID]
		if !catExists || category.OwnerID != product.OwnerID {
			return nil, store.ErrNotFound
		}
	}

	product.QuantityInStock = existing.QuantityInStock
	product.CreatedAt = existing.CreatedAt
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, ownerID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists || product.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.productsByID, productID)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, []domain.StockWarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.Date.IsZero() {
		sale.Date = now
	}

	if err := s.validateSaleItemsLocked(sale.OwnerID, sale.Items); err != nil {
		return nil, nil, err
	}

	warnings := s.applySaleItemsLocked(&sale, now)
	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, warnings, nil
}

func (s *Store) GetSaleByID(_ context.Context, ownerID int64, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists || sale.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

// ListSales skips zero-item legacy sales; they remain reachable by id.
func (s *Store) ListSales(_ context.Context, ownerID int64, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.OwnerID != ownerID || len(sale.Items) == 0 {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, []domain.StockWarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.salesByID[sale.ID]
	if !exists || existing.OwnerID != sale.OwnerID {
		return nil, nil, store.ErrNotFound
	}
	if len(sale.Items) == 0 {
		return nil, nil, store.ErrValidation
	}
	// Validate the new item list before touching stock so a bad line leaves
	// everything, the revert included, unapplied.
	if err := s.validateSaleItemsLocked(sale.OwnerID, sale.Items); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	for _, item := range existing.Items {
		// Products deleted since the sale was recorded have no stock to
		// restore; skip them rather than resurrect an empty row.
		product, ok := s.productsByID[item.ProductID]
		if !ok {
			continue
		}
		product.QuantityInStock += item.Quantity
		s.productsByID[item.ProductID] = product
		s.appendLogLocked(domain.InventoryLogEntry{
			OwnerID:      sale.OwnerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypeRevertSaleEdit,
			ChangeAmount: item.Quantity,
			Note:         fmt.Sprintf("reverted previous quantity for sale %s", sale.ID),
			CreatedAt:    now,
		})
	}

	sale.CreatedAt = existing.CreatedAt
	if sale.Date.IsZero() {
		sale.Date = existing.Date
	}
	warnings := s.applySaleItemsLocked(&sale, now)
	s.salesByID[sale.ID] = cloneSale(sale)
	updated := cloneSale(sale)
	return &updated, warnings, nil
}

func (s *Store) DeleteSale(_ context.Context, ownerID int64, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists || sale.OwnerID != ownerID {
		return store.ErrNotFound
	}

	now := time.Now().UTC()
	for _, item := range sale.Items {
		product, ok := s.productsByID[item.ProductID]
		if !ok {
			continue
		}
		product.QuantityInStock += item.Quantity
		s.productsByID[item.ProductID] = product
		s.appendLogLocked(domain.InventoryLogEntry{
			OwnerID:      ownerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypeRevertSale,
			ChangeAmount: item.Quantity,
			Note:         fmt.Sprintf("sale %s deleted", saleID),
			CreatedAt:    now,
		})
	}
	delete(s.salesByID, saleID)
	return nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(po.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, item := range po.Items {
		if item.Quantity < 0 || item.UnitCost < 0 {
			return nil, store.ErrValidation
		}
		product, exists := s.productsByID[item.ProductID]
		if !exists || product.OwnerID != po.OwnerID {
			return nil, store.ErrNotFound
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	now := time.Now().UTC()
	if po.CreatedAt.IsZero() {
		po.CreatedAt = now
	}

	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		item.ID = xid.New("poi")
		item.OrderID = po.ID
		items = append(items, item)

		product := s.productsByID[item.ProductID]
		product.QuantityInStock += item.Quantity
		s.productsByID[item.ProductID] = product
		s.appendLogLocked(domain.InventoryLogEntry{
			OwnerID:      po.OwnerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypePurchase,
			ChangeAmount: item.Quantity,
			Note:         fmt.Sprintf("purchased via order %s", po.ID),
			CreatedAt:    now,
		})
	}
	po.Items = items

	s.ordersByID[po.ID] = clonePurchaseOrder(po)
	created := clonePurchaseOrder(po)
	return &created, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, ownerID int64, orderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.ordersByID[orderID]
	if !exists || po.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	copyPO := clonePurchaseOrder(po)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, ownerID int64, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseOrder, 0, len(s.ordersByID))
	for _, po := range s.ordersByID {
		if po.OwnerID != ownerID {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdatePurchaseOrder rewrites the line set and totals. Stock stays as the
// original receipt left it; orders represent goods already on the shelf.
func (s *Store) UpdatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.ordersByID[po.ID]
	if !exists || existing.OwnerID != po.OwnerID {
		return nil, store.ErrNotFound
	}
	if len(po.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, item := range po.Items {
		if item.Quantity < 0 || item.UnitCost < 0 {
			return nil, store.ErrValidation
		}
		product, prodExists := s.productsByID[item.ProductID]
		if !prodExists || product.OwnerID != po.OwnerID {
			return nil, store.ErrNotFound
		}
	}

	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		item.ID = xid.New("poi")
		item.OrderID = po.ID
		items = append(items, item)
	}
	po.Items = items
	po.CreatedAt = existing.CreatedAt

	s.ordersByID[po.ID] = clonePurchaseOrder(po)
	updated := clonePurchaseOrder(po)
	return &updated, nil
}

func (s *Store) DeletePurchaseOrder(_ context.Context, ownerID int64, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.ordersByID[orderID]
	if !exists || po.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.ordersByID, orderID)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, ownerID, productID int64, delta int, note string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists || product.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	if delta == 0 {
		return nil, store.ErrValidation
	}
	product.QuantityInStock += delta
	s.productsByID[productID] = product
	s.appendLogLocked(domain.InventoryLogEntry{
		OwnerID:      ownerID,
		ProductID:    productID,
		ChangeType:   domain.ChangeTypeManual,
		ChangeAmount: delta,
		Note:         note,
		CreatedAt:    time.Now().UTC(),
	})
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListInventoryLog(_ context.Context, ownerID int64, productID int64, limit int) ([]domain.InventoryLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryLogEntry, 0, 64)
	for _, entry := range s.inventoryLog {
		if entry.OwnerID != ownerID {
			continue
		}
		if productID != 0 && entry.ProductID != productID {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.InventoryLogEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// validateSaleItemsLocked checks every line before any stock mutation.
func (s *Store) validateSaleItemsLocked(ownerID int64, items []domain.SaleItem) error {
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPrice < 0 {
			return store.ErrValidation
		}
		product, exists := s.productsByID[item.ProductID]
		if !exists || product.OwnerID != ownerID {
			return store.ErrNotFound
		}
	}
	return nil
}

// applySaleItemsLocked decrements stock, appends sale ledger entries and
// assigns item ids. Oversell goes through; each negative result becomes a
// warning for the caller.
func (s *Store) applySaleItemsLocked(sale *domain.Sale, now time.Time) []domain.StockWarning {
	var warnings []domain.StockWarning
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		item.ID = xid.New("sli")
		item.SaleID = sale.ID
		items = append(items, item)

		product := s.productsByID[item.ProductID]
		product.QuantityInStock -= item.Quantity
		s.productsByID[item.ProductID] = product
		if product.QuantityInStock < 0 {
			warnings = append(warnings, domain.StockWarning{
				ProductID:   product.ID,
				ProductName: product.Name,
				Resulting:   product.QuantityInStock,
			})
		}
		s.appendLogLocked(domain.InventoryLogEntry{
			OwnerID:      sale.OwnerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypeSale,
			ChangeAmount: -item.Quantity,
			Note:         fmt.Sprintf("sold via sale %s", sale.ID),
			CreatedAt:    now,
		})
	}
	sale.Items = items
	return warnings
}

func (s *Store) appendLogLocked(entry domain.InventoryLogEntry) {
	if entry.ID == "" {
		entry.ID = xid.New("inv")
	}
	s.inventoryLog = append(s.inventoryLog, entry)
}

// checkParentLocked verifies the parent exists, belongs to the owner, and
// does not create a cycle when categoryID adopts it.
func (s *Store) checkParentLocked(ownerID, categoryID, parentID int64) error {
	parent, exists := s.categoriesByID[parentID]
	if !exists || parent.OwnerID != ownerID {
		return store.ErrNotFound
	}
	seen := map[int64]bool{}
	id := parentID
	for {
		if id == categoryID {
			return store.ErrValidation
		}
		if seen[id] {
			return store.ErrValidation
		}
		seen[id] = true
		node, ok := s.categoriesByID[id]
		if !ok || node.ParentID == nil {
			return nil
		}
		id = *node.ParentID
	}
}

func validateTierInputs(tiers []domain.TierInput) error {
	seen := map[int]bool{}
	for _, t := range tiers {
		if t.Threshold < 0 || t.PriceCents < 0 {
			return store.ErrValidation
		}
		if seen[t.Threshold] {
			return store.ErrValidation
		}
		seen[t.Threshold] = true
	}
	return nil
}

func tiersToInputs(tiers []domain.PurchaseTier) []domain.TierInput {
	inputs := make([]domain.TierInput, 0, len(tiers))
	for _, t := range tiers {
		inputs = append(inputs, domain.TierInput{Threshold: t.Threshold, PriceCents: t.PriceCents})
	}
	return inputs
}

func sortedTiers(tiers []domain.PurchaseTier) []domain.PurchaseTier {
	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b domain.PurchaseTier) int { return a.Threshold - b.Threshold })
	return sorted
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	dup := *v
	return &dup
}

func cloneCategory(src domain.Category) domain.Category {
	dup := src
	dup.ParentID = cloneInt64(src.ParentID)
	dup.DefaultSalePrice = cloneInt64(src.DefaultSalePrice)
	dup.BasePurchasePrice = cloneInt64(src.BasePurchasePrice)
	tiers := make([]domain.PurchaseTier, len(src.Tiers))
	copy(tiers, src.Tiers)
	dup.Tiers = tiers
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
