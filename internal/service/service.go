package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"stockledger/backend/internal/cache"
	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/pricing"
	"stockledger/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	planCache      cache.ReorderPlanCache
	planTTL        time.Duration
	defaultCardFee int64
}

func New(repo store.Repository, planCache cache.ReorderPlanCache, planTTL time.Duration, defaultCardFee int64) *Service {
	if planCache == nil {
		planCache = cache.NoopReorderPlanCache{}
	}
	if planTTL <= 0 {
		planTTL = 60 * time.Second
	}

	return &Service{
		repo:           repo,
		planCache:      planCache,
		planTTL:        planTTL,
		defaultCardFee: defaultCardFee,
	}
}

func (s *Service) owner(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == 0 {
		return domain.Actor{}, fmt.Errorf("authentication required")
	}
	return actor, nil
}

func (s *Service) Register(ctx context.Context, email, passwordHash string, cardFee *int64) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || passwordHash == "" {
		return domain.User{}, store.ErrValidation
	}
	fee := s.defaultCardFee
	if cardFee != nil {
		if *cardFee < 0 {
			return domain.User{}, store.ErrValidation
		}
		fee = *cardFee
	}

	created, err := s.repo.CreateUser(ctx, domain.User{
		Email:             email,
		PasswordHash:      passwordHash,
		CreditCardFeeFlat: fee,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}
	return *created, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Category{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, store.ErrValidation
	}
	if err := validateTiers(req.Tiers); err != nil {
		return domain.Category{}, err
	}
	if (req.DefaultSalePrice != nil && *req.DefaultSalePrice < 0) || (req.BasePurchasePrice != nil && *req.BasePurchasePrice < 0) {
		return domain.Category{}, store.ErrValidation
	}

	tiers := make([]domain.PurchaseTier, 0, len(req.Tiers))
	for _, t := range req.Tiers {
		tiers = append(tiers, domain.PurchaseTier{Threshold: t.Threshold, PriceCents: t.PriceCents})
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		OwnerID:           actor.UserID,
		Name:              req.Name,
		ParentID:          req.ParentID,
		DefaultSalePrice:  req.DefaultSalePrice,
		BasePurchasePrice: req.BasePurchasePrice,
		Tiers:             tiers,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) GetCategory(ctx context.Context, categoryID int64) (domain.Category, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	category, err := s.repo.GetCategoryByID(ctx, actor.UserID, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return *category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, actor.UserID)
}

// UpdateCategory patches the category and cascades price changes to member
// products. A cascade only happens for a field whose value actually changed;
// force overwrites per-product overrides as well.
func (s *Service) UpdateCategory(ctx context.Context, categoryID int64, req domain.CategoryUpdateRequest) (domain.Category, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategoryByID(ctx, actor.UserID, categoryID)
	if err != nil {
		return domain.Category{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Category{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.ClearParent {
		updated.ParentID = nil
	} else if req.ParentID != nil {
		updated.ParentID = req.ParentID
	}

	cascadeSale := false
	if req.DefaultSalePrice != nil {
		if *req.DefaultSalePrice < 0 {
			return domain.Category{}, store.ErrValidation
		}
		cascadeSale = existing.DefaultSalePrice == nil || *existing.DefaultSalePrice != *req.DefaultSalePrice
		updated.DefaultSalePrice = req.DefaultSalePrice
	}
	cascadePurchase := false
	if req.BasePurchasePrice != nil {
		if *req.BasePurchasePrice < 0 {
			return domain.Category{}, store.ErrValidation
		}
		cascadePurchase = existing.BasePurchasePrice == nil || *existing.BasePurchasePrice != *req.BasePurchasePrice
		updated.BasePurchasePrice = req.BasePurchasePrice
	}

	saved, err := s.repo.UpdateCategory(ctx, updated, cascadeSale, cascadePurchase, req.ForceCascade)
	if err != nil {
		return domain.Category{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, categoryID int64) error {
	actor, err := s.owner(ctx)
	if err != nil {
		return err
	}
	return s.repo.DeleteCategory(ctx, actor.UserID, categoryID)
}

// ReplaceTiers swaps the whole tier list for a category. Duplicate
// thresholds are rejected before anything is written.
func (s *Service) ReplaceTiers(ctx context.Context, categoryID int64, tiers []domain.TierInput) (domain.Category, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	if err := validateTiers(tiers); err != nil {
		return domain.Category{}, err
	}

	saved, err := s.repo.ReplaceTiers(ctx, actor.UserID, categoryID, tiers)
	if err != nil {
		return domain.Category{}, err
	}
	return *saved, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.ProductResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.ProductResponse{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.ProductResponse{}, store.ErrValidation
	}
	if (req.SalePrice != nil && *req.SalePrice < 0) || (req.UnitCost != nil && *req.UnitCost < 0) {
		return domain.ProductResponse{}, store.ErrValidation
	}
	if req.ReorderLevel < 0 || req.RestockLevel < 0 {
		return domain.ProductResponse{}, store.ErrValidation
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		OwnerID:         actor.UserID,
		Name:            req.Name,
		CategoryID:      req.CategoryID,
		SalePrice:       req.SalePrice,
		UnitCost:        req.UnitCost,
		QuantityInStock: req.QuantityInStock,
		ReorderLevel:    req.ReorderLevel,
		RestockLevel:    req.RestockLevel,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return domain.ProductResponse{}, err
	}
	return s.toProductResponse(ctx, actor.UserID, *created)
}

func (s *Service) GetProduct(ctx context.Context, productID int64) (domain.ProductResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.ProductResponse{}, err
	}
	product, err := s.repo.GetProductByID(ctx, actor.UserID, productID)
	if err != nil {
		return domain.ProductResponse{}, err
	}
	return s.toProductResponse(ctx, actor.UserID, *product)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.ProductResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	categories, err := s.categoryIndex(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ProductResponse, 0, len(products))
	for _, p := range products {
		resp := domain.ProductResponse{Product: p}
		if price, source, ok := pricing.ResolveSalePrice(p, categories); ok {
			resp.EffectiveSale = &price
			resp.EffectiveSaleFrom = source
		}
		result = append(result, resp)
	}
	return result, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID int64, req domain.ProductUpdateRequest) (domain.ProductResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.ProductResponse{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, actor.UserID, productID)
	if err != nil {
		return domain.ProductResponse{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ProductResponse{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.ClearCategory {
		updated.CategoryID = nil
	} else if req.CategoryID != nil {
		updated.CategoryID = req.CategoryID
	}
	if req.ClearSale {
		updated.SalePrice = nil
	} else if req.SalePrice != nil {
		if *req.SalePrice < 0 {
			return domain.ProductResponse{}, store.ErrValidation
		}
		updated.SalePrice = req.SalePrice
	}
	if req.ClearCost {
		updated.UnitCost = nil
	} else if req.UnitCost != nil {
		if *req.UnitCost < 0 {
			return domain.ProductResponse{}, store.ErrValidation
		}
		updated.UnitCost = req.UnitCost
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.ProductResponse{}, store.ErrValidation
		}
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.RestockLevel != nil {
		if *req.RestockLevel < 0 {
			return domain.ProductResponse{}, store.ErrValidation
		}
		updated.RestockLevel = *req.RestockLevel
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.ProductResponse{}, err
	}
	return s.toProductResponse(ctx, actor.UserID, *saved)
}

func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	actor, err := s.owner(ctx)
	if err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, actor.UserID, productID)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	sale, err := s.buildSale(ctx, actor.UserID, req)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	created, warnings, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	s.reportOversell(created.ID, warnings)
	s.invalidatePlan(ctx, actor.UserID)
	return domain.SaleResponse{Sale: *created, Warnings: warnings}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSaleByID(ctx, actor.UserID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) (domain.SaleListResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	if limit < 1 {
		limit = 100
	}
	sales, err := s.repo.ListSales(ctx, actor.UserID, limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales}, nil
}

// UpdateSale replaces the item list wholesale: prior stock effects are
// reverted from the stored pre-edit quantities, then the new list is applied
// with the same rules as create. The store runs both phases atomically.
func (s *Service) UpdateSale(ctx context.Context, saleID string, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	sale, err := s.buildSale(ctx, actor.UserID, req)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	sale.ID = saleID

	updated, warnings, err := s.repo.UpdateSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	s.reportOversell(updated.ID, warnings)
	s.invalidatePlan(ctx, actor.UserID)
	return domain.SaleResponse{Sale: *updated, Warnings: warnings}, nil
}

func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	actor, err := s.owner(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, actor.UserID, saleID); err != nil {
		return err
	}
	s.invalidatePlan(ctx, actor.UserID)
	return nil
}

// buildSale validates the request and computes the processing fee. The fee
// is the owner's configured flat amount for credit card payments, zero for
// everything else.
func (s *Service) buildSale(ctx context.Context, ownerID int64, req domain.SaleRequest) (domain.Sale, error) {
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale requires at least one item", store.ErrValidation)
	}
	paymentType := strings.ToLower(strings.TrimSpace(req.PaymentType))
	if paymentType == "" {
		paymentType = domain.PaymentTypeCash
	}
	if !isSupportedPaymentType(paymentType) {
		return domain.Sale{}, store.ErrValidation
	}
	saleType := strings.TrimSpace(req.SaleType)
	if saleType == "" {
		saleType = "retail"
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 || item.UnitPrice < 0 {
			return domain.Sale{}, store.ErrValidation
		}
		items = append(items, domain.SaleItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	fee := int64(0)
	if paymentType == domain.PaymentTypeCreditCard {
		user, err := s.repo.GetUserByID(ctx, ownerID)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("resolve card fee: %w", err)
		}
		fee = user.CreditCardFeeFlat
	}

	date := time.Now().UTC()
	if req.Date != nil {
		date = req.Date.UTC()
	}

	return domain.Sale{
		OwnerID:       ownerID,
		Date:          date,
		Notes:         strings.TrimSpace(req.Notes),
		SaleType:      saleType,
		PaymentType:   paymentType,
		ProcessingFee: fee,
		Items:         items,
	}, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderRequest) (domain.PurchaseOrderResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	po, err := s.buildPurchaseOrder(ctx, actor.UserID, req)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	s.invalidatePlan(ctx, actor.UserID)
	return domain.PurchaseOrderResponse{PurchaseOrder: *created}, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, orderID string) (domain.PurchaseOrderResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	po, err := s.repo.GetPurchaseOrderByID(ctx, actor.UserID, orderID)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *po}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, limit int) (domain.PurchaseOrderListResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	if limit < 1 {
		limit = 100
	}
	pos, err := s.repo.ListPurchaseOrders(ctx, actor.UserID, limit)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: pos}, nil
}

// UpdatePurchaseOrder re-resolves costs and totals for the replacement line
// set. Stock adjusted by the original create is left alone; received goods
// are on the shelf regardless of how the paperwork is edited.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, orderID string, req domain.PurchaseOrderRequest) (domain.PurchaseOrderResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	po, err := s.buildPurchaseOrder(ctx, actor.UserID, req)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	po.ID = orderID

	updated, err := s.repo.UpdatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *updated}, nil
}

func (s *Service) DeletePurchaseOrder(ctx context.Context, orderID string) error {
	actor, err := s.owner(ctx)
	if err != nil {
		return err
	}
	return s.repo.DeletePurchaseOrder(ctx, actor.UserID, orderID)
}

// buildPurchaseOrder resolves a unit cost for every line and stamps it.
// Resolution order: explicit line override, then the product's own cost
// override, then the category tier table, then the category base price.
// Tier lookup uses the combined order quantity for the line's category
// unless the legacy per-line mode is requested.
func (s *Service) buildPurchaseOrder(ctx context.Context, ownerID int64, req domain.PurchaseOrderRequest) (domain.PurchaseOrder, error) {
	if len(req.Items) == 0 {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: purchase order requires at least one item", store.ErrValidation)
	}
	if req.ShippingCost < 0 || req.HandlingCost < 0 {
		return domain.PurchaseOrder{}, store.ErrValidation
	}
	tierMode := strings.TrimSpace(req.TierMode)
	if tierMode == "" {
		tierMode = domain.TierModeOrderTotal
	}
	if tierMode != domain.TierModeOrderTotal && tierMode != domain.TierModePerLine {
		return domain.PurchaseOrder{}, store.ErrValidation
	}

	products := make(map[int64]domain.Product, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity < 0 {
			return domain.PurchaseOrder{}, store.ErrValidation
		}
		if line.UnitCost != nil && *line.UnitCost < 0 {
			return domain.PurchaseOrder{}, store.ErrValidation
		}
		if _, seen := products[line.ProductID]; seen {
			continue
		}
		product, err := s.repo.GetProductByID(ctx, ownerID, line.ProductID)
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		products[line.ProductID] = *product
	}

	categories, err := s.categoryIndex(ctx, ownerID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	categoryQty := pricing.CategoryOrderQuantities(req.Items, products)

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	subtotal := int64(0)
	for _, line := range req.Items {
		product := products[line.ProductID]
		override := line.UnitCost
		if override == nil {
			override = product.UnitCost
		}

		var cost int64
		if product.CategoryID == nil {
			if override == nil {
				return domain.PurchaseOrder{}, fmt.Errorf("product %d: %w", line.ProductID, pricing.ErrNoPriceAvailable)
			}
			cost = *override
		} else {
			category := categories[*product.CategoryID]
			qty := categoryQty[*product.CategoryID]
			if tierMode == domain.TierModePerLine {
				cost, err = pricing.ResolvePurchaseCostPerLine(category, line.Quantity, override)
			} else {
				cost, err = pricing.ResolvePurchaseCost(category, qty, override)
			}
			if err != nil {
				return domain.PurchaseOrder{}, fmt.Errorf("product %d: %w", line.ProductID, err)
			}
		}

		items = append(items, domain.PurchaseOrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  cost,
		})
		subtotal += int64(line.Quantity) * cost
	}

	return domain.PurchaseOrder{
		OwnerID:       ownerID,
		ShippingCost:  req.ShippingCost,
		HandlingCost:  req.HandlingCost,
		ItemsSubtotal: subtotal,
		// Handling cost is tracked but excluded from the total by business
		// rule.
		GrandTotal: subtotal + req.ShippingCost,
		Items:      items,
	}, nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.Product, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if req.Delta == 0 {
		return domain.Product{}, store.ErrValidation
	}

	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = "manual adjustment"
	}
	product, err := s.repo.AdjustStock(ctx, actor.UserID, req.ProductID, req.Delta, note)
	if err != nil {
		return domain.Product{}, err
	}
	if product.QuantityInStock < 0 {
		log.Printf("[service] WARN: stock negative after manual adjustment product=%d stock=%d", product.ID, product.QuantityInStock)
	}
	s.invalidatePlan(ctx, actor.UserID)
	return *product, nil
}

func (s *Service) ListInventoryLog(ctx context.Context, productID int64, limit int) (domain.InventoryLogListResponse, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.InventoryLogListResponse{}, err
	}
	if limit < 1 {
		limit = 100
	}
	entries, err := s.repo.ListInventoryLog(ctx, actor.UserID, productID, limit)
	if err != nil {
		return domain.InventoryLogListResponse{}, err
	}
	return domain.InventoryLogListResponse{Entries: entries}, nil
}

// ReorderPlan lists products at or below their reorder level with a
// suggested top-up quantity and an estimated unit cost from the purchase
// resolver. Plans are cached per owner until the next stock write.
func (s *Service) ReorderPlan(ctx context.Context) (domain.ReorderPlan, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return domain.ReorderPlan{}, err
	}

	key := planCacheKey(actor.UserID)
	if cached, ok, err := s.planCache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: reorder plan cache get failed owner=%d: %v", actor.UserID, err)
	}

	products, err := s.repo.ListProducts(ctx, actor.UserID)
	if err != nil {
		return domain.ReorderPlan{}, err
	}
	categories, err := s.categoryIndex(ctx, actor.UserID)
	if err != nil {
		return domain.ReorderPlan{}, err
	}

	suggestions := make([]domain.ReorderSuggestion, 0, 16)
	for _, product := range products {
		if product.QuantityInStock > product.ReorderLevel {
			continue
		}
		qty := product.RestockLevel - product.QuantityInStock
		if qty < 1 {
			continue
		}
		suggestion := domain.ReorderSuggestion{
			ProductID:    product.ID,
			Name:         product.Name,
			CurrentStock: product.QuantityInStock,
			ReorderLevel: product.ReorderLevel,
			SuggestedQty: qty,
		}
		if product.CategoryID != nil {
			if cost, err := pricing.ResolvePurchaseCost(categories[*product.CategoryID], qty, product.UnitCost); err == nil {
				suggestion.EstimatedUnitCost = &cost
			}
		} else if product.UnitCost != nil {
			suggestion.EstimatedUnitCost = product.UnitCost
		}
		suggestions = append(suggestions, suggestion)
	}

	plan := domain.ReorderPlan{
		OwnerID:     actor.UserID,
		GeneratedAt: time.Now().UTC(),
		Suggestions: suggestions,
	}
	if err := s.planCache.Set(ctx, key, &plan, s.planTTL); err != nil {
		log.Printf("[service] WARN: reorder plan cache set failed owner=%d: %v", actor.UserID, err)
	}
	return plan, nil
}

func (s *Service) categoryIndex(ctx context.Context, ownerID int64) (map[int64]domain.Category, error) {
	categories, err := s.repo.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	index := make(map[int64]domain.Category, len(categories))
	for _, c := range categories {
		index[c.ID] = c
	}
	return index, nil
}

func (s *Service) toProductResponse(ctx context.Context, ownerID int64, product domain.Product) (domain.ProductResponse, error) {
	categories, err := s.categoryIndex(ctx, ownerID)
	if err != nil {
		return domain.ProductResponse{}, err
	}
	resp := domain.ProductResponse{Product: product}
	if price, source, ok := pricing.ResolveSalePrice(product, categories); ok {
		resp.EffectiveSale = &price
		resp.EffectiveSaleFrom = source
	}
	return resp, nil
}

// Oversell is allowed; it surfaces as a warning, never a failure.
func (s *Service) reportOversell(saleID string, warnings []domain.StockWarning) {
	for _, w := range warnings {
		log.Printf("[service] WARN: oversell on sale %s product=%d (%s) stock=%d", saleID, w.ProductID, w.ProductName, w.Resulting)
	}
}

func (s *Service) invalidatePlan(ctx context.Context, ownerID int64) {
	if err := s.planCache.Delete(ctx, planCacheKey(ownerID)); err != nil {
		log.Printf("[service] WARN: reorder plan cache invalidation failed owner=%d: %v", ownerID, err)
	}
}

func planCacheKey(ownerID int64) string {
	return fmt.Sprintf("reorder-plan:%d", ownerID)
}

func validateTiers(tiers []domain.TierInput) error {
	seen := make(map[int]bool, len(tiers))
	for _, t := range tiers {
		if t.Threshold < 0 || t.PriceCents < 0 {
			return store.ErrValidation
		}
		if seen[t.Threshold] {
			return fmt.Errorf("%w: duplicate tier threshold %d", store.ErrValidation, t.Threshold)
		}
		seen[t.Threshold] = true
	}
	return nil
}

func isSupportedPaymentType(paymentType string) bool {
	switch paymentType {
	case domain.PaymentTypeCash, domain.PaymentTypeCreditCard, domain.PaymentTypeTransfer, domain.PaymentTypeOther:
		return true
	default:
		return false
	}
}
