package pricing

import (
	"cmp"
	"errors"
	"slices"

	"stockledger/backend/internal/domain"
)

var ErrNoPriceAvailable = errors.New("no price available")

// Sale price sources reported alongside a resolved price.
const (
	SourceProduct  = "product"
	SourceCategory = "category"
)

// ResolveSalePrice returns the effective sale price for a product in cents.
// The product's own override wins; otherwise the category chain is walked
// upward through parent links and the first non-nil default applies. The
// second return is false when no price is set anywhere on the chain.
func ResolveSalePrice(p domain.Product, categories map[int64]domain.Category) (int64, string, bool) {
	if p.SalePrice != nil {
		return *p.SalePrice, SourceProduct, true
	}
	if p.CategoryID == nil {
		return 0, "", false
	}
	seen := map[int64]bool{}
	id := *p.CategoryID
	for {
		if seen[id] {
			// Defensive cycle guard; parent writes reject cycles, but a
			// malformed chain must terminate rather than loop.
			return 0, "", false
		}
		seen[id] = true
		cat, ok := categories[id]
		if !ok {
			return 0, "", false
		}
		if cat.DefaultSalePrice != nil {
			return *cat.DefaultSalePrice, SourceCategory, true
		}
		if cat.ParentID == nil {
			return 0, "", false
		}
		id = *cat.ParentID
	}
}

// ResolvePurchaseCost returns the unit purchase cost in cents for one order
// line. An explicit per-line override always wins. Otherwise the category's
// tiers are consulted with orderQty, the combined quantity across every line
// of the order that belongs to this category: the tier with the largest
// threshold not exceeding orderQty applies. With no matching tier the
// category's base purchase price is used. ErrNoPriceAvailable when all three
// fall through.
func ResolvePurchaseCost(cat domain.Category, orderQty int, override *int64) (int64, error) {
	if override != nil {
		return *override, nil
	}
	if price, ok := bestTier(cat.Tiers, orderQty); ok {
		return price, nil
	}
	if cat.BasePurchasePrice != nil {
		return *cat.BasePurchasePrice, nil
	}
	return 0, ErrNoPriceAvailable
}

// ResolvePurchaseCostPerLine is the legacy variant of ResolvePurchaseCost:
// the tier is selected by the line's own quantity instead of the order-wide
// category quantity. The two produce different totals for multi-line orders
// and existing callers depend on each, so they stay separate.
func ResolvePurchaseCostPerLine(cat domain.Category, lineQty int, override *int64) (int64, error) {
	return ResolvePurchaseCost(cat, lineQty, override)
}

// bestTier picks the tier with the greatest threshold <= qty. Thresholds are
// unique within a category, so the pick is unambiguous.
func bestTier(tiers []domain.PurchaseTier, qty int) (int64, bool) {
	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b domain.PurchaseTier) int { return cmp.Compare(a.Threshold, b.Threshold) })
	found := false
	var price int64
	for _, t := range sorted {
		if t.Threshold <= qty {
			price = t.PriceCents
			found = true
		} else {
			break
		}
	}
	return price, found
}

// CategoryOrderQuantities sums line quantities per category for a purchase
// order, feeding the order-wide tier lookup. Lines whose product has no
// category are skipped.
func CategoryOrderQuantities(lines []domain.PurchaseOrderItemInput, products map[int64]domain.Product) map[int64]int {
	totals := map[int64]int{}
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok || p.CategoryID == nil {
			continue
		}
		totals[*p.CategoryID] += line.Quantity
	}
	return totals
}
