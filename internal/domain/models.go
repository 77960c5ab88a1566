package domain

import "time"

type Category struct {
	ID                 int64          `json:"id"`
	OwnerID            int64          `json:"owner_id"`
	Name               string         `json:"name"`
	ParentID           *int64         `json:"parent_id,omitempty"`
	DefaultSalePrice   *int64         `json:"default_sale_price_cents,omitempty"`
	BasePurchasePrice  *int64         `json:"base_purchase_price_cents,omitempty"`
	Tiers              []PurchaseTier `json:"tiers"`
	CreatedAt          time.Time      `json:"created_at"`
}

type PurchaseTier struct {
	ID         int64 `json:"id"`
	CategoryID int64 `json:"category_id"`
	Threshold  int   `json:"threshold"`
	PriceCents int64 `json:"price_cents"`
}

type TierInput struct {
	Threshold  int   `json:"threshold"`
	PriceCents int64 `json:"price_cents"`
}

type CategoryCreateRequest struct {
	Name              string      `json:"name"`
	ParentID          *int64      `json:"parent_id,omitempty"`
	DefaultSalePrice  *int64      `json:"default_sale_price_cents,omitempty"`
	BasePurchasePrice *int64      `json:"base_purchase_price_cents,omitempty"`
	Tiers             []TierInput `json:"tiers,omitempty"`
}

type CategoryUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	ParentID          *int64  `json:"parent_id,omitempty"`
	ClearParent       bool    `json:"clear_parent,omitempty"`
	DefaultSalePrice  *int64  `json:"default_sale_price_cents,omitempty"`
	BasePurchasePrice *int64  `json:"base_purchase_price_cents,omitempty"`
	ForceCascade      bool    `json:"force_cascade,omitempty"`
}

type Product struct {
	ID              int64     `json:"id"`
	OwnerID         int64     `json:"owner_id"`
	Name            string    `json:"name"`
	CategoryID      *int64    `json:"category_id,omitempty"`
	SalePrice       *int64    `json:"sale_price_cents,omitempty"`
	UnitCost        *int64    `json:"unit_cost_cents,omitempty"`
	QuantityInStock int       `json:"quantity_in_stock"`
	ReorderLevel    int       `json:"reorder_level"`
	RestockLevel    int       `json:"restock_level"`
	CreatedAt       time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name            string `json:"name"`
	CategoryID      *int64 `json:"category_id,omitempty"`
	SalePrice       *int64 `json:"sale_price_cents,omitempty"`
	UnitCost        *int64 `json:"unit_cost_cents,omitempty"`
	QuantityInStock int    `json:"quantity_in_stock"`
	ReorderLevel    int    `json:"reorder_level"`
	RestockLevel    int    `json:"restock_level"`
}

type ProductUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	CategoryID    *int64  `json:"category_id,omitempty"`
	ClearCategory bool    `json:"clear_category,omitempty"`
	SalePrice     *int64  `json:"sale_price_cents,omitempty"`
	ClearSale     bool    `json:"clear_sale_price,omitempty"`
	UnitCost      *int64  `json:"unit_cost_cents,omitempty"`
	ClearCost     bool    `json:"clear_unit_cost,omitempty"`
	ReorderLevel  *int    `json:"reorder_level,omitempty"`
	RestockLevel  *int    `json:"restock_level,omitempty"`
}

// ProductResponse decorates a product with its resolved sale price so
// clients never re-implement the cascade.
type ProductResponse struct {
	Product
	EffectiveSale     *int64 `json:"effective_sale_price_cents,omitempty"`
	EffectiveSaleFrom string `json:"effective_sale_price_source,omitempty"`
}

type SaleItem struct {
	ID        string `json:"id"`
	SaleID    string `json:"sale_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price_cents"`
}

type Sale struct {
	ID            string     `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	Date          time.Time  `json:"date"`
	Notes         string     `json:"notes,omitempty"`
	SaleType      string     `json:"sale_type"`
	PaymentType   string     `json:"payment_type"`
	ProcessingFee int64      `json:"processing_fee_cents"`
	Items         []SaleItem `json:"items"`
	CreatedAt     time.Time  `json:"created_at"`
}

type SaleItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price_cents"`
}

type SaleRequest struct {
	Date        *time.Time      `json:"date,omitempty"`
	Notes       string          `json:"notes"`
	SaleType    string          `json:"sale_type"`
	PaymentType string          `json:"payment_type"`
	Items       []SaleItemInput `json:"items"`
}

// StockWarning reports an oversell: the write went through and stock is
// now negative for the product.
type StockWarning struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Resulting   int    `json:"resulting_stock"`
}

type SaleResponse struct {
	Sale
	Warnings []StockWarning `json:"warnings,omitempty"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type PurchaseOrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitCost  int64  `json:"unit_cost_cents"`
}

type PurchaseOrder struct {
	ID            string              `json:"id"`
	OwnerID       int64               `json:"owner_id"`
	ShippingCost  int64               `json:"shipping_cost_cents"`
	HandlingCost  int64               `json:"handling_cost_cents"`
	ItemsSubtotal int64               `json:"items_subtotal_cents"`
	GrandTotal    int64               `json:"grand_total_cents"`
	Items         []PurchaseOrderItem `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
}

type PurchaseOrderItemInput struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitCost  *int64 `json:"unit_cost_cents,omitempty"`
}

type PurchaseOrderRequest struct {
	ShippingCost int64                    `json:"shipping_cost_cents"`
	HandlingCost int64                    `json:"handling_cost_cents"`
	TierMode     string                   `json:"tier_mode,omitempty"`
	Items        []PurchaseOrderItemInput `json:"items"`
}

const (
	TierModeOrderTotal = "order_total"
	TierModePerLine    = "per_line"
)

type PurchaseOrderResponse struct {
	PurchaseOrder
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type InventoryLogEntry struct {
	ID           string    `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	ProductID    int64     `json:"product_id"`
	ChangeType   string    `json:"change_type"`
	ChangeAmount int       `json:"change_amount"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type InventoryLogListResponse struct {
	Entries []InventoryLogEntry `json:"entries"`
}

type StockAdjustRequest struct {
	ProductID int64  `json:"product_id"`
	Delta     int    `json:"delta"`
	Note      string `json:"note"`
}

type ReorderSuggestion struct {
	ProductID         int64  `json:"product_id"`
	Name              string `json:"name"`
	CurrentStock      int    `json:"current_stock"`
	ReorderLevel      int    `json:"reorder_level"`
	SuggestedQty      int    `json:"suggested_qty"`
	EstimatedUnitCost *int64 `json:"estimated_unit_cost_cents,omitempty"`
}

type ReorderPlan struct {
	OwnerID     int64               `json:"owner_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	CreditCardFeeFlat int64     `json:"credit_card_fee_flat_cents"`
	CreatedAt         time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	CreditCardFeeFlat *int64 `json:"credit_card_fee_flat_cents,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated owner attached to a request context. Every
// store query and write is scoped to Actor.UserID.
type Actor struct {
	UserID int64
	Email  string
}

const (
	ChangeTypeSale           = "sale"
	ChangeTypePurchase       = "purchase"
	ChangeTypeRevertSale     = "revert_sale"
	ChangeTypeRevertSaleEdit = "revert_sale_edit"
	ChangeTypeManual         = "manual"
)

const (
	PaymentTypeCash       = "cash"
	PaymentTypeCreditCard = "credit_card"
	PaymentTypeTransfer   = "transfer"
	PaymentTypeOther      = "other"
)
