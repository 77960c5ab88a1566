package store

import (
	"context"
	"errors"

	"stockledger/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// Repository is the transactional store behind the service layer. Composite
// methods (CreateSale, UpdateSale, ...) perform the whole stock mutation,
// item rewrite and ledger append as one atomic unit; callers never see a
// partially applied transaction. Every method is scoped to the owning user.
type Repository interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, ownerID, categoryID int64) (*domain.Category, error)
	ListCategories(ctx context.Context, ownerID int64) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category, cascadeSale, cascadePurchase, force bool) (*domain.Category, error)
	DeleteCategory(ctx context.Context, ownerID, categoryID int64) error
	ReplaceTiers(ctx context.Context, ownerID, categoryID int64, tiers []domain.TierInput) (*domain.Category, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, ownerID, productID int64) (*domain.Product, error)
	ListProducts(ctx context.Context, ownerID int64) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, ownerID, productID int64) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockWarning, error)
	GetSaleByID(ctx context.Context, ownerID int64, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, ownerID int64, limit int) ([]domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockWarning, error)
	DeleteSale(ctx context.Context, ownerID int64, saleID string) error

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, ownerID int64, orderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, ownerID int64, limit int) ([]domain.PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	DeletePurchaseOrder(ctx context.Context, ownerID int64, orderID string) error

	AdjustStock(ctx context.Context, ownerID, productID int64, delta int, note string) (*domain.Product, error)
	ListInventoryLog(ctx context.Context, ownerID int64, productID int64, limit int) ([]domain.InventoryLogEntry, error)
}
