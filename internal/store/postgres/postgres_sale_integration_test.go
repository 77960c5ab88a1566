package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/store"
)

func TestDeleteSaleRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("STOCKLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	email := fmt.Sprintf("delete-sale-it-%d@stockledger.test", stamp)

	owner, err := s.CreateUser(ctx, domain.User{
		Email:        email,
		PasswordHash: "not-a-real-hash",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	product, err := s.CreateProduct(ctx, domain.Product{
		OwnerID:         owner.ID,
		Name:            fmt.Sprintf("Delete Sale IT %d", stamp),
		QuantityInStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_log WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id IN (SELECT id FROM sales WHERE owner_id = $1)`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, owner.ID)
	})

	sale, warnings, err := s.CreateSale(ctx, domain.Sale{
		OwnerID:     owner.ID,
		SaleType:    "retail",
		PaymentType: "cash",
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 4, UnitPrice: 2500},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no oversell warnings, got %v", warnings)
	}

	after, err := s.GetProductByID(ctx, owner.ID, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.QuantityInStock != 6 {
		t.Fatalf("expected stock 6 after sale, got %d", after.QuantityInStock)
	}

	if err := s.DeleteSale(ctx, owner.ID, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	restored, err := s.GetProductByID(ctx, owner.ID, product.ID)
	if err != nil {
		t.Fatalf("get product after delete: %v", err)
	}
	if restored.QuantityInStock != 10 {
		t.Fatalf("expected stock 10 after delete restock, got %d", restored.QuantityInStock)
	}

	entries, err := s.ListInventoryLog(ctx, owner.ID, product.ID, 10)
	if err != nil {
		t.Fatalf("list inventory log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].ChangeType != domain.ChangeTypeRevertSale || entries[0].ChangeAmount != 4 {
		t.Fatalf("expected revert_sale +4 on top, got %s %d", entries[0].ChangeType, entries[0].ChangeAmount)
	}
	if entries[1].ChangeType != domain.ChangeTypeSale || entries[1].ChangeAmount != -4 {
		t.Fatalf("expected sale -4 below, got %s %d", entries[1].ChangeType, entries[1].ChangeAmount)
	}
}

func TestDeleteSaleToleratesRemovedProduct(t *testing.T) {
	databaseURL := os.Getenv("STOCKLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	owner, err := s.CreateUser(ctx, domain.User{
		Email:        fmt.Sprintf("delete-sale-gone-it-%d@stockledger.test", stamp),
		PasswordHash: "not-a-real-hash",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	product, err := s.CreateProduct(ctx, domain.Product{
		OwnerID:         owner.ID,
		Name:            fmt.Sprintf("Gone Product IT %d", stamp),
		QuantityInStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_log WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id IN (SELECT id FROM sales WHERE owner_id = $1)`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, owner.ID)
	})

	sale, _, err := s.CreateSale(ctx, domain.Sale{
		OwnerID:     owner.ID,
		SaleType:    "retail",
		PaymentType: "cash",
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 3, UnitPrice: 2000},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if err := s.DeleteProduct(ctx, owner.ID, product.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	// The sale must still be deletable; the missing product is skipped.
	if err := s.DeleteSale(ctx, owner.ID, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if _, err := s.GetSaleByID(ctx, owner.ID, sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sale gone, got %v", err)
	}
}

func TestDeletePurchaseOrderRemovesItemsFirst(t *testing.T) {
	databaseURL := os.Getenv("STOCKLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	owner, err := s.CreateUser(ctx, domain.User{
		Email:        fmt.Sprintf("delete-po-it-%d@stockledger.test", stamp),
		PasswordHash: "not-a-real-hash",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	product, err := s.CreateProduct(ctx, domain.Product{
		OwnerID: owner.ID,
		Name:    fmt.Sprintf("Delete PO IT %d", stamp),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_log WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchase_order_items WHERE order_id IN (SELECT id FROM purchase_orders WHERE owner_id = $1)`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchase_orders WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE owner_id = $1`, owner.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, owner.ID)
	})

	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		OwnerID:       owner.ID,
		ItemsSubtotal: 5000,
		GrandTotal:    5000,
		Items: []domain.PurchaseOrderItem{
			{ProductID: product.ID, Quantity: 5, UnitCost: 1000},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order: %v", err)
	}

	// The item rows reference the order; deleting must not trip the FK.
	if err := s.DeletePurchaseOrder(ctx, owner.ID, po.ID); err != nil {
		t.Fatalf("delete purchase order: %v", err)
	}
	if _, err := s.GetPurchaseOrderByID(ctx, owner.ID, po.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected order gone, got %v", err)
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM purchase_order_items WHERE order_id = $1
	`, po.ID).Scan(&remaining); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 item rows left, got %d", remaining)
	}
}
