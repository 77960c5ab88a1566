package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/store"
	"stockledger/backend/internal/xid"
)

// Store implements store.Repository on PostgreSQL. Composite writes (sales,
// purchase orders) run in serializable transactions with the touched product
// rows locked FOR UPDATE, so the revert-then-apply sequence of a sale edit is
// atomic.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier abstracts *sql.DB and *sql.Tx for the read helpers shared between
// plain queries and transactional code paths.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, credit_card_fee_flat_cents, created_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, user.Email, user.PasswordHash, user.CreditCardFeeFlat, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, credit_card_fee_flat_cents, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreditCardFeeFlat, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, credit_card_fee_flat_cents, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreditCardFeeFlat, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" || category.OwnerID == 0 {
		return nil, store.ErrValidation
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if category.ParentID != nil {
		if err := categoryExists(ctx, tx, category.OwnerID, *category.ParentID); err != nil {
			return nil, err
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO categories (owner_id, name, parent_id, default_sale_price_cents, base_purchase_price_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, category.OwnerID, category.Name, category.ParentID, category.DefaultSalePrice, category.BasePurchasePrice, category.CreatedAt).Scan(&category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	tiers := make([]domain.PurchaseTier, 0, len(category.Tiers))
	for _, t := range category.Tiers {
		var tierID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO purchase_tiers (category_id, threshold, price_cents)
			VALUES ($1,$2,$3)
			RETURNING id
		`, category.ID, t.Threshold, t.PriceCents).Scan(&tierID)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrValidation
			}
			return nil, err
		}
		tiers = append(tiers, domain.PurchaseTier{ID: tierID, CategoryID: category.ID, Threshold: t.Threshold, PriceCents: t.PriceCents})
	}
	category.Tiers = tiers

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, ownerID, categoryID int64) (*domain.Category, error) {
	return getCategory(ctx, s.db, ownerID, categoryID)
}

func getCategory(ctx context.Context, q querier, ownerID, categoryID int64) (*domain.Category, error) {
	var category domain.Category
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, name, parent_id, default_sale_price_cents, base_purchase_price_cents, created_at
		FROM categories
		WHERE id = $1 AND owner_id = $2
	`, categoryID, ownerID).Scan(&category.ID, &category.OwnerID, &category.Name, &category.ParentID, &category.DefaultSalePrice, &category.BasePurchasePrice, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	tiers, err := loadTiers(ctx, q, category.ID)
	if err != nil {
		return nil, err
	}
	category.Tiers = tiers
	return &category, nil
}

func categoryExists(ctx context.Context, q querier, ownerID, categoryID int64) error {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM categories WHERE id = $1 AND owner_id = $2
	`, categoryID, ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func loadTiers(ctx context.Context, q querier, categoryID int64) ([]domain.PurchaseTier, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, category_id, threshold, price_cents
		FROM purchase_tiers
		WHERE category_id = $1
		ORDER BY threshold ASC
	`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tiers := make([]domain.PurchaseTier, 0, 4)
	for rows.Next() {
		var t domain.PurchaseTier
		if err := rows.Scan(&t.ID, &t.CategoryID, &t.Threshold, &t.PriceCents); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *Store) ListCategories(ctx context.Context, ownerID int64) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, parent_id, default_sale_price_cents, base_purchase_price_cents, created_at
		FROM categories
		WHERE owner_id = $1
		ORDER BY name
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	index := make(map[int64]int)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.ParentID, &c.DefaultSalePrice, &c.BasePurchasePrice, &c.CreatedAt); err != nil {
			return nil, err
		}
		index[c.ID] = len(categories)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tierRows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.category_id, t.threshold, t.price_cents
		FROM purchase_tiers t
		JOIN categories c ON c.id = t.category_id
		WHERE c.owner_id = $1
		ORDER BY t.threshold ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer tierRows.Close()

	for tierRows.Next() {
		var t domain.PurchaseTier
		if err := tierRows.Scan(&t.ID, &t.CategoryID, &t.Threshold, &t.PriceCents); err != nil {
			return nil, err
		}
		if i, ok := index[t.CategoryID]; ok {
			categories[i].Tiers = append(categories[i].Tiers, t)
		}
	}
	if err := tierRows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category, cascadeSale, cascadePurchase, force bool) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if category.ParentID != nil {
		if err := checkParent(ctx, tx, category.OwnerID, category.ID, *category.ParentID); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE categories
		SET name = $3, parent_id = $4, default_sale_price_cents = $5, base_purchase_price_cents = $6
		WHERE id = $1 AND owner_id = $2
	`, category.ID, category.OwnerID, category.Name, category.ParentID, category.DefaultSalePrice, category.BasePurchasePrice)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	// Cascade after the category row itself: force overwrites every member
	// product, otherwise only products that inherit (no override) are set.
	if cascadeSale {
		query := `
			UPDATE products SET sale_price_cents = $3
			WHERE owner_id = $1 AND category_id = $2 AND sale_price_cents IS NULL
		`
		if force {
			query = `
				UPDATE products SET sale_price_cents = $3
				WHERE owner_id = $1 AND category_id = $2
			`
		}
		if _, err := tx.ExecContext(ctx, query, category.OwnerID, category.ID, category.DefaultSalePrice); err != nil {
			return nil, err
		}
	}
	if cascadePurchase {
		query := `
			UPDATE products SET unit_cost_cents = $3
			WHERE owner_id = $1 AND category_id = $2 AND unit_cost_cents IS NULL
		`
		if force {
			query = `
				UPDATE products SET unit_cost_cents = $3
				WHERE owner_id = $1 AND category_id = $2
			`
		}
		if _, err := tx.ExecContext(ctx, query, category.OwnerID, category.ID, category.BasePurchasePrice); err != nil {
			return nil, err
		}
	}

	updated, err := getCategory(ctx, tx, category.OwnerID, category.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// checkParent walks the ancestor chain of the proposed parent and rejects
// self-references and cycles.
func checkParent(ctx context.Context, q querier, ownerID, categoryID, parentID int64) error {
	if parentID == categoryID {
		return store.ErrValidation
	}
	seen := map[int64]bool{categoryID: true}
	current := parentID
	for current != 0 {
		if seen[current] {
			return store.ErrValidation
		}
		seen[current] = true

		var next sql.NullInt64
		err := q.QueryRowContext(ctx, `
			SELECT parent_id FROM categories WHERE id = $1 AND owner_id = $2
		`, current, ownerID).Scan(&next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if !next.Valid {
			return nil
		}
		current = next.Int64
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, ownerID, categoryID int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var parentID sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT parent_id FROM categories WHERE id = $1 AND owner_id = $2
	`, categoryID, ownerID).Scan(&parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	var productCount int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM products WHERE owner_id = $1 AND category_id = $2
	`, ownerID, categoryID).Scan(&productCount)
	if err != nil {
		return err
	}
	if productCount > 0 {
		return store.ErrConflict
	}

	// Re-parent children to the deleted node's parent so the tree stays whole.
	var newParent any
	if parentID.Valid {
		newParent = parentID.Int64
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE categories SET parent_id = $3 WHERE owner_id = $1 AND parent_id = $2
	`, ownerID, categoryID, newParent); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM purchase_tiers WHERE category_id = $1
	`, categoryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM categories WHERE id = $1 AND owner_id = $2
	`, categoryID, ownerID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ReplaceTiers(ctx context.Context, ownerID, categoryID int64, tiers []domain.TierInput) (*domain.Category, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := categoryExists(ctx, tx, ownerID, categoryID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM purchase_tiers WHERE category_id = $1
	`, categoryID); err != nil {
		return nil, err
	}
	for _, t := range tiers {
		if t.Threshold < 0 || t.PriceCents < 0 {
			return nil, store.ErrValidation
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_tiers (category_id, threshold, price_cents)
			VALUES ($1,$2,$3)
		`, categoryID, t.Threshold, t.PriceCents); err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrValidation
			}
			return nil, err
		}
	}

	updated, err := getCategory(ctx, tx, ownerID, categoryID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.OwnerID == 0 {
		return nil, store.ErrValidation
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if product.CategoryID != nil {
		if err := categoryExists(ctx, s.db, product.OwnerID, *product.CategoryID); err != nil {
			return nil, err
		}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (owner_id, name, category_id, sale_price_cents, unit_cost_cents, quantity_in_stock, reorder_level, restock_level, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, product.OwnerID, product.Name, product.CategoryID, product.SalePrice, product.UnitCost,
		product.QuantityInStock, product.ReorderLevel, product.RestockLevel, product.CreatedAt).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, ownerID, productID int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, ownerID, productID, false)
}

func getProduct(ctx context.Context, q querier, ownerID, productID int64, forUpdate bool) (*domain.Product, error) {
	query := `
		SELECT id, owner_id, name, category_id, sale_price_cents, unit_cost_cents, quantity_in_stock, reorder_level, restock_level, created_at
		FROM products
		WHERE id = $1 AND owner_id = $2
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p domain.Product
	err := q.QueryRowContext(ctx, query, productID, ownerID).Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.CategoryID, &p.SalePrice, &p.UnitCost,
		&p.QuantityInStock, &p.ReorderLevel, &p.RestockLevel, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, ownerID int64) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, category_id, sale_price_cents, unit_cost_cents, quantity_in_stock, reorder_level, restock_level, created_at
		FROM products
		WHERE owner_id = $1
		ORDER BY name
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.CategoryID, &p.SalePrice, &p.UnitCost,
			&p.QuantityInStock, &p.ReorderLevel, &p.RestockLevel, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, store.ErrValidation
	}
	if product.CategoryID != nil {
		if err := categoryExists(ctx, s.db, product.OwnerID, *product.CategoryID); err != nil {
			return nil, err
		}
	}

	// Stock is owned by the ledger; product edits never touch it.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, category_id = $4, sale_price_cents = $5, unit_cost_cents = $6, reorder_level = $7, restock_level = $8
		WHERE id = $1 AND owner_id = $2
	`, product.ID, product.OwnerID, product.Name, product.CategoryID, product.SalePrice, product.UnitCost,
		product.ReorderLevel, product.RestockLevel)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return getProduct(ctx, s.db, product.OwnerID, product.ID, false)
}

func (s *Store) DeleteProduct(ctx context.Context, ownerID, productID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products WHERE id = $1 AND owner_id = $2
	`, productID, ownerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockWarning, error) {
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	products, err := lockSaleProducts(ctx, tx, sale.OwnerID, sale.Items)
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, owner_id, date, notes, sale_type, payment_type, processing_fee_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.OwnerID, sale.Date, sale.Notes, sale.SaleType, sale.PaymentType, sale.ProcessingFee, sale.CreatedAt); err != nil {
		return nil, nil, err
	}

	warnings, err := applySaleItems(ctx, tx, &sale, products, now)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	created := sale
	return &created, warnings, nil
}

// lockSaleProducts validates every line and takes row locks before any stock
// mutation, mirroring the validate-before-mutate contract of the store.
func lockSaleProducts(ctx context.Context, tx *sql.Tx, ownerID int64, items []domain.SaleItem) (map[int64]domain.Product, error) {
	products := make(map[int64]domain.Product, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPrice < 0 {
			return nil, store.ErrValidation
		}
		if _, ok := products[item.ProductID]; ok {
			continue
		}
		p, err := getProduct(ctx, tx, ownerID, item.ProductID, true)
		if err != nil {
			return nil, err
		}
		products[item.ProductID] = *p
	}
	return products, nil
}

// applySaleItems inserts the line rows, decrements stock per line, and writes
// the sale entries to the ledger. Oversell is recorded as a warning, never an
// error.
func applySaleItems(ctx context.Context, tx *sql.Tx, sale *domain.Sale, products map[int64]domain.Product, now time.Time) ([]domain.StockWarning, error) {
	var warnings []domain.StockWarning
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		item.ID = xid.New("sli")
		item.SaleID = sale.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)

		var resulting int
		err := tx.QueryRowContext(ctx, `
			UPDATE products SET quantity_in_stock = quantity_in_stock - $3
			WHERE id = $1 AND owner_id = $2
			RETURNING quantity_in_stock
		`, item.ProductID, sale.OwnerID, item.Quantity).Scan(&resulting)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if resulting < 0 {
			warnings = append(warnings, domain.StockWarning{
				ProductID:   item.ProductID,
				ProductName: products[item.ProductID].Name,
				Resulting:   resulting,
			})
		}

		if err := appendLog(ctx, tx, domain.InventoryLogEntry{
			OwnerID:      sale.OwnerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypeSale,
			ChangeAmount: -item.Quantity,
			Note:         fmt.Sprintf("sold via sale %s", sale.ID),
			CreatedAt:    now,
		}); err != nil {
			return nil, err
		}
	}
	sale.Items = items
	return warnings, nil
}

func (s *Store) GetSaleByID(ctx context.Context, ownerID int64, saleID string) (*domain.Sale, error) {
	return getSale(ctx, s.db, ownerID, saleID)
}

func getSale(ctx context.Context, q querier, ownerID int64, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, date, notes, sale_type, payment_type, processing_fee_cents, created_at
		FROM sales
		WHERE id = $1 AND owner_id = $2
	`, saleID, ownerID).Scan(&sale.ID, &sale.OwnerID, &sale.Date, &sale.Notes, &sale.SaleType, &sale.PaymentType, &sale.ProcessingFee, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, ownerID int64, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	// Zero-item legacy sales stay out of listings; they remain reachable by id.
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.owner_id, s.date, s.notes, s.sale_type, s.payment_type, s.processing_fee_cents, s.created_at
		FROM sales s
		WHERE s.owner_id = $1 AND EXISTS (SELECT 1 FROM sale_items i WHERE i.sale_id = s.id)
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	index := make(map[string]int)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.OwnerID, &sale.Date, &sale.Notes, &sale.SaleType, &sale.PaymentType, &sale.ProcessingFee, &sale.CreatedAt); err != nil {
			return nil, err
		}
		index[sale.ID] = len(sales)
		ids = append(ids, sale.ID)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		if i, ok := index[item.SaleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	return sales, itemRows.Err()
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockWarning, error) {
	if len(sale.Items) == 0 {
		return nil, nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getSale(ctx, tx, sale.OwnerID, sale.ID)
	if err != nil {
		return nil, nil, err
	}

	// Validate the new item list before touching stock so a bad line leaves
	// everything, the revert included, unapplied.
	products, err := lockSaleProducts(ctx, tx, sale.OwnerID, sale.Items)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	for _, item := range existing.Items {
		// Products deleted since the sale was recorded have no stock to
		// restore; skip them so the edit still goes through.
		restored, err := restoreStock(ctx, tx, sale.OwnerID, item.ProductID, item.Quantity)
		if err != nil {
			return nil, nil, err
		}
		if !restored {
			continue
		}
		if err := appendLog(ctx, tx, domain.InventoryLogEntry{
			OwnerID:      sale.OwnerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypeRevertSaleEdit,
			ChangeAmount: item.Quantity,
			Note:         fmt.Sprintf("reverted previous quantity for sale %s", sale.ID),
			CreatedAt:    now,
		}); err != nil {
			return nil, nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sale_items WHERE sale_id = $1
	`, sale.ID); err != nil {
		return nil, nil, err
	}

	sale.CreatedAt = existing.CreatedAt
	if sale.Date.IsZero() {
		sale.Date = existing.Date
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET date = $3, notes = $4, sale_type = $5, payment_type = $6, processing_fee_cents = $7
		WHERE id = $1 AND owner_id = $2
	`, sale.ID, sale.OwnerID, sale.Date, sale.Notes, sale.SaleType, sale.PaymentType, sale.ProcessingFee); err != nil {
		return nil, nil, err
	}

	warnings, err := applySaleItems(ctx, tx, &sale, products, now)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	updated := sale
	return &updated, warnings, nil
}

func (s *Store) DeleteSale(ctx context.Context, ownerID int64, saleID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := getSale(ctx, tx, ownerID, saleID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, item := range sale.Items {
		restored, err := restoreStock(ctx, tx, ownerID, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		if !restored {
			continue
		}
		if err := appendLog(ctx, tx, domain.InventoryLogEntry{
			OwnerID:      ownerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypeRevertSale,
			ChangeAmount: item.Quantity,
			Note:         fmt.Sprintf("sale %s deleted", saleID),
			CreatedAt:    now,
		}); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1 AND owner_id = $2`, saleID, ownerID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if len(po.Items) == 0 {
		return nil, store.ErrValidation
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	now := time.Now().UTC()
	if po.CreatedAt.IsZero() {
		po.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOrderProducts(ctx, tx, po.OwnerID, po.Items); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, owner_id, shipping_cost_cents, handling_cost_cents, items_subtotal_cents, grand_total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, po.ID, po.OwnerID, po.ShippingCost, po.HandlingCost, po.ItemsSubtotal, po.GrandTotal, po.CreatedAt); err != nil {
		return nil, err
	}

	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		item.ID = xid.New("poi")
		item.OrderID = po.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (id, order_id, product_id, quantity, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitCost); err != nil {
			return nil, err
		}
		items = append(items, item)

		if err := bumpStock(ctx, tx, po.OwnerID, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		if err := appendLog(ctx, tx, domain.InventoryLogEntry{
			OwnerID:      po.OwnerID,
			ProductID:    item.ProductID,
			ChangeType:   domain.ChangeTypePurchase,
			ChangeAmount: item.Quantity,
			Note:         fmt.Sprintf("purchased via order %s", po.ID),
			CreatedAt:    now,
		}); err != nil {
			return nil, err
		}
	}
	po.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := po
	return &created, nil
}

func lockOrderProducts(ctx context.Context, tx *sql.Tx, ownerID int64, items []domain.PurchaseOrderItem) error {
	for _, item := range items {
		if item.Quantity < 0 || item.UnitCost < 0 {
			return store.ErrValidation
		}
		if _, err := getProduct(ctx, tx, ownerID, item.ProductID, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, ownerID int64, orderID string) (*domain.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, s.db, ownerID, orderID)
}

func getPurchaseOrder(ctx context.Context, q querier, ownerID int64, orderID string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, shipping_cost_cents, handling_cost_cents, items_subtotal_cents, grand_total_cents, created_at
		FROM purchase_orders
		WHERE id = $1 AND owner_id = $2
	`, orderID, ownerID).Scan(&po.ID, &po.OwnerID, &po.ShippingCost, &po.HandlingCost, &po.ItemsSubtotal, &po.GrandTotal, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_cost_cents
		FROM purchase_order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitCost); err != nil {
			return nil, err
		}
		po.Items = append(po.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, ownerID int64, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, shipping_cost_cents, handling_cost_cents, items_subtotal_cents, grand_total_cents, created_at
		FROM purchase_orders
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, limit)
	index := make(map[string]int)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var po domain.PurchaseOrder
		if err := rows.Scan(&po.ID, &po.OwnerID, &po.ShippingCost, &po.HandlingCost, &po.ItemsSubtotal, &po.GrandTotal, &po.CreatedAt); err != nil {
			return nil, err
		}
		index[po.ID] = len(orders)
		ids = append(ids, po.ID)
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_cost_cents
		FROM purchase_order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.PurchaseOrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitCost); err != nil {
			return nil, err
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return orders, itemRows.Err()
}

// UpdatePurchaseOrder rewrites the line set and totals. Stock stays as the
// original receipt left it; orders represent goods already on the shelf.
func (s *Store) UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if len(po.Items) == 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getPurchaseOrder(ctx, tx, po.OwnerID, po.ID)
	if err != nil {
		return nil, err
	}
	for _, item := range po.Items {
		if item.Quantity < 0 || item.UnitCost < 0 {
			return nil, store.ErrValidation
		}
		if _, err := getProduct(ctx, tx, po.OwnerID, item.ProductID, false); err != nil {
			return nil, err
		}
	}

	po.CreatedAt = existing.CreatedAt
	if _, err := tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET shipping_cost_cents = $3, handling_cost_cents = $4, items_subtotal_cents = $5, grand_total_cents = $6
		WHERE id = $1 AND owner_id = $2
	`, po.ID, po.OwnerID, po.ShippingCost, po.HandlingCost, po.ItemsSubtotal, po.GrandTotal); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM purchase_order_items WHERE order_id = $1
	`, po.ID); err != nil {
		return nil, err
	}
	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		item.ID = xid.New("poi")
		item.OrderID = po.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (id, order_id, product_id, quantity, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	po.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	updated := po
	return &updated, nil
}

func (s *Store) DeletePurchaseOrder(ctx context.Context, ownerID int64, orderID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Items go first so the parent row never fails its FK constraint. An
	// unmatched parent delete rolls the item delete back with the tx.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM purchase_order_items WHERE order_id = $1
	`, orderID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM purchase_orders WHERE id = $1 AND owner_id = $2
	`, orderID, ownerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) AdjustStock(ctx context.Context, ownerID, productID int64, delta int, note string) (*domain.Product, error) {
	if delta == 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, ownerID, productID, true)
	if err != nil {
		return nil, err
	}
	if err := bumpStock(ctx, tx, ownerID, productID, delta); err != nil {
		return nil, err
	}
	if err := appendLog(ctx, tx, domain.InventoryLogEntry{
		OwnerID:      ownerID,
		ProductID:    productID,
		ChangeType:   domain.ChangeTypeManual,
		ChangeAmount: delta,
		Note:         note,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	product.QuantityInStock += delta
	return product, nil
}

func (s *Store) ListInventoryLog(ctx context.Context, ownerID int64, productID int64, limit int) ([]domain.InventoryLogEntry, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, owner_id, product_id, change_type, change_amount, note, created_at
		FROM inventory_log
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	args := []any{ownerID, limit}
	if productID != 0 {
		query = `
			SELECT id, owner_id, product_id, change_type, change_amount, note, created_at
			FROM inventory_log
			WHERE owner_id = $1 AND product_id = $3
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = append(args, productID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryLogEntry, 0, limit)
	for rows.Next() {
		var entry domain.InventoryLogEntry
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.ProductID, &entry.ChangeType, &entry.ChangeAmount, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// restoreStock adds reverted quantity back to a product if it still exists.
// The second return is false when the product row is gone.
func restoreStock(ctx context.Context, tx *sql.Tx, ownerID, productID int64, qty int) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity_in_stock = quantity_in_stock + $3
		WHERE id = $1 AND owner_id = $2
	`, productID, ownerID, qty)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func bumpStock(ctx context.Context, tx *sql.Tx, ownerID, productID int64, delta int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity_in_stock = quantity_in_stock + $3
		WHERE id = $1 AND owner_id = $2
	`, productID, ownerID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func appendLog(ctx context.Context, tx *sql.Tx, entry domain.InventoryLogEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("inv")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_log (id, owner_id, product_id, change_type, change_amount, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.OwnerID, entry.ProductID, entry.ChangeType, entry.ChangeAmount, entry.Note, entry.CreatedAt)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
