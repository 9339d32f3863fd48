package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"agripos/backend/internal/domain"
	"agripos/backend/internal/store"
	"agripos/backend/internal/xid"
)

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

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, price_per_bag_cents, COALESCE(description, ''), created_at
		FROM products
		ORDER BY brand, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.PricePerBagCents, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PricePerBagCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, price_per_bag_cents, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, product.ID, product.Name, product.Brand, product.PricePerBagCents, nullIfEmpty(product.Description), product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, brand, price_per_bag_cents, COALESCE(description, ''), created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Brand, &product.PricePerBagCents, &product.Description, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, price_per_bag_cents, COALESCE(description, ''), created_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.PricePerBagCents, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.PricePerBagCents < 1 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, price_per_bag_cents = $4, description = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Brand, product.PricePerBagCents, nullIfEmpty(product.Description))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

// DeleteProduct removes the catalog row only. Historical line items keep
// the product id and fall into the Unknown report bucket.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
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

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, old_price_cents, new_price_cents, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.OldPriceCents, entry.NewPriceCents, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price_cents, new_price_cents, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.OldPriceCents, &entry.NewPriceCents, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone_number, created_at
		FROM customers
		WHERE phone_number = $1
	`, phone).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

// CreateCustomer relies on the unique index on phone_number to arbitrate
// concurrent creates. A lost race surfaces as ErrConflict; the caller
// retries as a lookup.
func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone_number, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (phone_number) DO NOTHING
	`, customer.ID, customer.Name, customer.Phone, customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrConflict
	}

	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone_number, created_at
		FROM customers
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 128)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

// CreateTransaction writes the header only. The header stays invisible to
// readers until CreateLineItems lands its items.
func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.CustomerID == "" || tx.InvoiceNumber == "" {
		return nil, store.ErrValidation
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Items = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, customer_id, invoice_number, merchant_id, total_bags, total_amount_cents, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tx.ID, tx.CustomerID, tx.InvoiceNumber, tx.MerchantID, tx.TotalBags, tx.TotalAmountCents, nullIfEmpty(tx.CreatedBy), tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := tx
	return &created, nil
}

// CreateLineItems inserts all items for a header in one serializable
// transaction; either every item lands or none do. Subtotals are recomputed
// server-side from qty and unit price.
func (s *Store) CreateLineItems(ctx context.Context, transactionID string, items []domain.TransactionItem) ([]domain.TransactionItem, error) {
	if len(items) == 0 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)
	`, transactionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	stored := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Qty < 1 || item.UnitPriceCents < 0 {
			return nil, store.ErrValidation
		}
		item.TransactionID = transactionID
		item.SubtotalCents = item.UnitPriceCents * int64(item.Qty)

		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, qty, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, item.TransactionID, item.ProductID, item.Qty, item.UnitPriceCents, item.SubtotalCents)
		if err != nil {
			return nil, err
		}
		stored = append(stored, item)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

// DeleteTransaction is the compensation step for a failed item write.
func (s *Store) DeleteTransaction(ctx context.Context, transactionID string) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `
		DELETE FROM transaction_items WHERE transaction_id = $1
	`, transactionID); err != nil {
		return err
	}
	res, err := pgTx.ExecContext(ctx, `
		DELETE FROM transactions WHERE id = $1
	`, transactionID)
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

	return pgTx.Commit()
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.customer_id, t.invoice_number, t.merchant_id, t.total_bags, t.total_amount_cents, COALESCE(t.created_by, ''), t.created_at
		FROM transactions t
		WHERE t.id = $1
		  AND EXISTS (SELECT 1 FROM transaction_items ti WHERE ti.transaction_id = t.id)
	`, id).Scan(&tx.ID, &tx.CustomerID, &tx.InvoiceNumber, &tx.MerchantID, &tx.TotalBags, &tx.TotalAmountCents, &tx.CreatedBy, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()

	items, err := s.loadItems(ctx, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Items = items[tx.ID]
	return &tx, nil
}

// ListTransactions returns committed sales newest first. The EXISTS filter
// hides headers that are mid-commit or orphaned by a failed compensation.
func (s *Store) ListTransactions(ctx context.Context, limit int, withItems bool) ([]domain.Transaction, error) {
	query := `
		SELECT t.id, t.customer_id, t.invoice_number, t.merchant_id, t.total_bags, t.total_amount_cents, COALESCE(t.created_by, ''), t.created_at
		FROM transactions t
		WHERE EXISTS (SELECT 1 FROM transaction_items ti WHERE ti.transaction_id = t.id)
		ORDER BY t.created_at DESC, t.id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 128)
	ids := make([]string, 0, 128)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.InvoiceNumber, &tx.MerchantID, &tx.TotalBags, &tx.TotalAmountCents, &tx.CreatedBy, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		transactions = append(transactions, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if withItems && len(ids) > 0 {
		items, err := s.loadItems(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range transactions {
			transactions[i].Items = items[transactions[i].ID]
		}
	}
	return transactions, nil
}

func (s *Store) loadItems(ctx context.Context, transactionIDs []string) (map[string][]domain.TransactionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, qty, unit_price_cents, subtotal_cents
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id
	`, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.TransactionItem, len(transactionIDs))
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.TransactionID, &item.ProductID, &item.Qty, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
			return nil, err
		}
		result[item.TransactionID] = append(result[item.TransactionID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, COALESCE(entity_id, ''), COALESCE(detail, ''), created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
