package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"agripos/backend/internal/domain"
	"agripos/backend/internal/store"
	"agripos/backend/internal/xid"
)

type Store struct {
	mu                    sync.RWMutex
	products              map[string]domain.Product
	productOrder          []string
	customersByID         map[string]domain.Customer
	customerIDByPhone     map[string]string
	customerOrder         []string
	transactionsByID      map[string]*domain.Transaction
	invoiceNumbers        map[string]string
	priceHistoryByProduct map[string][]domain.ProductPriceHistory
	auditLogs             []domain.AuditLog
	usersByUsername       map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:              make(map[string]domain.Product),
		customersByID:         make(map[string]domain.Customer),
		customerIDByPhone:     make(map[string]string),
		transactionsByID:      make(map[string]*domain.Transaction),
		invoiceNumbers:        make(map[string]string),
		priceHistoryByProduct: make(map[string][]domain.ProductPriceHistory),
		auditLogs:             make([]domain.AuditLog, 0, 128),
		usersByUsername:       seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []domain.Product{
		{ID: "prod-urea-engro", Name: "Urea 50kg", Brand: "Engro", PricePerBagCents: 345000, Description: "Nitrogen fertilizer, 46% N"},
		{ID: "prod-dap-ffc", Name: "DAP 50kg", Brand: "FFC", PricePerBagCents: 1125000, Description: "Diammonium phosphate"},
		{ID: "prod-sop-ffc", Name: "SOP 50kg", Brand: "FFC", PricePerBagCents: 960000, Description: "Sulfate of potash"},
		{ID: "prod-can-fatima", Name: "CAN 50kg", Brand: "Fatima", PricePerBagCents: 242500, Description: "Calcium ammonium nitrate"},
		{ID: "prod-np-fatima", Name: "NP 50kg", Brand: "Fatima", PricePerBagCents: 785000, Description: "Nitrophos 22-20"},
		{ID: "prod-zinc-engro", Name: "Zincgro 3kg", Brand: "Engro", PricePerBagCents: 98000, Description: "Zinc sulphate granules"},
	}
	for _, p := range seed {
		p.CreatedAt = now
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, id := range s.productOrder {
		products = append(products, s.products[id])
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Brand == b.Brand {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Brand, b.Brand)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.PricePerBagCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}

	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, exists := s.products[id]; exists {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.PricePerBagCents < 1 {
		return nil, store.ErrValidation
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistoryByProduct[entry.ProductID] = append(s.priceHistoryByProduct[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistoryByProduct[productID]
	if len(history) == 0 {
		return []domain.ProductPriceHistory{}, nil
	}

	result := make([]domain.ProductPriceHistory, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		if a.ChangedAt.Equal(b.ChangedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.ChangedAt.After(b.ChangedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.customerIDByPhone[phone]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer := s.customersByID[id]
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.customerIDByPhone[customer.Phone]; exists {
		return nil, store.ErrConflict
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.customersByID[customer.ID] = customer
	s.customerIDByPhone[customer.Phone] = customer.ID
	s.customerOrder = append(s.customerOrder, customer.ID)
	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customerOrder))
	for _, id := range s.customerOrder {
		customers = append(customers, s.customersByID[id])
	}
	return customers, nil
}

// CreateTransaction persists a header only. Items arrive through
// CreateLineItems; until then the header is invisible to ListTransactions.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.CustomerID == "" || tx.InvoiceNumber == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.invoiceNumbers[tx.InvoiceNumber]; exists {
		return nil, store.ErrConflict
	}
	if _, exists := s.customersByID[tx.CustomerID]; !exists {
		return nil, store.ErrNotFound
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Items = nil

	stored := tx
	s.transactionsByID[tx.ID] = &stored
	s.invoiceNumbers[tx.InvoiceNumber] = tx.ID
	return cloneTransaction(&stored), nil
}

func (s *Store) CreateLineItems(_ context.Context, transactionID string, items []domain.TransactionItem) ([]domain.TransactionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[transactionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if len(items) == 0 {
		return nil, store.ErrValidation
	}

	stored := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Qty < 1 || item.UnitPriceCents < 0 {
			return nil, store.ErrValidation
		}
		item.TransactionID = transactionID
		item.SubtotalCents = item.UnitPriceCents * int64(item.Qty)
		stored = append(stored, item)
	}

	tx.Items = stored
	result := make([]domain.TransactionItem, len(stored))
	copy(result, stored)
	return result, nil
}

func (s *Store) DeleteTransaction(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[transactionID]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.invoiceNumbers, tx.InvoiceNumber)
	delete(s.transactionsByID, transactionID)
	return nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists || len(tx.Items) == 0 {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// ListTransactions returns committed sales newest first. Headers without
// items are mid-commit or orphaned and are never returned.
func (s *Store) ListTransactions(_ context.Context, limit int, withItems bool) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if len(tx.Items) == 0 {
			continue
		}
		clone := *cloneTransaction(tx)
		if !withItems {
			clone.Items = nil
		}
		result = append(result, clone)
	}

	slices.SortFunc(result, func(a, b domain.Transaction) int {
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

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
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

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	clone := *tx
	if tx.Items != nil {
		clone.Items = make([]domain.TransactionItem, len(tx.Items))
		copy(clone.Items, tx.Items)
	}
	return &clone
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}
