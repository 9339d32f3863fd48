package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"agripos/backend/internal/cart"
	"agripos/backend/internal/domain"
	"agripos/backend/internal/report"
	"agripos/backend/internal/store"
	"agripos/backend/internal/xid"
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
	repo       store.Repository
	reports    *report.Engine
	merchantID string
}

func New(repo store.Repository, reports *report.Engine, merchantID string) *Service {
	if reports == nil {
		reports = report.NewEngine(nil, 0)
	}
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		merchantID = "main-shop"
	}
	return &Service{repo: repo, reports: reports, merchantID: merchantID}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)
	req.Description = strings.TrimSpace(req.Description)

	if req.Name == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.PricePerBagCents < 1 {
		return domain.Product{}, store.ErrValidation
	}

	product := domain.Product{
		ID:               xid.New("prod"),
		Name:             req.Name,
		Brand:            req.Brand,
		PricePerBagCents: req.PricePerBagCents,
		Description:      req.Description,
		CreatedAt:        time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,brand=%s,price=%d", created.Name, created.Brand, created.PricePerBagCents))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.PricePerBagCents != nil {
		if *req.PricePerBagCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PricePerBagCents = *req.PricePerBagCents
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	// Historical line items keep their snapshot price; only the history
	// table records the change.
	if existing.PricePerBagCents != saved.PricePerBagCents {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:            xid.New("ph"),
			ProductID:     saved.ID,
			OldPriceCents: existing.PricePerBagCents,
			NewPriceCents: saved.PricePerBagCents,
			ChangedBy:     actor.Username,
			ChangedAt:     time.Now().UTC(),
		}); err != nil {
			log.Printf("[service] WARN: failed to record price history product=%s: %v", saved.ID, err)
		}
	}

	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,brand=%s,price=%d", saved.Name, saved.Brand, saved.PricePerBagCents))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrValidation
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrValidation
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

// resolveCustomer finds or creates the customer for a sale. Phone number is
// the sole identity key; an existing customer's name is never overwritten.
// A create that loses a concurrent race is retried once as a lookup.
func (s *Service) resolveCustomer(ctx context.Context, name string, phone string) (*domain.Customer, bool, error) {
	existing, err := s.repo.FindCustomerByPhone(ctx, phone)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cust"),
		Name:      name,
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	})
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, false, err
	}

	winner, err := s.repo.FindCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, false, fmt.Errorf("customer lookup after conflict: %w", err)
	}
	return winner, false, nil
}

// CommitSale runs the transaction commit pipeline: validate, resolve the
// customer, snapshot prices into a cart, write the header, write the line
// items. The header/items pair is compensated on failure so readers never
// observe a transaction without items.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SaleResponse{}, fmt.Errorf("authenticated actor required")
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.MerchantID = strings.TrimSpace(req.MerchantID)
	if req.MerchantID == "" {
		req.MerchantID = s.merchantID
	}

	if req.CustomerName == "" || req.CustomerPhone == "" {
		return domain.SaleResponse{}, store.ErrValidation
	}
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, store.ErrValidation
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Qty < 1 {
			return domain.SaleResponse{}, store.ErrValidation
		}
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	basket := cart.New(products)
	for _, item := range req.Items {
		if _, exists := products[item.ProductID]; !exists {
			return domain.SaleResponse{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		basket.AddProduct(item.ProductID)
		if item.Qty > 1 {
			basket.ChangeQuantity(item.ProductID, item.Qty-1)
		}
	}
	if basket.Empty() {
		return domain.SaleResponse{}, store.ErrValidation
	}

	customer, customerCreated, err := s.resolveCustomer(ctx, req.CustomerName, req.CustomerPhone)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	totals := basket.Totals()
	header := domain.Transaction{
		ID:               xid.New("tx"),
		CustomerID:       customer.ID,
		InvoiceNumber:    xid.Invoice(),
		MerchantID:       req.MerchantID,
		TotalBags:        totals.TotalBags,
		TotalAmountCents: totals.TotalAmountCents,
		CreatedAt:        time.Now().UTC(),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		header.CreatedBy = actor.Username
	}

	created, err := s.repo.CreateTransaction(ctx, header)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	lines := basket.Lines()
	items := make([]domain.TransactionItem, 0, len(lines))
	for _, ln := range lines {
		items = append(items, domain.TransactionItem{
			TransactionID:  created.ID,
			ProductID:      ln.ProductID,
			Qty:            ln.Qty,
			UnitPriceCents: ln.UnitPriceCents,
			SubtotalCents:  ln.UnitPriceCents * int64(ln.Qty),
		})
	}

	storedItems, err := s.repo.CreateLineItems(ctx, created.ID, items)
	if err != nil {
		if delErr := s.repo.DeleteTransaction(ctx, created.ID); delErr != nil {
			log.Printf("[service] ERROR: orphaned transaction %s: item write failed (%v) and compensation failed (%v)", created.ID, err, delErr)
			return domain.SaleResponse{}, &store.PartialCommitError{TransactionID: created.ID, Err: err}
		}
		return domain.SaleResponse{}, fmt.Errorf("line items: %w", err)
	}

	s.reports.Invalidate(ctx)
	s.logAudit(ctx, "sale_commit", "transaction", created.ID, fmt.Sprintf("invoice=%s,customer=%s,bags=%d,amount=%d", created.InvoiceNumber, customer.ID, created.TotalBags, created.TotalAmountCents))

	return domain.SaleResponse{
		TransactionID:    created.ID,
		InvoiceNumber:    created.InvoiceNumber,
		CustomerID:       customer.ID,
		CustomerCreated:  customerCreated,
		TotalBags:        created.TotalBags,
		TotalAmountCents: created.TotalAmountCents,
		Items:            storedItems,
		CreatedAt:        created.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transaction{}, store.ErrValidation
	}
	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// ListSales returns committed sales newest first with customer display
// fields attached.
func (s *Service) ListSales(ctx context.Context, limit int, withItems bool) ([]domain.SaleRecord, error) {
	if limit < 1 {
		limit = 100
	}
	return s.salesRecords(ctx, limit, withItems)
}

// salesRecords is the unpaged join behind ListSales and the exports.
// limit <= 0 means no limit.
func (s *Service) salesRecords(ctx context.Context, limit int, withItems bool) ([]domain.SaleRecord, error) {
	transactions, err := s.repo.ListTransactions(ctx, limit, withItems)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		byID[c.ID] = c
	}

	records := make([]domain.SaleRecord, 0, len(transactions))
	for _, tx := range transactions {
		rec := domain.SaleRecord{Transaction: tx}
		if c, ok := byID[tx.CustomerID]; ok {
			rec.CustomerName = c.Name
			rec.CustomerPhone = c.Phone
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListCustomerStats joins the customer registry with the per-customer sales
// rollup. Customers without purchases appear with zero values.
func (s *Service) ListCustomerStats(ctx context.Context) ([]domain.CustomerStats, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	transactions, err := s.repo.ListTransactions(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	return report.ByCustomer(customers, transactions), nil
}

func (s *Service) SalesSummary(ctx context.Context) (domain.SalesSummary, error) {
	transactions, err := s.repo.ListTransactions(ctx, 0, false)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return s.reports.Summary(ctx, transactions, customers, products), nil
}

func (s *Service) SalesByBrand(ctx context.Context) ([]domain.BrandSales, error) {
	transactions, products, err := s.loadSalesAndCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return report.ByBrand(transactions, products), nil
}

func (s *Service) SalesByProduct(ctx context.Context) ([]domain.ProductSales, error) {
	transactions, products, err := s.loadSalesAndCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return report.ByProduct(transactions, products), nil
}

func (s *Service) loadSalesAndCatalog(ctx context.Context) ([]domain.Transaction, []domain.Product, error) {
	transactions, err := s.repo.ListTransactions(ctx, 0, true)
	if err != nil {
		return nil, nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, nil, err
	}
	return transactions, products, nil
}

// SalesExport flattens the entire sales history; unlike the paged listing it
// never truncates.
func (s *Service) SalesExport(ctx context.Context) (domain.ExportTable, error) {
	sales, err := s.salesRecords(ctx, 0, false)
	if err != nil {
		return domain.ExportTable{}, err
	}
	s.logAudit(ctx, "report_export", "report", "sales", fmt.Sprintf("rows=%d", len(sales)))
	return report.SalesExportTable(sales), nil
}

func (s *Service) ProductSalesExport(ctx context.Context) (domain.ExportTable, error) {
	rows, err := s.SalesByProduct(ctx)
	if err != nil {
		return domain.ExportTable{}, err
	}
	s.logAudit(ctx, "report_export", "report", "products", fmt.Sprintf("rows=%d", len(rows)))
	return report.ProductExportTable(rows), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
