// Package report recomputes sales aggregates from the full record set. All
// aggregation is pure and order-independent; nothing here maintains running
// counters.
package report

import (
	"context"
	"strconv"
	"time"

	"agripos/backend/internal/cache"
	"agripos/backend/internal/domain"
)

// Engine serves the dashboard summary through a short-lived cache. The
// groupings below it are plain functions; only the summary sees enough
// traffic to be worth caching.
type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Engine{cache: cacheStore, cacheTTL: cacheTTL}
}

const summaryCacheKey = "agripos:report:summary"

func (e *Engine) Summary(
	ctx context.Context,
	transactions []domain.Transaction,
	customers []domain.Customer,
	products []domain.Product,
) domain.SalesSummary {
	if cached, ok, err := e.cache.Get(ctx, summaryCacheKey); err == nil && ok {
		return *cached
	}

	summary := GlobalTotals(transactions)
	summary.Customers = int64(len(customers))
	summary.Products = int64(len(products))

	_ = e.cache.Set(ctx, summaryCacheKey, &summary, e.cacheTTL)
	return summary
}

// Invalidate drops the cached summary. Called after every committed sale.
func (e *Engine) Invalidate(ctx context.Context) {
	_ = e.cache.Del(ctx, summaryCacheKey)
}

func GlobalTotals(transactions []domain.Transaction) domain.SalesSummary {
	var summary domain.SalesSummary
	for _, tx := range transactions {
		summary.RevenueCents += tx.TotalAmountCents
		summary.TotalBags += int64(tx.TotalBags)
		summary.Transactions++
	}
	return summary
}

// ByBrand groups line items by the brand of the referenced product. Items
// whose product is missing from the catalog, or whose brand is blank, fall
// into the Unknown bucket. Rows come back in first-occurrence order.
func ByBrand(transactions []domain.Transaction, products []domain.Product) []domain.BrandSales {
	brandByProduct := make(map[string]string, len(products))
	for _, p := range products {
		brandByProduct[p.ID] = p.Brand
	}

	index := make(map[string]int)
	var rows []domain.BrandSales
	for _, tx := range transactions {
		for _, item := range tx.Items {
			brand := brandByProduct[item.ProductID]
			if brand == "" {
				brand = domain.UnknownBrand
			}
			i, ok := index[brand]
			if !ok {
				i = len(rows)
				index[brand] = i
				rows = append(rows, domain.BrandSales{Brand: brand})
			}
			rows[i].Bags += int64(item.Qty)
			rows[i].RevenueCents += item.SubtotalCents
		}
	}
	return rows
}

// ByProduct groups line items by the referenced product's name and brand.
// Revenue comes from the historical subtotals; the current catalog price is
// carried alongside for display only.
func ByProduct(transactions []domain.Transaction, products []domain.Product) []domain.ProductSales {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	type key struct{ name, brand string }
	index := make(map[key]int)
	var rows []domain.ProductSales
	for _, tx := range transactions {
		for _, item := range tx.Items {
			p, ok := byID[item.ProductID]
			if !ok {
				p = domain.Product{Name: domain.UnknownBrand, Brand: domain.UnknownBrand}
			}
			k := key{name: p.Name, brand: p.Brand}
			i, found := index[k]
			if !found {
				i = len(rows)
				index[k] = i
				rows = append(rows, domain.ProductSales{
					Name:              p.Name,
					Brand:             p.Brand,
					CurrentPriceCents: p.PricePerBagCents,
				})
			}
			rows[i].Bags += int64(item.Qty)
			rows[i].RevenueCents += item.SubtotalCents
		}
	}
	return rows
}

// ByCustomer rolls transactions up per customer. Every registered customer
// gets a row; customers with no purchases carry zero values.
func ByCustomer(customers []domain.Customer, transactions []domain.Transaction) []domain.CustomerStats {
	rows := make([]domain.CustomerStats, len(customers))
	index := make(map[string]int, len(customers))
	for i, c := range customers {
		rows[i] = domain.CustomerStats{Customer: c}
		index[c.ID] = i
	}

	for _, tx := range transactions {
		i, ok := index[tx.CustomerID]
		if !ok {
			continue
		}
		rows[i].TotalSpentCents += tx.TotalAmountCents
		rows[i].Purchases++
		rows[i].TotalBags += int64(tx.TotalBags)
		if rows[i].LastPurchaseAt == nil || tx.CreatedAt.After(*rows[i].LastPurchaseAt) {
			at := tx.CreatedAt
			rows[i].LastPurchaseAt = &at
		}
	}
	return rows
}

// SalesExportTable flattens committed sales into one row per transaction.
func SalesExportTable(sales []domain.SaleRecord) domain.ExportTable {
	table := domain.ExportTable{
		Headers: []string{"invoice_number", "date", "customer", "phone", "total_bags", "total_amount"},
	}
	for _, s := range sales {
		table.Rows = append(table.Rows, []string{
			s.InvoiceNumber,
			s.CreatedAt.UTC().Format("2006-01-02 15:04"),
			s.CustomerName,
			s.CustomerPhone,
			strconv.Itoa(s.TotalBags),
			formatCents(s.TotalAmountCents),
		})
	}
	return table
}

// ProductExportTable flattens the per-product rollup.
func ProductExportTable(rows []domain.ProductSales) domain.ExportTable {
	table := domain.ExportTable{
		Headers: []string{"product", "brand", "bags_sold", "revenue", "current_price"},
	}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			r.Name,
			r.Brand,
			strconv.FormatInt(r.Bags, 10),
			formatCents(r.RevenueCents),
			formatCents(r.CurrentPriceCents),
		})
	}
	return table
}

func formatCents(cents int64) string {
	whole := cents / 100
	frac := cents % 100
	if frac < 0 {
		frac = -frac
	}
	return strconv.FormatInt(whole, 10) + "." + pad2(frac)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
