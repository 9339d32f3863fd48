package domain

import "time"

type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Brand            string    `json:"brand"`
	PricePerBagCents int64     `json:"price_per_bag_cents"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name             string `json:"name"`
	Brand            string `json:"brand"`
	PricePerBagCents int64  `json:"price_per_bag_cents"`
	Description      string `json:"description"`
}

type ProductUpdateRequest struct {
	Name             *string `json:"name,omitempty"`
	Brand            *string `json:"brand,omitempty"`
	PricePerBagCents *int64  `json:"price_per_bag_cents,omitempty"`
	Description      *string `json:"description,omitempty"`
}

type ProductPriceHistory struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone_number"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerStats is a Customer joined with their purchase rollup. Customers
// without any transactions appear with zero values.
type CustomerStats struct {
	Customer
	TotalSpentCents int64      `json:"total_spent_cents"`
	Purchases       int64      `json:"purchases"`
	TotalBags       int64      `json:"total_bags"`
	LastPurchaseAt  *time.Time `json:"last_purchase_at,omitempty"`
}

type TransactionItem struct {
	TransactionID  string `json:"transaction_id,omitempty"`
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Transaction struct {
	ID               string            `json:"id"`
	CustomerID       string            `json:"customer_id"`
	InvoiceNumber    string            `json:"invoice_number"`
	MerchantID       string            `json:"merchant_id"`
	TotalBags        int               `json:"total_bags"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	CreatedBy        string            `json:"created_by,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Items            []TransactionItem `json:"items,omitempty"`
}

type SaleItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type SaleRequest struct {
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	MerchantID    string     `json:"merchant_id"`
	Items         []SaleItem `json:"items"`
}

type SaleResponse struct {
	TransactionID    string            `json:"transaction_id"`
	InvoiceNumber    string            `json:"invoice_number"`
	CustomerID       string            `json:"customer_id"`
	CustomerCreated  bool              `json:"customer_created"`
	TotalBags        int               `json:"total_bags"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	Items            []TransactionItem `json:"items"`
	CreatedAt        string            `json:"created_at"`
}

// SaleRecord is a committed transaction with the customer display fields
// attached, as shown on the dashboard and sales report.
type SaleRecord struct {
	Transaction
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
}

type SalesSummary struct {
	RevenueCents int64 `json:"revenue_cents"`
	TotalBags    int64 `json:"total_bags"`
	Transactions int64 `json:"transactions"`
	Customers    int64 `json:"customers"`
	Products     int64 `json:"products"`
}

type BrandSales struct {
	Brand        string `json:"brand"`
	Bags         int64  `json:"bags"`
	RevenueCents int64  `json:"revenue_cents"`
}

type ProductSales struct {
	Name              string `json:"name"`
	Brand             string `json:"brand"`
	Bags              int64  `json:"bags"`
	RevenueCents      int64  `json:"revenue_cents"`
	CurrentPriceCents int64  `json:"current_price_cents"`
}

// ExportTable is a flat row-oriented table handed to an export sink. The
// HTTP layer renders it as CSV; the core never writes files.
type ExportTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// UnknownBrand is the report bucket for line items whose product no longer
// exists in the catalog or never carried a brand.
const UnknownBrand = "Unknown"
