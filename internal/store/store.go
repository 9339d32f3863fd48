package store

import (
	"context"
	"errors"
	"fmt"

	"agripos/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// PartialCommitError reports a transaction header that was written but whose
// line items failed AND the compensating delete of the header also failed.
// The id identifies the record needing repair.
type PartialCommitError struct {
	TransactionID string
	Err           error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("transaction %s committed without items: %v", e.TransactionID, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	CreateLineItems(ctx context.Context, transactionID string, items []domain.TransactionItem) ([]domain.TransactionItem, error)
	DeleteTransaction(ctx context.Context, transactionID string) error
	GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int, withItems bool) ([]domain.Transaction, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
