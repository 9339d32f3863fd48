package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"agripos/backend/internal/domain"
	"agripos/backend/internal/store"
)

func TestHeaderInvisibleUntilItemsCommit(t *testing.T) {
	databaseURL := os.Getenv("AGRIPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set AGRIPOS_TEST_DATABASE_URL to run postgres integration test")
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
	productID := fmt.Sprintf("prod-commit-it-%d", stamp)
	customerID := fmt.Sprintf("cust-commit-it-%d", stamp)
	txID := fmt.Sprintf("tx-commit-it-%d", stamp)
	phone := fmt.Sprintf("0300-%d", stamp)
	invoice := fmt.Sprintf("INV-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:               productID,
		Name:             "Urea IT 50kg",
		Brand:            "Engro",
		PricePerBagCents: 345000,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := s.CreateCustomer(ctx, domain.Customer{
		ID:    customerID,
		Name:  "Integration Customer",
		Phone: phone,
	}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	created, err := s.CreateTransaction(ctx, domain.Transaction{
		ID:               txID,
		CustomerID:       customerID,
		InvoiceNumber:    invoice,
		MerchantID:       "shop-it",
		TotalBags:        2,
		TotalAmountCents: 690000,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if _, err := s.GetTransactionByID(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected item-less header to be invisible, got %v", err)
	}

	if _, err := s.CreateLineItems(ctx, created.ID, []domain.TransactionItem{
		{ProductID: productID, Qty: 2, UnitPriceCents: 345000},
	}); err != nil {
		t.Fatalf("create line items: %v", err)
	}

	loaded, err := s.GetTransactionByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].SubtotalCents != 690000 {
		t.Fatalf("unexpected items: %+v", loaded.Items)
	}

	// Second sale for the same phone must conflict, not create a duplicate.
	if _, err := s.CreateCustomer(ctx, domain.Customer{
		Name:  "Someone Else",
		Phone: phone,
	}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected phone conflict, got %v", err)
	}
}
