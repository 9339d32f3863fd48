package cart

import (
	"testing"

	"agripos/backend/internal/domain"
)

func testCatalog() map[string]domain.Product {
	return map[string]domain.Product{
		"prod-urea": {ID: "prod-urea", Name: "Urea 50kg", Brand: "Engro", PricePerBagCents: 1200},
		"prod-dap":  {ID: "prod-dap", Name: "DAP 50kg", Brand: "FFC", PricePerBagCents: 3000},
		"prod-sop":  {ID: "prod-sop", Name: "SOP 50kg", Brand: "FFC", PricePerBagCents: 2500},
	}
}

func TestAddProductIncrementsExistingLine(t *testing.T) {
	c := New(testCatalog())
	c.AddProduct("prod-urea")
	c.AddProduct("prod-urea")

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Qty != 2 {
		t.Fatalf("expected qty 2, got %d", lines[0].Qty)
	}
	if lines[0].UnitPriceCents != 1200 {
		t.Fatalf("expected snapshot price 1200, got %d", lines[0].UnitPriceCents)
	}
}

func TestAddProductUnknownIsNoop(t *testing.T) {
	c := New(testCatalog())
	c.AddProduct("prod-missing")
	if !c.Empty() {
		t.Fatalf("expected empty cart after adding unknown product")
	}
}

func TestTotals(t *testing.T) {
	c := New(testCatalog())
	c.AddProduct("prod-urea")
	c.AddProduct("prod-urea")
	c.AddProduct("prod-dap")

	got := c.Totals()
	if got.TotalAmountCents != 5400 {
		t.Fatalf("expected total 5400, got %d", got.TotalAmountCents)
	}
	if got.TotalBags != 3 {
		t.Fatalf("expected 3 bags, got %d", got.TotalBags)
	}
}

func TestChangeQuantityRemovesAtZero(t *testing.T) {
	c := New(testCatalog())
	c.AddProduct("prod-urea")
	c.AddProduct("prod-dap")
	c.ChangeQuantity("prod-urea", -1)

	lines := c.Lines()
	if len(lines) != 1 || lines[0].ProductID != "prod-dap" {
		t.Fatalf("expected only prod-dap to remain, got %+v", lines)
	}
}

func TestChangeQuantityBelowZeroRemoves(t *testing.T) {
	c := New(testCatalog())
	c.AddProduct("prod-urea")
	c.ChangeQuantity("prod-urea", -5)
	if !c.Empty() {
		t.Fatalf("expected empty cart")
	}
}

func TestChangeQuantityUnknownIsNoop(t *testing.T) {
	c := New(testCatalog())
	c.AddProduct("prod-urea")
	c.ChangeQuantity("prod-sop", 3)

	lines := c.Lines()
	if len(lines) != 1 || lines[0].Qty != 1 {
		t.Fatalf("expected untouched cart, got %+v", lines)
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	c := New(testCatalog())
	c.AddProduct("prod-dap")
	c.AddProduct("prod-urea")
	c.AddProduct("prod-sop")
	c.AddProduct("prod-urea")
	c.RemoveProduct("prod-dap")
	c.AddProduct("prod-dap")

	want := []string{"prod-urea", "prod-sop", "prod-dap"}
	lines := c.Lines()
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i, id := range want {
		if lines[i].ProductID != id {
			t.Fatalf("line %d: expected %s, got %s", i, id, lines[i].ProductID)
		}
	}
}

func TestSnapshotPriceSurvivesCatalogEdit(t *testing.T) {
	catalog := testCatalog()
	c := New(catalog)
	c.AddProduct("prod-urea")

	p := catalog["prod-urea"]
	p.PricePerBagCents = 9999
	catalog["prod-urea"] = p

	if got := c.Totals().TotalAmountCents; got != 1200 {
		t.Fatalf("expected snapshot price to hold, got total %d", got)
	}
}
