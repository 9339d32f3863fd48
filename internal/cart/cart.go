// Package cart holds the transient in-progress sale. A cart is built from a
// catalog snapshot, lives only for the duration of one sale, and is never
// persisted.
package cart

import "agripos/backend/internal/domain"

type Line struct {
	ProductID      string
	Name           string
	Brand          string
	UnitPriceCents int64
	Qty            int
}

type Totals struct {
	TotalAmountCents int64
	TotalBags        int
}

// Cart keeps lines in the order products were first added. Unit price and
// brand are snapshotted from the catalog at add time; later catalog edits do
// not reach lines already in the cart.
type Cart struct {
	catalog map[string]domain.Product
	lines   []Line
	index   map[string]int
}

func New(catalog map[string]domain.Product) *Cart {
	return &Cart{
		catalog: catalog,
		index:   make(map[string]int),
	}
}

// AddProduct increments the line for productID by one bag, inserting a new
// line when the product is not in the cart yet. Unknown product ids are
// ignored.
func (c *Cart) AddProduct(productID string) {
	if i, ok := c.index[productID]; ok {
		c.lines[i].Qty++
		return
	}
	p, ok := c.catalog[productID]
	if !ok {
		return
	}
	c.index[productID] = len(c.lines)
	c.lines = append(c.lines, Line{
		ProductID:      p.ID,
		Name:           p.Name,
		Brand:          p.Brand,
		UnitPriceCents: p.PricePerBagCents,
		Qty:            1,
	})
}

// ChangeQuantity adjusts the line for productID by delta. A resulting
// quantity of zero or less removes the line. No-op when the product is not
// in the cart.
func (c *Cart) ChangeQuantity(productID string, delta int) {
	i, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines[i].Qty += delta
	if c.lines[i].Qty <= 0 {
		c.remove(i)
	}
}

// RemoveProduct drops the line for productID regardless of quantity.
func (c *Cart) RemoveProduct(productID string) {
	if i, ok := c.index[productID]; ok {
		c.remove(i)
	}
}

func (c *Cart) remove(i int) {
	delete(c.index, c.lines[i].ProductID)
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].ProductID] = j
	}
}

// Totals recomputes from the lines on every call.
func (c *Cart) Totals() Totals {
	var t Totals
	for _, ln := range c.lines {
		t.TotalAmountCents += ln.UnitPriceCents * int64(ln.Qty)
		t.TotalBags += ln.Qty
	}
	return t
}

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Empty() bool { return len(c.lines) == 0 }
