package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CartLine pairs a product snapshot with a quantity.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal is price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// UnmarshalJSON accepts both {"product":{...},"quantity":n} and the flattened
// form where the product fields and quantity share one object.
func (l *CartLine) UnmarshalJSON(data []byte) error {
	var shape struct {
		Product  *Product `json:"product"`
		Quantity *int     `json:"quantity"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	if shape.Quantity == nil {
		return fmt.Errorf("cart line without quantity")
	}
	l.Quantity = *shape.Quantity

	if shape.Product != nil {
		l.Product = *shape.Product
		return nil
	}
	var flat Product
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if flat.ID == "" {
		return fmt.Errorf("cart line without product")
	}
	l.Product = flat
	return nil
}

// Cart is an ordered snapshot of cart lines, in first-added order.
type Cart struct {
	Lines []CartLine `json:"lines"`
}

// Total is the sum of price times quantity across lines.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount is the sum of quantities across lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Quantity returns the quantity held for productID, or 0.
func (c Cart) Quantity(productID string) int {
	for _, l := range c.Lines {
		if l.Product.ID == productID {
			return l.Quantity
		}
	}
	return 0
}
