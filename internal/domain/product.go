package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Number renders d as a JSON number, the form amounts take in products.json.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// Category is one of the fixed product categories.
type Category string

// Known categories. CategoryAll is the filter sentinel, never a product's
// own category.
const (
	CategoryAll             Category = "all"
	CategoryWireFencing     Category = "Wire Fencing"
	CategoryElectricFence   Category = "Electric Fence"
	CategoryFencePosts      Category = "Fence Posts"
	CategoryChainLink       Category = "Chain Link"
	CategoryWoodFencing     Category = "Wood Fencing"
	CategoryFenceTools      Category = "Fence Tools"
	CategoryGateHardware    Category = "Gate Hardware"
	CategoryLivestockPanels Category = "Livestock Panels"
)

// ProductCategories lists every category a product may carry.
var ProductCategories = []Category{
	CategoryWireFencing,
	CategoryElectricFence,
	CategoryFencePosts,
	CategoryChainLink,
	CategoryWoodFencing,
	CategoryFenceTools,
	CategoryGateHardware,
	CategoryLivestockPanels,
}

// IsProductCategory reports whether c is a category a product may carry.
func (c Category) IsProductCategory() bool {
	for _, pc := range ProductCategories {
		if c == pc {
			return true
		}
	}
	return false
}

// Product is a catalog entry. JSON names follow products.json.
type Product struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Category    Category        `json:"category" validate:"product_category"`
	Available   bool            `json:"available"`
	Inventory   int             `json:"inventory" validate:"gte=0"`
	Rating      float64         `json:"rating" validate:"gte=0,lte=5"`
	Reviews     int             `json:"reviews" validate:"gte=0"`
	Unit        string          `json:"unit"`
}

// MarshalJSON writes Price as a JSON number.
func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		Price json.Number `json:"price"`
	}{plain: plain(p), Price: Number(p.Price)})
}
