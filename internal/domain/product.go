package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusInactive ProductStatus = "inactive"
)

type ProductImage struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Stock         int              `json:"stock"`
	Category      string           `json:"category"`
	Status        ProductStatus    `json:"status"`
	Images        []ProductImage   `json:"images"`
	Tags          []string         `json:"tags"`
	Featured      bool             `json:"featured"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// CoverImage is the image copied into order line items.
func (p Product) CoverImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// StockAdjustment marks a referenced stock change as applied so a repeated
// request with the same reference leaves stock alone.
type StockAdjustment struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Reference string    `json:"reference"`
	Delta     int       `json:"delta"`
	CreatedAt time.Time `json:"createdAt"`
}
