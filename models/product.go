// Package models defines data structures shared by the tracker pipeline.
package models

import "time"

// DefaultCurrency is applied to products ingested without a currency code.
const DefaultCurrency = "USD"

// Product is a catalog item keyed by its vendor catalog key (ASIN).
type Product struct {
	ASIN       string    `db:"asin" json:"asin"`
	Name       string    `db:"name" json:"name"`
	Image      string    `db:"image" json:"image,omitempty"`
	URL        string    `db:"url" json:"url,omitempty"`
	Currency   string    `db:"currency" json:"currency"`
	FinalPrice *float64  `db:"final_price" json:"final_price"` // cached latest snapshot price
	Brand      string    `db:"brand" json:"brand,omitempty"`
	Keyword    string    `db:"keyword" json:"keyword,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// HasPrice reports whether the product carries a current price.
func (p *Product) HasPrice() bool {
	return p != nil && p.FinalPrice != nil
}

// Snapshot is one immutable price observation for a product.
type Snapshot struct {
	ID        int64     `db:"id" json:"id"`
	ASIN      string    `db:"asin" json:"asin"`
	Price     float64   `db:"final_price" json:"final_price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Newer reports whether s sorts after other in snapshot order: later
// timestamp first, higher id on equal timestamps.
func (s Snapshot) Newer(other Snapshot) bool {
	if s.CreatedAt.Equal(other.CreatedAt) {
		return s.ID > other.ID
	}
	return s.CreatedAt.After(other.CreatedAt)
}

// PriceOf returns a pointer to price, for populating Product.FinalPrice.
func PriceOf(price float64) *float64 {
	return &price
}
