package models

import "time"

// Alert records a price drop for a product within a tracked search. Product
// fields and the owning user are copied at creation time.
type Alert struct {
	ID          string    `db:"id" json:"id"`
	SearchID    string    `db:"search_id" json:"search_id"`
	ASIN        string    `db:"asin" json:"asin"`
	ProductName string    `db:"product_name" json:"product_name"`
	ProductURL  string    `db:"product_url" json:"product_url,omitempty"`
	OldPrice    float64   `db:"old_price" json:"old_price"`
	NewPrice    float64   `db:"new_price" json:"new_price"`
	DropAmount  float64   `db:"price_drop_amount" json:"price_drop_amount"`
	DropPercent float64   `db:"price_drop_percent" json:"price_drop_percent"`
	Read        bool      `db:"is_read" json:"is_read"`
	UserID      string    `db:"user_id" json:"user_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Drop is a product whose newest snapshot is cheaper than the one before.
type Drop struct {
	Product  Product
	OldPrice float64 // second-newest snapshot
	NewPrice float64 // newest snapshot
}
