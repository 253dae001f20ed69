package domain

import "time"

// Product represents a sellable product. Quantity and version live in the
// stock ledger, not here; the product record only carries catalog identity.
type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"` // minor units (cents)
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockLevel is a read-model row combining a product with its current ledger
// state, used by the stock reporting endpoints.
type StockLevel struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Version   int64  `json:"version"`
}
