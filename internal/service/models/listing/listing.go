package listing

import "github.com/shopspring/decimal"

// Listing is the sellable record a cart item points at.
type Listing struct {
	ID     string
	Title  string
	Price  decimal.Decimal
	Active bool
}
