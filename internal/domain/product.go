package domain

import "github.com/shopspring/decimal"

// MinPrice is the lowest price the catalog accepts for a product.
var MinPrice = decimal.RequireFromString("1.00")

type Category struct {
	ID    int64
	Name  string
	Slug  string
	Image string
}

type Subcategory struct {
	ID           int64
	Name         string
	Slug         string
	Image        string
	CategoryID   int64
	CategoryName string
}

type Product struct {
	ID              int64
	Name            string
	Slug            string
	SubcategoryID   int64
	SubcategoryName string
	CategoryName    string
	Price           decimal.Decimal
	ImageLarge      string
	ImageMedium     string
	ImageSmall      string
}

// Images returns the product image URLs from the largest to the smallest.
func (p *Product) Images() []string {
	return []string{p.ImageLarge, p.ImageMedium, p.ImageSmall}
}
