package domain

import "time"

const (
	MinAmountProduct = 1
	MaxAmountProduct = 32000
)

type Cart struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// CartLine is one (product, quantity) entry of a cart. A cart holds at most
// one line per product.
type CartLine struct {
	ID        string    `bson:"_id" json:"id"`
	CartID    string    `bson:"cart_id" json:"cart_id"`
	ProductID int64     `bson:"product_id" json:"product_id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ValidAmount reports whether amount may be added to or removed from a cart
// in a single request.
func ValidAmount(amount int) bool {
	return amount >= MinAmountProduct && amount <= MaxAmountProduct
}
