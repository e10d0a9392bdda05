package domain

import "time"

type CartEventType string

const (
	EventLineAdded       CartEventType = "line_added"
	EventLineDecremented CartEventType = "line_decremented"
	EventLineRemoved     CartEventType = "line_removed"
	EventCartCleared     CartEventType = "cart_cleared"
)

// CartEvent is written to the outbox in the same transaction as the cart
// mutation it describes. Seq is only set by stores that have no outbox
// sequence of their own.
type CartEvent struct {
	ID         string        `bson:"_id" json:"id"`
	CartID     string        `bson:"cart_id" json:"cart_id"`
	Owner      string        `bson:"owner" json:"owner"`
	Type       CartEventType `bson:"type" json:"type"`
	ProductID  int64         `bson:"product_id,omitempty" json:"product_id,omitempty"`
	Amount     int           `bson:"amount,omitempty" json:"amount,omitempty"`
	Quantity   int           `bson:"quantity" json:"quantity"`
	OccurredAt time.Time     `bson:"occurred_at" json:"occurred_at"`
	Published  bool          `bson:"published" json:"-"`
	Seq        int64         `bson:"seq" json:"-"`
}
