package model

// OrderStatusFilter narrows orders by fulfillment state
type OrderStatusFilter string

const (
	OrderStatusAll         OrderStatusFilter = "all"
	OrderStatusFulfilled   OrderStatusFilter = "fulfilled"
	OrderStatusUnfulfilled OrderStatusFilter = "unfulfilled"
)

// PaymentStatusFilter narrows orders by financial state
type PaymentStatusFilter string

const (
	PaymentStatusAll     PaymentStatusFilter = "all"
	PaymentStatusPaid    PaymentStatusFilter = "paid"
	PaymentStatusPending PaymentStatusFilter = "pending"
)

// FilterSpec is a conjunction of independent order predicates. Zero
// values mean "no constraint" for every field.
type FilterSpec struct {
	OrderStatus   OrderStatusFilter   `json:"order_status,omitempty"`
	PaymentStatus PaymentStatusFilter `json:"payment_status,omitempty"`
	MinOrderValue *float64            `json:"min_order_value,omitempty"`
	MinItems      *int                `json:"min_items,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
}
