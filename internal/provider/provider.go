package provider

import (
	"context"
	"time"

	"github.com/t77yq/report-scheduler/internal/model"
)

// FetchQuery bounds an order fetch. Only the coarse filters the
// platform understands server-side are included; the fine-grained
// predicates run locally afterwards.
type FetchQuery struct {
	Shop          string
	From          time.Time
	To            time.Time
	OrderStatus   model.OrderStatusFilter
	PaymentStatus model.PaymentStatusFilter
}

// OrderProvider fetches orders from the commerce platform
type OrderProvider interface {
	Fetch(ctx context.Context, query FetchQuery) ([]*model.Order, error)
}
