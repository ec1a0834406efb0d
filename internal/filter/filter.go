// Package filter evaluates order predicates locally, after the coarse
// server-side filters the commerce API supports have already been applied.
package filter

import (
	"strings"

	"github.com/t77yq/report-scheduler/internal/model"
)

// Matches reports whether an order satisfies every populated predicate
// of the spec. Predicates are independent; an unset predicate always
// passes.
func Matches(order *model.Order, spec model.FilterSpec) bool {
	return matchesOrderStatus(order, spec.OrderStatus) &&
		matchesPaymentStatus(order, spec.PaymentStatus) &&
		matchesMinValue(order, spec.MinOrderValue) &&
		matchesMinItems(order, spec.MinItems) &&
		matchesTags(order, spec.Tags)
}

// Apply returns the orders that match the spec, preserving input order.
func Apply(orders []*model.Order, spec model.FilterSpec) []*model.Order {
	matched := make([]*model.Order, 0, len(orders))
	for _, order := range orders {
		if Matches(order, spec) {
			matched = append(matched, order)
		}
	}
	return matched
}

func matchesOrderStatus(order *model.Order, status model.OrderStatusFilter) bool {
	switch status {
	case model.OrderStatusFulfilled:
		return order.FulfillmentStatus == "fulfilled"
	case model.OrderStatusUnfulfilled:
		// The platform reports unfulfilled orders with an empty status.
		return order.FulfillmentStatus == "" || order.FulfillmentStatus == "unfulfilled"
	default:
		return true
	}
}

func matchesPaymentStatus(order *model.Order, status model.PaymentStatusFilter) bool {
	switch status {
	case model.PaymentStatusPaid:
		return order.FinancialStatus == "paid"
	case model.PaymentStatusPending:
		return order.FinancialStatus == "pending"
	default:
		return true
	}
}

func matchesMinValue(order *model.Order, min *float64) bool {
	if min == nil {
		return true
	}
	return order.TotalPrice >= *min
}

func matchesMinItems(order *model.Order, min *int) bool {
	if min == nil {
		return true
	}
	return len(order.LineItems) >= *min
}

func matchesTags(order *model.Order, tags []string) bool {
	if len(tags) == 0 {
		return true
	}

	orderTags := make(map[string]bool)
	for _, tag := range strings.Split(order.Tags, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			orderTags[tag] = true
		}
	}

	for _, tag := range tags {
		if orderTags[strings.ToLower(strings.TrimSpace(tag))] {
			return true
		}
	}
	return false
}
