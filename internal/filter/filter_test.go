package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/report-scheduler/internal/model"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func sampleOrder() *model.Order {
	return &model.Order{
		ID:                1001,
		Name:              "#1001",
		TotalPrice:        2500,
		FinancialStatus:   "paid",
		FulfillmentStatus: "fulfilled",
		Tags:              "Wear, Fashion",
		LineItems: []model.LineItem{
			{ID: 1, Name: "Jacket", Quantity: 2},
			{ID: 2, Name: "Scarf", Quantity: 1},
			{ID: 3, Name: "Hat", Quantity: 1},
		},
	}
}

func TestMatchesEmptySpec(t *testing.T) {
	assert.True(t, Matches(sampleOrder(), model.FilterSpec{}))
}

func TestMatchesOrderStatus(t *testing.T) {
	order := sampleOrder()
	assert.True(t, Matches(order, model.FilterSpec{OrderStatus: model.OrderStatusFulfilled}))
	assert.False(t, Matches(order, model.FilterSpec{OrderStatus: model.OrderStatusUnfulfilled}))

	// The platform leaves fulfillment status empty for unfulfilled orders.
	order.FulfillmentStatus = ""
	assert.True(t, Matches(order, model.FilterSpec{OrderStatus: model.OrderStatusUnfulfilled}))
	assert.False(t, Matches(order, model.FilterSpec{OrderStatus: model.OrderStatusFulfilled}))
}

func TestMatchesPaymentStatus(t *testing.T) {
	order := sampleOrder()
	assert.True(t, Matches(order, model.FilterSpec{PaymentStatus: model.PaymentStatusPaid}))
	assert.False(t, Matches(order, model.FilterSpec{PaymentStatus: model.PaymentStatusPending}))

	order.FinancialStatus = "pending"
	assert.True(t, Matches(order, model.FilterSpec{PaymentStatus: model.PaymentStatusPending}))
}

func TestMatchesThresholds(t *testing.T) {
	order := sampleOrder()

	assert.True(t, Matches(order, model.FilterSpec{MinOrderValue: floatPtr(2500)}))
	assert.False(t, Matches(order, model.FilterSpec{MinOrderValue: floatPtr(2500.01)}))

	assert.True(t, Matches(order, model.FilterSpec{MinItems: intPtr(3)}))
	assert.False(t, Matches(order, model.FilterSpec{MinItems: intPtr(4)}))
}

func TestMatchesTags(t *testing.T) {
	order := sampleOrder()

	assert.True(t, Matches(order, model.FilterSpec{Tags: []string{"fashion"}}))
	assert.True(t, Matches(order, model.FilterSpec{Tags: []string{" WEAR "}}))
	assert.False(t, Matches(order, model.FilterSpec{Tags: []string{"vip"}}))

	order.Tags = ""
	assert.False(t, Matches(order, model.FilterSpec{Tags: []string{"fashion"}}))
}

// TestConjunctionIndependence verifies that the overall result is the
// AND of each predicate evaluated on its own, so relaxing one predicate
// never changes how another evaluates.
func TestConjunctionIndependence(t *testing.T) {
	order := sampleOrder()

	full := model.FilterSpec{
		OrderStatus:   model.OrderStatusFulfilled,
		PaymentStatus: model.PaymentStatusPaid,
		MinOrderValue: floatPtr(1000),
		MinItems:      intPtr(2),
		Tags:          []string{"wear"},
	}
	assert.True(t, Matches(order, full))

	// Tightening exactly one predicate flips the conjunction.
	failing := full
	failing.MinItems = intPtr(10)
	assert.False(t, Matches(order, failing))

	// Dropping the failing predicate restores the match; the remaining
	// predicates are unaffected by its presence or absence.
	relaxed := failing
	relaxed.MinItems = nil
	assert.True(t, Matches(order, relaxed))
}

func TestApply(t *testing.T) {
	cheap := sampleOrder()
	cheap.ID = 1002
	cheap.TotalPrice = 40

	orders := []*model.Order{sampleOrder(), cheap}
	matched := Apply(orders, model.FilterSpec{MinOrderValue: floatPtr(100)})

	assert.Len(t, matched, 1)
	assert.Equal(t, int64(1001), matched[0].ID)
}
