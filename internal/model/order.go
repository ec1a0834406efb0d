package model

import "time"

// LineItem is a single product line on an order
type LineItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,string"`
}

// Order is the subset of a commerce platform order the reports care about.
// Tags come back from the platform as a single comma-separated string.
type Order struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	CreatedAt         time.Time  `json:"created_at"`
	TotalPrice        float64    `json:"current_total_price,string"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	Tags              string     `json:"tags"`
	Customer          *Customer  `json:"customer,omitempty"`
	LineItems         []LineItem `json:"line_items"`
}

// Customer holds the buyer's name for the rendered report
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
