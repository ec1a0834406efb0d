package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/t77yq/report-scheduler/internal/model"
)

func TestExcelRender(t *testing.T) {
	orders := []*model.Order{
		{
			ID:                1001,
			Name:              "#1001",
			CreatedAt:         time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
			TotalPrice:        249.99,
			FinancialStatus:   "paid",
			FulfillmentStatus: "fulfilled",
			LineItems: []model.LineItem{
				{ID: 1, Name: "Jacket", Quantity: 2},
				{ID: 2, Name: "Scarf", Quantity: 1},
			},
		},
		{
			ID:              1002,
			Name:            "#1002",
			CreatedAt:       time.Date(2024, 3, 16, 14, 0, 0, 0, time.UTC),
			TotalPrice:      59.00,
			FinancialStatus: "pending",
			// No fulfillment status: the platform's way of saying unfulfilled.
			LineItems: []model.LineItem{{ID: 3, Name: "Hat", Quantity: 1}},
		},
	}

	artifact, filename, err := NewExcelRenderer().Render(orders)
	require.NoError(t, err)
	assert.Equal(t, "orders-report.xlsx", filename)
	require.NotEmpty(t, artifact)

	f, err := excelize.OpenReader(bytes.NewReader(artifact))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Order ID", rows[0][0])
	assert.Equal(t, "Items", rows[0][6])

	assert.Equal(t, "#1001", rows[1][1])
	assert.Equal(t, "fulfilled", rows[1][3])
	assert.Equal(t, "Jacket (x2), Scarf (x1)", rows[1][6])

	assert.Equal(t, "Unfulfilled", rows[2][3])
	assert.Equal(t, "pending", rows[2][5])
}

func TestExcelRenderEmpty(t *testing.T) {
	artifact, _, err := NewExcelRenderer().Render(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(artifact))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header row only")
}
