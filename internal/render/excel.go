package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/t77yq/report-scheduler/internal/model"
)

const sheetName = "Orders"

var columns = []struct {
	header string
	width  float64
}{
	{"Order ID", 20},
	{"Order Name", 20},
	{"Date", 25},
	{"Fulfillment Status", 25},
	{"Total Price", 15},
	{"Financial Status", 20},
	{"Items", 40},
}

// ExcelRenderer renders orders into an xlsx workbook
type ExcelRenderer struct{}

// NewExcelRenderer creates a new Excel renderer
func NewExcelRenderer() *ExcelRenderer {
	return &ExcelRenderer{}
}

// Render implements Renderer.Render
func (r *ExcelRenderer) Render(orders []*model.Order) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)

	for i, col := range columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve column name: %w", err)
		}
		cell := fmt.Sprintf("%s1", name)
		if err := f.SetCellValue(sheetName, cell, col.header); err != nil {
			return nil, "", fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, col.width); err != nil {
			return nil, "", fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, order := range orders {
		fulfillment := order.FulfillmentStatus
		if fulfillment == "" {
			fulfillment = "Unfulfilled"
		}

		items := make([]string, 0, len(order.LineItems))
		for _, item := range order.LineItems {
			items = append(items, fmt.Sprintf("%s (x%d)", item.Name, item.Quantity))
		}

		row := []interface{}{
			order.ID,
			order.Name,
			order.CreatedAt.Format(time.RFC3339),
			fulfillment,
			order.TotalPrice,
			order.FinancialStatus,
			strings.Join(items, ", "),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, "", fmt.Errorf("failed to write row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to write workbook: %w", err)
	}

	return buf.Bytes(), "orders-report.xlsx", nil
}
