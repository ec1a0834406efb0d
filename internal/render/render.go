package render

import "github.com/t77yq/report-scheduler/internal/model"

// Renderer turns a set of orders into a report artifact
type Renderer interface {
	// Render produces the artifact bytes and its file name
	Render(orders []*model.Order) ([]byte, string, error)
}
