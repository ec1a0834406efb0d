package delivery

import "context"

// Request describes one outbound report delivery. Attachment may be
// nil for notice-only messages (e.g. "no orders matched").
type Request struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

// Deliverer sends a report to its recipient
type Deliverer interface {
	Deliver(ctx context.Context, req Request) error
}
