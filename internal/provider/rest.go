package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
)

const fetchPageLimit = 250

// RESTConfig configures the commerce REST client
type RESTConfig struct {
	// BaseURL is a template with a %s placeholder for the shop domain,
	// e.g. "https://%s/admin/api/2024-01"
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// RESTOrderProvider fetches orders over the platform's admin REST API
type RESTOrderProvider struct {
	logger     *zap.Logger
	config     RESTConfig
	httpClient *http.Client
}

// NewRESTOrderProvider creates a new REST order provider
func NewRESTOrderProvider(logger *zap.Logger, config RESTConfig) *RESTOrderProvider {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &RESTOrderProvider{
		logger: logger,
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch implements OrderProvider.Fetch
func (p *RESTOrderProvider) Fetch(ctx context.Context, query FetchQuery) ([]*model.Order, error) {
	endpoint := fmt.Sprintf(p.config.BaseURL, query.Shop) + "/orders.json"

	params := url.Values{}
	params.Set("status", "any")
	params.Set("created_at_min", query.From.Format(time.RFC3339))
	params.Set("created_at_max", query.To.Format(time.RFC3339))
	params.Set("limit", fmt.Sprintf("%d", fetchPageLimit))

	switch query.OrderStatus {
	case model.OrderStatusFulfilled:
		params.Set("fulfillment_status", "fulfilled")
	case model.OrderStatusUnfulfilled:
		params.Set("fulfillment_status", "unfulfilled")
	}

	switch query.PaymentStatus {
	case model.PaymentStatusPaid:
		params.Set("financial_status", "paid")
	case model.PaymentStatusPending:
		params.Set("financial_status", "pending")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.config.AccessToken != "" {
		req.Header.Set("X-Shopify-Access-Token", p.config.AccessToken)
	}

	p.logger.Debug("Fetching orders",
		zap.String("shop", query.Shop),
		zap.Time("from", query.From),
		zap.Time("to", query.To))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("order fetch failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Orders []*model.Order `json:"orders"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orders: %w", err)
	}

	return payload.Orders, nil
}
