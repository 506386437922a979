package tracking

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domtracking "github.com/freightops/backend/internal/domain/tracking"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Config holds the delivery-monitoring client settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Validate checks the config
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("tracking base URL is required")
	}
	return nil
}

// HTTPClient implements the delivery-monitoring collaborators over HTTP.
// Both calls fire after the reconciliation transaction commits; failures
// are logged by the caller as inconsistencies, never fatal.
type HTTPClient struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a new HTTPClient
func NewHTTPClient(config Config, logger *zap.Logger) (*HTTPClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// SyncDeliveryRecord asks the monitoring service to refresh schedule and
// delivery data for an invoice
func (c *HTTPClient) SyncDeliveryRecord(ctx context.Context, invoiceNumber string) error {
	return c.post(ctx, "/deliveries/"+invoiceNumber+"/sync")
}

// TryAutoLaunchFreight asks the monitoring service to launch freight for a
// client whose invoices are fully reconciled
func (c *HTTPClient) TryAutoLaunchFreight(ctx context.Context, clientTaxID string) error {
	return c.post(ctx, "/freights/auto-launch/"+clientTaxID)
}

func (c *HTTPClient) post(ctx context.Context, path string) error {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build tracking request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracking call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tracking call %s returned status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	c.logger.Debug("tracking call succeeded",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))
	return nil
}

// NoOpClient is used when delivery monitoring is disabled. Both collaborator
// calls succeed without doing anything.
type NoOpClient struct{}

// NewNoOpClient creates a NoOpClient
func NewNoOpClient() *NoOpClient {
	return &NoOpClient{}
}

// SyncDeliveryRecord does nothing
func (c *NoOpClient) SyncDeliveryRecord(ctx context.Context, invoiceNumber string) error {
	return nil
}

// TryAutoLaunchFreight does nothing
func (c *NoOpClient) TryAutoLaunchFreight(ctx context.Context, clientTaxID string) error {
	return nil
}

// Ensure both clients implement the collaborator ports
var (
	_ domtracking.DeliveryMonitor = (*HTTPClient)(nil)
	_ domtracking.FreightLauncher = (*HTTPClient)(nil)
	_ domtracking.DeliveryMonitor = (*NoOpClient)(nil)
	_ domtracking.FreightLauncher = (*NoOpClient)(nil)
)
