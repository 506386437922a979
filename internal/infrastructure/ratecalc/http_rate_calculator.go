package ratecalc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/freightops/backend/internal/domain/freight"
	"github.com/freightops/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 5 * time.Second

// Config holds the rate-calculator client settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Validate checks the config
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("rate calculator base URL is required")
	}
	return nil
}

// HTTPRateCalculator implements freight.RateCalculator against the
// external freight-rate service. Every failure is reported as
// shared.ErrRateCalculatorUnavailable so callers can degrade instead of
// aborting the reconciliation.
type HTTPRateCalculator struct {
	config     Config
	httpClient *http.Client
}

// NewHTTPRateCalculator creates a new HTTPRateCalculator
func NewHTTPRateCalculator(config Config) (*HTTPRateCalculator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPRateCalculator{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// quoteRequest is the wire format of one quote call
type quoteRequest struct {
	Weight        string `json:"weight"`
	Value         string `json:"value"`
	TableCode     string `json:"table_code"`
	CarrierCode   string `json:"carrier_code"`
	MinimumCharge string `json:"minimum_charge"`
	AdValoremPct  string `json:"ad_valorem_pct"`
}

// quoteResponse is the wire format of the calculator's answer
type quoteResponse struct {
	QuotedValue decimal.Decimal `json:"quoted_value"`
}

// Quote requests a freight quote for the given totals and rate table
func (c *HTTPRateCalculator) Quote(ctx context.Context, req freight.QuoteRequest) (decimal.Decimal, error) {
	payload := quoteRequest{
		Weight:        req.Weight.String(),
		Value:         req.Value.String(),
		TableCode:     req.RateTable.TableCode,
		CarrierCode:   req.RateTable.CarrierCode,
		MinimumCharge: req.RateTable.MinimumCharge.String(),
		AdValoremPct:  req.RateTable.AdValoremPct.String(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to encode quote request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/quotes"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return decimal.Zero, shared.ErrRateCalculatorUnavailable.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, shared.ErrRateCalculatorUnavailable.WithDetails(
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var result quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, shared.ErrRateCalculatorUnavailable.WithDetails("invalid response: " + err.Error())
	}

	return result.QuotedValue, nil
}

// Ensure HTTPRateCalculator implements freight.RateCalculator
var _ freight.RateCalculator = (*HTTPRateCalculator)(nil)
