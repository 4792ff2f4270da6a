// Package api is the REST client for the CauldronWatch backend. Malformed
// items are skipped per-item with a logged warning; they never abort the
// rest of a batch.
package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/logger"

	"github.com/go-resty/resty/v2"
)

// Client wraps a resty client pointed at the backend base URL.
type Client struct {
	http *resty.Client
	log  *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, log: log}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health checks GET /health. Advisory only: bootstrap logs a failure and
// continues.
func (c *Client) Health(ctx context.Context) error {
	var out healthResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/health")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health check: backend returned %s", resp.Status())
	}
	if out.Status != "healthy" {
		return fmt.Errorf("health check: backend status %q", out.Status)
	}
	return nil
}

// Cauldrons loads the reference data from GET /api/cauldrons.
func (c *Client) Cauldrons(ctx context.Context) ([]cauldronwatch.Cauldron, error) {
	var raw []rawCauldron
	resp, err := c.http.R().SetContext(ctx).SetResult(&raw).Get("/api/cauldrons")
	if err != nil {
		return nil, fmt.Errorf("fetch cauldrons: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch cauldrons: backend returned %s", resp.Status())
	}

	out := make([]cauldronwatch.Cauldron, 0, len(raw))
	for _, r := range raw {
		cl, ok := normalizeCauldron(r)
		if !ok {
			c.log.Warnw("cauldron_missing_id_skipped", "name", r.Name)
			continue
		}
		out = append(out, cl)
	}
	return out, nil
}

// Market loads the market node from GET /api/market.
func (c *Client) Market(ctx context.Context) (cauldronwatch.Market, error) {
	var out cauldronwatch.Market
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/api/market")
	if err != nil {
		return cauldronwatch.Market{}, fmt.Errorf("fetch market: %w", err)
	}
	if resp.IsError() {
		return cauldronwatch.Market{}, fmt.Errorf("fetch market: backend returned %s", resp.Status())
	}
	return out, nil
}

// LatestLevels loads GET /api/data/latest: one reading per cauldron, liters.
func (c *Client) LatestLevels(ctx context.Context) ([]Reading, error) {
	var raw []rawReading
	resp, err := c.http.R().SetContext(ctx).SetResult(&raw).Get("/api/data/latest")
	if err != nil {
		return nil, fmt.Errorf("fetch latest levels: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch latest levels: backend returned %s", resp.Status())
	}
	return c.normalizeReadings(raw), nil
}

// Data loads GET /api/data readings (liters) within [start, end].
// cauldronID and limit are optional filters.
func (c *Client) Data(ctx context.Context, start, end time.Time, cauldronID string, limit int) ([]Reading, error) {
	req := c.http.R().SetContext(ctx).
		SetQueryParam("start", start.UTC().Format(time.RFC3339)).
		SetQueryParam("end", end.UTC().Format(time.RFC3339))
	if cauldronID != "" {
		req.SetQueryParam("cauldron_id", cauldronID)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	var raw []rawReading
	resp, err := req.SetResult(&raw).Get("/api/data")
	if err != nil {
		return nil, fmt.Errorf("fetch data: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch data: backend returned %s", resp.Status())
	}
	return c.normalizeReadings(raw), nil
}

// Discrepancies loads GET /api/discrepancies with optional filters.
func (c *Client) Discrepancies(ctx context.Context, severity, cauldronID string) (cauldronwatch.DiscrepancyReport, error) {
	req := c.http.R().SetContext(ctx)
	if severity != "" {
		req.SetQueryParam("severity", severity)
	}
	if cauldronID != "" {
		req.SetQueryParam("cauldron_id", cauldronID)
	}

	var out cauldronwatch.DiscrepancyReport
	resp, err := req.SetResult(&out).Get("/api/discrepancies")
	if err != nil {
		return cauldronwatch.DiscrepancyReport{}, fmt.Errorf("fetch discrepancies: %w", err)
	}
	if resp.IsError() {
		return cauldronwatch.DiscrepancyReport{}, fmt.Errorf("fetch discrepancies: backend returned %s", resp.Status())
	}
	return out, nil
}

// DetectDiscrepancies triggers POST /api/discrepancies/detect for a date
// window and returns the resulting list.
func (c *Client) DetectDiscrepancies(ctx context.Context, startDate, endDate string) (cauldronwatch.DiscrepancyReport, error) {
	var out cauldronwatch.DiscrepancyReport
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("start_date", startDate).
		SetQueryParam("end_date", endDate).
		SetResult(&out).
		Post("/api/discrepancies/detect")
	if err != nil {
		return cauldronwatch.DiscrepancyReport{}, fmt.Errorf("detect discrepancies: %w", err)
	}
	if resp.IsError() {
		return cauldronwatch.DiscrepancyReport{}, fmt.Errorf("detect discrepancies: backend returned %s", resp.Status())
	}
	return out, nil
}

type drainsResponse struct {
	Events      []cauldronwatch.DrainEvent `json:"events"`
	TotalEvents int                        `json:"total_events"`
}

// Drains loads GET /api/drains for a date window.
func (c *Client) Drains(ctx context.Context, startDate, endDate string) ([]cauldronwatch.DrainEvent, error) {
	var out drainsResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("start_date", startDate).
		SetQueryParam("end_date", endDate).
		SetResult(&out).
		Get("/api/drains")
	if err != nil {
		return nil, fmt.Errorf("fetch drains: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch drains: backend returned %s", resp.Status())
	}
	return out.Events, nil
}

func (c *Client) normalizeReadings(raw []rawReading) []Reading {
	out := make([]Reading, 0, len(raw))
	for _, r := range raw {
		reading, ok := normalizeReading(r)
		if !ok {
			c.log.Warnw("reading_missing_id_skipped", "level", r.Level)
			continue
		}
		out = append(out, reading)
	}
	return out
}
