// Package scrapejob triggers keyword scrapes at the external scrape vendor.
// The vendor posts results back to the tracker's scrape-complete webhook.
package scrapejob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/antedotee/mad-project-price-tracker/config"
)

// ErrMissingAPIKey is returned when a trigger is attempted without a key.
var ErrMissingAPIKey = errors.New("scrape vendor API key is not configured")

const (
	triggerPath      = "/datasets/v3/trigger"
	marketplaceURL   = "https://www.amazon.com"
	resultsPerSearch = "10"
	webhookPath      = "/hooks/scrape-complete"
)

type triggerInput struct {
	Keyword       string `json:"keyword"`
	URL           string `json:"url"`
	PagesToSearch int    `json:"pages_to_search"`
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// Client calls the vendor's dataset trigger endpoint.
type Client struct {
	http       *resty.Client
	apiKey     string
	datasetID  string
	webhookURL string
}

// NewClient builds a client from cfg. It does not validate the key; Trigger
// reports ErrMissingAPIKey instead.
func NewClient(cfg *config.Config) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.ScrapeBaseURL, "/")).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryBackoff).
		SetRetryMaxWaitTime(cfg.RetryBackoffMax).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)

	return &Client{
		http:       rc,
		apiKey:     cfg.ScrapeAPIKey,
		datasetID:  cfg.ScrapeDatasetID,
		webhookURL: strings.TrimSuffix(cfg.WebhookBaseURL, "/") + webhookPath,
	}
}

// HTTPClient exposes the underlying resty client.
func (c *Client) HTTPClient() *resty.Client {
	return c.http
}

// Trigger starts a scrape for keyword whose results are delivered to the
// webhook for searchID. It returns the vendor's job (snapshot) id.
func (c *Client) Trigger(ctx context.Context, searchID, keyword string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", errors.New("scrape keyword is empty")
	}

	endpoint := c.webhookURL + "?" + url.Values{"id": {searchID}}.Encode()
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetQueryParams(map[string]string{
			"dataset_id":             c.datasetID,
			"format":                 "json",
			"uncompressed_webhook":   "true",
			"limit_multiple_results": resultsPerSearch,
			"endpoint":               endpoint,
		}).
		SetBody([]triggerInput{{Keyword: keyword, URL: marketplaceURL, PagesToSearch: 1}}).
		SetResult(&triggerResponse{}).
		Post(triggerPath)
	if err != nil {
		return "", fmt.Errorf("trigger scrape: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("trigger scrape: vendor returned %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}

	out, ok := resp.Result().(*triggerResponse)
	if !ok || out.SnapshotID == "" {
		return "", errors.New("trigger scrape: response has no snapshot_id")
	}

	slog.Info("scrape triggered",
		slog.String("search_id", searchID),
		slog.String("keyword", keyword),
		slog.String("job_id", out.SnapshotID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out.SnapshotID, nil
}
