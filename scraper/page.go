// Package scraper reads live prices from product pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/antedotee/mad-project-price-tracker/config"
	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/parser"
	"github.com/antedotee/mad-project-price-tracker/pricing"
)

// DefaultPriceSelectors locate the buy-box price on a product page, most
// specific first.
var DefaultPriceSelectors = []string{
	"#corePrice_feature_div .a-offscreen",
	"#corePriceDisplay_desktop_feature_div .a-offscreen",
	"#priceblock_dealprice",
	"#priceblock_ourprice",
	"span.a-price .a-offscreen",
}

// PageSource fetches a product's URL and reads the price element. It
// implements pricing.Source.
type PageSource struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *metrics.Metrics
	selectors []string
}

// NewPageSource builds a page source configured from cfg.
func NewPageSource(cfg *config.Config, m *metrics.Metrics) *PageSource {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.RequestTimeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &PageSource{
		cfg:       cfg,
		collector: collector,
		metrics:   m,
		selectors: DefaultPriceSelectors,
	}
}

// NextPrice implements pricing.Source. Retryable failures are attempted up
// to cfg.MaxRetries more times with exponential backoff.
func (s *PageSource) NextPrice(ctx context.Context, p models.Product) (float64, error) {
	if p.URL == "" {
		return 0, fmt.Errorf("product %s has no url", p.ASIN)
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, &FetchError{Kind: KindTimeout, URL: p.URL, Err: ctx.Err()}
			case <-time.After(s.backoff(attempt)):
			}
			s.metrics.IncPageRequest("retry")
		}

		price, err := s.fetch(ctx, p.URL)
		if err == nil {
			return price, nil
		}
		lastErr = err
		category := errorTypeLabel(err)
		s.metrics.IncPageError(category)
		slog.Warn("product page fetch failed",
			slog.String("asin", p.ASIN),
			slog.String("url", p.URL),
			slog.String("category", category),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)

		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.Retryable() {
			break
		}
	}
	return 0, lastErr
}

func (s *PageSource) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := s.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if limit := s.cfg.RetryBackoffMax; limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

// fetch visits url once on a clone of the base collector so callbacks do
// not accumulate across calls.
func (s *PageSource) fetch(ctx context.Context, url string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}

	c := s.collector.Clone()
	var (
		price  float64
		found  bool
		status int
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Ctx.Put("start", time.Now())
		s.metrics.IncPageRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			s.metrics.ObservePageDuration(time.Since(start))
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		price, found = extractPrice(e, s.selectors)
	})

	err := c.Visit(url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, &FetchError{Kind: KindTimeout, URL: url, Err: ctxErr}
	}
	if classified := classifyError(url, err, status); classified != nil {
		return 0, classified
	}
	if !found {
		return 0, &FetchError{Kind: KindNoPrice, URL: url, Status: status, Err: errors.New("no price element on page")}
	}
	return price, nil
}

// extractPrice returns the first positive price found by selectors.
func extractPrice(e *colly.HTMLElement, selectors []string) (float64, bool) {
	for _, sel := range selectors {
		text := strings.TrimSpace(e.DOM.Find(sel).First().Text())
		if text == "" {
			continue
		}
		price, err := parser.ParsePriceText(text)
		if err != nil || price <= 0 {
			continue
		}
		return pricing.Round2(price), true
	}
	return 0, false
}
