// Package api serves the tracker's webhooks, job triggers and read API
// over gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antedotee/mad-project-price-tracker/lookup"
	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/pipeline"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// ScrapeTrigger starts a vendor scrape whose results arrive on the
// scrape-complete webhook.
type ScrapeTrigger interface {
	Trigger(ctx context.Context, searchID, keyword string) (string, error)
}

// Services are the components the handlers drive.
type Services struct {
	Store    store.Store
	Lookup   lookup.ProductLookup
	Checker  *pipeline.Checker
	Updater  *pipeline.Updater
	Ingestor *pipeline.Ingestor
	Linker   *pipeline.Linker
	Tracking *pipeline.Tracking
	Scrape   ScrapeTrigger // nil completes new searches from the catalog
	Metrics  *metrics.Metrics
}

// Options tune the router.
type Options struct {
	CORSOrigins  []string
	StoreTimeout time.Duration
	HistoryLimit int
}

// Server holds the handler dependencies.
type Server struct {
	svc  Services
	opts Options
}

// NewRouter builds the gin engine with every route registered. Callers set
// the gin mode beforehand.
func NewRouter(svc Services, opts Options) *gin.Engine {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	s := &Server{svc: svc, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(svc.Metrics))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.health)
	if svc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	hooks := r.Group("/hooks")
	{
		hooks.POST("/price-drops", s.priceDrops)
		hooks.POST("/scrape-complete", s.scrapeComplete)
	}
	r.POST("/jobs/simulate-prices", s.simulatePrices)

	r.POST("/searches", s.createSearch)
	r.GET("/searches/:id", s.getSearch)
	r.PUT("/searches/:id/tracked", s.setTracked)
	r.GET("/searches/:id/products", s.searchProducts)

	r.GET("/users/:user_id/alerts", s.listAlerts)
	r.PUT("/alerts/:id/read", s.markAlertRead)

	r.GET("/products/:asin", s.getProduct)
	r.GET("/products/:asin/history", s.productHistory)

	return r
}

func (s *Server) storeCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.opts.StoreTimeout)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.storeCtx(c)
	defer cancel()
	if err := s.svc.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps err onto a status code and a JSON error body.
func respondError(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		msg = "not found"
	case errors.Is(err, store.ErrUnknownReference):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}
