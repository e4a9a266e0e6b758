package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/parser"
	"github.com/antedotee/mad-project-price-tracker/pipeline"
)

type priceDropsRequest struct {
	Record struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"record"`
}

// priceDrops runs a price check when a search row reports status Done.
func (s *Server) priceDrops(c *gin.Context) {
	var req priceDropsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.Record.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing record.id"})
		return
	}
	if models.SearchStatus(req.Record.Status) != models.StatusDone {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	result, err := s.svc.Checker.Check(c.Request.Context(), req.Record.ID)
	if err != nil {
		respondError(c, err, "price check failed")
		return
	}

	body := gin.H{
		"message":         "Price check completed",
		"priceDropsCount": result.PriceDropsCount,
		"alertsCreated":   result.AlertsCreated,
	}
	if result.Skipped {
		body["message"] = "Search is not tracked"
		body["skipped"] = true
		body["reason"] = result.SkipReason
	}
	c.JSON(http.StatusOK, body)
}

// scrapeComplete receives vendor results for the search named by ?id=.
func (s *Server) scrapeComplete(c *gin.Context) {
	searchID := c.Query("id")
	if searchID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing search id"})
		return
	}

	var records []parser.RawRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	result, err := s.svc.Ingestor.Ingest(c.Request.Context(), searchID, records)
	if err != nil {
		respondError(c, err, "failed to save scrape results")
		return
	}

	message := "Scrape completed successfully"
	if result.ProductsSaved == 0 {
		message = "No valid products found, but search marked as complete"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           message,
		"products_saved":    result.ProductsSaved,
		"snapshots_created": result.SnapshotsCreated,
		"search_id":         searchID,
	})
}

type productErrorBody struct {
	ASIN      string `json:"asin"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// simulatePrices runs one updater pass on demand.
func (s *Server) simulatePrices(c *gin.Context) {
	result, err := s.svc.Updater.Run(c.Request.Context())
	if err != nil {
		respondError(c, err, "price update failed")
		return
	}

	errs := make([]productErrorBody, 0, len(result.Errors))
	for _, pe := range result.Errors {
		errs = append(errs, productErrorBody{
			ASIN:      pe.ASIN,
			Error:     pe.Err.Error(),
			Retryable: pipeline.IsRetryable(pe.Err),
		})
	}
	if result.SearchListErr != nil {
		slog.Warn("tracked searches were not checked", slog.Any("error", result.SearchListErr))
	}

	message := "Price simulation completed"
	if result.ProductsProcessed == 0 && len(result.Errors) == 0 {
		message = "No products with prices found"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":                message,
		"productsProcessed":      result.ProductsProcessed,
		"snapshotsCreated":       result.SnapshotsCreated,
		"trackedSearchesChecked": result.TrackedSearchesChecked,
		"errors":                 errs,
	})
}
