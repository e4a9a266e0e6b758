package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antedotee/mad-project-price-tracker/models"
)

type createSearchRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Query  string `json:"query" binding:"required"`
}

// createSearch stores a search, links it against the catalog and either
// triggers a vendor scrape or completes it right away.
func (s *Server) createSearch(c *gin.Context) {
	var req createSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and query are required"})
		return
	}

	search := &models.Search{
		UserID: strings.TrimSpace(req.UserID),
		Query:  strings.TrimSpace(req.Query),
		Status: models.StatusPending,
	}
	ctx, cancel := s.storeCtx(c)
	err := s.svc.Store.CreateSearch(ctx, search)
	cancel()
	if err != nil {
		respondError(c, err, "failed to create search")
		return
	}

	link, err := s.svc.Linker.Link(c.Request.Context(), search)
	if err != nil {
		respondError(c, err, "failed to link search")
		return
	}

	status := models.StatusDone
	var (
		scrapedAt *time.Time
		jobID     *string
	)
	if s.svc.Scrape != nil {
		id, err := s.svc.Scrape.Trigger(c.Request.Context(), search.ID, search.Query)
		if err != nil {
			slog.Error("scrape trigger failed", slog.String("search_id", search.ID), slog.Any("error", err))
			status = models.StatusFailed
		} else {
			status = models.StatusScraping
			jobID = &id
		}
	} else {
		now := time.Now().UTC()
		scrapedAt = &now
	}

	ctx, cancel = s.storeCtx(c)
	updated, err := s.svc.Store.UpdateStatus(ctx, search.ID, status, scrapedAt, jobID)
	cancel()
	if err != nil {
		respondError(c, err, "failed to update search status")
		return
	}

	code := http.StatusCreated
	if status == models.StatusFailed {
		code = http.StatusBadGateway
	}
	c.JSON(code, gin.H{
		"search":  updated,
		"matched": link.Matched,
		"linked":  link.Linked,
		"browse":  link.Browse,
	})
}

func (s *Server) getSearch(c *gin.Context) {
	ctx, cancel := s.storeCtx(c)
	defer cancel()
	search, err := s.svc.Store.GetSearch(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to fetch search")
		return
	}
	c.JSON(http.StatusOK, search)
}

type setTrackedRequest struct {
	Tracked *bool `json:"tracked" binding:"required"`
}

func (s *Server) setTracked(c *gin.Context) {
	var req setTrackedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tracked is required"})
		return
	}
	search, err := s.svc.Tracking.SetTracked(c.Request.Context(), c.Param("id"), *req.Tracked)
	if err != nil {
		respondError(c, err, "failed to update tracking")
		return
	}
	c.JSON(http.StatusOK, search)
}

func (s *Server) searchProducts(c *gin.Context) {
	ctx, cancel := s.storeCtx(c)
	defer cancel()

	id := c.Param("id")
	if _, err := s.svc.Store.GetSearch(ctx, id); err != nil {
		respondError(c, err, "failed to fetch search")
		return
	}
	products, err := s.svc.Store.LinkedProducts(ctx, id)
	if err != nil {
		respondError(c, err, "failed to fetch products")
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, products)
}
