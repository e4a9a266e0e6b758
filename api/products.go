package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/antedotee/mad-project-price-tracker/models"
)

func (s *Server) getProduct(c *gin.Context) {
	ctx, cancel := s.storeCtx(c)
	defer cancel()
	product, err := s.svc.Lookup.Lookup(ctx, c.Param("asin"))
	if err != nil {
		respondError(c, err, "failed to fetch product")
		return
	}
	c.JSON(http.StatusOK, product)
}

// productHistory returns snapshots newest first; ?limit= caps the count.
func (s *Server) productHistory(c *gin.Context) {
	limit := s.opts.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	asin := c.Param("asin")
	if _, err := s.svc.Store.GetProduct(ctx, asin); err != nil {
		respondError(c, err, "failed to fetch product")
		return
	}
	history, err := s.svc.Store.History(ctx, asin, limit)
	if err != nil {
		respondError(c, err, "failed to fetch history")
		return
	}
	if history == nil {
		history = []models.Snapshot{}
	}
	c.JSON(http.StatusOK, history)
}
