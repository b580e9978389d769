package web

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nben/cipofetch/internal/store"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSearch(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	filters := store.SearchFilters{
		Query:   c.Query("q"),
		Status:  c.Query("status"),
		Section: c.Query("section"),
		SortBy:  c.Query("sort"),
		Order:   c.Query("order"),
		Page:    page,
		PerPage: perPage,
	}

	result, err := store.SearchPatents(c.Request.Context(), s.db, filters)
	if err != nil {
		s.logger.Error("Search failed.", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleDetail(c *gin.Context) {
	number := c.Param("number")
	detail, err := store.GetPatentDetail(c.Request.Context(), s.db, number)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patent not found"})
			return
		}
		s.logger.Error("Detail lookup failed.", "patent", number, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleClaims(c *gin.Context) {
	s.handleTextRows(c, store.GetClaims)
}

func (s *Server) handleDisclosures(c *gin.Context) {
	s.handleTextRows(c, store.GetDisclosures)
}

func (s *Server) handleTextRows(c *gin.Context, query func(context.Context, *sql.DB, string) ([]store.TextRow, error)) {
	number := c.Param("number")
	rows, err := query(c.Request.Context(), s.db, number)
	if err != nil {
		s.logger.Error("Text rows lookup failed.", "patent", number, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patent_number": number, "items": rows})
}

func (s *Server) handleStatus(c *gin.Context) {
	snapshot := s.reporter.Status()
	counts, err := store.TableCounts(c.Request.Context(), s.db)
	if err != nil {
		s.logger.Error("Status counts failed.", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": snapshot, "table_counts": counts})
}

// handleFetch starts one pipeline run in the background. A second trigger
// while a run is active returns 409.
func (s *Server) handleFetch(c *gin.Context) {
	if !s.fetchActive.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "fetch already running"})
		return
	}

	go func() {
		defer s.fetchActive.Store(false)
		if err := s.runPipeline(s.baseCtx); err != nil {
			s.logger.Error("Background fetch finished with errors.", "error", err)
			return
		}
		s.logger.Info("Background fetch finished.")
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
