package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agent-eval/internal/compare"
	"github.com/stellarlinkco/agent-eval/internal/store"
)

type compareRequest struct {
	Run1  string   `json:"run1" binding:"required"`
	Run2  string   `json:"run2" binding:"required"`
	Alpha *float64 `json:"alpha,omitempty"`
}

type runListEntry struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	TotalEvaluations int       `json:"total_evaluations"`
	Pass             int       `json:"pass"`
	Fail             int       `json:"fail"`
	Error            int       `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	limit, err := parseLimitParam(c.Query("limit"), 20)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	since, err := parseTimeParam(c.Query("since"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	until, err := parseTimeParam(c.Query("until"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	runs, err := s.store.ListRuns(c.Request.Context(), store.RunFilter{
		Since: since,
		Until: until,
		Limit: limit,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]runListEntry, 0, len(runs))
	for _, run := range runs {
		out = append(out, runListEntry{
			ID:               run.ID,
			CreatedAt:        run.CreatedAt,
			TotalEvaluations: run.TotalEvaluations,
			Pass:             run.Pass,
			Fail:             run.Fail,
			Error:            run.Error,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run.Summary)
}

func (s *Server) handleGetRunResults(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	if run.Summary == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, run.Summary.Results)
}

func (s *Server) handleCompareRuns(c *gin.Context) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return
	}

	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	alpha := 0.0
	if req.Alpha != nil {
		alpha = *req.Alpha
		if alpha <= 0 || alpha >= 1 {
			respondError(c, http.StatusBadRequest, fmt.Errorf("alpha must be in (0,1) (got %v)", alpha))
			return
		}
	} else if s.config != nil {
		alpha = s.config.Stats.Alpha
	}

	run1, ok := s.loadRunByID(c, req.Run1)
	if !ok {
		return
	}
	run2, ok := s.loadRunByID(c, req.Run2)
	if !ok {
		return
	}

	result, err := compare.Compare(run1.Summary, run2.Summary, alpha)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) loadRun(c *gin.Context) (*store.RunRecord, bool) {
	if s == nil || s.store == nil {
		respondError(c, http.StatusInternalServerError, errors.New("server not initialized"))
		return nil, false
	}
	return s.loadRunByID(c, c.Param("id"))
}

func (s *Server) loadRunByID(c *gin.Context, id string) (*store.RunRecord, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return nil, false
	}

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, fmt.Errorf("run %q not found", id))
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return run, true
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("limit must be > 0")
	}
	return v, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	layouts := []string{time.RFC3339, "2006-01-02"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (expected RFC3339 or YYYY-MM-DD)", raw)
}
