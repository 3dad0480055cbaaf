package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/pmak99/trading-desk-public-sub000/internal/scheduler"
	"github.com/pmak99/trading-desk-public-sub000/internal/service/ledger"
	"github.com/pmak99/trading-desk-public-sub000/internal/service/research"
	"github.com/pmak99/trading-desk-public-sub000/internal/storage"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// Request/Response types

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// ReadyResponse is the readiness check response
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// BudgetListResponse wraps the per-service budget summaries
type BudgetListResponse struct {
	Budgets   []*models.BudgetSummary `json:"budgets"`
	Timestamp time.Time               `json:"timestamp"`
}

// JobsTodayResponse lists today's persisted job records
type JobsTodayResponse struct {
	Jobs      []*models.JobRecord `json:"jobs"`
	Timestamp time.Time           `json:"timestamp"`
}

// AnalyzeRequest asks for a fan-out analysis of the given tickers
type AnalyzeRequest struct {
	Tickers   []string `json:"tickers" binding:"required,min=1,max=100"`
	Preferred string   `json:"preferred,omitempty"`
}

// AnalysisOutcome is one positional slot of an analyze run
type AnalysisOutcome struct {
	Ticker   string             `json:"ticker"`
	Analysis *research.Analysis `json:"analysis,omitempty"`
	Error    string             `json:"error,omitempty"`
	TimedOut bool               `json:"timed_out,omitempty"`
}

// AnalyzeResponse summarizes an analyze run. Results are positionally
// aligned with the request tickers.
type AnalyzeResponse struct {
	RunID      string            `json:"run_id"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	TimedOut   int               `json:"timed_out"`
	DurationMS int64             `json:"duration_ms"`
	Results    []AnalysisOutcome `json:"results"`
}

func (s *Server) handleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if s.ledger != nil {
		response.Services["ledger"] = fmt.Sprintf("%d services configured", len(s.ledger.Services()))
	}
	if s.runner != nil {
		response.Services["scheduler"] = "ok"
	}

	// Return 503 if not ready (e.g., before migrations finish)
	if !s.ready.Load() {
		response.Status = "unavailable"
		response.Services["ready"] = "false"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response.Services["ready"] = "true"
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleReady(c *gin.Context) {
	response := ReadyResponse{
		Ready:     s.ready.Load(),
		Timestamp: time.Now(),
	}

	if !response.Ready {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleListBudgets(c *gin.Context) {
	ctx := c.Request.Context()

	services := s.ledger.Services()
	budgets := make([]*models.BudgetSummary, 0, len(services))
	for _, service := range services {
		summary, err := s.ledger.Summary(ctx, service)
		if err != nil {
			c.JSON(summaryErrorStatus(err), ErrorResponse{
				Error:     err.Error(),
				RequestID: c.GetString("request_id"),
			})
			return
		}
		budgets = append(budgets, summary)
	}

	c.JSON(http.StatusOK, BudgetListResponse{
		Budgets:   budgets,
		Timestamp: time.Now(),
	})
}

func (s *Server) handleGetBudget(c *gin.Context) {
	ctx := c.Request.Context()
	service := c.Param("service")

	summary, err := s.ledger.Summary(ctx, service)
	if err != nil {
		var unknown *ledger.UnknownServiceError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:     err.Error(),
				RequestID: c.GetString("request_id"),
			})
			return
		}
		c.JSON(summaryErrorStatus(err), ErrorResponse{
			Error:     err.Error(),
			RequestID: c.GetString("request_id"),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// summaryErrorStatus maps storage trouble to 503 so orchestration layers
// can tell "try again" apart from a genuine server bug.
func summaryErrorStatus(err error) int {
	if storage.IsTransient(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleJobsToday(c *gin.Context) {
	ctx := c.Request.Context()

	jobs, err := s.runner.Today(ctx)
	if err != nil {
		c.JSON(summaryErrorStatus(err), ErrorResponse{
			Error:     err.Error(),
			RequestID: c.GetString("request_id"),
		})
		return
	}

	c.JSON(http.StatusOK, JobsTodayResponse{
		Jobs:      jobs,
		Timestamp: time.Now(),
	})
}

func (s *Server) handleRunJob(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	outcome, err := s.runner.RunJob(ctx, name)
	if err != nil {
		var unknown *scheduler.ErrUnknownJob
		if errors.As(err, &unknown) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:     err.Error(),
				RequestID: c.GetString("request_id"),
			})
			return
		}
		c.JSON(summaryErrorStatus(err), ErrorResponse{
			Error:     err.Error(),
			RequestID: c.GetString("request_id"),
		})
		return
	}

	// A skipped job is a legitimate outcome, not an error.
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	ctx := c.Request.Context()

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     sanitizeValidationError(err),
			RequestID: c.GetString("request_id"),
		})
		return
	}

	reqs := make([]research.Request, len(req.Tickers))
	for i, ticker := range req.Tickers {
		reqs[i] = research.Request{Ticker: ticker, Preferred: req.Preferred}
	}

	result := s.pipeline.AnalyzeBatch(ctx, reqs)

	response := AnalyzeResponse{
		RunID:      result.RunID,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		TimedOut:   result.TimedOut,
		DurationMS: result.Duration.Milliseconds(),
		Results:    make([]AnalysisOutcome, len(result.Outcomes)),
	}

	for i, out := range result.Outcomes {
		slot := AnalysisOutcome{Ticker: out.ID, TimedOut: out.TimedOut}
		if out.Err != nil {
			slot.Error = out.Err.Error()
		}
		if out.OK() {
			slot.Analysis = out.Value
		}
		response.Results[i] = slot
	}

	c.JSON(http.StatusOK, response)
}

// sanitizeValidationError converts internal field names to JSON field names
// in validation error messages to avoid leaking internal implementation details.
func sanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}

	var messages []string
	for _, fe := range validationErrs {
		jsonFieldName := toSnakeCase(fe.Field())
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", jsonFieldName))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must have at least %s items", jsonFieldName, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must have at most %s items", jsonFieldName, fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation (%s)", jsonFieldName, fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

// toSnakeCase converts a PascalCase or camelCase string to snake_case
func toSnakeCase(s string) string {
	fieldMappings := map[string]string{
		"Tickers":   "tickers",
		"Preferred": "preferred",
	}
	if mapped, ok := fieldMappings[s]; ok {
		return mapped
	}

	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
