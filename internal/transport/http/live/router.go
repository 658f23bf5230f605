package livehttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradebot/internal/decision"
	"tradebot/internal/logger"
	"tradebot/internal/store/decisionlog"
	"tradebot/internal/store/gormstore"
	"tradebot/internal/store/model"
	"tradebot/internal/trader"

	"github.com/gin-gonic/gin"
)

const (
	maxBodyBytes = 1 << 20
	httpSource   = "http"
	queryTimeout = 3 * time.Second
)

// Trader validates and submits decisions.
type Trader interface {
	Check(f decision.Fields) (decision.Result, *float64, string)
	SubmitAll(ctx context.Context, source string, batch []decision.Fields) ([]trader.Submission, error)
}

type ExecutionReader interface {
	ListExecutions(ctx context.Context, q gormstore.ExecutionQuery) ([]model.ExecutionModel, error)
	GetExecution(ctx context.Context, id int64) (*model.ExecutionModel, error)
}

type DecisionReader interface {
	List(ctx context.Context, q decisionlog.Query) ([]decisionlog.Record, error)
	Count(ctx context.Context, q decisionlog.Query) (int, error)
	Get(ctx context.Context, id int64) (decisionlog.Record, error)
}

type Router struct {
	trader     Trader
	executions ExecutionReader
	decisions  DecisionReader
}

func NewRouter(t Trader, executions ExecutionReader, decisions DecisionReader) *Router {
	return &Router{trader: t, executions: executions, decisions: decisions}
}

// Register mounts the API under group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.POST("/decisions/validate", r.handleValidate)
	group.POST("/decisions", r.handleSubmit)
	group.GET("/decisions", r.handleListDecisions)
	group.GET("/decisions/:id", r.handleDecisionByID)
	group.GET("/executions", r.handleListExecutions)
	group.GET("/executions/:id", r.handleExecutionByID)
}

// validationResponse is the verdict for one decision.
type validationResponse struct {
	Valid           bool     `json:"valid"`
	Errors          []string `json:"errors"`
	RiskRewardRatio *float64 `json:"risk_reward_ratio"`
	Summary         string   `json:"summary"`
}

// readDecisions accepts a JSON object, a JSON array or model text that
// embeds one.
func readDecisions(c *gin.Context) ([]decision.Fields, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return nil, false
	}
	batch, err := decision.Parse(string(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return batch, true
}

func (r *Router) handleValidate(c *gin.Context) {
	batch, ok := readDecisions(c)
	if !ok {
		return
	}
	out := make([]validationResponse, 0, len(batch))
	for _, f := range batch {
		res, rr, summary := r.trader.Check(f)
		errs := res.Errors
		if errs == nil {
			errs = []string{}
		}
		out = append(out, validationResponse{Valid: res.Valid, Errors: errs, RiskRewardRatio: rr, Summary: summary})
	}
	if len(out) == 1 {
		c.JSON(http.StatusOK, out[0])
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (r *Router) handleSubmit(c *gin.Context) {
	batch, ok := readDecisions(c)
	if !ok {
		return
	}
	subs, err := r.trader.SubmitAll(c.Request.Context(), httpSource, batch)
	if err != nil {
		logger.Errorf("[api] submit failed ip=%s err=%v", c.ClientIP(), err)
		status := http.StatusInternalServerError
		if errors.Is(err, trader.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error(), "submissions": subs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (r *Router) handleListDecisions(c *gin.Context) {
	if r.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log disabled"})
		return
	}
	limit, offset := paging(c)
	q := decisionlog.Query{
		Symbol:  c.Query("symbol"),
		TraceID: c.Query("trace_id"),
		Limit:   limit,
		Offset:  offset,
	}
	if raw := strings.TrimSpace(c.Query("valid")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "valid must be a boolean"})
			return
		}
		q.Valid = &v
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	list, err := r.decisions.List(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := r.decisions.Count(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []decisionlog.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": list, "total": total, "limit": limit, "offset": offset})
}

func (r *Router) handleDecisionByID(c *gin.Context) {
	if r.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log disabled"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := r.decisions.Get(c.Request.Context(), id)
	if errors.Is(err, decisionlog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleListExecutions(c *gin.Context) {
	if r.executions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "execution store disabled"})
		return
	}
	limit, offset := paging(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	list, err := r.executions.ListExecutions(ctx, gormstore.ExecutionQuery{
		Symbol:  c.Query("symbol"),
		Action:  c.Query("action"),
		TraceID: c.Query("trace_id"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []model.ExecutionModel{}
	}
	c.JSON(http.StatusOK, gin.H{"executions": list, "limit": limit, "offset": offset})
}

func (r *Router) handleExecutionByID(c *gin.Context) {
	if r.executions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "execution store disabled"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := r.executions.GetExecution(c.Request.Context(), id)
	if errors.Is(err, gormstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
