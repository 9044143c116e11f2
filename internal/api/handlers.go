package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidahmann/parliament/internal/auth"
	"github.com/davidahmann/parliament/internal/ledger"
)

type Handler struct {
	Auth    auth.Authenticator
	Service *DecisionService
	Logger  *zap.Logger
	// Gatherer backs /metrics; nil omits the route.
	Gatherer prometheus.Gatherer
	// BaseURL prefixes the verify links written into export packs.
	BaseURL string
}

// NewRouter wires the HTTP surface. Everything under /v1 requires a bearer
// token when the authenticator has one configured.
func NewRouter(h *Handler) *gin.Engine {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), h.requestLogger())

	r.GET("/healthz", h.Healthz)
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1", h.requireAuth())
	v1.POST("/evaluate", h.Evaluate)
	v1.POST("/classify", h.Classify)
	v1.POST("/signals", h.Signals)
	v1.GET("/audit", h.AuditList)
	v1.GET("/audit/:record_id", h.AuditGet)
	v1.POST("/audit/:record_id/redactions", h.Redact)
	v1.GET("/verify/:record_id", h.Verify)
	v1.GET("/export", h.Export)
	return r
}

// HeaderRequestID carries the per-request correlation id in both directions.
const HeaderRequestID = "X-Request-Id"

const requestIDKey = "request_id"

// requestID adopts a well-formed incoming X-Request-Id or mints a UUID, and
// echoes it on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Logger.Debug("http request",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Auth == nil {
			c.Next()
			return
		}
		if _, err := h.Auth.Authenticate(c.Request); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "UNAUTHORIZED"})
			return
		}
		c.Next()
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Evaluate(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: "INVALID_REQUEST"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetString(requestIDKey)
	}
	resp, err := h.Service.Decide(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header(HeaderRequestID, resp.RequestID)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Classify(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: "INVALID_REQUEST"})
		return
	}
	resp, err := h.Service.Classify(req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Signals(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: "INVALID_REQUEST"})
		return
	}
	resp, err := h.Service.Signals(req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AuditList(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	entries, err := h.Service.AuditList(c.Request.Context(), c.Query("session_id"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": entries})
}

func (h *Handler) Export(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	sessionID := c.Query("session_id")
	data, err := h.Service.Export(c.Request.Context(), sessionID, limit, h.BaseURL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	name := "parliament-audit.zip"
	if sessionID != "" {
		name = "parliament-audit-" + sessionID + ".zip"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Data(http.StatusOK, "application/zip", data)
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: "INVALID_REQUEST"})
		return 0, false
	}
	return n, true
}

func (h *Handler) AuditGet(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	entry, err := h.Service.AuditGet(c.Request.Context(), c.Param("record_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) Verify(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	res, err := h.Service.Verify(c.Request.Context(), c.Param("record_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Redact(c *gin.Context) {
	if !h.ensureService(c) {
		return
	}
	var req RedactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json", Code: "INVALID_REQUEST"})
		return
	}
	red, err := h.Service.Redact(c.Request.Context(), c.Param("record_id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, red)
}

func (h *Handler) ensureService(c *gin.Context) bool {
	if h.Service == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "decision service not configured", Code: "NOT_CONFIGURED"})
		return false
	}
	return true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, ErrInvalidRequest):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ledger.ErrRecordNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrIdempotencyConflict):
		status, code = http.StatusConflict, "IDEMPOTENCY_CONFLICT"
	case errors.Is(err, ledger.ErrDuplicateRecord):
		status, code = http.StatusConflict, "DUPLICATE"
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(status, ErrorResponse{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
