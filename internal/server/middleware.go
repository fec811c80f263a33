package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// observe logs each request and records its latency.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		d := time.Since(start)
		code := c.Writer.Status()
		s.Metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(code), d)

		level := s.Logger.Debug
		if code >= http.StatusInternalServerError {
			level = s.Logger.Warn
		}
		level("request",
			"method", c.Request.Method,
			"route", route,
			"status", code,
			"duration_ms", d.Milliseconds(),
			"request_id", c.GetString(requestIDKey))
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, actions.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case claude.KindOf(err) != "":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "route", c.FullPath(), "error", err, "request_id", c.GetString(requestIDKey))
	}
	c.AbortWithStatusJSON(code, output.Error(err))
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, output.Error(err))
}

func ok(c *gin.Context, code int, data any) {
	c.JSON(code, output.Success(data))
}
