package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todo-backend/internal/handler"
	"todo-backend/pkg/logger"
	"todo-backend/pkg/metrics"
	"todo-backend/pkg/trace"
)

const TraceHeader = trace.HeaderName

// UserIDParser resolves the caller from the Authorization header.
type UserIDParser interface {
	ParseUserID(authorizationHeader string) (string, error)
}

func AuthMiddleware(parser UserIDParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parser.ParseUserID(c.GetHeader("Authorization"))
		if err != nil {
			handler.WriteError(c, err)
			return
		}

		// store user_id in context so handlers can use it
		c.Set(handler.ContextUserID, userID)

		c.Next()
	}
}

// CORSHeaders sets the permissive cross-origin headers on every response,
// including errors and requests without an Origin header.
func CORSHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		c.Next()
	}
}

// Trace 读取或生成 trace_id，写入 request context 并回写到响应头
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeader(c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}

// 添加请求日志中间件，同时记录延迟指标
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), latency)

		logger.WithTrace(c.Request.Context(), log).Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}
