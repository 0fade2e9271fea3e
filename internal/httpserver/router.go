package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"todo-backend/internal/handler"
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func NewRouter(
	todoHandler *handler.TodoHandler,
	parser UserIDParser,
	logger *zap.Logger,
	checks ...ReadinessCheck,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSHeaders())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", TraceHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type", TraceHeader},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(Trace())
	r.Use(RequestLogger(logger))

	// Health endpoints (放在最前面)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, rc := range checks {
			if err := rc.Check(ctx); err != nil {
				logger.Warn("Readiness check failed", zap.String("dependency", rc.Name), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": rc.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	todos := r.Group("/todos")
	todos.Use(AuthMiddleware(parser))
	{
		todos.GET("", todoHandler.ListTodos)
		todos.POST("", todoHandler.CreateTodo)
		todos.PATCH("/:todoId", todoHandler.UpdateTodo)
		todos.DELETE("/:todoId", todoHandler.DeleteTodo)
		todos.POST("/:todoId/attachment", todoHandler.GenerateUploadURL)
	}

	return r
}
