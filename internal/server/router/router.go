package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/server/handlers"
)

// Handlers groups the HTTP adapters the router mounts.
type Handlers struct {
	Webhook   *handlers.WebhookHandler
	Breeding  *handlers.BreedingHandler
	Reminders *handlers.ReminderHandler
	// Metrics serves the Prometheus exposition, when set.
	Metrics http.Handler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	if h.Webhook != nil {
		r.GET("/webhook", h.Webhook.Verify)
		r.POST("/webhook", h.Webhook.Receive)
	}

	if b := h.Breeding; b != nil {
		r.POST("/farms", b.CreateFarm)
		r.POST("/farms/:farmID/animals", b.CreateAnimal)
		r.POST("/farms/:farmID/matings", b.ProposeMating)
		r.GET("/animals/:animalID", b.GetAnimal)
		r.GET("/animals/:animalID/breedings", b.ListBreedings)
		r.POST("/breedings/:eventID/birth", b.RecordBirth)
		r.POST("/breedings/:eventID/kits", b.RecordKits)
		r.DELETE("/breedings/:eventID", b.RetractMating)
	}

	if rm := h.Reminders; rm != nil {
		r.GET("/farms/:farmID/reminders/due", rm.ListDue)
		r.GET("/reminders/:reminderID", rm.Get)
		r.POST("/reminders/:reminderID/dispatch", rm.Dispatch)
		r.POST("/reminders/:reminderID/complete", rm.Complete)
	}

	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
