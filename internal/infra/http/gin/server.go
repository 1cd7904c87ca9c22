package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"rentguru/internal/infra/obs"
)

type RequestHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Accept(c *gin.Context)
	Deny(c *gin.Context)
	Pay(c *gin.Context)
}

type TripHTTP interface {
	Get(c *gin.Context)
	Cancel(c *gin.Context)
	Finish(c *gin.Context)
}

type AccountHTTP interface {
	ApplyPromo(c *gin.Context)
}

type AvailabilityHTTP interface {
	Availability(c *gin.Context)
}

type ConversationHTTP interface {
	OpenSupport(c *gin.Context)
	Unread(c *gin.Context)
}

type WebhookHTTP interface {
	Notify(c *gin.Context)
}

type ChannelHTTP interface {
	Connect(c *gin.Context)
}

type Handlers struct {
	Requests       RequestHTTP
	Trips          TripHTTP
	Accounts       AccountHTTP
	Availability   AvailabilityHTTP
	Conversations  ConversationHTTP
	Webhook        WebhookHTTP
	Channel        ChannelHTTP
	AuthMiddleware gin.HandlerFunc
}

type ServerConfig struct {
	Env         string
	Addr        string
	CORSOrigins []string
	// APM is optional; requests are traced when set.
	APM *newrelic.Application
}

func NewServer(cfg ServerConfig, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg ServerConfig, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.APM != nil {
		router.Use(nrgin.Middleware(cfg.APM))
	}
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	// the channel authenticates with its token query parameter
	if h.Channel != nil {
		router.GET("/ws/conversations/:id", h.Channel.Connect)
	}

	api := router.Group("/api/v1")
	if h.Webhook != nil {
		api.POST("/payments/webhook", h.Webhook.Notify)
	}
	if h.Availability != nil {
		api.GET("/resources/:id/availability", h.Availability.Availability)
	}
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.Requests != nil {
		api.POST("/requests", h.Requests.Create)
		api.GET("/requests/:id", h.Requests.Get)
		api.POST("/requests/:id/accept", h.Requests.Accept)
		api.POST("/requests/:id/deny", h.Requests.Deny)
		api.POST("/requests/:id/pay", h.Requests.Pay)
	}
	if h.Trips != nil {
		api.GET("/trips/:id", h.Trips.Get)
		api.POST("/trips/:id/cancel", h.Trips.Cancel)
		api.POST("/trips/:id/finish", h.Trips.Finish)
	}
	if h.Accounts != nil {
		api.POST("/promocodes/apply", h.Accounts.ApplyPromo)
	}
	if h.Conversations != nil {
		api.POST("/support/conversations", h.Conversations.OpenSupport)
		api.GET("/conversations/unread", h.Conversations.Unread)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
