package router

import (
	"net/http"
	"time"

	"github.com/calcforest/calcforest/internal/handlers"
	"github.com/calcforest/calcforest/internal/metrics"
	"github.com/calcforest/calcforest/internal/middleware"
	"github.com/calcforest/calcforest/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the HTTP surface is built from. Metrics and
// Feed may be nil. TrustedProxies lists the addresses or CIDRs whose
// X-Forwarded-For header is honoured; when empty the peer address is the
// client address.
type Deps struct {
	Log            *logrus.Logger
	AllowedOrigins []string
	TrustedProxies []string
	Metrics        *metrics.Collector
	RateLimiter    *middleware.RateLimiter
	Users          *services.UserService
	Calculations   *services.CalculationService
	Feed           http.Handler
	Ping           handlers.Pinger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		d.Log.WithError(err).Warn("Invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Log))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	corsConfig := cors.Config{
		AllowOrigins:     d.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(d.AllowedOrigins) == 0 {
		// cors refuses an empty origin list
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	}
	r.Use(cors.New(corsConfig))

	r.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	authHandler := handlers.NewAuthHandler(d.Users, d.Log)
	calcHandler := handlers.NewCalculationHandler(d.Calculations, d.Log)
	healthHandler := handlers.NewHealthHandler(d.Ping, d.Log)
	requireAuth := middleware.RequireAuth(d.Users)

	limit := func(ctx *gin.Context) { ctx.Next() }
	if d.RateLimiter != nil {
		limit = d.RateLimiter.Handler()
	}

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.Check)
		if d.Feed != nil {
			api.GET("/ws", gin.WrapH(d.Feed))
		}

		auth := api.Group("/auth")
		{
			auth.POST("/register", limit, authHandler.Register)
			auth.POST("/login", limit, authHandler.Login)
			auth.GET("/me", requireAuth, authHandler.Me)
		}

		calculations := api.Group("/calculations")
		{
			calculations.GET("", calcHandler.ListForest)
			calculations.GET("/flat", calcHandler.ListFlat)
			calculations.GET("/:id", calcHandler.Get)
			calculations.POST("/start", requireAuth, calcHandler.Start)
			calculations.POST("/operate", requireAuth, calcHandler.Operate)
		}
	}

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	return r
}
