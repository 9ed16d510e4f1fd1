package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"workshop-service/internal/http/middleware"
)

// RateLimits groups the throttles applied to the exposed surfaces. Login
// gets a tight budget against credential stuffing; the public quote links
// a looser one against token scanning.
type RateLimits struct {
	Limiter      middleware.Limiter
	LoginLimit   int64
	LoginWindow  time.Duration
	PublicLimit  int64
	PublicWindow time.Duration
}

func NewRouter(handler *Handler, authMiddleware gin.HandlerFunc, limits RateLimits, env string, log zerolog.Logger) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	loginLimiter := middleware.RateLimit(limits.Limiter, "login", limits.LoginLimit, limits.LoginWindow, log)
	publicLimiter := middleware.RateLimit(limits.Limiter, "public", limits.PublicLimit, limits.PublicWindow, log)

	handler.Register(router, authMiddleware, loginLimiter, publicLimiter)

	return router
}
