package handlers

import (
	"time"

	"threatsense/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointHealth       = "/health"
	EndPointMetrics      = "/metrics"
	EndPointAnalyzeFrame = "/analyze_frame"
	EndPointAnalyzeVideo = "/analyze_video"
	EndPointClassify     = "/classify"
	EndPointRegister     = "/register"
	EndPointLogs         = "/logs/:user_id"
)

// NewRouter wires every route. Analysis routes sit behind the rate limiter.
func NewRouter(h *Handlers, limiter *middleware.RateLimiter, corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(corsOrigins)))

	router.GET(EndPointHealth, h.HealthCheck)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))
	router.POST(EndPointRegister, h.Register)
	router.GET(EndPointLogs, h.GetLogs)

	analysis := router.Group("/")
	analysis.Use(middleware.RateLimitMiddleware(limiter))
	{
		analysis.POST(EndPointAnalyzeFrame, h.AnalyzeFrame)
		analysis.POST(EndPointAnalyzeVideo, h.AnalyzeVideo)
		analysis.POST(EndPointClassify, h.Classify)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			origins = nil
			break
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
