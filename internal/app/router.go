package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"robot-gateway/internal/handler"
)

// NewRouter создает роутер с middleware и всеми маршрутами шлюза
func NewRouter(
	stateHandler *handler.StateHandler,
	videoHandler *handler.VideoHandler,
	logger *zap.Logger,
) http.Handler {

	// Режим Gin
	if gin.Mode() == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
		Formatter: func(param gin.LogFormatterParams) string {
			logger.Info("HTTP Request",
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("client_ip", param.ClientIP),
			)
			return ""
		},
	}))
	router.Use(gin.Recovery())

	stateHandler.RegisterRoutes(router)
	videoHandler.RegisterRoutes(router)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
			"suggestions": []string{
				"GET /state for robot telemetry",
				"GET /video (websocket) for the video stream",
			},
		})
	})

	// preflight проходит дальше в gin: OPTIONS /state выставляет свои заголовки
	return cors.New(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		OptionsPassthrough: true,
	}).Handler(router)
}

// NewTestRouter создает роутер для тестов
func NewTestRouter(
	stateHandler *handler.StateHandler,
	videoHandler *handler.VideoHandler,
) *gin.Engine {

	gin.SetMode(gin.TestMode)
	router := gin.New()

	stateHandler.RegisterRoutes(router)
	videoHandler.RegisterRoutes(router)

	return router
}
