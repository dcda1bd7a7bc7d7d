package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haqury/helpy"
	"go.uber.org/zap"

	"robot-gateway/internal/gateway"
	"robot-gateway/internal/types"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>Robot Gateway</title></head>
<body><h1>Hello, Server is Running!</h1></body>
</html>`

// GatewayService то, что HTTP слою нужно от шлюза
type GatewayService interface {
	State(withNoise bool) types.TelemetrySnapshot
	Stats() gateway.StatsSnapshot
}

// StateHandler обрабатывает /, /health, /state и /stats
type StateHandler struct {
	logger  *zap.Logger
	service GatewayService
	noise   bool
	version string
}

// NewStateHandler создает хендлер. noise задает, накладывается ли шум
// на /state, если клиент не передал параметр noise.
func NewStateHandler(logger *zap.Logger, service GatewayService, noise bool, version string) *StateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateHandler{
		logger:  logger,
		service: service,
		noise:   noise,
		version: version,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *StateHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.GET("/state", h.GetState)
	router.OPTIONS("/state", h.StatePreflight)
	router.GET("/stats", h.GetStats)
}

// Index статическая страница
func (h *StateHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

// Health проверка живости
func (h *StateHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, &helpy.ApiResponse{
		Status:    "ok",
		Message:   "robot gateway is running",
		Timestamp: time.Now().Unix(),
		Metadata:  map[string]string{"version": h.version},
	})
}

// GetState отдает последний снимок телеметрии, не более 12 приводов
func (h *StateHandler) GetState(c *gin.Context) {
	setStateCORS(c)

	noise := h.noise
	if raw := c.Query("noise"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, &helpy.ApiResponse{
				Status:    "error",
				Message:   "invalid noise parameter: " + raw,
				Timestamp: time.Now().Unix(),
			})
			return
		}
		noise = v
	}

	snapshot := h.service.State(noise).Published()
	if !snapshot.Finite() {
		h.logger.Error("Telemetry snapshot has non-finite values")
		c.JSON(http.StatusInternalServerError, &helpy.ApiResponse{
			Status:    "error",
			Message:   "telemetry snapshot has non-finite values",
			Timestamp: time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// StatePreflight отвечает на CORS preflight для /state
func (h *StateHandler) StatePreflight(c *gin.Context) {
	setStateCORS(c)
	c.Status(http.StatusNoContent)
}

// GetStats счетчики шлюза
func (h *StateHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats())
}

func setStateCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
}
