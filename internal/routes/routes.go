package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"triage-system/internal/controllers"
	"triage-system/internal/queue"
	"triage-system/internal/repositories"
	"triage-system/internal/services"
	"triage-system/pkg/config"
	"triage-system/pkg/service"
	"triage-system/pkg/websocket"
)

// InitRouter собирает репозитории, сервисы и контроллеры и вешает маршруты.
// Движок очереди приходит снаружи: он создаётся и восстанавливается в main
// до старта HTTP-слоя.
func InitRouter(
	e *echo.Echo,
	dbConn *pgxpool.Pool,
	redisClient *redis.Client,
	engine *queue.Engine,
	hub *websocket.Hub,
	jwtSvc service.JWTService,
	cfg *config.Config,
	logger *zap.Logger,
) {
	logger.Info("InitRouter: Начало создания маршрутов")

	api := e.Group("/api")

	// --- РЕПОЗИТОРИИ ---
	ticketRepo := repositories.NewTicketRepository(dbConn, logger)
	patientRepo := repositories.NewPatientRepository(dbConn)
	cacheRepo := repositories.NewRedisCacheRepository(redisClient)

	// --- СЕРВИСЫ ---
	ticketService := services.NewTicketService(engine, ticketRepo, patientRepo, cacheRepo, cfg.Queue, logger)
	callService := services.NewCallService(engine, logger)
	importService := services.NewPatientImportService(patientRepo, logger)

	// --- КОНТРОЛЛЕРЫ ---
	ticketCtrl := controllers.NewTicketController(ticketService, logger)
	callCtrl := controllers.NewCallController(callService, logger)
	patientCtrl := controllers.NewPatientController(patientRepo, importService, logger)
	wsCtrl := controllers.NewWebSocketController(hub, jwtSvc, logger)

	runTicketRouter(api, ticketCtrl)
	runCallRouter(api, callCtrl)
	runPatientRouter(api, patientCtrl)

	e.GET("/ws", wsCtrl.ServeWs)

	logger.Info("InitRouter: Маршруты созданы")
}
