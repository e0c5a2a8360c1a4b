// Файл: main.go

package main

import (
	"context"
	"log"
	"net/http"

	"triage-system/internal/listeners"
	"triage-system/internal/queue"
	"triage-system/internal/repositories"
	"triage-system/internal/routes"
	"triage-system/pkg/config"
	"triage-system/pkg/customvalidator"
	"triage-system/pkg/database/postgresql"
	apperrors "triage-system/pkg/errors"
	applogger "triage-system/pkg/logger"
	appmiddleware "triage-system/pkg/middleware"
	"triage-system/pkg/service"
	"triage-system/pkg/utils"
	appwebsocket "triage-system/pkg/websocket"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or could not be loaded.")
	}

	e := echo.New()
	logger := applogger.NewLogger()
	cfg := config.New()

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("!!! ОБНАРУЖЕНА ПАНИКА (PANIC) !!!",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				httpErr := apperrors.NewHttpError(http.StatusInternalServerError, "Внутренняя ошибка сервера", err, nil)
				utils.ErrorResponse(c, httpErr, logger)
			}
			return err
		},
	}))
	e.Use(appmiddleware.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	v := validator.New()
	if err := customvalidator.RegisterCustomValidations(v); err != nil {
		logger.Fatal("Ошибка регистрации кастомных правил валидации", zap.Error(err))
	}
	e.Validator = utils.NewValidator(v)

	// Базы данных
	dbConn := postgresql.ConnectDB(cfg.Postgres.DSN)
	defer dbConn.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("не удалось подключиться к Redis", zap.Error(err), zap.String("address", cfg.Redis.Address))
	}

	jwtSvc := service.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.AccessTokenTTL)

	// WebSocket-хаб для дашбордов
	hub := appwebsocket.NewHub()
	go hub.Run()

	// Движок очереди: хранилище порядка, доставка событий, журнал переходов.
	ticketRepo := repositories.NewTicketRepository(dbConn, logger)
	store := queue.NewStore(cfg.Queue.RetryPrecedence)
	dispatcher := queue.NewDispatcher(logger)
	journal := queue.NewJournal(ticketRepo, logger)
	engine := queue.NewEngine(store, dispatcher, journal, cfg.Queue, logger)

	listeners.NewQueueBroadcastListener(hub, logger).Register(dispatcher)

	// Восстановление активного множества после рестарта.
	active, err := ticketRepo.LoadActiveTickets(context.Background())
	if err != nil {
		logger.Fatal("не удалось прочитать активные тикеты", zap.Error(err))
	}
	maxID, err := ticketRepo.MaxTicketID(context.Background())
	if err != nil {
		logger.Fatal("не удалось прочитать максимальный ID тикета", zap.Error(err))
	}
	if err := engine.Rebuild(context.Background(), active, maxID); err != nil {
		logger.Fatal("не удалось восстановить очередь", zap.Error(err))
	}

	routes.InitRouter(e, dbConn, redisClient, engine, hub, jwtSvc, cfg, logger)

	defer func() {
		// Дописываем события и снимки, которые уже зафиксированы движком.
		dispatcher.Close()
		journal.Close()
	}()

	logger.Info("Сервер запускается", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Сервер остановлен с ошибкой", zap.Error(err))
	}
}
