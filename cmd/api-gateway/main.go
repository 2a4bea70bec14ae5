package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/planforma/planforma-api/api/swagger"
	"github.com/planforma/planforma-api/internal/handler"
	"github.com/planforma/planforma-api/internal/middleware"
	"github.com/planforma/planforma-api/internal/models"
	"github.com/planforma/planforma-api/internal/repository"
	"github.com/planforma/planforma-api/internal/service"
	"github.com/planforma/planforma-api/pkg/cache"
	"github.com/planforma/planforma-api/pkg/config"
	"github.com/planforma/planforma-api/pkg/database"
	"github.com/planforma/planforma-api/pkg/logger"
	corsmiddleware "github.com/planforma/planforma-api/pkg/middleware/cors"
	reqidmiddleware "github.com/planforma/planforma-api/pkg/middleware/requestid"
)

// @title Planforma API
// @version 1.0.0
// @description Weekly timetable allocation and conflict resolution for a training center
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.SummaryTTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	trainerRepo := repository.NewTrainerRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	equipmentRepo := repository.NewEquipmentRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	planRepo := repository.NewPlanRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	conflictRepo := repository.NewConflictRepository(db)

	authSvc := service.NewAuthService(cfg.JWT.Secret)
	detectorSvc := service.NewConflictDetectorService(
		sessionRepo, slotRepo, conflictRepo, planRepo,
		trainerRepo, equipmentRepo, db, metricsSvc, logr,
	)
	plannerSvc := service.NewPlannerService(
		planRepo, sessionRepo, slotRepo,
		trainerRepo, roomRepo, equipmentRepo, groupRepo, prefRepo,
		detectorSvc, db, metricsSvc, nil, logr,
		service.PlannerConfig{
			RetryBudget:       cfg.Planner.RetryBudget,
			RetryDepth:        cfg.Planner.RetryDepth,
			LocalSearchPasses: cfg.Planner.LocalSearchPasses,
			GreedyThreshold:   cfg.Planner.GreedyThreshold,
			RetryThreshold:    cfg.Planner.RetryThreshold,
		},
	)
	resolutionSvc := service.NewConflictResolutionService(
		conflictRepo, sessionRepo, slotRepo, planRepo,
		trainerRepo, roomRepo, groupRepo,
		db, cacheSvc, metricsSvc, logr,
	)
	sessionSvc := service.NewSessionService(sessionRepo, slotRepo, planRepo, detectorSvc, db, logr)
	planSvc := service.NewPlanService(planRepo, conflictRepo, logr)
	catalogSvc := service.NewCatalogService(trainerRepo, roomRepo, equipmentRepo, groupRepo, prefRepo, db, logr)

	plannerHandler := handler.NewPlannerHandler(plannerSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	resolutionHandler := handler.NewResolutionHandler(resolutionSvc)
	planHandler := handler.NewPlanHandler(planSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RolePlanner)
	admin := middleware.RequireRoles(models.RoleAdmin)

	if cfg.Planner.Enabled {
		planner := api.Group("/planner")
		planner.POST("/generate", staff, plannerHandler.Generate)
		planner.POST("/seed-slots", staff, plannerHandler.SeedSlots)
	}

	sessions := api.Group("/sessions")
	sessions.POST("", staff, sessionHandler.Create)
	sessions.GET("", sessionHandler.List)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PUT("/:id", staff, sessionHandler.Update)
	sessions.DELETE("/:id", staff, sessionHandler.Delete)
	sessions.GET("/:id/conflicts", sessionHandler.GetConflicts)

	if cfg.Resolution.Enabled {
		resolution := api.Group("/resolution")
		resolution.POST("/resolve-all/:planId", staff, resolutionHandler.ResolveAll)
		resolution.POST("/apply", staff, resolutionHandler.Apply)
		resolution.GET("/conflicts/:id/remedies", resolutionHandler.Proposals)
		resolution.GET("/summary/:planId", resolutionHandler.Summary)
	}

	plans := api.Group("/plans")
	plans.GET("", planHandler.List)
	plans.GET("/:id", planHandler.Get)
	plans.POST("/:id/validate", staff, planHandler.Validate)
	plans.POST("/:id/publish", admin, planHandler.Publish)
	plans.DELETE("/:id", admin, planHandler.Delete)

	trainers := api.Group("/trainers")
	trainers.GET("", catalogHandler.ListTrainers)
	trainers.POST("", admin, catalogHandler.CreateTrainer)
	trainers.GET("/:id", catalogHandler.GetTrainer)
	trainers.PUT("/:id", admin, catalogHandler.UpdateTrainer)
	trainers.DELETE("/:id", admin, catalogHandler.DeactivateTrainer)
	trainers.GET("/:id/availability", catalogHandler.ListAvailability)
	trainers.PUT("/:id/availability", middleware.RBAC(string(models.RoleAdmin), string(models.RolePlanner), "SELF"), catalogHandler.ReplaceAvailability)

	preferences := api.Group("/preferences")
	preferences.GET("/:id", catalogHandler.ListPreferences)
	preferences.POST("/:id", staff, catalogHandler.CreatePreference)
	preferences.DELETE("/:id/:prefId", staff, catalogHandler.DeletePreference)

	rooms := api.Group("/rooms")
	rooms.GET("", catalogHandler.ListRooms)
	rooms.POST("", admin, catalogHandler.CreateRoom)
	rooms.DELETE("/:id", admin, catalogHandler.DeactivateRoom)

	equipment := api.Group("/equipment")
	equipment.GET("", catalogHandler.ListEquipment)
	equipment.POST("", admin, catalogHandler.CreateEquipment)
	equipment.PATCH("/:id", admin, catalogHandler.UpdateEquipmentQuantity)

	groups := api.Group("/groups")
	groups.GET("", catalogHandler.ListGroups)
	groups.POST("", admin, catalogHandler.CreateGroup)
	groups.DELETE("/:id", admin, catalogHandler.DeleteGroup)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
