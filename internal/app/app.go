package app

import (
	"context"

	"reloop-backend/internal/batch"
	"reloop-backend/internal/catalog"
	"reloop-backend/internal/config"
	"reloop-backend/internal/constants"
	"reloop-backend/internal/database"
	"reloop-backend/internal/ledger"
	"reloop-backend/internal/middleware"
	"reloop-backend/internal/orgsetup"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app with all global middleware and route registration.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opts)
	}

	// Health probe (no auth)
	app.Get("/health/json", func(c *fiber.Ctx) error {
		status := fiber.Map{"db": db != nil, "redis": false}
		if rdb != nil {
			status["redis"] = rdb.Ping(context.Background()).Err() == nil
		}
		return c.JSON(fiber.Map{"status": "ok", "services": status})
	})

	if db != nil {
		// Catalog module
		catalogService := &catalog.Service{DB: db}
		catalogHandlers := &catalog.Handlers{Service: catalogService}
		catalogGroup := app.Group("/api/v1/catalog", middleware.RequireActor())
		catalogGroup.Get("/materials", catalogHandlers.ListMaterials)
		catalogGroup.Get("/materials/:id", catalogHandlers.GetMaterial)
		catalogGroup.Get("/tag-groups", catalogHandlers.ListTagGroups)
		catalogGroup.Post("/materials", middleware.RequireCapability(constants.ManageCatalog), catalogHandlers.CreateMaterial)
		catalogGroup.Delete("/materials/:id", middleware.RequireCapability(constants.ManageCatalog), catalogHandlers.DeleteMaterial)
		catalogGroup.Post("/main-materials", middleware.RequireCapability(constants.ManageCatalog), catalogHandlers.CreateMainMaterial)
		catalogGroup.Post("/categories", middleware.RequireCapability(constants.ManageCatalog), catalogHandlers.CreateCategory)
		catalogGroup.Post("/tag-groups", middleware.RequireCapability(constants.ManageCatalog), catalogHandlers.CreateTagGroup)
		catalogGroup.Post("/tags", middleware.RequireCapability(constants.ManageCatalog), catalogHandlers.CreateTag)

		// Batch module (records are claimed by batches, so wire it first)
		batchService := &batch.Service{DB: db}
		batchHandlers := &batch.Handlers{Service: batchService}
		batchGroup := app.Group("/api/v1/transactions", middleware.RequireActor())
		batchGroup.Get("/", batchHandlers.ListBatches)
		batchGroup.Get("/:id", batchHandlers.GetBatch)
		batchGroup.Post("/", middleware.RequireCapability(constants.SubmitTransactions), batchHandlers.CreateBatch)
		batchGroup.Post("/:id/records", middleware.RequireCapability(constants.SubmitTransactions), batchHandlers.AddRecords)
		batchGroup.Post("/:id/recompute", middleware.RequireCapability(constants.SubmitTransactions), batchHandlers.Recompute)
		batchGroup.Patch("/:id/status", batchHandlers.TransitionStatus)

		// Ledger module; completion feeds back into batch aggregates
		ledgerService := &ledger.Service{DB: db, Recomputer: batchService}
		ledgerHandlers := &ledger.Handlers{Service: ledgerService}
		ledgerGroup := app.Group("/api/v1/records", middleware.RequireActor())
		ledgerGroup.Get("/", ledgerHandlers.ListByBatch)
		ledgerGroup.Get("/:id", ledgerHandlers.GetRecord)
		ledgerGroup.Get("/:id/traceability", ledgerHandlers.ResolveTraceability)
		ledgerGroup.Post("/", middleware.RequireCapability(constants.SubmitTransactions), ledgerHandlers.CreateRecord)
		ledgerGroup.Post("/:id/traceability", middleware.RequireCapability(constants.SubmitTransactions), ledgerHandlers.AppendTraceability)
		ledgerGroup.Patch("/:id/material", middleware.RequireCapability(constants.SubmitTransactions), ledgerHandlers.SetMaterial)
		ledgerGroup.Patch("/:id/status", ledgerHandlers.TransitionStatus)

		// Organization hierarchy version store
		orgsetupService := &orgsetup.Service{DB: db, MaxDepth: cfg.HierarchyMaxDepth}
		if rdb != nil {
			orgsetupService.Cache = orgsetup.NewCache(rdb)
		}
		orgsetupHandlers := &orgsetup.Handlers{Service: orgsetupService}
		orgsetupGroup := app.Group("/api/v1/org-setup", middleware.RequireActor())
		orgsetupGroup.Get("/:organization_id/active", orgsetupHandlers.GetActiveVersion)
		orgsetupGroup.Get("/:organization_id/versions", orgsetupHandlers.ListVersions)
		orgsetupGroup.Post("/versions", middleware.RequireCapability(constants.ManageOrgSetup), orgsetupHandlers.SubmitVersion)
	}

	return app, db, rdb, nil
}
