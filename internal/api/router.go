package api

import (
	"novelcraft-backend/config"
	"novelcraft-backend/internal/api/v1/admin"
	"novelcraft-backend/internal/api/v1/ai"
	"novelcraft-backend/internal/api/v1/auth"
	"novelcraft-backend/internal/api/v1/billing"
	modelRoutes "novelcraft-backend/internal/api/v1/model"
	novelRoutes "novelcraft-backend/internal/api/v1/novel"
	promptRoutes "novelcraft-backend/internal/api/v1/prompt"
	userRoutes "novelcraft-backend/internal/api/v1/user"
	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(cfg *config.Config) (*gin.Engine, error) {
	_, err := database.Connect(cfg.DSN())
	if err != nil {
		return nil, err
	}

	err = database.ConnectRedis(cfg)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Logger(), gin.Recovery())

	// Configure CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1
	v1 := router.Group("/api/v1")
	{
		auth.RegisterRoutes(v1)

		authorized := v1.Group("/")
		authorized.Use(middleware.AuthMiddleware())
		{
			userRoutes.RegisterRoutes(authorized)
			novelRoutes.RegisterRoutes(authorized)
			promptRoutes.RegisterRoutes(authorized)
			modelRoutes.RegisterRoutes(authorized)
			ai.RegisterRoutes(authorized)
			billing.RegisterRoutes(authorized)
		}

		// Admin routes
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.AdminAuthMiddleware())
		{
			admin.RegisterRoutes(adminGroup)
		}
	}

	return router, nil
}
