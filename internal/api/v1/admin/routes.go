package admin

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/users", ListUsers)
	router.PUT("/users/:id", UpdateUser)
	router.GET("/users/:id/entitlements", GetUserEntitlements)

	router.POST("/entitlements", GrantEntitlement)
	router.DELETE("/entitlements/:id", CancelEntitlement)

	router.GET("/orders", ListOrders)
	router.POST("/orders", CreateManualOrder)
	router.POST("/orders/:id/complete", CompleteOrder)
	router.POST("/orders/:id/cancel", CancelOrder)

	router.GET("/transactions", ListTransactions)
	router.GET("/transactions/export", ExportTransactions)

	router.GET("/models", ListModels)
	router.POST("/models", CreateModel)
	router.PUT("/models/:id", UpdateModel)
	router.DELETE("/models/:id", DeleteModel)
	router.PATCH("/models/:id/active", SetModelActive)

	router.GET("/plans", ListPlans)
	router.POST("/plans", CreatePlan)
	router.PUT("/plans/:id", UpdatePlan)

	router.GET("/records", ListCallRecords)
}
