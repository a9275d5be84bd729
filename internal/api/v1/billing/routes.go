package billing

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	billing := router.Group("/billing")
	billing.GET("/plans", ListPlans)
	billing.POST("/orders", CreateOrder)
	billing.GET("/orders", ListOrders)
	billing.GET("/orders/:id", GetOrder)
}
