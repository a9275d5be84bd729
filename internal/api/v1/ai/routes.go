package ai

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	aiGroup := router.Group("/ai")
	aiGroup.POST("/generate", Generate)
	aiGroup.GET("/records", ListRecords)
	aiGroup.DELETE("/streams/:id", CancelStream)

	aiGroup.POST("/conversations", CreateConversation)
	aiGroup.GET("/conversations", ListConversations)
	aiGroup.GET("/conversations/:id/messages", ListMessages)
	aiGroup.POST("/conversations/:id/messages", SendMessage)
	aiGroup.DELETE("/conversations/:id", DeleteConversation)
}
