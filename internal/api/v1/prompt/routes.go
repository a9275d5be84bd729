package prompt

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	prompts := router.Group("/prompts")
	prompts.GET("", ListPrompts)
	prompts.POST("", CreatePrompt)
	prompts.GET("/:id", GetPrompt)
	prompts.PUT("/:id", UpdatePrompt)
	prompts.DELETE("/:id", DeletePrompt)
}
