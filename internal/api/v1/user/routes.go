package user

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	user := router.Group("/user")
	user.GET("/profile", GetProfile)
	user.PUT("/profile", UpdateProfile)
	user.GET("/entitlements", GetEntitlements)
}
