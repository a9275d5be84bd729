package novel

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	novels := router.Group("/novels")
	novels.GET("", ListNovels)
	novels.POST("", CreateNovel)
	novels.GET("/:id", GetNovel)
	novels.PUT("/:id", UpdateNovel)
	novels.DELETE("/:id", DeleteNovel)

	novels.GET("/:id/chapters", ListChapters)
	novels.POST("/:id/chapters", CreateChapter)
	novels.GET("/:id/characters", ListCharacters)
	novels.POST("/:id/characters", CreateCharacter)
	novels.GET("/:id/worldviews", ListWorldviews)
	novels.POST("/:id/worldviews", CreateWorldview)

	router.PUT("/chapters/:id", UpdateChapter)
	router.DELETE("/chapters/:id", DeleteChapter)
	router.PUT("/characters/:id", UpdateCharacter)
	router.DELETE("/characters/:id", DeleteCharacter)
	router.PUT("/worldviews/:id", UpdateWorldview)
	router.DELETE("/worldviews/:id", DeleteWorldview)
}
