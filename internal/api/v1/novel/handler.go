package novel

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"novelcraft-backend/internal/middleware"
	"novelcraft-backend/internal/models"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/internal/utils"
)

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return 0, false
	}
	return uint(id), true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func notFoundOrInternal(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNovelNotFound),
		errors.Is(err, services.ErrChapterNotFound):
		c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Internal error"))
	}
}

type NovelInput struct {
	Title    string `json:"title" binding:"required,max=200"`
	Genre    string `json:"genre" binding:"max=50"`
	Synopsis string `json:"synopsis"`
	Outline  string `json:"outline"`
}

// ListNovels godoc
// @Summary List the current user's novels
// @Tags novel
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Router /novels [get]
func ListNovels(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	page, limit := pagination(c)

	novels, total, err := services.FindNovels(u.ID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list novels"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": novels, "total": total}))
}

// CreateNovel godoc
// @Summary Create a novel
// @Tags novel
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response{data=models.Novel}
// @Failure 400 {object} utils.Response
// @Router /novels [post]
func CreateNovel(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var input NovelInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	novel := models.Novel{
		UserID:   u.ID,
		Title:    input.Title,
		Genre:    input.Genre,
		Synopsis: input.Synopsis,
		Outline:  input.Outline,
	}
	if err := services.CreateNovel(&novel); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to create novel"))
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Novel created", novel))
}

// GetNovel godoc
// @Summary Get one novel
// @Tags novel
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=models.Novel}
// @Failure 404 {object} utils.Response
// @Router /novels/{id} [get]
func GetNovel(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	novel, err := services.GetNovel(id, u.ID)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", novel))
}

// UpdateNovel godoc
// @Summary Update a novel
// @Tags novel
// @Security ApiKeyAuth
// @Router /novels/{id} [put]
func UpdateNovel(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Malformed JSON"))
		return
	}

	updates := map[string]interface{}{}
	for _, field := range []string{"title", "genre", "synopsis", "outline", "status"} {
		if value, exists := input[field]; exists {
			updates[field] = value
		}
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Nothing to update"))
		return
	}

	novel, err := services.UpdateNovel(id, u.ID, updates)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Novel updated", novel))
}

// DeleteNovel godoc
// @Summary Delete a novel and its chapters, characters, and worldviews
// @Tags novel
// @Security ApiKeyAuth
// @Router /novels/{id} [delete]
func DeleteNovel(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := services.DeleteNovel(id, u.ID); err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Novel deleted", nil))
}

type ChapterInput struct {
	Title   string `json:"title" binding:"required,max=200"`
	Content string `json:"content"`
	Summary string `json:"summary"`
	Sort    int    `json:"sort"`
}

// ListChapters godoc
// @Summary List a novel's chapters
// @Tags novel
// @Security ApiKeyAuth
// @Router /novels/{id}/chapters [get]
func ListChapters(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	novelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	chapters, err := services.FindChapters(novelID, u.ID)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", chapters))
}

// CreateChapter godoc
// @Summary Add a chapter to a novel
// @Tags novel
// @Security ApiKeyAuth
// @Router /novels/{id}/chapters [post]
func CreateChapter(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	novelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input ChapterInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	chapter := models.Chapter{
		NovelID: novelID,
		Title:   input.Title,
		Content: input.Content,
		Summary: input.Summary,
		Sort:    input.Sort,
	}
	if err := services.CreateChapter(u.ID, &chapter); err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Chapter created", chapter))
}

// UpdateChapter godoc
// @Summary Update a chapter
// @Tags novel
// @Security ApiKeyAuth
// @Router /chapters/{id} [put]
func UpdateChapter(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Malformed JSON"))
		return
	}

	updates := map[string]interface{}{}
	for _, field := range []string{"title", "content", "summary", "sort"} {
		if value, exists := input[field]; exists {
			updates[field] = value
		}
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Nothing to update"))
		return
	}

	chapter, err := services.UpdateChapter(id, u.ID, updates)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Chapter updated", chapter))
}

// DeleteChapter godoc
// @Summary Delete a chapter
// @Tags novel
// @Security ApiKeyAuth
// @Router /chapters/{id} [delete]
func DeleteChapter(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := services.DeleteChapter(id, u.ID); err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Chapter deleted", nil))
}

type CharacterInput struct {
	Name        string `json:"name" binding:"required,max=100"`
	RoleType    string `json:"role_type" binding:"max=50"`
	Personality string `json:"personality"`
	Background  string `json:"background"`
}

func ListCharacters(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	novelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	characters, err := services.FindCharacters(novelID, u.ID)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", characters))
}

func CreateCharacter(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	novelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input CharacterInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	character := models.Character{
		NovelID:     novelID,
		Name:        input.Name,
		RoleType:    input.RoleType,
		Personality: input.Personality,
		Background:  input.Background,
	}
	if err := services.CreateCharacter(u.ID, &character); err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Character created", character))
}

func UpdateCharacter(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Malformed JSON"))
		return
	}

	updates := map[string]interface{}{}
	for _, field := range []string{"name", "role_type", "personality", "background"} {
		if value, exists := input[field]; exists {
			updates[field] = value
		}
	}

	character, err := services.UpdateCharacter(id, u.ID, updates)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Character updated", character))
}

func DeleteCharacter(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := services.DeleteCharacter(id, u.ID); err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Character deleted", nil))
}

type WorldviewInput struct {
	Title   string `json:"title" binding:"required,max=200"`
	Setting string `json:"setting"`
}

func ListWorldviews(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	novelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	worldviews, err := services.FindWorldviews(novelID, u.ID)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", worldviews))
}

func CreateWorldview(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	novelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input WorldviewInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	worldview := models.Worldview{
		NovelID: novelID,
		Title:   input.Title,
		Setting: input.Setting,
	}
	if err := services.CreateWorldview(u.ID, &worldview); err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Worldview created", worldview))
}

func UpdateWorldview(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Malformed JSON"))
		return
	}

	updates := map[string]interface{}{}
	for _, field := range []string{"title", "setting"} {
		if value, exists := input[field]; exists {
			updates[field] = value
		}
	}

	worldview, err := services.UpdateWorldview(id, u.ID, updates)
	if err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Worldview updated", worldview))
}

func DeleteWorldview(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := services.DeleteWorldview(id, u.ID); err != nil {
		notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Worldview deleted", nil))
}
