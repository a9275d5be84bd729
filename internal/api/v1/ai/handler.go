package ai

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/middleware"
	"novelcraft-backend/internal/models"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/internal/utils"
)

type GenerateInput struct {
	Model        string   `json:"model"`
	BusinessType string   `json:"business_type" binding:"required"`
	PromptID     *uint    `json:"prompt_id"`
	UserPrompt   string   `json:"user_prompt" binding:"required"`
	Temperature  *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopP         *float64 `json:"top_p" binding:"omitempty,gt=0,lte=1"`
	MaxTokens    *int     `json:"max_tokens" binding:"omitempty,gt=0"`
	Stream       bool     `json:"stream"`
}

// callInput resolves the request into the service-layer call shape. When a
// prompt id is given, its content overrides the built-in system prompt for
// the business type; the user must be able to see that prompt.
func (in GenerateInput) callInput(userID uint) (services.CallInput, error) {
	custom := ""
	if in.PromptID != nil {
		prompt, err := services.GetPromptByID(*in.PromptID, userID)
		if err != nil {
			return services.CallInput{}, err
		}
		custom = prompt.Content
	}

	return services.CallInput{
		UserID:       userID,
		ModelRef:     in.Model,
		BusinessType: in.BusinessType,
		SystemPrompt: services.BuildSystemPrompt(in.BusinessType, custom),
		UserPrompt:   in.UserPrompt,
		Params: gateway.CallParams{
			Temperature: in.Temperature,
			TopP:        in.TopP,
			MaxTokens:   in.MaxTokens,
		},
		PromptID: in.PromptID,
	}, nil
}

func callErrorStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrModelNotFound), errors.Is(err, services.ErrPromptNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, gateway.ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func respondCallError(c *gin.Context, err error) {
	status := callErrorStatus(err)
	resp := utils.NewErrorResponse(status, err.Error())
	resp.Data = gin.H{
		"error_type": gateway.ErrorType(err),
		"error_code": gateway.ErrorCode(err),
	}
	c.JSON(status, resp)
}

// Generate godoc
// @Summary Run an AI generation call
// @Description Buffered by default. With "stream": true the response is an SSE stream of connected, content, and done/error events.
// @Tags ai
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 402 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 502 {object} utils.Response
// @Router /ai/generate [post]
func Generate(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var input GenerateInput
	if !utils.BindAndValidate(c, &input) {
		return
	}
	if !services.ValidBusinessType(input.BusinessType) {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Unknown business type"))
		return
	}

	call, err := input.callInput(u.ID)
	if err != nil {
		respondCallError(c, err)
		return
	}

	if input.Stream {
		streamGenerate(c, call, nil)
		return
	}

	result, cfg, err := services.ExecuteCall(c.Request.Context(), call)
	if err != nil {
		respondCallError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{
		"model":         cfg.Name,
		"content":       result.Content,
		"finish_reason": result.FinishReason,
		"usage":         result.Usage,
	}))
}

// lazySSESink defers the SSE upgrade (status, headers, first flush) until
// the relay emits its first frame. Pre-flight failures therefore leave the
// response untouched and can still go out as plain JSON.
type lazySSESink struct {
	c      *gin.Context
	writer *gateway.SSEWriter
}

func (s *lazySSESink) Send(event string, data interface{}) error {
	if s.writer == nil {
		w, err := gateway.NewSSEWriter(s.c.Writer)
		if err != nil {
			return err
		}
		s.writer = w
	}
	return s.writer.Send(event, data)
}

func (s *lazySSESink) started() bool { return s.writer != nil }

// streamGenerate runs a streaming call and blocks until the relay reaches
// its terminal state. Reports whether the stream actually started: on a
// pre-flight failure (unknown model, not enough credits, upstream refused)
// no SSE bytes have been written and the error goes out as plain JSON; if
// the response was already upgraded, the failure is framed as a terminal
// error event instead.
func streamGenerate(c *gin.Context, call services.CallInput, onDone func(gateway.Completion)) bool {
	sink := &lazySSESink{c: c}

	if err := services.ExecuteStreamCall(c.Request.Context(), sink, call, onDone); err != nil {
		if sink.started() {
			sink.Send("error", gin.H{
				"error":      err.Error(),
				"error_type": gateway.ErrorType(err),
				"error_code": gateway.ErrorCode(err),
			})
		} else {
			respondCallError(c, err)
		}
		return false
	}
	return true
}

type CreateConversationInput struct {
	NovelID *uint  `json:"novel_id"`
	ModelID uint   `json:"model_id" binding:"required"`
	Title   string `json:"title" binding:"max=200"`
}

// CreateConversation godoc
// @Summary Start a chat conversation
// @Tags ai
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response{data=models.Conversation}
// @Router /ai/conversations [post]
func CreateConversation(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var input CreateConversationInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	conversation, err := services.CreateConversation(u.ID, input.NovelID, input.ModelID, input.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to create conversation"))
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Conversation created", conversation))
}

// ListConversations godoc
// @Summary List the current user's conversations
// @Tags ai
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Router /ai/conversations [get]
func ListConversations(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	conversations, total, err := services.FindConversations(u.ID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list conversations"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": conversations, "total": total}))
}

// ListMessages godoc
// @Summary List a conversation's messages in order
// @Tags ai
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /ai/conversations/{id}/messages [get]
func ListMessages(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return
	}

	messages, err := services.FindMessages(uint(id), u.ID)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list messages"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", messages))
}

// DeleteConversation godoc
// @Summary Delete a conversation and its messages
// @Tags ai
// @Security ApiKeyAuth
// @Router /ai/conversations/{id} [delete]
func DeleteConversation(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return
	}

	if err := services.DeleteConversation(uint(id), u.ID); err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to delete conversation"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Conversation deleted", nil))
}

type ChatMessageInput struct {
	Content     string   `json:"content" binding:"required"`
	Temperature *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"top_p" binding:"omitempty,gt=0,lte=1"`
	MaxTokens   *int     `json:"max_tokens" binding:"omitempty,gt=0"`
}

// SendMessage godoc
// @Summary Send a chat message and stream the assistant reply
// @Description Appends the user message and a processing assistant placeholder, then relays the model stream over SSE. The placeholder is finalized exactly once with the outcome.
// @Tags ai
// @Accept json
// @Produce text/event-stream
// @Security ApiKeyAuth
// @Failure 402 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /ai/conversations/{id}/messages [post]
func SendMessage(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return
	}

	var input ChatMessageInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	conversation, err := services.GetConversation(uint(id), u.ID)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load conversation"))
		return
	}

	history, err := services.FindMessages(conversation.ID, u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load history"))
		return
	}

	_, assistantMsg, err := services.AppendMessagePair(conversation.ID, input.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to append message"))
		return
	}

	call := services.CallInput{
		UserID:       u.ID,
		ModelRef:     strconv.FormatUint(uint64(conversation.ModelID), 10),
		BusinessType: services.BusinessTypeChat,
		SystemPrompt: services.BuildSystemPrompt(services.BusinessTypeChat, ""),
		UserPrompt:   input.Content,
		History:      services.HistoryMessages(history),
		Params: gateway.CallParams{
			Temperature: input.Temperature,
			TopP:        input.TopP,
			MaxTokens:   input.MaxTokens,
		},
	}

	start := time.Now()
	started := streamGenerate(c, call, func(completion gateway.Completion) {
		status := models.MessageStatusCompleted
		switch completion.Reason {
		case gateway.ReasonDisconnected:
			status = models.MessageStatusCancelled
		case gateway.ReasonErrored:
			status = models.MessageStatusFailed
		}
		if err := services.FinalizeMessage(assistantMsg.ID, status, completion.Content, completion.Usage, time.Since(start)); err != nil {
			zap.L().Error("failed to finalize assistant message",
				zap.Uint("message_id", assistantMsg.ID),
				zap.String("status", string(status)),
				zap.Error(err))
		}
	})

	// The stream never started, so no completion handler will ever finalize
	// the placeholder. Mark it failed here.
	if !started {
		if err := services.FinalizeMessage(assistantMsg.ID, models.MessageStatusFailed, "", nil, time.Since(start)); err != nil {
			zap.L().Error("failed to fail orphaned assistant message",
				zap.Uint("message_id", assistantMsg.ID),
				zap.Error(err))
		}
	}
}

// CancelStream godoc
// @Summary Cancel a live generation stream
// @Description The stream id is delivered in the "connected" SSE event. Content already produced is still billed.
// @Tags ai
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /ai/streams/{id} [delete]
func CancelStream(c *gin.Context) {
	if !services.CancelStream(c.Param("id")) {
		c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Stream not found"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Stream cancelled", nil))
}

// ListRecords godoc
// @Summary List the current user's AI call records
// @Tags ai
// @Produce json
// @Security ApiKeyAuth
// @Param business_type query string false "Filter by business type"
// @Param status query string false "Filter by call status"
// @Success 200 {object} utils.Response
// @Router /ai/records [get]
func ListRecords(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, total, err := services.FindCallRecords(services.CallRecordFilter{
		UserID:       u.ID,
		BusinessType: c.Query("business_type"),
		Status:       c.Query("status"),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list call records"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": records, "total": total}))
}
