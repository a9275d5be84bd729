package ai_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"novelcraft-backend/internal/api/v1/ai"
	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/models"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/internal/utils"
)

func setupTestDB() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.Migrator().DropTable(
		&models.User{}, &models.ModelConfig{}, &models.Entitlement{},
		&models.Transaction{}, &models.CallRecord{},
		&models.Conversation{}, &models.Message{},
	)
	err = db.AutoMigrate(
		&models.User{}, &models.ModelConfig{}, &models.Entitlement{},
		&models.Transaction{}, &models.CallRecord{},
		&models.Conversation{}, &models.Message{},
	)
	if err != nil {
		panic("failed to migrate database")
	}

	database.DB = db
}

func authAs(user models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", user)
		c.Next()
	}
}

func seedModel() models.ModelConfig {
	cfg := models.ModelConfig{
		Name:          "story-model",
		ProviderKind:  models.ProviderKindOpenAI,
		Endpoint:      "http://unused.invalid",
		APIKey:        "sk-test",
		UpstreamModel: "gpt-test",
		CreditCost:    1,
		IsActive:      true,
		IsDefault:     true,
	}
	database.DB.Create(&cfg)
	return cfg
}

func TestGenerateStreamUnfundedStaysPlainJSON(t *testing.T) {
	setupTestDB()
	gin.SetMode(gin.TestMode)
	seedModel()

	r := gin.New()
	r.POST("/ai/generate", authAs(models.User{ID: 1, Username: "writer"}), ai.Generate)

	body, _ := json.Marshal(map[string]interface{}{
		"business_type": "chapter",
		"user_prompt":   "Write the opening scene.",
		"stream":        true,
	})
	req := httptest.NewRequest(http.MethodPost, "/ai/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// No credits: the response is never upgraded to SSE, the failure is an
	// ordinary JSON error.
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.NotContains(t, w.Body.String(), "event:")

	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusPaymentRequired, resp.Status)
	assert.Contains(t, resp.Message, "insufficient")
}

func TestSendMessageUnfundedFinalizesPlaceholder(t *testing.T) {
	setupTestDB()
	gin.SetMode(gin.TestMode)
	cfg := seedModel()

	conversation, err := services.CreateConversation(1, nil, cfg.ID, "Plot help")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/ai/conversations/:id/messages", authAs(models.User{ID: 1, Username: "writer"}), ai.SendMessage)

	body, _ := json.Marshal(map[string]interface{}{"content": "What happens next?"})
	req := httptest.NewRequest(http.MethodPost, "/ai/conversations/1/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	// The assistant placeholder must not be left in processing when the
	// stream never started.
	messages, err := services.FindMessages(conversation.ID, 1)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, models.MessageStatusFailed, messages[1].Status)
}
