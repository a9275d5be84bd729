package model_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"novelcraft-backend/internal/api/v1/model"
	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/models"
)

func setupTestDB() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.Migrator().DropTable(&models.ModelConfig{})
	if err := db.AutoMigrate(&models.ModelConfig{}); err != nil {
		panic("failed to migrate database")
	}

	database.DB = db
}

func TestListModelsCatalog(t *testing.T) {
	setupTestDB()
	gin.SetMode(gin.TestMode)

	configs := []models.ModelConfig{
		{Name: "gpt-main", ProviderKind: models.ProviderKindOpenAI, Endpoint: "https://api.example.com/v1", APIKey: "sk-secret", UpstreamModel: "gpt-4o", IsActive: true, IsPublic: true, IsDefault: true, CreditCost: 2},
		{Name: "gemini-flash", ProviderKind: models.ProviderKindGemini, Endpoint: "https://gemini.example.com/v1beta", APIKey: "g-secret", UpstreamModel: "gemini-1.5-flash", IsActive: true, IsPublic: true},
		{Name: "internal-only", ProviderKind: models.ProviderKindOpenAI, Endpoint: "https://api.example.com/v1", APIKey: "sk-secret", UpstreamModel: "gpt-4o-mini", IsActive: true, IsPublic: false},
		{Name: "retired", ProviderKind: models.ProviderKindOpenAI, Endpoint: "https://api.example.com/v1", APIKey: "sk-secret", UpstreamModel: "gpt-3.5", IsActive: false, IsPublic: true},
	}
	assert.NoError(t, database.DB.Create(&configs).Error)

	r := gin.New()
	r.GET("/models", model.ListModels)

	req, _ := http.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status int `json:"status"`
		Data   struct {
			Items []model.PublicModel `json:"items"`
			Total int64               `json:"total"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, int64(2), resp.Data.Total)

	names := make([]string, 0, len(resp.Data.Items))
	for _, m := range resp.Data.Items {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"gpt-main", "gemini-flash"}, names)

	// Credentials and endpoints never leave the server.
	assert.NotContains(t, w.Body.String(), "sk-secret")
	assert.NotContains(t, w.Body.String(), "api.example.com")
}
