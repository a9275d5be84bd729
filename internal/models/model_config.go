package models

import "time"

// ProviderKind selects the wire format adapter used to talk to the upstream
// AI service. Adding a kind means adding an adapter in internal/gateway.
type ProviderKind string

const (
	ProviderKindOpenAI ProviderKind = "openai"
	ProviderKindGemini ProviderKind = "gemini"
)

// TimeoutClass selects the timeout and retry-backoff profile for a model.
// Extended is meant for reasoning models whose calls legitimately run for
// minutes; it is explicit configuration, never inferred from the model name.
type TimeoutClass string

const (
	TimeoutClassStandard TimeoutClass = "standard"
	TimeoutClassExtended TimeoutClass = "extended"
)

// ModelConfig is one logical AI model the gateway can call. Administered
// through the models API; read-only to the gateway at call time except for
// the usage counters.
type ModelConfig struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name          string       `gorm:"uniqueIndex;not null" json:"name"`
	Description   string       `json:"description"`
	ProviderKind  ProviderKind `gorm:"type:varchar(20);not null;default:'openai'" json:"provider_kind"`
	Endpoint      string       `gorm:"not null" json:"endpoint"`
	APIKey        string       `gorm:"not null" json:"-"`
	UpstreamModel string       `gorm:"not null" json:"upstream_model"`

	MaxTokens   int     `gorm:"default:4096" json:"max_tokens"`
	Temperature float64 `gorm:"default:0.7" json:"temperature"`
	TopP        float64 `gorm:"default:1" json:"top_p"`

	TimeoutSeconds int          `gorm:"default:120" json:"timeout_seconds"`
	TimeoutClass   TimeoutClass `gorm:"type:varchar(20);not null;default:'standard'" json:"timeout_class"`
	RetryCount     int          `gorm:"default:2" json:"retry_count"`
	CreditCost     int64        `gorm:"default:1" json:"credit_cost"`

	IsActive  bool `gorm:"index;default:true" json:"is_active"`
	IsDefault bool `gorm:"default:false" json:"is_default"`
	IsPublic  bool `gorm:"default:true" json:"is_public"`
	Priority  int  `gorm:"default:0" json:"priority"`

	UsageCount int64      `gorm:"default:0" json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
