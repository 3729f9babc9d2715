package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scan strategies.
const (
	StrategyRegex = "regex"
	StrategyAI    = "ai"
	StrategyFull  = "full"
)

// Scan is one processed invoice image: what Tesseract read, what the rules
// extracted and, when asked, what the language model answered.
type Scan struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UserID      *uint     `gorm:"index" json:"user_id,omitempty"`
	FileName    string    `gorm:"size:255" json:"file_name"`
	ContentType string    `gorm:"size:100" json:"content_type,omitempty"`
	Strategy    string    `gorm:"size:16;not null;default:regex" json:"strategy"`
	RawText     string    `gorm:"type:text" json:"raw"`

	Date        string              `gorm:"size:32" json:"date,omitempty"`
	Amount      string              `gorm:"size:64" json:"amount,omitempty"`
	AmountValue decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"amount_value"`
	Vendor      string              `gorm:"size:255" json:"vendor,omitempty"`
	Concept     string              `gorm:"size:255" json:"concept,omitempty"`
	Confidence  float64             `json:"confidence"`

	AIProvider string `gorm:"size:32" json:"ai_provider,omitempty"`
	AIText     string `gorm:"type:text" json:"ai_text,omitempty"`
	AIError    string `gorm:"type:text" json:"ai_error,omitempty"`
}
