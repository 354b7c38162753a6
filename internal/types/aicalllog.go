package types

import (
	"time"

	"github.com/google/uuid"
)

type AICallLog struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ValueProfileID *uuid.UUID `gorm:"type:uuid;index;column:value_profile_id" json:"value_profile_id,omitempty"`
	CallType       string     `gorm:"column:call_type;not null" json:"call_type"` // company_profile | recommendation_stream
	Model          string     `gorm:"column:model;not null" json:"model"`
	Locale         string     `gorm:"column:locale" json:"locale"`
	Success        bool       `gorm:"column:success;not null" json:"success"`
	Error          string     `gorm:"column:error" json:"error"`
	DurationMS     int64      `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt      time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (AICallLog) TableName() string {
	return "ai_call_log"
}
