package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FeedbackInterested    = "interested"
	FeedbackNotInterested = "not_interested"
)

// Recommendation is one user-to-company match. A batch is persisted once per
// profile after streaming completes; Position preserves stream arrival order.
type Recommendation struct {
	ID                      uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ValueProfileID          uuid.UUID      `gorm:"type:uuid;not null;index;column:value_profile_id" json:"value_profile_id"`
	CompanyID               uuid.UUID      `gorm:"type:uuid;not null;column:company_id" json:"-"`
	Company                 *Company       `gorm:"foreignKey:CompanyID;references:ID" json:"company,omitempty"`
	MatchingPoints          datatypes.JSON `gorm:"type:jsonb;column:matching_points" json:"matching_points"`                               // []string, never null when emitted
	ValueMatchRatings       datatypes.JSON `gorm:"type:jsonb;column:value_match_ratings" json:"value_match_ratings,omitempty"`             // map[value key]1-10
	StrengthMatchRatings    datatypes.JSON `gorm:"type:jsonb;column:strength_match_ratings" json:"strength_match_ratings,omitempty"`       // map[strength key]1-10
	ValueMatchingDetails    datatypes.JSON `gorm:"type:jsonb;column:value_matching_details" json:"value_matching_details,omitempty"`       // map[value key]text
	StrengthMatchingDetails datatypes.JSON `gorm:"type:jsonb;column:strength_matching_details" json:"strength_matching_details,omitempty"` // map[strength key]text
	CompanyValues           string         `gorm:"column:company_values" json:"company_values,omitempty"`
	Feedback                string         `gorm:"column:feedback" json:"feedback,omitempty"`
	Position                int            `gorm:"not null;default:0;column:position" json:"-"`
	CreatedAt               time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Recommendation) TableName() string {
	return "recommendation"
}

func (r *Recommendation) MatchingPointList() []string {
	if len(r.MatchingPoints) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(r.MatchingPoints, &out); err != nil {
		return []string{}
	}
	return out
}
