package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ValueProfile is one completed questionnaire submission. It is written once
// by the questionnaire flow and read-only input to recommendation generation.
type ValueProfile struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Locale      string         `gorm:"not null;default:'en';column:locale" json:"locale"`
	Values      datatypes.JSON `gorm:"type:jsonb;column:values" json:"values"`                       // map[value key]1-10
	Strengths   datatypes.JSON `gorm:"type:jsonb;column:strengths" json:"strengths,omitempty"`       // map[strength key]1-10
	Interests   datatypes.JSON `gorm:"type:jsonb;column:interests" json:"interests,omitempty"`       // []string
	ImageValues datatypes.JSON `gorm:"type:jsonb;column:image_values" json:"image_values,omitempty"` // map[category][]value name
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ValueProfile) TableName() string {
	return "value_profile"
}

func (p *ValueProfile) ValueScores() map[string]int {
	return decodeIntMap(p.Values)
}

func (p *ValueProfile) StrengthScores() map[string]int {
	return decodeIntMap(p.Strengths)
}

func (p *ValueProfile) InterestList() []string {
	if len(p.Interests) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(p.Interests, &out); err != nil {
		return nil
	}
	return out
}

func (p *ValueProfile) ImageValueSelections() map[string][]string {
	if len(p.ImageValues) == 0 {
		return nil
	}
	var out map[string][]string
	if err := json.Unmarshal(p.ImageValues, &out); err != nil {
		return nil
	}
	return out
}

func decodeIntMap(raw datatypes.JSON) map[string]int {
	if len(raw) == 0 {
		return nil
	}
	var numeric map[string]float64
	if err := json.Unmarshal(raw, &numeric); err != nil {
		return nil
	}
	out := make(map[string]int, len(numeric))
	for k, v := range numeric {
		out[k] = int(v)
	}
	return out
}
