package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CompanySize string

const (
	CompanySizeStartup CompanySize = "startup"
	CompanySizeSmall   CompanySize = "small"
	CompanySizeMedium  CompanySize = "medium"
	CompanySizeLarge   CompanySize = "large"
)

// CompanySizes lists the four allowed size buckets in a stable order.
var CompanySizes = []CompanySize{
	CompanySizeStartup,
	CompanySizeSmall,
	CompanySizeMedium,
	CompanySizeLarge,
}

func IsValidCompanySize(s string) bool {
	for _, size := range CompanySizes {
		if string(size) == s {
			return true
		}
	}
	return false
}

const (
	CompanyDataSourceAI     = "ai_generated"
	CompanyDataSourceManual = "manual"
)

// Company is the canonical company record. Name is the natural dedup key:
// lookups are case-insensitive and must precede creation.
type Company struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name          string         `gorm:"not null;index;column:name" json:"name"`
	Industry      string         `gorm:"not null;column:industry" json:"industry"`
	Description   string         `gorm:"column:description" json:"description"`
	Size          CompanySize    `gorm:"not null;default:'medium';column:size" json:"size"`
	Values        datatypes.JSON `gorm:"type:jsonb;column:values" json:"values"` // map[value key]1-10
	LogoURL       string         `gorm:"column:logo_url" json:"logo_url,omitempty"`
	SiteURL       string         `gorm:"column:site_url" json:"site_url,omitempty"`
	CompanyValues string         `gorm:"column:company_values" json:"company_values,omitempty"`
	DataSource    string         `gorm:"not null;default:'ai_generated';column:data_source" json:"data_source"`
	LastUpdated   time.Time      `gorm:"not null;default:now();column:last_updated" json:"last_updated"`
}

func (Company) TableName() string {
	return "company"
}

func (c *Company) ValueRatings() map[string]int {
	return decodeIntMap(c.Values)
}

func EncodeIntMap(m map[string]int) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}

func EncodeStringMap(m map[string]string) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}

func EncodeStringListMap(m map[string][]string) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}

func EncodeStringList(list []string) datatypes.JSON {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return raw
}
