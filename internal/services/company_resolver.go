package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	redisclient "github.com/valuematch/valuematch-backend/internal/clients/redis"
	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/repos"
	"github.com/valuematch/valuematch-backend/internal/types"
)

// DefaultValueKeys are the fixed semantic rating dimensions every company
// profile carries.
var DefaultValueKeys = []string{
	"growth",
	"stability",
	"innovation",
	"social_impact",
	"work_life_balance",
	"teamwork",
	"autonomy",
	"compensation",
}

// CompanyResolver maps a (name, industry, locale) triple to a durable
// company record, creating it on demand. Lookup by case-insensitive name
// always precedes creation; a hit never touches the LLM.
type CompanyResolver interface {
	ResolveByName(ctx context.Context, name string, industry string, locale string) (*types.Company, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Company, error)
}

type companyResolver struct {
	db          *gorm.DB
	log         *logger.Logger
	companyRepo repos.CompanyRepo
	aiLogRepo   repos.AICallLogRepo
	openai      OpenAIClient
	logos       LogoService
	prompts     *PromptBuilder
	cache       redisclient.CompanyCache

	valueKeys []string
}

func NewCompanyResolver(
	db *gorm.DB,
	log *logger.Logger,
	companyRepo repos.CompanyRepo,
	aiLogRepo repos.AICallLogRepo,
	openai OpenAIClient,
	logos LogoService,
	prompts *PromptBuilder,
	cache redisclient.CompanyCache,
	valueKeys []string,
) CompanyResolver {
	if len(valueKeys) == 0 {
		valueKeys = DefaultValueKeys
	}
	return &companyResolver{
		db:          db,
		log:         log.With("service", "CompanyResolver"),
		companyRepo: companyRepo,
		aiLogRepo:   aiLogRepo,
		openai:      openai,
		logos:       logos,
		prompts:     prompts,
		cache:       cache,
		valueKeys:   valueKeys,
	}
}

func (cr *companyResolver) GetByID(ctx context.Context, id uuid.UUID) (*types.Company, error) {
	return cr.companyRepo.GetByID(ctx, nil, id)
}

func (cr *companyResolver) ResolveByName(ctx context.Context, name string, industry string, locale string) (*types.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty company name", ErrCompanyGeneration)
	}

	if cr.cache != nil {
		if id, ok := cr.cache.GetID(ctx, name); ok {
			if existing, err := cr.companyRepo.GetByID(ctx, nil, id); err == nil {
				return existing, nil
			}
		}
	}

	existing, err := cr.companyRepo.GetByName(ctx, nil, name)
	if err == nil {
		cr.fillCache(ctx, existing)
		cr.backfillLogo(ctx, existing)
		return existing, nil
	}
	if !errors.Is(err, repos.ErrNotFound) {
		return nil, err
	}

	// First encounter: generate a profile. Note the read-then-write pattern
	// here has no lock; concurrent first encounters of the same name across
	// runs can create duplicates (cleaned up out of band).
	company, err := cr.generate(ctx, name, industry, locale)
	if err != nil {
		return nil, err
	}

	if _, err := cr.companyRepo.Create(ctx, nil, []*types.Company{company}); err != nil {
		return nil, err
	}
	cr.fillCache(ctx, company)
	return company, nil
}

func (cr *companyResolver) generate(ctx context.Context, name string, industry string, locale string) (*types.Company, error) {
	system := cr.prompts.CompanyProfileSystemPrompt(locale)
	user := cr.prompts.CompanyProfileUserPrompt(locale, name, industry)

	start := time.Now()
	obj, err := cr.openai.GenerateJSON(ctx, system, user, "company_profile", cr.profileSchema())
	cr.logAICall(ctx, locale, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompanyGeneration, err)
	}

	generatedName := stringField(obj, "name")
	if generatedName == "" {
		generatedName = name
	}
	generatedIndustry := stringField(obj, "industry")
	if generatedIndustry == "" {
		generatedIndustry = industry
	}
	if strings.TrimSpace(generatedIndustry) == "" {
		return nil, fmt.Errorf("%w: profile missing industry", ErrCompanyGeneration)
	}

	size := stringField(obj, "size")
	if !types.IsValidCompanySize(size) {
		size = string(types.CompanySizeMedium)
	}

	values := coerceRatings(obj["values"], cr.valueKeys)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: profile missing values ratings", ErrCompanyGeneration)
	}

	siteURL := stringField(obj, "site_url")
	logoURL := cr.logos.ResolveLogoURL(ctx, generatedName, siteURL)

	return &types.Company{
		ID:            uuid.New(),
		Name:          generatedName,
		Industry:      generatedIndustry,
		Description:   stringField(obj, "description"),
		Size:          types.CompanySize(size),
		Values:        types.EncodeIntMap(values),
		LogoURL:       logoURL,
		SiteURL:       siteURL,
		CompanyValues: stringField(obj, "company_values"),
		DataSource:    types.CompanyDataSourceAI,
		LastUpdated:   time.Now().UTC(),
	}, nil
}

// backfillLogo fills logos for records created before logo resolution
// existed. Best effort, never fails the lookup.
func (cr *companyResolver) backfillLogo(ctx context.Context, company *types.Company) {
	if company.LogoURL != "" {
		return
	}
	logoURL := cr.logos.ResolveLogoURL(ctx, company.Name, company.SiteURL)
	if logoURL == "" {
		return
	}
	if err := cr.companyRepo.UpdateLogoURL(ctx, nil, company.ID, logoURL); err != nil {
		cr.log.Warn("Logo backfill failed (ignored)", "company", company.Name, "error", err)
		return
	}
	company.LogoURL = logoURL
}

func (cr *companyResolver) fillCache(ctx context.Context, company *types.Company) {
	if cr.cache == nil || company == nil {
		return
	}
	cr.cache.SetID(ctx, company.Name, company.ID)
}

func (cr *companyResolver) logAICall(ctx context.Context, locale string, elapsed time.Duration, callErr error) {
	if cr.aiLogRepo == nil {
		return
	}
	entry := &types.AICallLog{
		ID:         uuid.New(),
		CallType:   "company_profile",
		Model:      cr.openai.Model(),
		Locale:     cr.prompts.NormalizeLocale(locale),
		Success:    callErr == nil,
		DurationMS: elapsed.Milliseconds(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if _, err := cr.aiLogRepo.Create(ctx, nil, []*types.AICallLog{entry}); err != nil {
		cr.log.Warn("AI call log insert failed (ignored)", "error", err)
	}
}

func (cr *companyResolver) profileSchema() map[string]any {
	valueProps := make(map[string]any, len(cr.valueKeys))
	for _, key := range cr.valueKeys {
		valueProps[key] = map[string]any{"type": "integer", "minimum": 1, "maximum": 10}
	}
	sizes := make([]string, len(types.CompanySizes))
	for i, s := range types.CompanySizes {
		sizes[i] = string(s)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":           map[string]any{"type": "string"},
			"industry":       map[string]any{"type": "string"},
			"description":    map[string]any{"type": "string"},
			"company_values": map[string]any{"type": "string"},
			"size":           map[string]any{"type": "string", "enum": sizes},
			"values": map[string]any{
				"type":                 "object",
				"properties":           valueProps,
				"required":             cr.valueKeys,
				"additionalProperties": false,
			},
			// Strict structured outputs require every property to appear in
			// "required"; optionality is expressed through a nullable type.
			"headquarters": map[string]any{"type": []string{"string", "null"}},
			"site_url":     map[string]any{"type": []string{"string", "null"}},
		},
		"required":             []string{"name", "industry", "description", "company_values", "size", "values", "headquarters", "site_url"},
		"additionalProperties": false,
	}
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	if s, ok := obj[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// coerceRatings normalizes a model-supplied ratings object into ints,
// tolerating string-typed numbers. Out-of-range and junk entries are
// dropped; unknown keys are kept only when allowedKeys is empty.
func coerceRatings(raw any, allowedKeys []string) map[string]int {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}

	allowed := make(map[string]bool, len(allowedKeys))
	for _, k := range allowedKeys {
		allowed[k] = true
	}

	out := make(map[string]int, len(obj))
	for key, value := range obj {
		if len(allowed) > 0 && !allowed[key] {
			continue
		}
		rating, ok := coerceInt(value)
		if !ok || rating < 1 || rating > 10 {
			continue
		}
		out[key] = rating
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func coerceInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
