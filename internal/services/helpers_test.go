package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/repos"
	"github.com/valuematch/valuematch-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// newTestDB opens an in-memory sqlite database with the schema created by
// hand: the Postgres column defaults (uuid_generate_v4, now) do not exist on
// sqlite, so IDs are always assigned in code under test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ddl := []string{
		`CREATE TABLE value_profile (
			id TEXT PRIMARY KEY,
			locale TEXT NOT NULL DEFAULT 'en',
			"values" TEXT,
			strengths TEXT,
			interests TEXT,
			image_values TEXT,
			created_at DATETIME
		)`,
		`CREATE TABLE company (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			industry TEXT NOT NULL,
			description TEXT,
			size TEXT NOT NULL DEFAULT 'medium',
			"values" TEXT,
			logo_url TEXT,
			site_url TEXT,
			company_values TEXT,
			data_source TEXT NOT NULL DEFAULT 'ai_generated',
			last_updated DATETIME
		)`,
		`CREATE TABLE recommendation (
			id TEXT PRIMARY KEY,
			value_profile_id TEXT NOT NULL,
			company_id TEXT NOT NULL,
			matching_points TEXT,
			value_match_ratings TEXT,
			strength_match_ratings TEXT,
			value_matching_details TEXT,
			strength_matching_details TEXT,
			company_values TEXT,
			feedback TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME
		)`,
		`CREATE TABLE ai_call_log (
			id TEXT PRIMARY KEY,
			value_profile_id TEXT,
			call_type TEXT NOT NULL,
			model TEXT NOT NULL,
			locale TEXT,
			success INTEGER NOT NULL,
			error TEXT,
			duration_ms INTEGER,
			created_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func insertProfile(t *testing.T, db *gorm.DB) *types.ValueProfile {
	t.Helper()
	profile := &types.ValueProfile{
		ID:        uuid.New(),
		Locale:    "en",
		Values:    types.EncodeIntMap(map[string]int{"growth": 9, "stability": 4}),
		Strengths: types.EncodeIntMap(map[string]int{"analysis": 8}),
		Interests: types.EncodeStringList([]string{"robotics"}),
	}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	return profile
}

// fakeOpenAI counts calls and delegates to the configured functions.
type fakeOpenAI struct {
	jsonFn      func(system, user, schemaName string) (map[string]any, error)
	streamFn    func(ctx context.Context, system, user string, onDelta func(string)) (string, error)
	jsonCalls   int
	streamCalls int
}

func (f *fakeOpenAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.jsonCalls++
	if f.jsonFn == nil {
		return nil, errors.New("no jsonFn configured")
	}
	return f.jsonFn(system, user, schemaName)
}

func (f *fakeOpenAI) StreamText(ctx context.Context, system, user string, onDelta func(delta string)) (string, error) {
	f.streamCalls++
	if f.streamFn == nil {
		return "", errors.New("no streamFn configured")
	}
	return f.streamFn(ctx, system, user, onDelta)
}

func (f *fakeOpenAI) Model() string { return "test-model" }

// fakeLogo avoids network probes entirely.
type fakeLogo struct{}

func (fakeLogo) ResolveLogoURL(ctx context.Context, name string, siteURL string) string {
	return "https://cdn.test/logo/" + domainSlug(name) + ".png"
}

// fakeResolver stands in for the company resolver during orchestration tests.
type fakeResolver struct {
	companies map[uuid.UUID]*types.Company
	byName    map[string]*types.Company
	failNames map[string]bool
	calls     int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		companies: map[uuid.UUID]*types.Company{},
		byName:    map[string]*types.Company{},
		failNames: map[string]bool{},
	}
}

func (f *fakeResolver) add(company *types.Company) {
	f.companies[company.ID] = company
	f.byName[strings.ToLower(company.Name)] = company
}

func (f *fakeResolver) ResolveByName(ctx context.Context, name, industry, locale string) (*types.Company, error) {
	f.calls++
	if f.failNames[name] {
		return nil, ErrCompanyGeneration
	}
	if existing, ok := f.byName[strings.ToLower(name)]; ok {
		return existing, nil
	}
	company := &types.Company{
		ID:       uuid.New(),
		Name:     name,
		Industry: industry,
		Size:     types.CompanySizeMedium,
	}
	f.add(company)
	return company, nil
}

func (f *fakeResolver) GetByID(ctx context.Context, id uuid.UUID) (*types.Company, error) {
	if company, ok := f.companies[id]; ok {
		return company, nil
	}
	return nil, repos.ErrNotFound
}
