package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/valuematch/valuematch-backend/internal/llmstream"
	"github.com/valuematch/valuematch-backend/internal/types"
)

func TestNormalizeLocale(t *testing.T) {
	pb := NewPromptBuilder(testLogger(t))

	cases := map[string]string{
		"en":    "en",
		"EN-us": "en",
		"ja":    "ja",
		"ja_JP": "ja",
		"fr":    "en",
		"":      "en",
		"  JA ": "ja",
	}
	for in, want := range cases {
		if got := pb.NormalizeLocale(in); got != want {
			t.Errorf("NormalizeLocale(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestRecommendationSystemPromptIncludesProtocol(t *testing.T) {
	pb := NewPromptBuilder(testLogger(t))
	cfg := GenerationConfig{
		TargetCount: 5,
		Separator:   llmstream.DefaultSeparator,
		Sentinel:    llmstream.DefaultSentinel,
		ValueKeys:   DefaultValueKeys,
		SizeBuckets: types.CompanySizes,
	}

	prompt := pb.RecommendationSystemPrompt("en", cfg)
	for _, want := range []string{llmstream.DefaultSeparator, llmstream.DefaultSentinel, "5", "startup", "growth"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	jaPrompt := pb.RecommendationSystemPrompt("ja", cfg)
	if !strings.Contains(jaPrompt, llmstream.DefaultSeparator) {
		t.Error("ja prompt missing separator")
	}
	if jaPrompt == prompt {
		t.Error("ja prompt should differ from en prompt")
	}
}

func TestRecommendationUserPromptEmbedsProfile(t *testing.T) {
	pb := NewPromptBuilder(testLogger(t))
	profile := &types.ValueProfile{
		ID:          uuid.New(),
		Locale:      "en",
		Values:      types.EncodeIntMap(map[string]int{"growth": 9, "autonomy": 3}),
		Interests:   types.EncodeStringList([]string{"robotics", "energy"}),
		ImageValues: types.EncodeStringListMap(map[string][]string{"workstyle": {"remote"}}),
	}

	prompt := pb.RecommendationUserPrompt("ja", profile)
	for _, want := range []string{"growth: 9/10", "autonomy: 3/10", "robotics, energy", "workstyle: remote", "locale: ja"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("user prompt missing %q\n%s", want, prompt)
		}
	}
	// Score lines come out key-sorted.
	if strings.Index(prompt, "autonomy") > strings.Index(prompt, "growth") {
		t.Error("score lines not sorted")
	}
}

func TestPromptOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	override := "en:\n  company_profile_system: custom research prompt\n"
	if err := os.WriteFile(path, []byte(override), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}
	t.Setenv("PROMPTS_CONFIG_PATH", path)

	pb := NewPromptBuilder(testLogger(t))
	if got := pb.CompanyProfileSystemPrompt("en"); got != "custom research prompt" {
		t.Fatalf("override not applied, got %q", got)
	}
	// Untouched entries keep the built-in text.
	if got := pb.RecommendationSystemPrompt("en", GenerationConfig{TargetCount: 1}); !strings.Contains(got, "career-matching") {
		t.Fatalf("built-in recommendation prompt lost: %q", got)
	}
}
