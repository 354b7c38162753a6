package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/types"
)

const DefaultLocale = "en"

var supportedLocales = map[string]bool{
	"en": true,
	"ja": true,
}

// PromptSet holds the per-locale system prompt templates. Templates may be
// overridden from a YAML file keyed by locale.
type PromptSet struct {
	RecommendationSystem string `yaml:"recommendation_system"`
	CompanyProfileSystem string `yaml:"company_profile_system"`
}

type PromptBuilder struct {
	log     *logger.Logger
	locales map[string]PromptSet
}

func NewPromptBuilder(log *logger.Logger) *PromptBuilder {
	serviceLog := log.With("service", "PromptBuilder")

	locales := map[string]PromptSet{
		"en": {
			RecommendationSystem: recommendationSystemEN,
			CompanyProfileSystem: companyProfileSystemEN,
		},
		"ja": {
			RecommendationSystem: recommendationSystemJA,
			CompanyProfileSystem: companyProfileSystemJA,
		},
	}

	if path := strings.TrimSpace(os.Getenv("PROMPTS_CONFIG_PATH")); path != "" {
		serviceLog.Info("Loading prompt overrides...", "path", path)
		raw, err := os.ReadFile(path)
		if err != nil {
			serviceLog.Warn("Could not read prompt overrides; using built-ins", "error", err)
		} else {
			var overrides map[string]PromptSet
			if err := yaml.Unmarshal(raw, &overrides); err != nil {
				serviceLog.Warn("Could not parse prompt overrides; using built-ins", "error", err)
			} else {
				for locale, set := range overrides {
					base := locales[locale]
					if strings.TrimSpace(set.RecommendationSystem) != "" {
						base.RecommendationSystem = set.RecommendationSystem
					}
					if strings.TrimSpace(set.CompanyProfileSystem) != "" {
						base.CompanyProfileSystem = set.CompanyProfileSystem
					}
					locales[locale] = base
				}
			}
		}
	}

	return &PromptBuilder{log: serviceLog, locales: locales}
}

// NormalizeLocale collapses unknown or empty locales to the default.
func (pb *PromptBuilder) NormalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if idx := strings.IndexAny(locale, "-_"); idx > 0 {
		locale = locale[:idx]
	}
	if supportedLocales[locale] {
		return locale
	}
	return DefaultLocale
}

func (pb *PromptBuilder) set(locale string) PromptSet {
	if s, ok := pb.locales[pb.NormalizeLocale(locale)]; ok {
		return s
	}
	return pb.locales[DefaultLocale]
}

// RecommendationSystemPrompt renders the streaming protocol instructions:
// one JSON object per company, separator between items, sentinel at the end.
func (pb *PromptBuilder) RecommendationSystemPrompt(locale string, cfg GenerationConfig) string {
	return fmt.Sprintf(pb.set(locale).RecommendationSystem,
		cfg.TargetCount,
		strings.Join(sizeBucketStrings(cfg.SizeBuckets), ", "),
		strings.Join(cfg.ValueKeys, ", "),
		cfg.Separator,
		cfg.Sentinel,
	)
}

// RecommendationUserPrompt embeds the profile data as structured text.
func (pb *PromptBuilder) RecommendationUserPrompt(locale string, profile *types.ValueProfile) string {
	var b strings.Builder

	b.WriteString("User value profile:\n")
	writeScoreLines(&b, "Values", profile.ValueScores())
	writeScoreLines(&b, "Strengths", profile.StrengthScores())

	if interests := profile.InterestList(); len(interests) > 0 {
		b.WriteString("Interests: ")
		b.WriteString(strings.Join(interests, ", "))
		b.WriteString("\n")
	}

	if imageValues := profile.ImageValueSelections(); len(imageValues) > 0 {
		b.WriteString("Values selected from images:\n")
		categories := make([]string, 0, len(imageValues))
		for category := range imageValues {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			b.WriteString(fmt.Sprintf("- %s: %s\n", category, strings.Join(imageValues[category], ", ")))
		}
	}

	b.WriteString(fmt.Sprintf("Respond in locale: %s\n", pb.NormalizeLocale(locale)))
	return b.String()
}

func (pb *PromptBuilder) CompanyProfileSystemPrompt(locale string) string {
	return pb.set(locale).CompanyProfileSystem
}

func (pb *PromptBuilder) CompanyProfileUserPrompt(locale string, name string, industry string) string {
	if strings.TrimSpace(industry) == "" {
		industry = "unknown"
	}
	return fmt.Sprintf("Company name: %s\nIndustry hint: %s\nLocale: %s\n", name, industry, pb.NormalizeLocale(locale))
}

func writeScoreLines(b *strings.Builder, label string, scores map[string]int) {
	if len(scores) == 0 {
		return
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString(label + ":\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("- %s: %d/10\n", k, scores[k]))
	}
}

func sizeBucketStrings(buckets []types.CompanySize) []string {
	out := make([]string, len(buckets))
	for i, bucket := range buckets {
		out[i] = string(bucket)
	}
	return out
}

const recommendationSystemEN = `You are a career-matching assistant. Recommend exactly %d real companies that fit the user's value profile.

Rules:
- Output one JSON object per company, nothing else. No markdown, no code fences, no commentary.
- Include at least one company from each size bucket: %s.
- Avoid recommending two companies from the same industry.
- Each object must have: "name", "industry", "matching_points" (3-5 short strings), "value_match_ratings" (object mapping each of %s to an integer 1-10), "strength_match_ratings" (optional, same shape), "value_matching_details" (optional, object mapping value keys to short explanations), "strength_matching_details" (optional), "company_values" (optional short narrative).
- After every company object output the marker %s on its own.
- After the final company output the marker %s and stop.`

const recommendationSystemJA = `あなたはキャリアマッチングアシスタントです。ユーザーの価値観プロフィールに合う実在の企業をちょうど%d社推薦してください。

ルール:
- 企業ごとにJSONオブジェクトを1つだけ出力してください。マークダウンやコードフェンス、コメントは出力しないでください。
- 各規模カテゴリ（%s）から少なくとも1社を含めてください。
- 同じ業界の企業を2社以上推薦しないでください。
- 各オブジェクトには次のフィールドが必要です: "name"、"industry"、"matching_points"（3〜5個の短い文字列）、"value_match_ratings"（%s の各キーを1〜10の整数に対応させるオブジェクト）、"strength_match_ratings"（任意）、"value_matching_details"（任意）、"strength_matching_details"（任意）、"company_values"（任意の短い説明文）。
- 各企業オブジェクトの後に必ずマーカー %s を単独で出力してください。
- 最後の企業の後にマーカー %s を出力して終了してください。`

const companyProfileSystemEN = `You are a company research assistant. Produce a strict JSON profile of the requested company. All rating values are integers from 1 to 10. Pick the size bucket that best matches the company's real headcount. If you are unsure about the site URL or headquarters, set the field to null.`

const companyProfileSystemJA = `あなたは企業リサーチアシスタントです。指定された企業の厳密なJSONプロフィールを作成してください。すべての評価値は1から10の整数です。企業の実際の従業員数に最も近い規模カテゴリを選んでください。サイトURLや本社所在地が不明な場合は、そのフィールドをnullにしてください。`
