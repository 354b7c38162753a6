package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/valuematch/valuematch-backend/internal/llmstream"
	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/repos"
	"github.com/valuematch/valuematch-backend/internal/types"
	"github.com/valuematch/valuematch-backend/internal/utils"
)

// GenerationConfig captures the knobs of a recommendation run: how many
// companies to produce, the in-band stream markers, the rating dimensions and
// size buckets the prompt enumerates, and the pacing of cached replays.
type GenerationConfig struct {
	TargetCount     int
	Separator       string
	Sentinel        string
	ValueKeys       []string
	SizeBuckets     []types.CompanySize
	ReplayItemDelay time.Duration
}

func DefaultGenerationConfig(log *logger.Logger) GenerationConfig {
	return GenerationConfig{
		TargetCount:     utils.GetEnvAsInt("RECOMMENDATION_TARGET_COUNT", 5, log),
		Separator:       llmstream.DefaultSeparator,
		Sentinel:        llmstream.DefaultSentinel,
		ValueKeys:       DefaultValueKeys,
		SizeBuckets:     types.CompanySizes,
		ReplayItemDelay: time.Duration(utils.GetEnvAsInt("REPLAY_ITEM_DELAY_MS", 150, log)) * time.Millisecond,
	}
}

// EmitFunc delivers one finished recommendation to the transport while the
// run is still in flight. An error means the client is gone.
type EmitFunc func(rec *types.Recommendation) error

// RecommendationService orchestrates a full run: cached replay when a batch
// already exists, otherwise a streamed generation that resolves companies
// one by one in arrival order and persists the batch once at the end.
type RecommendationService interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*types.ValueProfile, error)
	Stream(ctx context.Context, profile *types.ValueProfile, locale string, refresh bool, emit EmitFunc) error
	SetFeedback(ctx context.Context, id uuid.UUID, feedback string) error
}

type recommendationService struct {
	db       *gorm.DB
	log      *logger.Logger
	profiles repos.ValueProfileRepo
	recs     repos.RecommendationRepo
	aiLogs   repos.AICallLogRepo
	resolver CompanyResolver
	openai   OpenAIClient
	prompts  *PromptBuilder
	cfg      GenerationConfig

	// Bounds concurrent generation runs; replays are not limited.
	runs *semaphore.Weighted
}

func NewRecommendationService(
	db *gorm.DB,
	log *logger.Logger,
	profiles repos.ValueProfileRepo,
	recs repos.RecommendationRepo,
	aiLogs repos.AICallLogRepo,
	resolver CompanyResolver,
	openai OpenAIClient,
	prompts *PromptBuilder,
	cfg GenerationConfig,
) RecommendationService {
	serviceLog := log.With("service", "RecommendationService")
	maxRuns := utils.GetEnvAsInt("MAX_CONCURRENT_GENERATIONS", 4, serviceLog)
	if maxRuns < 1 {
		maxRuns = 1
	}
	if cfg.TargetCount < 1 {
		cfg.TargetCount = 5
	}
	if cfg.Separator == "" {
		cfg.Separator = llmstream.DefaultSeparator
	}
	if cfg.Sentinel == "" {
		cfg.Sentinel = llmstream.DefaultSentinel
	}
	if len(cfg.ValueKeys) == 0 {
		cfg.ValueKeys = DefaultValueKeys
	}
	if len(cfg.SizeBuckets) == 0 {
		cfg.SizeBuckets = types.CompanySizes
	}
	return &recommendationService{
		db:       db,
		log:      serviceLog,
		profiles: profiles,
		recs:     recs,
		aiLogs:   aiLogs,
		resolver: resolver,
		openai:   openai,
		prompts:  prompts,
		cfg:      cfg,
		runs:     semaphore.NewWeighted(int64(maxRuns)),
	}
}

func (rs *recommendationService) GetProfile(ctx context.Context, id uuid.UUID) (*types.ValueProfile, error) {
	profile, err := rs.profiles.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (rs *recommendationService) Stream(ctx context.Context, profile *types.ValueProfile, locale string, refresh bool, emit EmitFunc) error {
	if !refresh {
		count, err := rs.recs.CountByProfileID(ctx, nil, profile.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return rs.replay(ctx, profile.ID, emit)
		}
	}
	return rs.generate(ctx, profile, locale, emit)
}

// replay re-emits a persisted batch in stored Position order, re-reading each
// company so logo backfills and profile refreshes are reflected.
func (rs *recommendationService) replay(ctx context.Context, profileID uuid.UUID, emit EmitFunc) error {
	stored, err := rs.recs.GetByProfileID(ctx, nil, profileID)
	if err != nil {
		return err
	}

	for i, rec := range stored {
		if i > 0 && rs.cfg.ReplayItemDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rs.cfg.ReplayItemDelay):
			}
		}

		company, err := rs.resolver.GetByID(ctx, rec.CompanyID)
		if err != nil {
			rs.log.Warn("Skipping replayed recommendation with missing company", "recommendation_id", rec.ID, "company_id", rec.CompanyID, "error", err)
			continue
		}
		rec.Company = company

		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func (rs *recommendationService) generate(ctx context.Context, profile *types.ValueProfile, locale string, emit EmitFunc) error {
	if !rs.runs.TryAcquire(1) {
		return ErrTooManyGenerations
	}
	defer rs.runs.Release(1)

	locale = rs.prompts.NormalizeLocale(locale)
	system := rs.prompts.RecommendationSystemPrompt(locale, rs.cfg)
	user := rs.prompts.RecommendationUserPrompt(locale, profile)
	parser := llmstream.NewParser(rs.cfg.Separator, rs.cfg.Sentinel, rs.log)

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	var (
		collected []*types.Recommendation
		emitErr   error
	)
	consume := func(payload string) {
		if emitErr != nil || len(collected) >= rs.cfg.TargetCount {
			return
		}
		rec := rs.buildRecommendation(ctx, profile, locale, payload, len(collected))
		if rec == nil {
			return
		}
		collected = append(collected, rec)
		if err := emit(rec); err != nil {
			emitErr = err
			cancelStream()
			return
		}
		if len(collected) >= rs.cfg.TargetCount {
			cancelStream()
		}
	}

	start := time.Now()
	_, streamErr := rs.openai.StreamText(streamCtx, system, user, func(delta string) {
		for _, payload := range parser.Feed(delta) {
			consume(payload)
		}
	})
	rs.logRunAICall(ctx, profile.ID, locale, time.Since(start), streamErr, len(collected))

	// Cancellation after the target was hit or the client left is the normal
	// exit path, not a failure.
	deliberateStop := len(collected) >= rs.cfg.TargetCount || emitErr != nil
	if streamErr != nil && !(deliberateStop && errors.Is(streamErr, context.Canceled)) {
		if len(collected) == 0 {
			return fmt.Errorf("%w: %v", ErrStreamOpen, streamErr)
		}
		rs.log.Warn("Stream ended early; keeping delivered recommendations", "profile_id", profile.ID, "delivered", len(collected), "error", streamErr)
	}

	if streamErr == nil {
		for _, payload := range parser.Flush() {
			consume(payload)
		}
	}

	if len(collected) > 0 {
		err := rs.db.Transaction(func(tx *gorm.DB) error {
			if err := rs.recs.DeleteByProfileID(ctx, tx, profile.ID); err != nil {
				return err
			}
			_, err := rs.recs.CreateBatch(ctx, tx, collected)
			return err
		})
		if err != nil {
			// Items were already delivered over the wire; the run is a success
			// without a cache.
			rs.log.Error("Recommendation batch persist failed", "profile_id", profile.ID, "count", len(collected), "error", err)
		}
	}

	if emitErr != nil {
		return emitErr
	}
	return nil
}

// draftItem is the shape a streamed payload is decoded into before company
// resolution. Rating maps stay loosely typed until coercion.
type draftItem struct {
	Name                    string            `json:"name"`
	Industry                string            `json:"industry"`
	MatchingPoints          []string          `json:"matching_points"`
	ValueMatchRatings       map[string]any    `json:"value_match_ratings"`
	StrengthMatchRatings    map[string]any    `json:"strength_match_ratings"`
	ValueMatchingDetails    map[string]string `json:"value_matching_details"`
	StrengthMatchingDetails map[string]string `json:"strength_matching_details"`
	CompanyValues           string            `json:"company_values"`
}

// buildRecommendation resolves the company and assembles the record. Any
// failure drops this one item and returns nil; the run continues.
func (rs *recommendationService) buildRecommendation(ctx context.Context, profile *types.ValueProfile, locale string, payload string, position int) *types.Recommendation {
	var draft draftItem
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		rs.log.Warn("Dropping undecodable recommendation payload", "profile_id", profile.ID, "error", err)
		return nil
	}

	company, err := rs.resolver.ResolveByName(ctx, draft.Name, draft.Industry, locale)
	if err != nil {
		rs.log.Warn("Dropping recommendation; company resolution failed", "profile_id", profile.ID, "company", draft.Name, "error", err)
		return nil
	}

	if draft.MatchingPoints == nil {
		draft.MatchingPoints = []string{}
	}

	rec := &types.Recommendation{
		ID:             uuid.New(),
		ValueProfileID: profile.ID,
		CompanyID:      company.ID,
		Company:        company,
		MatchingPoints: types.EncodeStringList(draft.MatchingPoints),
		CompanyValues:  draft.CompanyValues,
		Position:       position,
		CreatedAt:      time.Now().UTC(),
	}
	if ratings := coerceRatings(draft.ValueMatchRatings, nil); len(ratings) > 0 {
		rec.ValueMatchRatings = types.EncodeIntMap(ratings)
	}
	if ratings := coerceRatings(draft.StrengthMatchRatings, nil); len(ratings) > 0 {
		rec.StrengthMatchRatings = types.EncodeIntMap(ratings)
	}
	if len(draft.ValueMatchingDetails) > 0 {
		rec.ValueMatchingDetails = types.EncodeStringMap(draft.ValueMatchingDetails)
	}
	if len(draft.StrengthMatchingDetails) > 0 {
		rec.StrengthMatchingDetails = types.EncodeStringMap(draft.StrengthMatchingDetails)
	}
	return rec
}

func (rs *recommendationService) SetFeedback(ctx context.Context, id uuid.UUID, feedback string) error {
	if feedback != types.FeedbackInterested && feedback != types.FeedbackNotInterested {
		return fmt.Errorf("invalid feedback value %q", feedback)
	}
	return rs.recs.UpdateFeedback(ctx, nil, id, feedback)
}

func (rs *recommendationService) logRunAICall(ctx context.Context, profileID uuid.UUID, locale string, elapsed time.Duration, callErr error, delivered int) {
	if rs.aiLogs == nil {
		return
	}
	entry := &types.AICallLog{
		ID:             uuid.New(),
		ValueProfileID: &profileID,
		CallType:       "recommendation_stream",
		Model:          rs.openai.Model(),
		Locale:         locale,
		Success:        callErr == nil || delivered > 0,
		DurationMS:     elapsed.Milliseconds(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if _, err := rs.aiLogs.Create(ctx, nil, []*types.AICallLog{entry}); err != nil {
		rs.log.Warn("AI call log insert failed (ignored)", "error", err)
	}
}
