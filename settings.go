package attestor

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/controller"
	"github.com/poiesic/attestor/ingestion"
	"github.com/poiesic/attestor/planner"
	"github.com/poiesic/attestor/search"
	"github.com/poiesic/attestor/verify"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings indicates a settings file failed validation.
var ErrInvalidSettings = errors.New("invalid settings")

// Planner modes.
const (
	PlannerHeuristic = "heuristic"
	PlannerModel     = "model"
)

// Settings are the tunables of an Engine, loadable from YAML.
type Settings struct {
	AI           AISettings           `yaml:"ai"`
	Embedding    EmbeddingSettings    `yaml:"embedding"`
	Retrieval    RetrievalSettings    `yaml:"retrieval"`
	Verification VerificationSettings `yaml:"verification"`
	Controller   ControllerSettings   `yaml:"controller"`
}

// AISettings select the model services.
type AISettings struct {
	EmbeddingHost  string        `yaml:"embedding_host"`
	ChatHost       string        `yaml:"chat_host"`
	EmbeddingModel string        `yaml:"embedding_model"`
	ChatModel      string        `yaml:"chat_model"`
	Token          string        `yaml:"token"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Planner        string        `yaml:"planner"` // heuristic or model
	PlannerTimeout time.Duration `yaml:"planner_timeout"`
}

// EmbeddingSettings tune the background embedding worker.
type EmbeddingSettings struct {
	BatchSize         int           `yaml:"batch_size"`
	PoolSize          int           `yaml:"pool_size"` // 0 picks a size from the CPU count
	ScanInterval      time.Duration `yaml:"scan_interval"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables rate limiting
	Burst             int           `yaml:"burst"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

// RetrievalSettings tune the dual-lane retriever.
type RetrievalSettings struct {
	TopK              int           `yaml:"top_k"`
	LaneTimeout       time.Duration `yaml:"lane_timeout"`
	SameUnitBonus     float64       `yaml:"same_unit_bonus"`
	RerankTop         int           `yaml:"rerank_top"`
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl"`
}

// VerificationSettings tune the verifier and the acceptance policy.
type VerificationSettings struct {
	MinSimilarity       float64        `yaml:"min_similarity"`
	KeepTop             int            `yaml:"keep_top"`
	AcceptanceThreshold float64        `yaml:"acceptance_threshold"`
	Weights             verify.Weights `yaml:"weights"`
}

// ControllerSettings bound the agentic loop.
type ControllerSettings struct {
	MaxRevisions       int     `yaml:"max_revisions"`
	MaxClauses         int     `yaml:"max_clauses"`
	RequiredMinSupport int     `yaml:"required_min_support"`
	FastPathMaxTerms   int     `yaml:"fast_path_max_terms"`
	DraftCoverage      float64 `yaml:"draft_coverage"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() *Settings {
	aiConfig := ai.DefaultConfig()
	return &Settings{
		AI: AISettings{
			EmbeddingHost:  aiConfig.EmbeddingHost,
			ChatHost:       aiConfig.ChatHost,
			EmbeddingModel: aiConfig.EmbeddingModel,
			ChatModel:      aiConfig.ChatModel,
			Token:          aiConfig.Token,
			MaxAttempts:    aiConfig.MaxAttempts,
			Planner:        PlannerHeuristic,
			PlannerTimeout: planner.DefaultModelTimeout,
		},
		Embedding: EmbeddingSettings{
			BatchSize:    ingestion.DefaultBatchSize,
			ScanInterval: ingestion.DefaultScanInterval,
			Burst:        1,
			MaxAttempts:  3,
			RetryDelay:   500 * time.Millisecond,
		},
		Retrieval: RetrievalSettings{
			TopK:              search.DefaultTopK,
			LaneTimeout:       search.DefaultLaneTimeout,
			SameUnitBonus:     search.DefaultSameUnitBonus,
			RerankTop:         search.DefaultRerankTop,
			EmbeddingCacheTTL: search.DefaultEmbeddingCacheTTL,
		},
		Verification: VerificationSettings{
			MinSimilarity:       verify.DefaultMinSimilarity,
			KeepTop:             verify.DefaultKeepTop,
			AcceptanceThreshold: verify.DefaultAcceptanceThreshold,
			Weights:             verify.EqualWeights(),
		},
		Controller: ControllerSettings{
			MaxRevisions:       controller.DefaultMaxRevisions,
			MaxClauses:         controller.DefaultMaxClauses,
			RequiredMinSupport: controller.DefaultMinSupport,
			FastPathMaxTerms:   controller.DefaultFastPathMaxTerms,
			DraftCoverage:      controller.DefaultDraftCoverage,
		},
	}
}

// LoadSettings reads a YAML settings file. Keys missing from the file keep
// their default values.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML settings on top of the defaults.
func ParseSettings(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// YAML renders the settings as a YAML document.
func (s *Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// AIConfig converts the AI section into an ai.Config.
func (s *Settings) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(s.AI.EmbeddingHost),
		ai.WithChatHost(s.AI.ChatHost),
		ai.WithEmbeddingModel(s.AI.EmbeddingModel),
		ai.WithChatModel(s.AI.ChatModel),
		ai.WithToken(s.AI.Token),
		ai.WithMaxAttempts(s.AI.MaxAttempts),
	)
}

// Validate checks ranges that the component constructors would otherwise
// reject one at a time.
func (s *Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(s.AI.Planner == PlannerHeuristic || s.AI.Planner == PlannerModel,
		"ai.planner must be %q or %q, got %q", PlannerHeuristic, PlannerModel, s.AI.Planner)
	check(s.Embedding.BatchSize > 0, "embedding.batch_size must be positive")
	check(s.Embedding.PoolSize >= 0, "embedding.pool_size cannot be negative")
	check(s.Embedding.MaxAttempts > 0, "embedding.max_attempts must be positive")
	check(s.Embedding.RequestsPerSecond >= 0, "embedding.requests_per_second cannot be negative")
	check(s.Retrieval.TopK > 0, "retrieval.top_k must be positive")
	check(s.Retrieval.LaneTimeout > 0, "retrieval.lane_timeout must be positive")
	check(s.Verification.AcceptanceThreshold > 0 && s.Verification.AcceptanceThreshold <= 1,
		"verification.acceptance_threshold must be within (0,1]")
	check(s.Controller.MaxRevisions >= 0, "controller.max_revisions cannot be negative")
	check(s.Controller.MaxClauses > 0, "controller.max_clauses must be positive")
	check(s.Controller.RequiredMinSupport > 0, "controller.required_min_support must be at least 1")
	if err := s.Verification.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}
