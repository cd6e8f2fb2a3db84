package guidegraph

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the guidegraph engine.
type Config struct {
	// Feature flags. Both default to true; disabling hierarchical
	// chunking forces every document down the flat fallback path.
	EnableHierarchicalChunking  *bool `json:"enable_hierarchical_chunking" yaml:"enable_hierarchical_chunking"`
	EnableRelationshipDetection *bool `json:"enable_relationship_detection" yaml:"enable_relationship_detection"`

	// Per-document-type character ceilings for hierarchical routing.
	MaxDocChars MaxDocChars `json:"max_doc_chars" yaml:"max_doc_chars"`

	// Chunker sizing (tokens).
	TargetChunkTokens  int `json:"target_chunk_tokens" yaml:"target_chunk_tokens"`
	ChunkOverlapTokens int `json:"chunk_overlap_tokens" yaml:"chunk_overlap_tokens"`
	MinChunkTokens     int `json:"min_chunk_tokens" yaml:"min_chunk_tokens"`
	MaxChunkTokens     int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`

	// Relationships below this strength are dropped.
	MinRelationshipStrength float64 `json:"min_relationship_strength" yaml:"min_relationship_strength"`

	// Routing threshold for the structural probe.
	StructureScoreFloor float64 `json:"structure_score_floor" yaml:"structure_score_floor"`

	// Cancellation deadlines per document.
	SoftDeadlineSeconds int `json:"soft_deadline_seconds" yaml:"soft_deadline_seconds"`
	HardDeadlineSeconds int `json:"hard_deadline_seconds" yaml:"hard_deadline_seconds"`

	// LLM provider for navigation, entity, and decision extraction.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Graph store backend.
	Graph GraphConfig `json:"graph" yaml:"graph"`

	// Max parallel documents processed by the orchestrator.
	DocumentConcurrency int `json:"document_concurrency" yaml:"document_concurrency"`
}

// MaxDocChars is the per-document-type routing ceiling in characters.
type MaxDocChars struct {
	Guidelines int `json:"guidelines" yaml:"guidelines"`
	Matrix     int `json:"matrix" yaml:"matrix"`
	Procedures int `json:"procedures" yaml:"procedures"`
	Default    int `json:"default" yaml:"default"`
}

// LLMConfig configures the LLM client endpoint.
type LLMConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`

	// RequestsPerMinute bounds the shared token bucket. Zero disables
	// client-side rate limiting.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// GraphConfig selects and configures the graph store backend.
type GraphConfig struct {
	// Backend is "sqlite" (embedded, default), "neo4j", or "memory"
	// (in-process, not persisted).
	Backend string `json:"backend" yaml:"backend"`

	// SQLite database path (sqlite backend).
	DBPath string `json:"db_path" yaml:"db_path"`

	// Neo4j connection (neo4j backend).
	URI      string `json:"uri" yaml:"uri"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`

	// EmbeddingDim sizes the optional chunk-embedding table. Zero
	// disables embedding persistence.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		EnableHierarchicalChunking:  &t,
		EnableRelationshipDetection: &t,
		MaxDocChars: MaxDocChars{
			Guidelines: 600_000,
			Matrix:     300_000,
			Procedures: 200_000,
			Default:    600_000,
		},
		TargetChunkTokens:       1500,
		ChunkOverlapTokens:      200,
		MinChunkTokens:          200,
		MaxChunkTokens:          2000,
		MinRelationshipStrength: 0.1,
		StructureScoreFloor:     0.3,
		SoftDeadlineSeconds:     300,
		HardDeadlineSeconds:     600,
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			BaseURL: "",
		},
		Graph: GraphConfig{
			Backend: "sqlite",
			DBPath:  "guidegraph.db",
		},
		DocumentConcurrency: 4,
	}
}

// LoadConfig reads a YAML config file and backfills defaults for zero
// values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults replaces zero values with the documented defaults.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.EnableHierarchicalChunking == nil {
		c.EnableHierarchicalChunking = d.EnableHierarchicalChunking
	}
	if c.EnableRelationshipDetection == nil {
		c.EnableRelationshipDetection = d.EnableRelationshipDetection
	}
	if c.MaxDocChars.Guidelines == 0 {
		c.MaxDocChars.Guidelines = d.MaxDocChars.Guidelines
	}
	if c.MaxDocChars.Matrix == 0 {
		c.MaxDocChars.Matrix = d.MaxDocChars.Matrix
	}
	if c.MaxDocChars.Procedures == 0 {
		c.MaxDocChars.Procedures = d.MaxDocChars.Procedures
	}
	if c.MaxDocChars.Default == 0 {
		c.MaxDocChars.Default = d.MaxDocChars.Default
	}
	if c.TargetChunkTokens == 0 {
		c.TargetChunkTokens = d.TargetChunkTokens
	}
	if c.ChunkOverlapTokens == 0 {
		c.ChunkOverlapTokens = d.ChunkOverlapTokens
	}
	if c.MinChunkTokens == 0 {
		c.MinChunkTokens = d.MinChunkTokens
	}
	if c.MaxChunkTokens == 0 {
		c.MaxChunkTokens = d.MaxChunkTokens
	}
	if c.MinRelationshipStrength == 0 {
		c.MinRelationshipStrength = d.MinRelationshipStrength
	}
	if c.StructureScoreFloor == 0 {
		c.StructureScoreFloor = d.StructureScoreFloor
	}
	if c.SoftDeadlineSeconds == 0 {
		c.SoftDeadlineSeconds = d.SoftDeadlineSeconds
	}
	if c.HardDeadlineSeconds == 0 {
		c.HardDeadlineSeconds = d.HardDeadlineSeconds
	}
	if c.Graph.Backend == "" {
		c.Graph.Backend = d.Graph.Backend
	}
	if c.Graph.Backend == "sqlite" && c.Graph.DBPath == "" {
		c.Graph.DBPath = d.Graph.DBPath
	}
	if c.DocumentConcurrency == 0 {
		c.DocumentConcurrency = d.DocumentConcurrency
	}
}

// validate rejects configurations the pipeline cannot honor.
func (c *Config) validate() error {
	if c.MinChunkTokens > c.TargetChunkTokens || c.TargetChunkTokens > c.MaxChunkTokens {
		return fmt.Errorf("%w: chunk token sizes must satisfy min <= target <= max", ErrInvalidConfig)
	}
	if c.SoftDeadlineSeconds > c.HardDeadlineSeconds {
		return fmt.Errorf("%w: soft deadline exceeds hard deadline", ErrInvalidConfig)
	}
	if c.StructureScoreFloor < 0 || c.StructureScoreFloor > 1 {
		return fmt.Errorf("%w: structure score floor outside [0,1]", ErrInvalidConfig)
	}
	switch c.Graph.Backend {
	case "sqlite", "neo4j", "memory":
	default:
		return fmt.Errorf("%w: unknown graph backend %q", ErrInvalidConfig, c.Graph.Backend)
	}
	return nil
}

// SoftDeadline returns the per-document soft deadline as a duration.
func (c *Config) SoftDeadline() time.Duration {
	return time.Duration(c.SoftDeadlineSeconds) * time.Second
}

// HardDeadline returns the per-document hard deadline as a duration.
func (c *Config) HardDeadline() time.Duration {
	return time.Duration(c.HardDeadlineSeconds) * time.Second
}

// CeilingFor returns the character ceiling for a document type.
func (m MaxDocChars) CeilingFor(docType string) int {
	switch docType {
	case "Guidelines", "guidelines":
		return m.Guidelines
	case "Matrix", "matrix":
		return m.Matrix
	case "Procedures", "procedures":
		return m.Procedures
	default:
		return m.Default
	}
}
