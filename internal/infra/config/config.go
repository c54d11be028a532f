package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Knowledge store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendPinecone = "pinecone"
	BackendSQLite   = "sqlite"
	BackendBolt     = "bolt"
	BackendValkey   = "valkey"
	BackendLocal    = "local"
	BackendR2       = "r2"
)

// Config aggregates runtime configuration used across the service and the ingestion CLI.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	LLM       LLMConfig       `yaml:"llm"`
	FAQ       FAQConfig       `yaml:"faq"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	Voice     VoiceConfig     `yaml:"voice"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Backend           string `yaml:"backend"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
	Burst             int    `yaml:"burst"`
}

// LLMConfig contains ChatGPT/OpenAI settings shared by the query path and ingestion.
type LLMConfig struct {
	APIKey              string  `yaml:"apiKey"`
	BaseURL             string  `yaml:"baseUrl"`
	Model               string  `yaml:"model"`
	EmbeddingModel      string  `yaml:"embeddingModel"`
	EmbeddingDimensions int     `yaml:"embeddingDimensions"`
	Temperature         float32 `yaml:"temperature"`
	MaxTokens           int     `yaml:"maxTokens"`
}

// FAQConfig controls the answer pipeline.
type FAQConfig struct {
	Prompt         string `yaml:"prompt"`
	FallbackAnswer string `yaml:"fallbackAnswer"`
	TopK           int    `yaml:"topK"`
	MaxAnswerWords int    `yaml:"maxAnswerWords"`
}

// KnowledgeConfig selects and configures the vector index.
type KnowledgeConfig struct {
	Backend  string         `yaml:"backend"`
	SeedFile string         `yaml:"seedFile"`
	Postgres PostgresConfig `yaml:"postgres"`
	Pinecone PineconeConfig `yaml:"pinecone"`
	SQLite   FileDBConfig   `yaml:"sqlite"`
	Bolt     FileDBConfig   `yaml:"bolt"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// PineconeConfig holds the vector index credential and index identity.
type PineconeConfig struct {
	APIKey          string `yaml:"apiKey"`
	IndexName       string `yaml:"indexName"`
	Host            string `yaml:"host"`
	Namespace       string `yaml:"namespace"`
	ControlPlaneURL string `yaml:"controlPlaneUrl"`
	Cloud           string `yaml:"cloud"`
	Region          string `yaml:"region"`
}

// FileDBConfig points at an embedded database file.
type FileDBConfig struct {
	Path string `yaml:"path"`
}

// ValkeyConfig contains connection information for the shared KV store.
type ValkeyConfig struct {
	Addr string `yaml:"addr"`
}

// VoiceConfig controls the voice platform webhook.
type VoiceConfig struct {
	WebhookSecret  string        `yaml:"webhookSecret"`
	ToolName       string        `yaml:"toolName"`
	SessionBackend string        `yaml:"sessionBackend"`
	SessionTTL     time.Duration `yaml:"sessionTtl"`
}

// IngestConfig drives the offline embedding and upload pipeline.
type IngestConfig struct {
	BatchSize      int    `yaml:"batchSize"`
	MaxBatchTokens int    `yaml:"maxBatchTokens"`
	Concurrency    int    `yaml:"concurrency"`
	IDPrefix       string `yaml:"idPrefix"`
	Company        string `yaml:"company"`
	SourceURL      string `yaml:"sourceUrl"`
}

// ArtifactConfig selects where ingestion inputs and outputs live.
type ArtifactConfig struct {
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	R2      R2Config `yaml:"r2"`
}

// R2Config holds S3-compatible bucket credentials.
type R2Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	return load(true)
}

// LoadOffline is Load without the LLM credential check, for runs that never call the API.
func LoadOffline() (*Config, error) {
	return load(false)
}

func load(requireLLM bool) (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(requireLLM); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BACKEND"); v != "" {
		cfg.HTTP.RateLimit.Backend = v
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_EMBEDDING_DIMENSIONS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.LLM.EmbeddingDimensions = parsed
		}
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	if v := os.Getenv("FAQ_PROMPT"); v != "" {
		cfg.FAQ.Prompt = v
	}
	if v := os.Getenv("FAQ_FALLBACK_ANSWER"); v != "" {
		cfg.FAQ.FallbackAnswer = v
	}
	if v := os.Getenv("FAQ_TOP_K"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.FAQ.TopK = parsed
		}
	}
	if v := os.Getenv("FAQ_MAX_ANSWER_WORDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.FAQ.MaxAnswerWords = parsed
		}
	}
	if v := os.Getenv("KNOWLEDGE_BACKEND"); v != "" {
		cfg.Knowledge.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("KNOWLEDGE_SEED_FILE"); v != "" {
		cfg.Knowledge.SeedFile = v
	}
	if v := os.Getenv("FAQ_POSTGRES_DSN"); v != "" {
		cfg.Knowledge.Postgres.DSN = v
	}
	if v := os.Getenv("FAQ_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Knowledge.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("PINECONE_API_KEY"); v != "" {
		cfg.Knowledge.Pinecone.APIKey = v
	}
	if v := os.Getenv("PINECONE_INDEX_NAME"); v != "" {
		cfg.Knowledge.Pinecone.IndexName = v
	}
	if v := os.Getenv("PINECONE_HOST"); v != "" {
		cfg.Knowledge.Pinecone.Host = v
	}
	if v := os.Getenv("PINECONE_NAMESPACE"); v != "" {
		cfg.Knowledge.Pinecone.Namespace = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Knowledge.SQLite.Path = v
	}
	if v := os.Getenv("BOLT_PATH"); v != "" {
		cfg.Knowledge.Bolt.Path = v
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		cfg.Valkey.Addr = v
	}
	if v := os.Getenv("VOICE_WEBHOOK_SECRET"); v != "" {
		cfg.Voice.WebhookSecret = v
	}
	if v := os.Getenv("VOICE_TOOL_NAME"); v != "" {
		cfg.Voice.ToolName = v
	}
	if v := os.Getenv("VOICE_SESSION_BACKEND"); v != "" {
		cfg.Voice.SessionBackend = strings.ToLower(v)
	}
	if v := os.Getenv("VOICE_SESSION_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Voice.SessionTTL = parsed
		}
	}
	if v := os.Getenv("INGEST_BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.BatchSize = parsed
		}
	}
	if v := os.Getenv("INGEST_CONCURRENCY"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Concurrency = parsed
		}
	}
	if v := os.Getenv("INGEST_COMPANY"); v != "" {
		cfg.Ingest.Company = v
	}
	if v := os.Getenv("ARTIFACTS_BACKEND"); v != "" {
		cfg.Artifacts.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ARTIFACTS_DIR"); v != "" {
		cfg.Artifacts.Dir = v
	}
	if v := os.Getenv("R2_ENDPOINT"); v != "" {
		cfg.Artifacts.R2.Endpoint = v
	}
	if v := os.Getenv("R2_ACCESS_KEY"); v != "" {
		cfg.Artifacts.R2.AccessKey = v
	}
	if v := os.Getenv("R2_SECRET_KEY"); v != "" {
		cfg.Artifacts.R2.SecretKey = v
	}
	if v := os.Getenv("R2_BUCKET"); v != "" {
		cfg.Artifacts.R2.Bucket = v
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				Backend:           BackendMemory,
				RequestsPerMinute: 120,
				Burst:             30,
			},
		},
		LLM: LLMConfig{
			Model:               "gpt-4o-mini",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1536,
			Temperature:         0.7,
			MaxTokens:           300,
		},
		FAQ: FAQConfig{
			Prompt:         "You are a friendly, knowledgeable customer support assistant answering questions over a voice call.",
			FallbackAnswer: "I'm sorry, I couldn't find any relevant information to answer your question. Please try rephrasing or contact customer support.",
			TopK:           3,
			MaxAnswerWords: 150,
		},
		Knowledge: KnowledgeConfig{
			Backend: BackendMemory,
			Postgres: PostgresConfig{
				Table:    "faq_entries",
				MaxConns: 4,
			},
			Pinecone: PineconeConfig{
				IndexName:       "faq",
				ControlPlaneURL: "https://api.pinecone.io",
				Cloud:           "aws",
				Region:          "us-east-1",
			},
			SQLite: FileDBConfig{Path: "data/faq.db"},
			Bolt:   FileDBConfig{Path: "data/faq.bolt"},
		},
		Voice: VoiceConfig{
			ToolName:       "search_faq",
			SessionBackend: BackendMemory,
			SessionTTL:     24 * time.Hour,
		},
		Ingest: IngestConfig{
			BatchSize:      100,
			MaxBatchTokens: 200_000,
			Concurrency:    4,
			IDPrefix:       "faq",
		},
		Artifacts: ArtifactConfig{
			Backend: BackendLocal,
			Dir:     ".",
			R2: R2Config{
				Region: "auto",
			},
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireLLM bool) error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
		switch c.HTTP.RateLimit.Backend {
		case BackendMemory:
		case BackendValkey:
			if strings.TrimSpace(c.Valkey.Addr) == "" {
				return errors.New("valkey.addr cannot be empty when the rate limiter uses valkey")
			}
		default:
			return fmt.Errorf("http.rateLimit.backend %q is not supported", c.HTTP.RateLimit.Backend)
		}
	}
	if requireLLM && strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.apiKey cannot be empty (set LLM_API_KEY or OPENAI_API_KEY)")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model cannot be empty")
	}
	if strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		return errors.New("llm.embeddingModel cannot be empty")
	}
	if c.LLM.EmbeddingDimensions <= 0 {
		return errors.New("llm.embeddingDimensions must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if strings.TrimSpace(c.FAQ.Prompt) == "" {
		return errors.New("faq.prompt cannot be empty")
	}
	if strings.TrimSpace(c.FAQ.FallbackAnswer) == "" {
		return errors.New("faq.fallbackAnswer cannot be empty")
	}
	if c.FAQ.TopK <= 0 {
		return errors.New("faq.topK must be positive")
	}
	if c.FAQ.MaxAnswerWords <= 0 {
		return errors.New("faq.maxAnswerWords must be positive")
	}
	if err := c.Knowledge.validate(); err != nil {
		return err
	}
	switch c.Voice.SessionBackend {
	case BackendMemory:
	case BackendValkey:
		if strings.TrimSpace(c.Valkey.Addr) == "" {
			return errors.New("valkey.addr cannot be empty when voice sessions use valkey")
		}
	default:
		return fmt.Errorf("voice.sessionBackend %q is not supported", c.Voice.SessionBackend)
	}
	if strings.TrimSpace(c.Voice.ToolName) == "" {
		return errors.New("voice.toolName cannot be empty")
	}
	if c.Voice.SessionTTL < 0 {
		return errors.New("voice.sessionTtl cannot be negative")
	}
	if c.Ingest.BatchSize <= 0 {
		return errors.New("ingest.batchSize must be positive")
	}
	if c.Ingest.Concurrency <= 0 {
		return errors.New("ingest.concurrency must be positive")
	}
	if strings.TrimSpace(c.Ingest.IDPrefix) == "" {
		return errors.New("ingest.idPrefix cannot be empty")
	}
	switch c.Artifacts.Backend {
	case BackendLocal:
	case BackendR2:
		r2 := c.Artifacts.R2
		if r2.Endpoint == "" || r2.AccessKey == "" || r2.SecretKey == "" || r2.Bucket == "" {
			return errors.New("artifacts.r2 endpoint, accessKey, secretKey and bucket are required")
		}
	default:
		return fmt.Errorf("artifacts.backend %q is not supported", c.Artifacts.Backend)
	}
	return nil
}

func (k KnowledgeConfig) validate() error {
	switch k.Backend {
	case BackendMemory:
		return nil
	case BackendPostgres:
		if strings.TrimSpace(k.Postgres.DSN) == "" {
			return errors.New("knowledge.postgres.dsn cannot be empty for the postgres backend")
		}
		if strings.TrimSpace(k.Postgres.Table) == "" {
			return errors.New("knowledge.postgres.table cannot be empty")
		}
	case BackendPinecone:
		if strings.TrimSpace(k.Pinecone.APIKey) == "" {
			return errors.New("knowledge.pinecone.apiKey cannot be empty (set PINECONE_API_KEY)")
		}
		if strings.TrimSpace(k.Pinecone.IndexName) == "" {
			return errors.New("knowledge.pinecone.indexName cannot be empty")
		}
	case BackendSQLite:
		if strings.TrimSpace(k.SQLite.Path) == "" {
			return errors.New("knowledge.sqlite.path cannot be empty")
		}
	case BackendBolt:
		if strings.TrimSpace(k.Bolt.Path) == "" {
			return errors.New("knowledge.bolt.path cannot be empty")
		}
	default:
		return fmt.Errorf("knowledge.backend %q is not supported", k.Backend)
	}
	return nil
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
