// Package config loads service configuration from an optional YAML file and
// AGRISAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AGRISAGE_SERVER_ADDRESS.
const EnvPrefix = "AGRISAGE"

// Config holds all service settings.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Cache        CacheConfig        `mapstructure:"cache"`
	History      HistoryConfig      `mapstructure:"history"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Weather      WeatherConfig      `mapstructure:"weather"`
	Market       MarketConfig       `mapstructure:"market"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	UploadDir      string `mapstructure:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// LLMConfig selects the chat model provider: googleai, openai or none.
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"`
	Model          string  `mapstructure:"model"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Temperature    float64 `mapstructure:"temperature"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
}

type OrchestratorConfig struct {
	MaxRounds                 int           `mapstructure:"max_rounds"`
	MaxConcurrentCapabilities int           `mapstructure:"max_concurrent_capabilities"`
	CapabilityTimeout         time.Duration `mapstructure:"capability_timeout"`
}

// CacheConfig selects the lookup cache backend: sqlite, file or memory.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// HistoryConfig selects the session store: memory or redis.
type HistoryConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig selects the vector index: file or qdrant.
type RetrievalConfig struct {
	Backend      string  `mapstructure:"backend"`
	IndexPath    string  `mapstructure:"index_path"`
	QdrantAddr   string  `mapstructure:"qdrant_addr"`
	Collection   string  `mapstructure:"collection"`
	K            int     `mapstructure:"k"`
	MinScore     float64 `mapstructure:"min_score"`
	FallbackPath string  `mapstructure:"fallback_path"`
	DocsDir      string  `mapstructure:"docs_dir"`
	SoilDir      string  `mapstructure:"soil_dir"`
}

type WeatherConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Timezone string        `mapstructure:"timezone"`
}

type MarketConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Limit    int           `mapstructure:"limit"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig points at a KServe v2 model server. An empty endpoint
// disables the classifier capability.
type ClassifierConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Model      string `mapstructure:"model"`
	LabelsPath string `mapstructure:"labels_path"`
	// ProcessorPath is a HuggingFace preprocessor_config.json. Empty means
	// the one next to LabelsPath, falling back to a plain InputSize resize.
	ProcessorPath string        `mapstructure:"processor_path"`
	InputSize     int           `mapstructure:"input_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Debug  bool `mapstructure:"debug"`
	Pretty bool `mapstructure:"pretty"`
}

// envAliases are the legacy variable names accepted next to the prefixed
// ones.
var envAliases = map[string]string{
	"llm.api_key":     "GOOGLE_API_KEY",
	"weather.api_key": "OPENWEATHER_API_KEY",
	"market.api_key":  "DATA_GOV_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.max_upload_bytes", 20<<20)

	v.SetDefault("llm.provider", "googleai")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.embedding_model", "text-embedding-004")

	v.SetDefault("orchestrator.max_rounds", 6)
	v.SetDefault("orchestrator.max_concurrent_capabilities", 4)
	v.SetDefault("orchestrator.capability_timeout", 60*time.Second)

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.dir", "data")

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.redis_addr", "localhost:6379")
	v.SetDefault("history.redis_password", "")
	v.SetDefault("history.redis_db", 0)
	v.SetDefault("history.prefix", "agrisage")
	v.SetDefault("history.timeout", 5*time.Second)

	v.SetDefault("retrieval.backend", "file")
	v.SetDefault("retrieval.index_path", "data/index.json")
	v.SetDefault("retrieval.qdrant_addr", "localhost:6334")
	v.SetDefault("retrieval.collection", "agrisage")
	v.SetDefault("retrieval.k", 3)
	v.SetDefault("retrieval.min_score", 0.0)
	v.SetDefault("retrieval.fallback_path", "")
	v.SetDefault("retrieval.docs_dir", "docs")
	v.SetDefault("retrieval.soil_dir", "soil_data")

	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.base_url", "https://api.openweathermap.org")
	v.SetDefault("weather.timeout", 10*time.Second)
	v.SetDefault("weather.timezone", "Local")

	v.SetDefault("market.api_key", "")
	v.SetDefault("market.endpoint", "https://api.data.gov.in/resource/9ef84268-d588-465a-a308-a864a43d0070")
	v.SetDefault("market.limit", 50)
	v.SetDefault("market.timeout", 20*time.Second)

	v.SetDefault("classifier.endpoint", "")
	v.SetDefault("classifier.model", "plant-disease")
	v.SetDefault("classifier.labels_path", "model/config.json")
	v.SetDefault("classifier.processor_path", "")
	v.SetDefault("classifier.input_size", 224)
	v.SetDefault("classifier.timeout", 30*time.Second)

	v.SetDefault("log.debug", false)
	v.SetDefault("log.pretty", false)
}

// Load reads path when non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backends and out-of-range limits.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value))
	}
	check("llm.provider", c.LLM.Provider, "googleai", "openai", "none")
	check("cache.backend", c.Cache.Backend, "sqlite", "file", "memory")
	check("history.backend", c.History.Backend, "memory", "redis")
	check("retrieval.backend", c.Retrieval.Backend, "file", "qdrant")

	if c.Orchestrator.MaxRounds < 1 {
		errs = append(errs, errors.New("orchestrator.max_rounds must be at least 1"))
	}
	if c.Orchestrator.MaxConcurrentCapabilities < 1 {
		errs = append(errs, errors.New("orchestrator.max_concurrent_capabilities must be at least 1"))
	}
	if c.Retrieval.K < 1 {
		errs = append(errs, errors.New("retrieval.k must be at least 1"))
	}
	return errors.Join(errs...)
}
