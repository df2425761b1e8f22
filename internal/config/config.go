// Package config loads runtime settings from defaults, an optional YAML
// file, an optional .env file and SELFCHECK_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/question"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

// #region types
// Backend selects what serves question and distractor generation.
type Backend string

const (
	BackendGRPC   Backend = "grpc"
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string          `yaml:"log_level"`
	DBPath   string          `yaml:"db_path"`
	HTTPAddr string          `yaml:"http_addr"`
	Workers  int             `yaml:"workers"`
	Infer    InferenceConfig `yaml:"inference"`
	Gen      GeneratorConfig `yaml:"generator"`
	Scoring  ScoringConfig   `yaml:"scoring"`
	Tokens   TokenConfig     `yaml:"tokens"`
}

// InferenceConfig points at the gRPC inference service.
type InferenceConfig struct {
	Addr         string `yaml:"addr"`
	MaxLength    int    `yaml:"max_length"`
	MaxNewTokens int    `yaml:"max_new_tokens"`
}

// GeneratorConfig selects the question/distractor backend.
type GeneratorConfig struct {
	Backend       Backend `yaml:"backend"`
	OllamaHost    string  `yaml:"ollama_host"`
	OllamaModel   string  `yaml:"ollama_model"`
	OpenAIModel   string  `yaml:"openai_model"`
	OpenAIKey     string  `yaml:"openai_key"`
	OpenAIBaseURL string  `yaml:"openai_base_url"`
}

// ScoringConfig holds the default method and parameters for requests that
// omit them.
type ScoringConfig struct {
	Method               scoring.Method `yaml:"method"`
	Params               scoring.Params `yaml:"params"`
	QuestionsPerSentence int            `yaml:"questions_per_sentence"`
}

// TokenConfig holds the special tokens of the served models.
type TokenConfig struct {
	question.Tokens `yaml:",inline"`
	BOS             string `yaml:"bos"`
}

// #endregion types

// #region defaults
// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		DBPath:   "selfcheck.db",
		HTTPAddr: ":8080",
		Workers:  1,
		Infer: InferenceConfig{
			Addr:         "localhost:50051",
			MaxLength:    4096,
			MaxNewTokens: 128,
		},
		Gen: GeneratorConfig{
			Backend:     BackendGRPC,
			OllamaHost:  "http://localhost:11434",
			OllamaModel: "llama3.1",
			OpenAIModel: "gpt-4o-mini",
		},
		Scoring: ScoringConfig{
			Method: scoring.MethodBayesWithAlpha,
			Params: scoring.Params{
				AT:    scoring.Float(0.5),
				Beta1: scoring.Float(0.8),
				Beta2: scoring.Float(0.8),
			},
			QuestionsPerSentence: 5,
		},
		Tokens: TokenConfig{Tokens: question.DefaultTokens(), BOS: "<s>"},
	}
}

// #endregion defaults

// #region load
// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), ./.env and the environment, then validates it.
func Load(path string) (Config, error) {
	return LoadFiles(path, ".env")
}

// LoadFiles is Load with an explicit .env location. A missing .env file is
// not an error.
func LoadFiles(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var result *multierror.Error

	c.LogLevel = envOr("SELFCHECK_LOG_LEVEL", c.LogLevel)
	c.DBPath = envOr("SELFCHECK_DB", c.DBPath)
	c.HTTPAddr = envOr("SELFCHECK_HTTP_ADDR", c.HTTPAddr)
	c.Infer.Addr = envOr("SELFCHECK_INFERENCE_ADDR", c.Infer.Addr)
	c.Gen.Backend = Backend(envOr("SELFCHECK_GENERATOR_BACKEND", string(c.Gen.Backend)))
	c.Gen.OllamaHost = envOr("SELFCHECK_OLLAMA_HOST", c.Gen.OllamaHost)
	c.Gen.OllamaModel = envOr("SELFCHECK_OLLAMA_MODEL", c.Gen.OllamaModel)
	c.Gen.OpenAIModel = envOr("SELFCHECK_OPENAI_MODEL", c.Gen.OpenAIModel)
	c.Gen.OpenAIKey = envOr("SELFCHECK_OPENAI_KEY", envOr("OPENAI_API_KEY", c.Gen.OpenAIKey))
	c.Gen.OpenAIBaseURL = envOr("SELFCHECK_OPENAI_BASE_URL", c.Gen.OpenAIBaseURL)
	c.Scoring.Method = scoring.Method(envOr("SELFCHECK_METHOD", string(c.Scoring.Method)))

	ints := []struct {
		key string
		dst *int
	}{
		{"SELFCHECK_WORKERS", &c.Workers},
		{"SELFCHECK_QUESTIONS", &c.Scoring.QuestionsPerSentence},
		{"SELFCHECK_MAX_LENGTH", &c.Infer.MaxLength},
		{"SELFCHECK_MAX_NEW_TOKENS", &c.Infer.MaxNewTokens},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			result = multierror.Append(result, err)
		}
	}

	floats := []struct {
		key string
		dst **float64
	}{
		{"SELFCHECK_AT", &c.Scoring.Params.AT},
		{"SELFCHECK_BETA1", &c.Scoring.Params.Beta1},
		{"SELFCHECK_BETA2", &c.Scoring.Params.Beta2},
	}
	for _, e := range floats {
		if err := envFloat(e.key, e.dst); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// #endregion load

// #region validate
// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Scoring.QuestionsPerSentence < 1 {
		result = multierror.Append(result, fmt.Errorf("questions_per_sentence must be >= 1, got %d", c.Scoring.QuestionsPerSentence))
	}
	if c.Infer.MaxLength < 1 || c.Infer.MaxNewTokens < 1 {
		result = multierror.Append(result, fmt.Errorf("inference lengths must be positive"))
	}
	if _, err := scoring.NewScorer(c.Scoring.Method, c.Scoring.Params); err != nil {
		result = multierror.Append(result, fmt.Errorf("scoring: %w", err))
	}
	switch c.Gen.Backend {
	case BackendGRPC, BackendOllama:
	case BackendOpenAI:
		if c.Gen.OpenAIKey == "" {
			result = multierror.Append(result, fmt.Errorf("generator backend openai requires an API key"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown generator backend %q", c.Gen.Backend))
	}
	if c.Tokens.Sep == "" {
		result = multierror.Append(result, fmt.Errorf("tokens.sep must not be empty"))
	}
	return result.ErrorOrNil()
}

// #endregion validate

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst **float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = &f
	return nil
}

// #endregion helpers
