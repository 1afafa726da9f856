package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/handlers"
	"github.com/MegaGrindStone/chatbot-widget/internal/services"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(logger zerolog.Logger) (handlers.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port        string          `yaml:"port"`
	Env         string          `yaml:"env"`
	LogLevel    string          `yaml:"logLevel"`
	MaxDuration time.Duration   `yaml:"maxDuration"`
	CORSOrigins []string        `yaml:"corsOrigins"`
	LLM         llmConfig       `yaml:"llm"`
	RateLimit   rateLimitConfig `yaml:"rateLimit"`
	Widget      widget.Options  `yaml:"widget"`
}

type rateLimitConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Requests  int           `yaml:"requests"`
	Window    time.Duration `yaml:"window"`
	RedisURL  string        `yaml:"redisURL"`
	BoltPath  string        `yaml:"boltPath"`
	Whitelist []string      `yaml:"whitelist"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	MaxTokens     int    `yaml:"maxTokens"`
	Endpoint      string `yaml:"endpoint"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

const (
	defaultPort            = "8080"
	defaultRateLimit       = 20
	defaultRateLimitWindow = time.Minute
	defaultOllamaHost      = "http://127.0.0.1:11434"
)

func defaultConfig() config {
	return config{
		Port:        defaultPort,
		Env:         "production",
		LogLevel:    "info",
		MaxDuration: handlers.DefaultMaxDuration,
		CORSOrigins: []string{"*"},
		LLM: &anthropicConfig{
			BaseLLMConfig: BaseLLMConfig{Provider: "anthropic", Model: services.DefaultAnthropicModel},
			MaxTokens:     services.DefaultMaxTokens,
		},
		RateLimit: rateLimitConfig{
			Requests: defaultRateLimit,
			Window:   defaultRateLimitWindow,
		},
		Widget: widget.DefaultOptions(),
	}
}

// loadConfig reads the YAML file at path over the defaults. A missing file yields the defaults. Environment
// variables fill what the file leaves empty: they are applied over the defaults before the file is decoded.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	cfg.applyEnv()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return config{}, errors.Wrap(err, "error opening config file")
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, errors.Wrap(err, "error decoding config file")
		}
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Port = port
	}
	if env := os.Getenv("ENV"); env != "" {
		c.Env = env
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.RateLimit.RedisURL = redisURL
	}
	if wl := os.Getenv("RATE_LIMIT_WHITELIST"); wl != "" {
		c.RateLimit.Whitelist = nil
		for _, entry := range strings.Split(wl, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				c.RateLimit.Whitelist = append(c.RateLimit.Whitelist, entry)
			}
		}
	}
}

func (c config) validate() error {
	if c.MaxDuration <= 0 {
		return errors.New("maxDuration must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("rateLimit requests and window must be positive")
	}
	if err := c.Widget.Validate(); err != nil {
		return errors.Wrap(err, "invalid widget config")
	}
	return nil
}

func (c config) isDevelopment() bool {
	return c.Env == "development"
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	rawConfig := struct {
		Port        string          `yaml:"port"`
		Env         string          `yaml:"env"`
		LogLevel    string          `yaml:"logLevel"`
		MaxDuration time.Duration   `yaml:"maxDuration"`
		CORSOrigins []string        `yaml:"corsOrigins"`
		LLM         map[string]any  `yaml:"llm"`
		RateLimit   rateLimitConfig `yaml:"rateLimit"`
		Widget      widget.Options  `yaml:"widget"`
	}{
		Port:        c.Port,
		Env:         c.Env,
		LogLevel:    c.LogLevel,
		MaxDuration: c.MaxDuration,
		CORSOrigins: c.CORSOrigins,
		RateLimit:   c.RateLimit,
		Widget:      c.Widget,
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.Env = rawConfig.Env
	c.LogLevel = rawConfig.LogLevel
	c.MaxDuration = rawConfig.MaxDuration
	c.CORSOrigins = rawConfig.CORSOrigins
	c.RateLimit = rawConfig.RateLimit
	c.Widget = rawConfig.Widget

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, _ := rawConfig.LLM["provider"].(string)
	if llmProvider == "" {
		llmProvider = "anthropic"
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "anthropic":
		llm = &anthropicConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	default:
		return errors.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm
	return nil
}

func (a anthropicConfig) llm(logger zerolog.Logger) (handlers.LLM, error) {
	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}

	llm := services.NewAnthropic(apiKey, a.Model, a.MaxTokens, logger)
	if a.Endpoint != "" {
		llm = llm.WithEndpoint(a.Endpoint)
	}
	return llm, nil
}

func (o openAIConfig) llm(logger zerolog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, errors.New("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && o.BaseURL == "" {
		return nil, errors.New("openai api key is required")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.MaxTokens, logger), nil
}

func (o ollamaConfig) llm(logger zerolog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, errors.New("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	return services.NewOllama(host, o.Model, logger)
}

func (o openRouterConfig) llm(logger zerolog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, errors.New("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("openrouter api key is required")
	}
	return services.NewOpenRouter(apiKey, o.Model, logger), nil
}
