package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"deepbuild/internal/gateway/repository/artifact"
	"deepbuild/internal/gateway/repository/projectstore"
	llmclient "deepbuild/internal/llmClient"
)

type Config struct {
	Provider   string         `mapstructure:"provider"`
	DeepSeek   ProviderConfig `mapstructure:"deepseek"`
	Hyperbolic ProviderConfig `mapstructure:"hyperbolic"`
	Gemini     ProviderConfig `mapstructure:"gemini"`

	Temperature      float64 `mapstructure:"temperature"`
	TopP             float64 `mapstructure:"top_p"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty"`
	PresencePenalty  float64 `mapstructure:"presence_penalty"`

	CacheEnabled     bool        `mapstructure:"cache_enabled"`
	RequestTimeoutMS int         `mapstructure:"request_timeout_ms"`
	MaxContinuations int         `mapstructure:"max_continuations"`
	Retry            RetryConfig `mapstructure:"retry"`
	Rate             RateConfig  `mapstructure:"rate"`

	Port   string       `mapstructure:"port"`
	Store  StoreConfig  `mapstructure:"store"`
	Export ExportConfig `mapstructure:"export"`
}

type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type RetryConfig struct {
	Attempts  int           `mapstructure:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

type RateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type StoreConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	SnapshotPath string `mapstructure:"snapshot_path"`
	CacheSize    int    `mapstructure:"cache_size"`
}

type ExportConfig struct {
	Dir string         `mapstructure:"dir"`
	S3  ArtifactConfig `mapstructure:"s3"`
}

type ArtifactConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", llmclient.ProviderDeepSeek)
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("deepseek.max_tokens", 8000)
	v.SetDefault("hyperbolic.base_url", "https://api.hyperbolic.xyz/v1")
	v.SetDefault("hyperbolic.model", "deepseek-ai/DeepSeek-V3")
	v.SetDefault("hyperbolic.max_tokens", 512)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.max_tokens", 8000)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("frequency_penalty", 0.0)
	v.SetDefault("presence_penalty", 0.0)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("request_timeout_ms", 60000)
	v.SetDefault("max_continuations", 3)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("rate.rps", 0.0)
	v.SetDefault("rate.burst", 1)
	v.SetDefault("port", ":8081")
	v.SetDefault("store.driver", projectstore.DriverSQLite)
	v.SetDefault("store.dsn", "deepbuild.db")
	v.SetDefault("store.snapshot_path", "")
	v.SetDefault("store.cache_size", 128)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.s3.region", "us-east-1")
	v.SetDefault("export.s3.bucket", "deepbuild-exports")
	v.SetDefault("export.s3.use_ssl", true)
}

// bindEnv keeps the environment names the web client used.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("provider", "API_PROVIDER")
	_ = v.BindEnv("deepseek.api_key", "DEEPSEEK_API_KEY")
	_ = v.BindEnv("deepseek.base_url", "DEEPSEEK_API_BASE")
	_ = v.BindEnv("deepseek.model", "MODEL_VERSION")
	_ = v.BindEnv("deepseek.max_tokens", "MAX_TOKENS")
	_ = v.BindEnv("hyperbolic.api_key", "HYPERBOLIC_API_KEY")
	_ = v.BindEnv("hyperbolic.base_url", "HYPERBOLIC_API_BASE")
	_ = v.BindEnv("hyperbolic.model", "MODEL_VERSION")
	_ = v.BindEnv("hyperbolic.max_tokens", "MAX_TOKENS")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = v.BindEnv("temperature", "TEMPERATURE")
	_ = v.BindEnv("top_p", "TOP_P")
	_ = v.BindEnv("frequency_penalty", "FREQUENCY_PENALTY")
	_ = v.BindEnv("presence_penalty", "PRESENCE_PENALTY")
	_ = v.BindEnv("cache_enabled", "CACHE_ENABLED")
	_ = v.BindEnv("request_timeout_ms", "REQUEST_TIMEOUT")
	_ = v.BindEnv("max_continuations", "MAX_CONTINUATIONS")
	_ = v.BindEnv("retry.attempts", "LLM_RETRY_ATTEMPTS")
	_ = v.BindEnv("retry.base_delay", "LLM_RETRY_BASE_DELAY")
	_ = v.BindEnv("rate.rps", "LLM_RPS")
	_ = v.BindEnv("rate.burst", "LLM_BURST")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("store.driver", "PROJECT_STORE_DRIVER")
	_ = v.BindEnv("store.dsn", "PROJECT_STORE_DSN")
	_ = v.BindEnv("store.snapshot_path", "PROJECT_STORE_SNAPSHOT")
	_ = v.BindEnv("export.dir", "EXPORT_DIR")
	_ = v.BindEnv("export.s3.endpoint", "ARTIFACT_S3_ENDPOINT")
	_ = v.BindEnv("export.s3.region", "ARTIFACT_S3_REGION")
	_ = v.BindEnv("export.s3.access_key", "ARTIFACT_S3_ACCESS_KEY", "MINIO_ROOT_USER")
	_ = v.BindEnv("export.s3.secret_key", "ARTIFACT_S3_SECRET_KEY", "MINIO_ROOT_PASSWORD")
	_ = v.BindEnv("export.s3.bucket", "ARTIFACT_S3_BUCKET")
	_ = v.BindEnv("export.s3.use_ssl", "ARTIFACT_S3_USE_SSL")
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"provider":          "provider",
	"port":              "port",
	"store-driver":      "store.driver",
	"store-dsn":         "store.dsn",
	"export-dir":        "export.dir",
	"max-continuations": "max_continuations",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to a config file (yaml or json)")
	fs.String("provider", "", "model provider: deepseek, hyperbolic or gemini")
	fs.String("port", "", "HTTP listen address")
	fs.String("store-driver", "", "project store: sqlite, postgres or memory")
	fs.String("store-dsn", "", "project store data source")
	fs.String("export-dir", "", "directory for exported archives")
	fs.Int("max-continuations", 0, "continuation rounds for truncated replies")
}

// Load resolves defaults, .env, an optional config file, the environment
// and flags (in increasing precedence). fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	cfgFile := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			cfgFile = f.Value.String()
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("deepbuild")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var missing viper.ConfigFileNotFoundError
			if !errors.As(err, &missing) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			// Only flags the user actually set override lower layers.
			if f := fs.Lookup(name); f != nil && f.Changed {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if p := strings.TrimSpace(c.Port); p != "" && !strings.Contains(p, ":") {
		c.Port = ":" + p
	}
}

func (c *Config) Validate() error {
	switch c.Provider {
	case llmclient.ProviderDeepSeek, llmclient.ProviderHyperbolic, llmclient.ProviderGemini:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	switch c.Store.Driver {
	case projectstore.DriverSQLite, projectstore.DriverPostgres, projectstore.DriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.RequestTimeoutMS < 0 {
		return fmt.Errorf("config: request_timeout_ms must not be negative")
	}
	return nil
}

// Active returns the settings of the selected provider.
func (c *Config) Active() ProviderConfig {
	switch c.Provider {
	case llmclient.ProviderHyperbolic:
		return c.Hyperbolic
	case llmclient.ProviderGemini:
		return c.Gemini
	}
	return c.DeepSeek
}

// RequestTimeout is the bound on one model request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Generation resolves the sampling parameters for the active provider.
func (c *Config) Generation() llmclient.GenerationConfig {
	p := c.Active()
	return llmclient.GenerationConfig{
		Model:            p.Model,
		MaxTokens:        p.MaxTokens,
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
		Timeout:          c.RequestTimeout(),
	}
}

func (c *Config) ProjectStore() projectstore.Config {
	return projectstore.Config{
		Driver:       c.Store.Driver,
		DSN:          c.Store.DSN,
		SnapshotPath: c.Store.SnapshotPath,
		CacheSize:    c.Store.CacheSize,
	}
}

func (c *Config) S3() artifact.S3Config {
	s := c.Export.S3
	return artifact.S3Config{
		Endpoint:  strings.TrimSpace(s.Endpoint),
		Region:    firstNonEmpty(strings.TrimSpace(s.Region), "us-east-1"),
		AccessKey: strings.TrimSpace(s.AccessKey),
		SecretKey: strings.TrimSpace(s.SecretKey),
		Bucket:    strings.TrimSpace(s.Bucket),
		UseSSL:    s.UseSSL,
	}
}

// APIKeyEnv names the variable that holds the active provider's key.
func (c *Config) APIKeyEnv() string {
	switch c.Provider {
	case llmclient.ProviderHyperbolic:
		return "HYPERBOLIC_API_KEY"
	case llmclient.ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return "DEEPSEEK_API_KEY"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
