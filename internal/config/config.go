package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Redis   RedisConfig   `mapstructure:"redis"`
	OAuth   OAuthConfig   `mapstructure:"oauth"`
	Stripe  StripeConfig  `mapstructure:"stripe"`
	Report  ReportConfig  `mapstructure:"report"`
	Storage StorageConfig `mapstructure:"storage"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	BaseURL        string        `mapstructure:"base_url"` // 对外基础地址，拼分享链接用
}

// BackendConfig 远端聊天后端（权威数据源）
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig mock 模式下的本地助手回复与定价方案生成
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OAuthConfig struct {
	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`
	RedirectURL        string `mapstructure:"redirect_url"`
	CookieDomain       string `mapstructure:"cookie_domain"`
	CookieSecure       bool   `mapstructure:"cookie_secure"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PriceID       string `mapstructure:"price_id"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

// ReportConfig 报告分页的密度假设与图片加载超时
type ReportConfig struct {
	ImagesPerPage   int           `mapstructure:"images_per_page"`
	MessagesPerPage int           `mapstructure:"messages_per_page"`
	ImageTimeout    time.Duration `mapstructure:"image_timeout"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // memory | disk
	DataDir   string `mapstructure:"data_dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GREENLY")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// 配置文件优先，未设置时回落到环境变量
	if cfg.OpenAI.APIKey == "" {
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			cfg.OpenAI.APIKey = apiKey
		}
	}
	if cfg.Stripe.SecretKey == "" {
		if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
			cfg.Stripe.SecretKey = key
		}
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.Report.ImagesPerPage <= 0 {
		c.Report.ImagesPerPage = 2
	}
	if c.Report.MessagesPerPage <= 0 {
		c.Report.MessagesPerPage = 8
	}
	if c.Report.ImageTimeout <= 0 {
		c.Report.ImageTimeout = 10 * time.Second
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
}

func Get() *Config {
	return cfg
}
