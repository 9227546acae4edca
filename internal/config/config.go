package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type AppConfig struct {
	Env     string `yaml:"env" env:"ENV" env-default:"prod" validate:"oneof=local dev prod"`
	BaseDir string `yaml:"base_dir" env:"BASE_DIR" validate:"required"`
	ApiID   int32  `yaml:"api_id" env:"TELEGRAM_API_ID" validate:"required"`
	ApiHash string `yaml:"api_hash" env:"TELEGRAM_API_HASH" validate:"required"`

	Exchange  ExchangeConfig  `yaml:"exchange" env-prefix:"EXCHANGE_"`
	Registry  RegistryConfig  `yaml:"registry" env-prefix:"REGISTRY_"`
	AutoReply AutoReplyConfig `yaml:"auto_reply" env-prefix:"AUTO_REPLY_"`
	Ops       OpsConfig       `yaml:"ops" env-prefix:"OPS_"`
}

// ExchangeConfig: настройки потока обмена
type ExchangeConfig struct {
	APIURL      string   `yaml:"api_url" env:"API_URL" env-default:"http://127.0.0.1:5963/exchange" validate:"required,url"`
	TimeoutSec  float64  `yaml:"timeout_sec" env:"TIMEOUT_SEC" env-default:"15" validate:"gt=0"`
	MaxDays     int      `yaml:"max_days" env:"MAX_DAYS" env-default:"3650" validate:"min=1"`
	WaitTimeout int      `yaml:"wait_timeout" env:"WAIT_TIMEOUT" env-default:"300" validate:"min=1"`
	Keyword     string   `yaml:"keyword" env:"KEYWORD" env-default:"授权" validate:"required"`
	Aliases     []string `yaml:"aliases" env:"ALIASES" env-default:"license,auth"`

	// nil: ключ не задан, по умолчанию true. cleanenv не отличает false от пустого значения
	AllowPlainTrigger *bool `yaml:"allow_plain_trigger"`
}

func (c ExchangeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec * float64(time.Second))
}

func (c ExchangeConfig) WaitPeriod() time.Duration {
	return time.Duration(c.WaitTimeout) * time.Second
}

func (c ExchangeConfig) PlainTriggerAllowed() bool {
	return c.AllowPlainTrigger == nil || *c.AllowPlainTrigger
}

type RegistryConfig struct {
	Backend       string        `yaml:"backend" env:"BACKEND" env-default:"memory" validate:"oneof=memory redis"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" validate:"min=0"`
	Prefix        string        `yaml:"prefix" env:"PREFIX" env-default:"license_exchange:session:"`
	LockTTL       time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

type AutoReplyConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	URL         string        `yaml:"url" env:"URL" env-default:"https://openrouter.ai/api/v1/chat/completions" validate:"omitempty,url"`
	Token       string        `yaml:"token" env:"TOKEN" validate:"required_if=Enabled true"`
	Model       string        `yaml:"model" env:"MODEL"`
	Prompt      string        `yaml:"prompt" env:"PROMPT" env-default:"Answer the user briefly and politely."`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"20s"`
	MinInterval time.Duration `yaml:"min_interval" env:"MIN_INTERVAL" env-default:"30s"`
}

type OpsConfig struct {
	// пустой адрес отключает HTTP для /healthz и /metrics
	Addr string `yaml:"addr" env:"ADDR" env-default:":9090"`
}

// Load читает конфиг из файла (если указан) и переменных окружения
func Load() (*AppConfig, error) {
	return LoadPath(fetchConfigPath())
}

func LoadPath(path string) (*AppConfig, error) {
	var cfg AppConfig

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфига: %w", err)
	}

	cfg.applyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения после подстановки дефолтов
func Validate(cfg *AppConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", verrs)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *AppConfig) applyDefaults() {
	// лок должен пережить оба ожидания и сам запрос
	if c.Registry.LockTTL <= 0 {
		c.Registry.LockTTL = 2*c.Exchange.WaitPeriod() + c.Exchange.Timeout() + 30*time.Second
	}
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
