package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	} `yaml:"server"`
	Log struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"signaldesk.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Webhook struct {
		Secret     string        `yaml:"secret"`
		RateWindow time.Duration `yaml:"rate_window" default:"10s" validate:"gte=1s"`
		RateMax    int64         `yaml:"rate_max" default:"30" validate:"gt=0"`
	} `yaml:"webhook"`
	Admin struct {
		Token string `yaml:"token"`
	} `yaml:"admin"`
	Store struct {
		// Backend selects the shared store: redis, or memory for a single instance.
		Backend string `yaml:"backend" default:"redis" validate:"oneof=redis memory"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"20"`
	} `yaml:"redis"`
	Locks struct {
		AITTL time.Duration `yaml:"ai_ttl" default:"60s"`
	} `yaml:"locks"`
	Queue struct {
		Prefix     string        `yaml:"prefix" default:"signaldesk:queue"`
		Workers    int           `yaml:"workers" default:"2" validate:"gt=0"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		Buffer     int           `yaml:"buffer" default:"256"`
	} `yaml:"queue"`
	AI struct {
		Provider   string        `yaml:"provider" default:"template" validate:"oneof=template openai"`
		APIKey     string        `yaml:"api_key"`
		Model      string        `yaml:"model" default:"gpt-4o-mini"`
		BaseURL    string        `yaml:"base_url" default:"https://api.openai.com/v1"`
		Timeout    time.Duration `yaml:"timeout" default:"15s"`
		MaxRetries uint64        `yaml:"max_retries" default:"2"`
	} `yaml:"ai"`
	Market struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		BaseURL string        `yaml:"base_url" default:"https://fapi.binance.com"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
		RPS     float64       `yaml:"rps" default:"5"`
		Burst   int           `yaml:"burst" default:"10"`
		Cache   struct {
			Shared     bool `yaml:"shared"`
			MemorySize int  `yaml:"memory_size" default:"1000"`
		} `yaml:"cache"`
	} `yaml:"market"`
	PriceStream struct {
		Enabled        bool          `yaml:"enabled" default:"true"`
		URL            string        `yaml:"url" default:"wss://fstream.binance.com/ws/!miniTicker@arr"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		RelayInterval  time.Duration `yaml:"relay_interval" default:"1s"`
	} `yaml:"price_stream"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		ClientID       string   `yaml:"client_id" default:"signaldesk"`
		Compression    string   `yaml:"compression" default:"snappy" validate:"oneof=snappy gzip lz4 zstd"`
		RequiredAcks   int      `yaml:"required_acks" default:"1"`
		DecisionsTopic string   `yaml:"decisions_topic" default:"signaldesk.decisions"`
		Producer       struct {
			Enabled      bool          `yaml:"enabled"`
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled     bool          `yaml:"enabled"`
			AlertsTopic string        `yaml:"alerts_topic" default:"tradingview.alerts"`
			GroupID     string        `yaml:"group_id" default:"signaldesk"`
			Workers     int           `yaml:"workers" default:"2"`
			BufferSize  int           `yaml:"buffer_size" default:"64"`
			RetryMax    uint64        `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"tradingview.alerts.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	NATS struct {
		URL           string        `yaml:"url"`
		Name          string        `yaml:"name" default:"signaldesk"`
		SubjectPrefix string        `yaml:"subject_prefix" default:"signaldesk.decisions"`
		MaxReconnects int           `yaml:"max_reconnects" default:"60"`
		ReconnectWait time.Duration `yaml:"reconnect_wait" default:"2s"`
	} `yaml:"nats"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"default"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		Table       string        `yaml:"table" default:"decision_audit"`
		AsyncInsert bool          `yaml:"async_insert" default:"true"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
		MaxOpen     int           `yaml:"max_open" default:"10"`
		MaxIdle     int           `yaml:"max_idle" default:"5"`
	} `yaml:"clickhouse"`

	// Runtime seeds the hot-swappable RuntimeConfig. Keys left out keep their
	// built-in defaults; maps given here replace the default maps.
	Runtime map[string]interface{} `yaml:"runtime"`
}

var configValidator = validator.New()

// Default returns the built-in configuration without reading any file.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, overrides with environment variables
// and validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("APP_ENV", &c.Environment)
	set("LOG_LEVEL", &c.Log.Level)
	set("TV_WEBHOOK_SECRET", &c.Webhook.Secret)
	set("ADMIN_TOKEN", &c.Admin.Token)
	set("REDIS_ADDR", &c.Redis.Addr)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("AI_PROVIDER", &c.AI.Provider)
	set("AI_API_KEY", &c.AI.APIKey)
	set("AI_MODEL", &c.AI.Model)
	set("AI_BASE_URL", &c.AI.BaseURL)
	set("NATS_URL", &c.NATS.URL)
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.AI.Provider = strings.ToLower(c.AI.Provider)
}

// RuntimeConfig decodes the runtime section over the built-in defaults.
func (c *Config) RuntimeConfig() (models.RuntimeConfig, error) {
	if len(c.Runtime) == 0 {
		return models.DefaultRuntimeConfig(), nil
	}
	data, err := json.Marshal(c.Runtime)
	if err != nil {
		return models.RuntimeConfig{}, fmt.Errorf("runtime section: %w", err)
	}
	return models.DecodeRuntimeConfig(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required (TV_WEBHOOK_SECRET)")
	}
	if c.Kafka.Consumer.Enabled || c.Kafka.Producer.Enabled || c.Log.Collector.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Store.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis store")
	}
	if _, err := c.RuntimeConfig(); err != nil {
		return err
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
