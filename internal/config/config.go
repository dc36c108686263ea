package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// AgentConfig configures the device-side background agent.
type AgentConfig struct {
	Env string `yaml:"env" env:"BP_ENV" env-default:"local"`

	Log struct {
		Level  string `yaml:"level" env:"BP_LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"BP_LOG_FORMAT" env-default:"json"`
	} `yaml:"log"`

	StoragePath string `yaml:"storage_path" env:"BP_STORAGE_PATH" env-default:"browsepulse.db"`
	SocketPath  string `yaml:"socket_path" env:"BP_SOCKET_PATH" env-default:"/tmp/browsepulse.sock"`

	Backend struct {
		BaseURL string `yaml:"base_url" env:"BP_BACKEND_URL" env-default:"http://localhost:8080"`
		Timeout int    `yaml:"timeout" env:"BP_BACKEND_TIMEOUT" env-default:"30"` // seconds
	} `yaml:"backend"`

	Upload struct {
		BatchSize   int `yaml:"batch_size" env:"BP_UPLOAD_BATCH_SIZE" env-default:"80"`
		AlarmPeriod int `yaml:"alarm_period" env:"BP_UPLOAD_ALARM_PERIOD" env-default:"60"` // seconds
	} `yaml:"upload"`

	Device struct {
		Name string `yaml:"name" env:"BP_DEVICE_NAME" env-default:""`
	} `yaml:"device"`
}

// ServerConfig configures the ingestion API and the scheduled jobs.
type ServerConfig struct {
	Env string `yaml:"env" env:"BP_ENV" env-default:"local"`

	Log struct {
		Level  string `yaml:"level" env:"BP_LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"BP_LOG_FORMAT" env-default:"json"`
	} `yaml:"log"`

	HTTP struct {
		Addr string `yaml:"addr" env:"BP_HTTP_ADDR" env-default:":8080"`
	} `yaml:"http"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"BP_POSTGRES_DSN" env-default:"postgres://localhost/browsepulse?sslmode=disable"`
	} `yaml:"postgres"`

	ClickHouse struct {
		Addr     string `yaml:"addr" env:"BP_CLICKHOUSE_ADDR" env-default:"localhost:9000"`
		Database string `yaml:"database" env:"BP_CLICKHOUSE_DATABASE" env-default:"browsepulse"`
		Username string `yaml:"username" env:"BP_CLICKHOUSE_USERNAME" env-default:"default"`
		Password string `yaml:"password" env:"BP_CLICKHOUSE_PASSWORD" env-default:""`
	} `yaml:"clickhouse"`

	Auth struct {
		AccessSecret  string `yaml:"access_secret" env:"BP_JWT_ACCESS_SECRET" env-required:"true"`
		RefreshSecret string `yaml:"refresh_secret" env:"BP_JWT_REFRESH_SECRET" env-required:"true"`
		AccessTTL     int    `yaml:"access_ttl" env:"BP_JWT_ACCESS_TTL" env-default:"60"`      // minutes
		RefreshTTL    int    `yaml:"refresh_ttl" env:"BP_JWT_REFRESH_TTL" env-default:"720"`   // hours
	} `yaml:"auth"`

	Jobs struct {
		AggregationPeriod   int `yaml:"aggregation_period" env:"BP_AGGREGATION_PERIOD" env-default:"15"`    // minutes
		AggregationLookback int `yaml:"aggregation_lookback" env:"BP_AGGREGATION_LOOKBACK" env-default:"12"` // hours
		InsightPeriod       int `yaml:"insight_period" env:"BP_INSIGHT_PERIOD" env-default:"3"`             // minutes
		InsightLookback     int `yaml:"insight_lookback" env:"BP_INSIGHT_LOOKBACK" env-default:"15"`        // minutes
		InsightCooldown     int `yaml:"insight_cooldown" env:"BP_INSIGHT_COOLDOWN" env-default:"2"`         // minutes
		InsightConcurrency  int `yaml:"insight_concurrency" env:"BP_INSIGHT_CONCURRENCY" env-default:"4"`
	} `yaml:"jobs"`

	Insight struct {
		Mode     string `yaml:"mode" env:"BP_INSIGHT_MODE" env-default:"template"` // template or http
		Endpoint string `yaml:"endpoint" env:"BP_INSIGHT_ENDPOINT" env-default:""`
		Timeout  int    `yaml:"timeout" env:"BP_INSIGHT_TIMEOUT" env-default:"20"` // seconds
	} `yaml:"insight"`
}

// LoadAgent reads the agent config from path, falling back to environment
// variables when the file is absent.
func LoadAgent(path string) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadServer reads the server config from path, falling back to environment
// variables when the file is absent.
func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(path string, cfg interface{}) error {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return fmt.Errorf("failed to read config %s: %w", path, err)
			}
			return nil
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to read config from environment: %w", err)
	}
	return nil
}
