package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	ServiceName string `yaml:"service_name" default:"insider-signals"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Log struct {
		Level   string `yaml:"level" default:"info"`
		Format  string `yaml:"format" default:"json"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled     bool          `yaml:"enabled"`
			Interval    time.Duration `yaml:"interval" default:"30s"`
			Threshold   int           `yaml:"threshold" default:"100"`
			Topic       string        `yaml:"topic" default:"insider.logs"`
			IncludeWarn bool          `yaml:"include_warn"`
		} `yaml:"collect"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Store struct {
		Backend string `yaml:"backend" default:"memory"`
	} `yaml:"store"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"20"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" default:"5m"`
		LogLevel        string        `yaml:"log_level" default:"silent"`
		AutoMigrate     bool          `yaml:"auto_migrate" default:"true"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"insider"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		TradesTopic  string   `yaml:"trades_topic" default:"insider.trades"`
		SignalsTopic string   `yaml:"signals_topic" default:"insider.signals"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled" default:"true"`
			GroupID    string        `yaml:"group_id" default:"insider-signals"`
			Offset     string        `yaml:"auto_offset_reset" default:"earliest"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"insider.trades.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"insider"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Mode       string        `yaml:"mode" default:"both"`
		Workers    int           `yaml:"workers" default:"2"`
		QueueSize  int           `yaml:"queue_size" default:"100"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"queue"`
	Scheduler struct {
		Enabled      bool          `yaml:"enabled" default:"true"`
		GenerateCron string        `yaml:"generate_cron" default:"0 30 6 * * *"`
		RunOnStart   bool          `yaml:"run_on_start"`
		JobTimeout   time.Duration `yaml:"job_timeout" default:"10m"`
		// DigestCron schedules the daily digest; empty disables it.
		DigestCron string `yaml:"digest_cron" default:"0 0 7 * * *"`
		DigestTopN int    `yaml:"digest_top_n" default:"10"`
	} `yaml:"scheduler"`
	Ingest struct {
		BatchSize     int           `yaml:"batch_size" default:"500"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"20ms"`
		FlushAttempts int           `yaml:"flush_attempts" default:"3"`
		BufferSize    int           `yaml:"buffer_size" default:"5000"`
		LockTTL       time.Duration `yaml:"lock_ttl" default:"10m"`
		LockWait      time.Duration `yaml:"lock_wait" default:"30s"`
	} `yaml:"ingest"`
	Engine     Engine `yaml:"engine"`
	MarketData struct {
		Enabled  bool          `yaml:"enabled"`
		BaseURL  string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
		APIKey   string        `yaml:"api_key"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"24h"`
	} `yaml:"marketdata"`
	API struct {
		SignalsCacheTTL time.Duration `yaml:"signals_cache_ttl" default:"30s"`
		GenerateLimit   struct {
			Capacity     float64 `yaml:"capacity" default:"5"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"0.1"`
		} `yaml:"generate_limit"`
	} `yaml:"api"`
}

// Engine holds detection and generation parameters.
type Engine struct {
	WindowDays              int           `yaml:"window_days" default:"90"`
	ClusterMinFilers        int           `yaml:"cluster_min_filers" default:"3"`
	ClusterWindowDays       int           `yaml:"cluster_window_days" default:"7"`
	ClusterSaturationFilers int           `yaml:"cluster_saturation_filers" default:"6"`
	VolumeBaselineMultiple  float64       `yaml:"volume_baseline_multiple" default:"1.0"`
	VolumeHistoryWindows    int           `yaml:"volume_history_windows" default:"3"`
	VolumeSaturation        float64       `yaml:"volume_saturation_multiple" default:"5"`
	VolumeMinTrades         int           `yaml:"volume_min_trades" default:"2"`
	MomentumMinTrades       int           `yaml:"momentum_min_trades" default:"2"`
	MomentumSaturation      int           `yaml:"momentum_saturation_trades" default:"5"`
	AmountSaturationUSD     float64       `yaml:"amount_saturation_usd" default:"10000000"`
	BipartisanEnabled       bool          `yaml:"bipartisan_enabled" default:"true"`
	BipartisanBonus         float64       `yaml:"bipartisan_bonus" default:"0.1"`
	CashReservePct          float64       `yaml:"cash_reserve_pct" default:"0.5"`
	RiskTolerance           string        `yaml:"risk_tolerance" default:"moderate"`
	PortfolioValue          float64       `yaml:"portfolio_value" default:"100000"`
	SignalTTL               time.Duration `yaml:"signal_ttl" default:"168h"`
	Weights                 struct {
		Volume    float64 `yaml:"volume" default:"0.4"`
		Frequency float64 `yaml:"frequency" default:"0.3"`
		Amount    float64 `yaml:"amount" default:"0.2"`
		Recency   float64 `yaml:"recency" default:"0.1"`
	} `yaml:"weights"`
}

// envOverrides lists the settings deployments set through the environment.
type envOverrides struct {
	Environment    string   `env:"APP_ENV"`
	Port           int      `env:"HTTP_PORT"`
	LogLevel       string   `env:"LOG_LEVEL"`
	StoreBackend   string   `env:"STORE_BACKEND"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	RedisHost      string   `env:"REDIS_HOST"`
	RedisPassword  string   `env:"REDIS_PASSWORD"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	ClickHouseHost string   `env:"CLICKHOUSE_HOST"`
	RiskTolerance  string   `env:"RISK_TOLERANCE"`
	PortfolioValue float64  `env:"PORTFOLIO_VALUE"`
	FinnhubAPIKey  string   `env:"FINNHUB_API_KEY"`
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if o.Environment != "" {
		c.Environment = o.Environment
	}
	if o.Port > 0 {
		c.Server.Port = o.Port
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.StoreBackend != "" {
		c.Store.Backend = o.StoreBackend
	}
	if o.DatabaseURL != "" {
		c.Postgres.DSN = o.DatabaseURL
	}
	if o.RedisHost != "" {
		c.Redis.Host = o.RedisHost
		c.Redis.Enabled = true
	}
	if o.RedisPassword != "" {
		c.Redis.Password = o.RedisPassword
	}
	if len(o.KafkaBrokers) > 0 {
		c.Kafka.Brokers = o.KafkaBrokers
	}
	if o.ClickHouseHost != "" {
		c.ClickHouse.Host = o.ClickHouseHost
	}
	if o.RiskTolerance != "" {
		c.Engine.RiskTolerance = o.RiskTolerance
	}
	if o.PortfolioValue != 0 {
		c.Engine.PortfolioValue = o.PortfolioValue
	}
	if o.FinnhubAPIKey != "" {
		c.MarketData.APIKey = o.FinnhubAPIKey
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path == "" {
		return &c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when store.backend is 'postgres'")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend must be 'postgres' or 'memory', got '%s'", c.Store.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	switch c.Queue.Mode {
	case "both", "producer", "consumer":
	default:
		return fmt.Errorf("queue.mode must be 'both', 'producer' or 'consumer', got '%s'", c.Queue.Mode)
	}
	switch c.Kafka.Consumer.Offset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("kafka.consumer.auto_offset_reset must be 'earliest' or 'latest', got '%s'", c.Kafka.Consumer.Offset)
	}
	if c.Log.Collect.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log.collect requires kafka.enabled")
	}
	if c.MarketData.Enabled && c.MarketData.APIKey == "" {
		return fmt.Errorf("marketdata.api_key is required when marketdata is enabled")
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.GenerateCron) == "" {
		return fmt.Errorf("scheduler.generate_cron is required when the scheduler is enabled")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	return c.Engine.Validate()
}

// Validate checks engine parameters that can be judged without the domain
// model. Run-level checks happen again when a run is configured.
func (e *Engine) Validate() error {
	switch strings.ToLower(e.RiskTolerance) {
	case "conservative", "moderate", "aggressive":
	default:
		return fmt.Errorf("engine.risk_tolerance must be 'conservative', 'moderate' or 'aggressive', got '%s'", e.RiskTolerance)
	}
	if e.PortfolioValue <= 0 {
		return fmt.Errorf("engine.portfolio_value must be greater than 0, got %v", e.PortfolioValue)
	}
	if e.WindowDays <= 0 {
		return fmt.Errorf("engine.window_days must be positive, got %d", e.WindowDays)
	}
	if e.ClusterMinFilers < 2 {
		return fmt.Errorf("engine.cluster_min_filers must be at least 2, got %d", e.ClusterMinFilers)
	}
	if e.CashReservePct < 0 || e.CashReservePct >= 1 {
		return fmt.Errorf("engine.cash_reserve_pct must be in [0,1), got %v", e.CashReservePct)
	}
	return nil
}
