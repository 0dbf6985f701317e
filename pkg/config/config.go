package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ECHOBASE_MYSQL_DSN.
const EnvPrefix = "ECHOBASE"

// Limits the lmstfy server puts on a single consume call. The wait is sent in
// whole seconds, rounded up, and must stay below 600.
const (
	LmstfyMaxBatchSize = 100
	LmstfyMaxWaitTime  = 599 * time.Second
)

// Role selects which sections Validate insists on.
type Role string

const (
	RoleAPI      Role = "api"
	RoleConsumer Role = "consumer"
)

// Queue drivers.
const (
	QueueDriverLmstfy = "lmstfy"
	QueueDriverMemory = "memory"
)

// Config is the process configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Lmstfy    LmstfyConfig    `mapstructure:"lmstfy"`
	Order     OrderConfig     `mapstructure:"order"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"` // empty: stdout only
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MySQLConfig holds the gorm connection and pool settings.
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the order-completed notifier. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// QueueConfig picks the queue backend. The memory driver only works when
// producer and consumer share a process.
type QueueConfig struct {
	Driver            string        `mapstructure:"driver"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxReceives       int           `mapstructure:"max_receives"`
}

type LmstfyConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Namespace string        `mapstructure:"namespace"`
	Token     string        `mapstructure:"token"`
	Queue     string        `mapstructure:"queue"`
	TTL       time.Duration `mapstructure:"ttl"`   // job lifetime, 0 keeps forever
	Tries     int           `mapstructure:"tries"` // deliveries before the job is dead-lettered
	Delay     time.Duration `mapstructure:"delay"`
	TTR       time.Duration `mapstructure:"ttr"` // visibility window
}

type OrderConfig struct {
	MaxOrderValue string `mapstructure:"max_order_value"`
}

// MaxValue parses MaxOrderValue.
func (o OrderConfig) MaxValue() (decimal.Decimal, error) {
	return decimal.NewFromString(o.MaxOrderValue)
}

type ConsumerConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	WaitTime         time.Duration `mapstructure:"wait_time"`
	MessageTimeout   time.Duration `mapstructure:"message_timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	LivenessFile     string        `mapstructure:"liveness_file"`
	LivenessMaxAge   time.Duration `mapstructure:"liveness_max_age"`
	MetricsAddr      string        `mapstructure:"metrics_addr"` // empty: no probe/metrics listener
}

type ReadinessConfig struct {
	HealthyTTL   time.Duration `mapstructure:"healthy_ttl"`
	UnhealthyTTL time.Duration `mapstructure:"unhealthy_ttl"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

type CatalogConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type TelemetryConfig struct {
	Tracing bool `mapstructure:"tracing"`
	Metrics bool `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "echobase")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_open_conns", 10)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "orders:completed")

	v.SetDefault("queue.driver", QueueDriverLmstfy)
	v.SetDefault("queue.visibility_timeout", 30*time.Second)
	v.SetDefault("queue.max_receives", 0)

	v.SetDefault("lmstfy.host", "127.0.0.1")
	v.SetDefault("lmstfy.port", 7777)
	v.SetDefault("lmstfy.namespace", "echobase")
	v.SetDefault("lmstfy.token", "")
	v.SetDefault("lmstfy.queue", "orders")
	v.SetDefault("lmstfy.ttl", time.Duration(0))
	v.SetDefault("lmstfy.tries", 10)
	v.SetDefault("lmstfy.delay", time.Duration(0))
	v.SetDefault("lmstfy.ttr", 30*time.Second)

	v.SetDefault("order.max_order_value", "10000.00")

	v.SetDefault("consumer.batch_size", 10)
	v.SetDefault("consumer.wait_time", 20*time.Second)
	v.SetDefault("consumer.message_timeout", 10*time.Second)
	v.SetDefault("consumer.failure_threshold", 5)
	v.SetDefault("consumer.base_delay", 5*time.Second)
	v.SetDefault("consumer.max_delay", 120*time.Second)
	v.SetDefault("consumer.liveness_file", "/tmp/echobase-consumer.alive")
	v.SetDefault("consumer.liveness_max_age", 120*time.Second)
	v.SetDefault("consumer.metrics_addr", "")

	v.SetDefault("readiness.healthy_ttl", 5*time.Second)
	v.SetDefault("readiness.unhealthy_ttl", 1*time.Second)
	v.SetDefault("readiness.check_timeout", 2*time.Second)

	v.SetDefault("catalog.ttl", 60*time.Second)

	v.SetDefault("telemetry.tracing", true)
	v.SetDefault("telemetry.metrics", true)
}

// Load reads configPath (skipped when empty) over the defaults, then applies
// ECHOBASE_ environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the sections the given role depends on.
func (c *Config) Validate(role Role) error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}

	switch c.Queue.Driver {
	case QueueDriverLmstfy:
		if c.Lmstfy.Host == "" {
			return fmt.Errorf("lmstfy.host is required")
		}
		if c.Lmstfy.Queue == "" {
			return fmt.Errorf("lmstfy.queue is required")
		}
		if c.Lmstfy.TTR < time.Second {
			return fmt.Errorf("lmstfy.ttr must be at least 1s")
		}
		if c.Lmstfy.Tries <= 0 || c.Lmstfy.Tries > 65535 {
			return fmt.Errorf("lmstfy.tries must be between 1 and 65535")
		}
	case QueueDriverMemory:
		if c.Queue.VisibilityTimeout <= 0 {
			return fmt.Errorf("queue.visibility_timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown queue.driver %q", c.Queue.Driver)
	}

	switch role {
	case RoleAPI:
		maxValue, err := c.Order.MaxValue()
		if err != nil {
			return fmt.Errorf("order.max_order_value is not a decimal: %w", err)
		}
		if !maxValue.IsPositive() {
			return fmt.Errorf("order.max_order_value must be positive")
		}
		if c.Server.Addr == "" {
			return fmt.Errorf("server.addr is required")
		}
	case RoleConsumer:
		if c.Consumer.BatchSize <= 0 {
			return fmt.Errorf("consumer.batch_size must be positive")
		}
		if c.Consumer.WaitTime <= 0 {
			return fmt.Errorf("consumer.wait_time must be positive")
		}
		if c.Consumer.FailureThreshold <= 0 {
			return fmt.Errorf("consumer.failure_threshold must be positive")
		}
		if c.Consumer.LivenessFile == "" {
			return fmt.Errorf("consumer.liveness_file is required")
		}
		if c.Queue.Driver == QueueDriverLmstfy {
			if c.Consumer.BatchSize > LmstfyMaxBatchSize {
				return fmt.Errorf("consumer.batch_size must be at most %d with the lmstfy driver", LmstfyMaxBatchSize)
			}
			if c.Consumer.WaitTime > LmstfyMaxWaitTime {
				return fmt.Errorf("consumer.wait_time must be at most %s with the lmstfy driver", LmstfyMaxWaitTime)
			}
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	return nil
}
