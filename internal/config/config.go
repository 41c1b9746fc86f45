package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"

	TransportRedis = "redis"
	TransportNATS  = "nats"
	TransportLocal = "local"
)

type Config struct {
	Server      ServerConfig   `mapstructure:"server"`
	AdminServer ServerConfig   `mapstructure:"admin_server"`
	Redis       RedisConfig    `mapstructure:"redis"`
	MySQL       MySQLConfig    `mapstructure:"mysql"`
	NATS        NATSConfig     `mapstructure:"nats"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Notifier    NotifierConfig `mapstructure:"notifier"`
	Leader      LeaderConfig   `mapstructure:"leader"`
	Instance    InstanceConfig `mapstructure:"instance"`
	Admin       AdminConfig    `mapstructure:"admin"`
	Log         LogConfig      `mapstructure:"log"`
	Bidding     BiddingConfig  `mapstructure:"bidding"`
	Auction     AuctionConfig  `mapstructure:"auction"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type NotifierConfig struct {
	Transport string `mapstructure:"transport"`
}

type LeaderConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type BiddingConfig struct {
	BalanceAccounting bool          `mapstructure:"balance_accounting"`
	AuditRejected     bool          `mapstructure:"audit_rejected"`
	HistoryDefault    int           `mapstructure:"history_default"`
	HistoryMax        int           `mapstructure:"history_max"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl"`
}

type AuctionConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
	ExtensionWindow time.Duration `mapstructure:"extension_window"`
	AutoFinish      bool          `mapstructure:"auto_finish"`
	SweepSchedule   string        `mapstructure:"sweep_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("admin_server.port", 8081)
	v.SetDefault("admin_server.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.migrate", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("storage.driver", DriverMySQL)
	v.SetDefault("notifier.transport", TransportRedis)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "auction-storefront-1")
	v.SetDefault("admin.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("bidding.balance_accounting", true)
	v.SetDefault("bidding.audit_rejected", false)
	v.SetDefault("bidding.history_default", 10)
	v.SetDefault("bidding.history_max", 100)
	v.SetDefault("bidding.idempotency_ttl", 10*time.Minute)
	v.SetDefault("auction.default_duration", 3*time.Minute)
	v.SetDefault("auction.extension_window", time.Duration(0))
	v.SetDefault("auction.auto_finish", true)
	v.SetDefault("auction.sweep_schedule", "@every 5s")
}

func bindEnv(v *viper.Viper) {
	// Environment variable mappings
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("admin_server.port", "ADMIN_SERVER_PORT")
	v.BindEnv("admin_server.host", "ADMIN_SERVER_HOST")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	v.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	v.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	v.BindEnv("mysql.migrate", "MYSQL_MIGRATE")
	v.BindEnv("nats.url", "NATS_URL")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("notifier.transport", "NOTIFIER_TRANSPORT")
	v.BindEnv("leader.ttl", "LEADER_TTL")
	v.BindEnv("instance.id", "INSTANCE_ID")
	v.BindEnv("admin.token", "ADMIN_TOKEN")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("bidding.balance_accounting", "BIDDING_BALANCE_ACCOUNTING")
	v.BindEnv("bidding.audit_rejected", "BIDDING_AUDIT_REJECTED")
	v.BindEnv("bidding.history_default", "BIDDING_HISTORY_DEFAULT")
	v.BindEnv("bidding.history_max", "BIDDING_HISTORY_MAX")
	v.BindEnv("bidding.idempotency_ttl", "BIDDING_IDEMPOTENCY_TTL")
	v.BindEnv("auction.default_duration", "AUCTION_DEFAULT_DURATION")
	v.BindEnv("auction.extension_window", "AUCTION_EXTENSION_WINDOW")
	v.BindEnv("auction.auto_finish", "AUCTION_AUTO_FINISH")
	v.BindEnv("auction.sweep_schedule", "AUCTION_SWEEP_SCHEDULE")
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-storefront/")

	v.AutomaticEnv()
	bindEnv(v)

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.Storage.Driver = strings.ToLower(config.Storage.Driver)
	config.Notifier.Transport = strings.ToLower(config.Notifier.Transport)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMySQL:
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("mysql.dsn is required with the mysql driver"))
		}
	case DriverMemory:
		if c.Notifier.Transport != TransportLocal {
			errs = append(errs, errors.New("the memory driver runs in one process and needs notifier.transport=local"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Notifier.Transport {
	case TransportRedis, TransportLocal:
	case TransportNATS:
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is required with the nats transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notifier.transport %q", c.Notifier.Transport))
	}

	if c.Bidding.HistoryDefault <= 0 {
		errs = append(errs, errors.New("bidding.history_default must be positive"))
	}
	if c.Bidding.HistoryMax < c.Bidding.HistoryDefault {
		errs = append(errs, errors.New("bidding.history_max must not be below bidding.history_default"))
	}
	if c.Bidding.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("bidding.idempotency_ttl must be positive"))
	}
	if c.Auction.DefaultDuration <= 0 {
		errs = append(errs, errors.New("auction.default_duration must be positive"))
	}
	if c.Auction.ExtensionWindow < 0 {
		errs = append(errs, errors.New("auction.extension_window must not be negative"))
	}
	if _, err := cron.ParseStandard(c.Auction.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("auction.sweep_schedule: %w", err))
	}
	if c.Leader.TTL < 3*time.Second {
		errs = append(errs, errors.New("leader.ttl must be at least 3s"))
	}

	return errors.Join(errs...)
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s, Admin: %s, Storage: %s, Notifier: %s, Redis: %s, Instance: %s",
		c.Server.Address(),
		c.AdminServer.Address(),
		c.Storage.Driver,
		c.Notifier.Transport,
		c.Redis.Address,
		c.Instance.ID,
	)
}
