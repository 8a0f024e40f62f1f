// Package config loads the service configuration: defaults, then an optional
// TOML file named by CONFIG_FILE, then environment variables. Values are read
// once at startup and treated as immutable.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	// Bid changes reach the dispatcher from exactly one source: the ledger
	// change feed (in process or relayed over Kafka) or the authenticated
	// trigger endpoint fed by the hosting runtime.
	TransportInProcess = "inprocess"
	TransportKafka     = "kafka"
	TransportTrigger   = "trigger"

	DedupNone   = "none"
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

const minTriggerSecret = 16

// Duration reads "1m30s" style strings from TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Store     StoreConfig     `toml:"store"`
	Bidding   BiddingConfig   `toml:"bidding"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Email     EmailConfig     `toml:"email"`
	Notify    NotifyConfig    `toml:"notify"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Redis     RedisConfig     `toml:"redis"`
}

type ServerConfig struct {
	Port            string   `toml:"port"`
	Env             string   `toml:"env"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// TriggerSecret is the bearer token required on the trigger endpoint
	TriggerSecret string `toml:"trigger_secret"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type StoreConfig struct {
	Driver        string `toml:"driver"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
	// AppID namespaces every ledger path of this deployment
	AppID    string `toml:"app_id"`
	Region   string `toml:"region"`
	SeedData bool   `toml:"seed_data"`
}

type BiddingConfig struct {
	MaxCASAttempts int `toml:"max_cas_attempts"`
	// RateLimit is the number of bid writes per second allowed to one user
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

type ReconcileConfig struct {
	Interval    Duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
}

type EmailConfig struct {
	APIURL       string   `toml:"api_url"`
	APIKey       string   `toml:"api_key"`
	FromAddress  string   `toml:"from_address"`
	FromName     string   `toml:"from_name"`
	AdminAddress string   `toml:"admin_address"`
	AdminTag     string   `toml:"admin_tag"`
	SendTimeout  Duration `toml:"send_timeout"`
	RateLimit    float64  `toml:"rate_limit"`
	RateBurst    int      `toml:"rate_burst"`
}

type NotifyConfig struct {
	Transport      string   `toml:"transport"`
	Workers        int      `toml:"workers"`
	QueueSize      int      `toml:"queue_size"`
	MaxAttempts    int      `toml:"max_attempts"`
	BackoffBase    Duration `toml:"backoff_base"`
	BackoffMax     Duration `toml:"backoff_max"`
	Dedup          string   `toml:"dedup"`
	DedupTTL       Duration `toml:"dedup_ttl"`
	DedupSize      int      `toml:"dedup_size"`
	EmailCacheSize int      `toml:"email_cache_size"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"`
}

type RedisConfig struct {
	Addr      string `toml:"addr"`
	KeyPrefix string `toml:"key_prefix"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			Env:             "development",
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{10 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver:        StoreMemory,
			MongoDatabase: "marketplace",
			AppID:         "default-app-id",
			Region:        "us-central1",
			SeedData:      true,
		},
		Bidding: BiddingConfig{
			MaxCASAttempts: 5,
			RateLimit:      5,
			RateBurst:      10,
		},
		Reconcile: ReconcileConfig{
			Interval:    Duration{5 * time.Minute},
			Concurrency: 4,
		},
		Email: EmailConfig{
			APIURL:      "https://api.resend.com/emails",
			FromName:    "GIGL Marketplace",
			AdminTag:    "GIGL",
			SendTimeout: Duration{10 * time.Second},
			RateLimit:   2,
			RateBurst:   2,
		},
		Notify: NotifyConfig{
			Transport:      TransportInProcess,
			Workers:        2,
			QueueSize:      256,
			MaxAttempts:    3,
			BackoffBase:    Duration{500 * time.Millisecond},
			BackoffMax:     Duration{10 * time.Second},
			Dedup:          DedupNone,
			DedupTTL:       Duration{time.Hour},
			DedupSize:      10000,
			EmailCacheSize: 1024,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "bid-changes",
			GroupID: "bid-notifier",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "bidnotify:",
		},
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}

	env := envReader{getenv: getenv}
	env.apply(&cfg)
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w - open %s", err, path)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(c); err != nil {
		return fmt.Errorf("config: %w - decode %s", err, path)
	}
	return nil
}

// Validate reports every problem at once
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		add("server.port %q is not a number", c.Server.Port)
	}
	if c.Store.AppID == "" || strings.Contains(c.Store.AppID, "/") {
		add("store.app_id must be a non-empty path segment")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreMongo:
		if c.Store.MongoURI == "" {
			add("store.mongo_uri is required with the mongo driver")
		}
		if c.Store.MongoDatabase == "" {
			add("store.mongo_database is required with the mongo driver")
		}
	default:
		add("store.driver %q is not one of memory, mongo", c.Store.Driver)
	}

	if c.Bidding.MaxCASAttempts < 1 {
		add("bidding.max_cas_attempts must be at least 1")
	}
	if c.Bidding.RateLimit < 0 {
		add("bidding.rate_limit must not be negative")
	}
	if c.Reconcile.Interval.Duration <= 0 {
		add("reconcile.interval must be positive")
	}
	if c.Reconcile.Concurrency < 1 {
		add("reconcile.concurrency must be at least 1")
	}

	if c.Email.APIKey != "" && c.Email.FromAddress == "" {
		add("email.from_address is required when email.api_key is set")
	}
	if c.Email.SendTimeout.Duration <= 0 {
		add("email.send_timeout must be positive")
	}
	if c.Email.RateLimit < 0 {
		add("email.rate_limit must not be negative")
	}

	switch c.Notify.Transport {
	case TransportInProcess:
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
			add("kafka.brokers, kafka.topic and kafka.group_id are required with the kafka transport")
		}
	case TransportTrigger:
		if len(c.Server.TriggerSecret) < minTriggerSecret {
			add("server.trigger_secret of at least %d characters is required with the trigger transport", minTriggerSecret)
		}
	default:
		add("notify.transport %q is not one of inprocess, kafka, trigger", c.Notify.Transport)
	}
	if c.Notify.Workers < 1 {
		add("notify.workers must be at least 1")
	}
	if c.Notify.QueueSize < 1 {
		add("notify.queue_size must be at least 1")
	}
	if c.Notify.MaxAttempts < 1 {
		add("notify.max_attempts must be at least 1")
	}

	switch c.Notify.Dedup {
	case DedupNone:
	case DedupMemory:
		if c.Notify.DedupSize < 1 {
			add("notify.dedup_size must be at least 1 with memory dedup")
		}
	case DedupRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required with redis dedup")
		}
	default:
		add("notify.dedup %q is not one of none, memory, redis", c.Notify.Dedup)
	}
	if c.Notify.Dedup != DedupNone && c.Notify.DedupTTL.Duration <= 0 {
		add("notify.dedup_ttl must be positive")
	}

	return errors.Join(errs...)
}

// TriggersEnabled reports whether the trigger endpoint is the change source
func (c Config) TriggersEnabled() bool {
	return c.Notify.Transport == TransportTrigger
}

// IsProduction reports whether the server runs in release mode
func (c Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// EmailEnabled reports whether outbound email is configured
func (c Config) EmailEnabled() bool {
	return c.Email.APIKey != ""
}
