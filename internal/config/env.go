package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// envReader applies environment overrides and keeps every parse failure
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) apply(c *Config) {
	e.str("PORT", &c.Server.Port)
	e.str("SERVER_ENV", &c.Server.Env)
	e.duration("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	e.duration("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	e.str("TRIGGER_SECRET", &c.Server.TriggerSecret)

	e.str("LOG_LEVEL", &c.Log.Level)

	e.str("STORE_DRIVER", &c.Store.Driver)
	e.str("MONGO_URI", &c.Store.MongoURI)
	e.str("MONGO_DATABASE", &c.Store.MongoDatabase)
	e.str("APP_ID", &c.Store.AppID)
	e.str("REGION", &c.Store.Region)
	e.boolean("SEED_DATA", &c.Store.SeedData)

	e.integer("BID_MAX_CAS_ATTEMPTS", &c.Bidding.MaxCASAttempts)
	e.float("BID_RATE_LIMIT", &c.Bidding.RateLimit)
	e.integer("BID_RATE_BURST", &c.Bidding.RateBurst)

	e.duration("RECONCILE_INTERVAL", &c.Reconcile.Interval)
	e.integer("RECONCILE_CONCURRENCY", &c.Reconcile.Concurrency)

	e.str("EMAIL_API_URL", &c.Email.APIURL)
	e.str("RESEND_API_KEY", &c.Email.APIKey)
	e.str("EMAIL_FROM_ADDRESS", &c.Email.FromAddress)
	e.str("EMAIL_FROM_NAME", &c.Email.FromName)
	e.str("ADMIN_EMAIL", &c.Email.AdminAddress)
	e.str("ADMIN_TAG", &c.Email.AdminTag)
	e.duration("EMAIL_SEND_TIMEOUT", &c.Email.SendTimeout)
	e.float("EMAIL_RATE_LIMIT", &c.Email.RateLimit)
	e.integer("EMAIL_RATE_BURST", &c.Email.RateBurst)

	e.str("NOTIFY_TRANSPORT", &c.Notify.Transport)
	e.integer("NOTIFY_WORKERS", &c.Notify.Workers)
	e.integer("NOTIFY_QUEUE_SIZE", &c.Notify.QueueSize)
	e.integer("NOTIFY_MAX_ATTEMPTS", &c.Notify.MaxAttempts)
	e.duration("NOTIFY_BACKOFF_BASE", &c.Notify.BackoffBase)
	e.duration("NOTIFY_BACKOFF_MAX", &c.Notify.BackoffMax)
	e.str("NOTIFY_DEDUP", &c.Notify.Dedup)
	e.duration("NOTIFY_DEDUP_TTL", &c.Notify.DedupTTL)
	e.integer("NOTIFY_DEDUP_SIZE", &c.Notify.DedupSize)
	e.integer("NOTIFY_EMAIL_CACHE_SIZE", &c.Notify.EmailCacheSize)

	e.list("KAFKA_BROKERS", &c.Kafka.Brokers)
	e.str("KAFKA_TOPIC", &c.Kafka.Topic)
	e.str("KAFKA_GROUP_ID", &c.Kafka.GroupID)

	e.str("REDIS_ADDR", &c.Redis.Addr)
	e.str("REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", key, value, want))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, "integer")
		return
	}
	*dst = i
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, "number")
		return
	}
	*dst = f
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "boolean")
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, "duration")
		return
	}
	dst.Duration = d
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
