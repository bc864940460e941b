package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the audit service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSSubject string
	JWTSecret   string
	CORSOrigins string

	RecordTimeout          time.Duration
	QueueSize              int
	Workers                int
	RetentionMaxDays       int
	RetentionSweepInterval time.Duration

	AnalyticsWindowDays int
	AnalyticsTopActions int
	AnalyticsCacheTTL   time.Duration

	AnomalyWindow        time.Duration
	FailedLoginThreshold int
	BulkAccessThreshold  int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AUDIT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Audit API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("http.cors_origins", "*")
	v.SetDefault("nats.subject", "audit.events")
	v.SetDefault("audit.record_timeout", "2s")
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.retention_max_days", 2555)
	v.SetDefault("audit.retention_sweep_interval", "1h")
	v.SetDefault("analytics.window_days", 30)
	v.SetDefault("analytics.top_actions", 10)
	v.SetDefault("analytics.cache_ttl", "1m")
	v.SetDefault("anomaly.window", "24h")
	v.SetDefault("anomaly.failed_login_threshold", 5)
	v.SetDefault("anomaly.bulk_access_threshold", 100)
}

func fromViper(v *viper.Viper) (Config, error) {
	durations := map[string]time.Duration{}
	for _, key := range []string{"audit.record_timeout", "audit.retention_sweep_interval", "analytics.cache_ttl", "anomaly.window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		JWTSecret:              v.GetString("jwt.secret"),
		CORSOrigins:            v.GetString("http.cors_origins"),
		RecordTimeout:          durations["audit.record_timeout"],
		QueueSize:              v.GetInt("audit.queue_size"),
		Workers:                v.GetInt("audit.workers"),
		RetentionMaxDays:       v.GetInt("audit.retention_max_days"),
		RetentionSweepInterval: durations["audit.retention_sweep_interval"],
		AnalyticsWindowDays:    v.GetInt("analytics.window_days"),
		AnalyticsTopActions:    v.GetInt("analytics.top_actions"),
		AnalyticsCacheTTL:      durations["analytics.cache_ttl"],
		AnomalyWindow:          durations["anomaly.window"],
		FailedLoginThreshold:   v.GetInt("anomaly.failed_login_threshold"),
		BulkAccessThreshold:    v.GetInt("anomaly.bulk_access_threshold"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	positives := map[string]int{
		"audit.queue_size":               cfg.QueueSize,
		"audit.workers":                  cfg.Workers,
		"audit.retention_max_days":       cfg.RetentionMaxDays,
		"analytics.window_days":          cfg.AnalyticsWindowDays,
		"analytics.top_actions":          cfg.AnalyticsTopActions,
		"anomaly.failed_login_threshold": cfg.FailedLoginThreshold,
		"anomaly.bulk_access_threshold":  cfg.BulkAccessThreshold,
	}
	for key, value := range positives {
		if value <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
	}

	return cfg, nil
}
