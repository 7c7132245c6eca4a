package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Tracking TrackingConfig
	Fusion   FusionConfig
	Geofence GeofenceConfig
	Sessions SessionConfig
	Reports  ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret         string
	Expiration     time.Duration
	CheckInCodeTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TrackingConfig sets the client heartbeat cadences.
type TrackingConfig struct {
	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
}

// FusionConfig tunes the GPS/PDR position fusion engine.
type FusionConfig struct {
	MinGPSAccuracyMeters float64
	UserHeightCm         float64
	SensorFrequencyHz    int
}

// GeofenceConfig tunes heartbeat evaluation policy.
type GeofenceConfig struct {
	AccuracySkipMeters float64
	ViolationWindow    int
	ViolationThreshold int
	ResolutionCacheTTL time.Duration
}

// SessionConfig governs session lifecycle policy.
type SessionConfig struct {
	AutoEndAfter time.Duration
	LateAfter    time.Duration
}

// ReportsConfig configures asynchronous attendance report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:         v.GetString("JWT_SECRET"),
		Expiration:     parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		CheckInCodeTTL: parseDuration(v.GetString("CHECKIN_CODE_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Tracking = TrackingConfig{
		ForegroundInterval: parseDuration(v.GetString("TRACKING_FOREGROUND_INTERVAL"), 30*time.Second),
		BackgroundInterval: parseDuration(v.GetString("TRACKING_BACKGROUND_INTERVAL"), 60*time.Second),
	}

	cfg.Fusion = FusionConfig{
		MinGPSAccuracyMeters: v.GetFloat64("FUSION_MIN_GPS_ACCURACY_M"),
		UserHeightCm:         v.GetFloat64("FUSION_USER_HEIGHT_CM"),
		SensorFrequencyHz:    v.GetInt("FUSION_SENSOR_FREQUENCY_HZ"),
	}

	cfg.Geofence = GeofenceConfig{
		AccuracySkipMeters: v.GetFloat64("GEOFENCE_ACCURACY_SKIP_M"),
		ViolationWindow:    v.GetInt("GEOFENCE_VIOLATION_WINDOW"),
		ViolationThreshold: v.GetInt("GEOFENCE_VIOLATION_THRESHOLD"),
		ResolutionCacheTTL: parseDuration(v.GetString("GEOFENCE_RESOLUTION_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Sessions = SessionConfig{
		AutoEndAfter: parseDuration(v.GetString("SESSION_AUTO_END_AFTER"), 2*time.Hour),
		LateAfter:    parseDuration(v.GetString("SESSION_LATE_AFTER"), 15*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "presence")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("CHECKIN_CODE_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TRACKING_FOREGROUND_INTERVAL", "30s")
	v.SetDefault("TRACKING_BACKGROUND_INTERVAL", "60s")

	v.SetDefault("FUSION_MIN_GPS_ACCURACY_M", 40.0)
	v.SetDefault("FUSION_USER_HEIGHT_CM", 170.0)
	v.SetDefault("FUSION_SENSOR_FREQUENCY_HZ", 60)

	v.SetDefault("GEOFENCE_ACCURACY_SKIP_M", 100.0)
	v.SetDefault("GEOFENCE_VIOLATION_WINDOW", 4)
	v.SetDefault("GEOFENCE_VIOLATION_THRESHOLD", 3)
	v.SetDefault("GEOFENCE_RESOLUTION_CACHE_TTL", "5m")

	v.SetDefault("SESSION_AUTO_END_AFTER", "2h")
	v.SetDefault("SESSION_LATE_AFTER", "15m")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
