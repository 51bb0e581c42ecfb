package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	VK       VKConfig       `mapstructure:"vk"`
	Workouts WorkoutsConfig `mapstructure:"workouts"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	// Origins allowed to call the API from the mini-app webview.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the record store backend.
// Driver "memory" keeps everything in process and is meant for local runs.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URI    string `mapstructure:"uri"`
	Name   string `mapstructure:"name"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	// PublicURL is the base under which uploaded avatars are served.
	PublicURL string `mapstructure:"public_url"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// VKConfig holds the host platform credentials and API settings.
type VKConfig struct {
	AppID             string        `mapstructure:"app_id"`
	AppSecret         string        `mapstructure:"app_secret"`
	ServiceToken      string        `mapstructure:"service_token"`
	APIURL            string        `mapstructure:"api_url"`
	APIVersion        string        `mapstructure:"api_version"`
	Language          string        `mapstructure:"language"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Notifications     bool          `mapstructure:"notifications"`
	Timeout           time.Duration `mapstructure:"timeout"`
	// LaunchTTL bounds the age of vk_ts in launch params. Zero disables the check.
	LaunchTTL time.Duration `mapstructure:"launch_ttl"`
}

type WorkoutsConfig struct {
	// Timezone used to interpret workout date/time pairs.
	Timezone string `mapstructure:"timezone"`
}

// SessionConfig bounds how long an unused session stays in memory.
type SessionConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Location resolves the configured workout time zone, falling back to UTC.
func (w WorkoutsConfig) Location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, vk.app_secret -> VK_APP_SECRET
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// No file is fine, env vars and defaults still apply.
		err = nil
	} else if err != nil {
		return
	}

	// Env vars are only visible to Unmarshal for keys viper already knows about.
	for _, key := range []string{
		"jwt.secret", "vk.app_id", "vk.app_secret", "vk.service_token",
		"s3.endpoint", "s3.region", "s3.access_key_id", "s3.secret_access_key", "s3.bucket_name",
	} {
		_ = v.BindEnv(key)
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"https://vk.com", "https://m.vk.com"})
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "trainsync")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("vk.api_url", "https://api.vk.com/method")
	v.SetDefault("vk.api_version", "5.199")
	v.SetDefault("vk.language", "ru")
	v.SetDefault("vk.requests_per_second", 3)
	v.SetDefault("vk.notifications", false)
	v.SetDefault("vk.timeout", "10s")
	v.SetDefault("vk.launch_ttl", "24h")
	v.SetDefault("workouts.timezone", "Europe/Moscow")
	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}
