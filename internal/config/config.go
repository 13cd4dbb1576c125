package config

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	App struct {
		Port    int
		AgentID string
	}
	Database struct {
		URL string
	}
	Redis struct {
		Addr string
	}
	MQTT struct {
		Broker   string
		ClientID string
	}
	JWT struct {
		Secret string
	}
	MDNS struct {
		LocalName string
	}
	Watchdog struct {
		IntervalSecs  int
		ThresholdSecs int
	}
	Cloud struct {
		Enabled      bool
		BaseURL      string
		ClientID     string
		ClientSecret string
		PushMillis   int
		PullMillis   int
	}
	LogLevel string
}

// LoadConfig reads configuration from file, .env, or env vars
func LoadConfig() (*Config, error) {
	// .env is optional; config.yaml and real env vars win
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	viper.SetDefault("APP_PORT", 5069)
	viper.SetDefault("MDNS_LOCAL_NAME", "homehub.local")
	viper.SetDefault("WATCHDOG_INTERVAL_SECS", 30)
	viper.SetDefault("WATCHDOG_THRESHOLD_SECS", 90)
	viper.SetDefault("CLOUD_PUSH_MILLIS", 500)
	viper.SetDefault("CLOUD_PULL_MILLIS", 1000)
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{}
	cfg.App.Port = viper.GetInt("APP_PORT")
	cfg.App.AgentID = viper.GetString("AGENT_ID")
	cfg.Database.URL = viper.GetString("DB_URL")
	cfg.Redis.Addr = viper.GetString("REDIS_ADDR")
	cfg.MQTT.Broker = viper.GetString("MQTT_BROKER")
	cfg.MQTT.ClientID = viper.GetString("MQTT_CLIENT_ID")
	cfg.JWT.Secret = viper.GetString("JWT_SECRET")
	cfg.MDNS.LocalName = viper.GetString("MDNS_LOCAL_NAME")
	cfg.Watchdog.IntervalSecs = viper.GetInt("WATCHDOG_INTERVAL_SECS")
	cfg.Watchdog.ThresholdSecs = viper.GetInt("WATCHDOG_THRESHOLD_SECS")
	cfg.Cloud.Enabled = viper.GetBool("CLOUD_ENABLED")
	cfg.Cloud.BaseURL = viper.GetString("CLOUD_BASE_URL")
	cfg.Cloud.ClientID = viper.GetString("CLOUD_CLIENT_ID")
	cfg.Cloud.ClientSecret = viper.GetString("CLOUD_CLIENT_SECRET")
	cfg.Cloud.PushMillis = viper.GetInt("CLOUD_PUSH_MILLIS")
	cfg.Cloud.PullMillis = viper.GetInt("CLOUD_PULL_MILLIS")
	cfg.LogLevel = viper.GetString("LOG_LEVEL")
	return cfg, nil
}
