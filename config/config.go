package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Devices  DevicesConfig  `mapstructure:"devices"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Geocode  GeocodeConfig  `mapstructure:"geocode"`
}

type ServerConfig struct {
	Address  string `mapstructure:"address"`
	HTTPPort string `mapstructure:"http_port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" | "json"
	File   string `mapstructure:"file"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "mysql" | "postgres" | "sqlite" | ""
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Audience  string        `mapstructure:"audience"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// DevicesConfig — per-device shared keys plus the two liveness windows.
// OnlineWindow is the UI-facing "connected" threshold; SessionTimeout is how
// long a PROCESSING session may sit before the sweep fails it. They are
// separate policies for separate consumers.
type DevicesConfig struct {
	Keys           map[string]string `mapstructure:"keys"` // deviceId -> shared key
	OnlineWindow   time.Duration     `mapstructure:"online_window"`
	SessionTimeout time.Duration     `mapstructure:"session_timeout"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BrokerURL   string `mapstructure:"broker_url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type GeocodeConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// Load reads vehiclediag.yaml (or the given path) with VEHICLEDIAG_* env
// overrides, e.g. VEHICLEDIAG_DATABASE_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("devices.online_window", 30*time.Second)
	v.SetDefault("devices.session_timeout", 5*time.Minute)
	v.SetDefault("mqtt.topic_prefix", "vehiclediag")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "VehicleTrackingApp/1.0")

	// ключи без содержательного дефолта тоже регистрируем, иначе viper не
	// увидит их env-переопределения при Unmarshal
	for _, key := range []string{
		"logging.file",
		"database.driver", "database.dsn",
		"auth.jwt_secret", "auth.issuer", "auth.audience",
		"mqtt.broker_url", "mqtt.username", "mqtt.password", "mqtt.client_id",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("mqtt.enabled", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vehiclediag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vehiclediag/")
	}

	v.SetEnvPrefix("VEHICLEDIAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// config file is optional: env/defaults may be enough
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// viper отдаёт ключи вложенных map в нижнем регистре independent of the
	// yaml; перекладываем ключи устройств в канонический вид, чтобы lookup по
	// deviceId из запроса совпадал с картой
	if len(cfg.Devices.Keys) > 0 {
		keys := make(map[string]string, len(cfg.Devices.Keys))
		for id, k := range cfg.Devices.Keys {
			keys[CanonicalDeviceID(id)] = k
		}
		cfg.Devices.Keys = keys
	}
	return &cfg, nil
}

// CanonicalDeviceID — канонический вид идентификатора устройства для поиска
// общего ключа.
func CanonicalDeviceID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// DeviceKey ищет общий ключ устройства; регистр deviceId не важен.
func DeviceKey(keys map[string]string, deviceID string) (string, bool) {
	k, ok := keys[CanonicalDeviceID(deviceID)]
	return k, ok
}
