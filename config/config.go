package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`
		HTTPPort string `mapstructure:"http_port"`
	} `mapstructure:"server"`

	Database struct {
		// driver: "" (in-memory) | "mysql" | "postgres"
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"logging"`

	Fleet struct {
		// окно тишины, после которого sweep считает агента офлайн
		OfflineTimeout time.Duration `mapstructure:"offline_timeout"`
		// период sweep'а; должен быть заметно короче OfflineTimeout
		SweepPeriod time.Duration `mapstructure:"sweep_period"`
		// возраст неподтверждённой команды, после которого слот очищается
		CommandMaxAge      time.Duration `mapstructure:"command_max_age"`
		StaleCommandPeriod time.Duration `mapstructure:"stale_command_period"`
		// TTL активационного кода по умолчанию (если не задан при выпуске)
		CodeTTL time.Duration `mapstructure:"code_ttl"`
	} `mapstructure:"fleet"`
}

// Load читает fleetd.yaml (FLEETD_CONFIG, ".", /etc/fleetd) + env-оверрайды
// с префиксом FLEETD_. Отсутствие файла не ошибка — есть дефолты.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("fleetd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fleetd")
	if p := os.Getenv("FLEETD_CONFIG"); p != "" {
		v.SetConfigFile(p)
	}

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("fleet.offline_timeout", "10m")
	v.SetDefault("fleet.sweep_period", "1m")
	v.SetDefault("fleet.command_max_age", "24h")
	v.SetDefault("fleet.stale_command_period", "10m")
	v.SetDefault("fleet.code_ttl", "24h")

	v.SetEnvPrefix("FLEETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
