package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Room      RoomConfig      `mapstructure:"room"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
	RPCAddress  string `mapstructure:"rpc_address"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RoomConfig 房间生命周期与统计相关配置
type RoomConfig struct {
	HistoryLimit int           `mapstructure:"history_limit"`
	StatsHistory int           `mapstructure:"stats_history"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	EndGrace     time.Duration `mapstructure:"end_grace"`
}

type WebSocketConfig struct {
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

type DatabaseConfig struct {
	// Driver selects the match archive: memory, gorm or postgres.
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

const envPrefix = "TICTAC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("room.history_limit", 5)
	v.SetDefault("room.stats_history", 5)
	v.SetDefault("room.idle_timeout", 30*time.Minute)
	v.SetDefault("room.end_grace", 2*time.Minute)
	v.SetDefault("websocket.heartbeat", 30*time.Second)
	v.SetDefault("websocket.max_message_bytes", 4096)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "tictac")
}

// LoadConfig reads config.yaml from path. A missing file is not an error:
// defaults and TICTAC_* environment variables still apply.
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	return
}
