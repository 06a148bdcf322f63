package config

import (
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	Port            uint16
	Host            string
	User            string
	Password        string
	DB              int
	MinIdleConns    int
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func setRedisDefaults() {
	viper.SetDefault("Redis.Port", "6379")
	viper.SetDefault("Redis.Host", "127.0.0.1")
	viper.SetDefault("Redis.User", "")
	viper.SetDefault("Redis.Password", "")
	viper.SetDefault("Redis.DB", "0")
	viper.SetDefault("Redis.MinIdleConns", "1")
	viper.SetDefault("Redis.MaxIdleConns", "4")
	viper.SetDefault("Redis.MaxOpenConns", "8")
	viper.SetDefault("Redis.ConnMaxIdleTime", "5m")
	viper.SetDefault("Redis.ConnMaxLifetime", "1h")
}
