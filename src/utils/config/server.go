package config

import (
	"time"

	"github.com/spf13/viper"
)

type Server struct {
	// REST API address, used by the browser UI and for monitoring
	ListenAddress string

	// Max duration of a single request
	RequestTimeout time.Duration
}

func setServerDefaults() {
	viper.SetDefault("Server.ListenAddress", ":7777")
	viper.SetDefault("Server.RequestTimeout", "30s")
}
