package config

import (
	"time"

	"github.com/spf13/viper"
)

type SessionKey struct {
	// Validity window applied when no explicit duration is requested
	DefaultDuration time.Duration

	// Key the session key configs are persisted under
	SnapshotKey string

	// Permission validation module the keys are registered with on-chain
	ValidatorAddress string
}

func setSessionKeyDefaults() {
	viper.SetDefault("SessionKey.DefaultDuration", "24h")
	viper.SetDefault("SessionKey.SnapshotKey", "session_keys")
	viper.SetDefault("SessionKey.ValidatorAddress", "0x0000000000000000000000000000000000000000")
}
