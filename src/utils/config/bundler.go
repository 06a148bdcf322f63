package config

import (
	"time"

	"github.com/spf13/viper"
)

type Bundler struct {
	// JSON-RPC endpoint of the ERC-4337 bundler
	Url string

	// EntryPoint contract the user operations are routed through
	EntryPoint string

	// Paymaster sponsoring gas for submitted user operations
	Paymaster string

	// Address of the user's smart account
	SmartAccount string

	// Hex-encoded private key of the smart account owner,
	// used to sign user operations
	OwnerKey string

	// Chain id used in the user operation hash
	ChainId int64

	// Timeout for a single bundler call
	RequestTimeout time.Duration

	// How long to wait for the bundler to assign a transaction hash
	HashTimeout time.Duration

	// Interval between receipt polls while waiting for the hash
	HashPollInterval time.Duration
}

func setBundlerDefaults() {
	viper.SetDefault("Bundler.Url", "https://api.pimlico.io/v2/base-sepolia/rpc")
	viper.SetDefault("Bundler.EntryPoint", "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	viper.SetDefault("Bundler.Paymaster", "")
	viper.SetDefault("Bundler.SmartAccount", "")
	viper.SetDefault("Bundler.OwnerKey", "")
	viper.SetDefault("Bundler.ChainId", "84532")
	viper.SetDefault("Bundler.RequestTimeout", "30s")
	viper.SetDefault("Bundler.HashTimeout", "60s")
	viper.SetDefault("Bundler.HashPollInterval", "2s")
}
