package config

import (
	"time"

	"github.com/spf13/viper"
)

type Chain struct {
	// JSON-RPC endpoint of the chain node
	RpcUrl string

	// Address of the supply chain contract whose events are synced
	ContractAddress string

	// Block the contract was deployed at, sync never looks below it
	StartBlock int64

	// Max JSON-RPC requests per second issued to the node
	RequestsPerSecond int

	// Timeout for a single chain read
	RequestTimeout time.Duration
}

func setChainDefaults() {
	viper.SetDefault("Chain.RpcUrl", "https://sepolia.base.org")
	viper.SetDefault("Chain.ContractAddress", "0x0000000000000000000000000000000000000000")
	viper.SetDefault("Chain.StartBlock", "0")
	viper.SetDefault("Chain.RequestsPerSecond", "20")
	viper.SetDefault("Chain.RequestTimeout", "30s")
}
