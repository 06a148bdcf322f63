package config

import (
	"github.com/spf13/viper"
)

type KV struct {
	// Backend used for durable key-value state: file or redis
	Backend string

	// Directory the file backend keeps its snapshots in
	Dir string

	// Namespace prepended to every key
	Prefix string
}

func setKVDefaults() {
	viper.SetDefault("KV.Backend", "file")
	viper.SetDefault("KV.Dir", "./data")
	viper.SetDefault("KV.Prefix", "chaincore")
}
