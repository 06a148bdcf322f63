package config

import (
	"time"

	"github.com/spf13/viper"
)

type Syncer struct {
	// Accounts synced periodically, each entry formatted as <owner_id>=<address>
	Accounts []string

	// How often the periodic whole-range sync runs
	Interval time.Duration

	// Number of workers enriching parsed events
	NumWorkers int

	// Max number of events waiting in the worker queue
	WorkerQueueSize int

	// How long a transaction hash stays in the per-process seen cache
	SeenCacheExpiration time.Duration

	// How often the seen cache evicts expired entries
	SeenCacheCleanup time.Duration

	// Max time between failed retries of a chain read
	BackoffMaxInterval time.Duration

	// Max total time a chain read is retried, 0 means no limit
	BackoffMaxElapsedTime time.Duration
}

func setSyncerDefaults() {
	viper.SetDefault("Syncer.Accounts", "")
	viper.SetDefault("Syncer.Interval", "60s")
	viper.SetDefault("Syncer.NumWorkers", "8")
	viper.SetDefault("Syncer.WorkerQueueSize", "64")
	viper.SetDefault("Syncer.SeenCacheExpiration", "30m")
	viper.SetDefault("Syncer.SeenCacheCleanup", "10m")
	viper.SetDefault("Syncer.BackoffMaxInterval", "8s")
	viper.SetDefault("Syncer.BackoffMaxElapsedTime", "2m")
}
