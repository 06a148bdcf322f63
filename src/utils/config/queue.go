package config

import (
	"time"

	"github.com/spf13/viper"
)

type Queue struct {
	// How long completed items stay visible before they are pruned
	PruneDelay time.Duration

	// Key the queue snapshot is persisted under
	SnapshotKey string
}

func setQueueDefaults() {
	viper.SetDefault("Queue.PruneDelay", "5s")
	viper.SetDefault("Queue.SnapshotKey", "queue")
}
