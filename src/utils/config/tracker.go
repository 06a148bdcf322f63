package config

import (
	"time"

	"github.com/spf13/viper"
)

type Tracker struct {
	// How often the receipt of a tracked transaction is polled
	PollInterval time.Duration

	// Confirmations after which a transaction is considered final and polling stops
	RequiredConfirmations uint64

	// Hard ceiling for WaitForConfirmation
	WaitTimeout time.Duration
}

func setTrackerDefaults() {
	viper.SetDefault("Tracker.PollInterval", "3s")
	viper.SetDefault("Tracker.RequiredConfirmations", "12")
	viper.SetDefault("Tracker.WaitTimeout", "5m")
}
