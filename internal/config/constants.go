// Package config provides configuration loading for the queue monitor agent.
package config

const (
	// DefaultPollInterval is the cycle interval in seconds.
	DefaultPollInterval = 60

	// DefaultWorkers bounds the per-page queue depth fan-out.
	DefaultWorkers = 8

	// DefaultFetchTimeout is the per remote call timeout in seconds.
	DefaultFetchTimeout = 30

	// DefaultGUIDPrefix prefixes the per-flavor component GUIDs.
	DefaultGUIDPrefix = "producteca.newrelic.azure"

	// DefaultConfigPath is where the account list is looked up when no path is given.
	DefaultConfigPath = "./config/plugin.json"
)
