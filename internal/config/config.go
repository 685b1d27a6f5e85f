package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// AgentConfig holds the runtime settings of the agent.
type AgentConfig struct {
	ConfigPath    string
	PollInterval  int
	Workers       int
	FetchTimeout  int
	Address       string
	LicenseKey    string
	Key           string
	DatabaseDSN   string
	StatusAddress string
	AuditFile     string
	AuditURL      string
	GUIDPrefix    string
}

// Interval returns the poll interval as a duration.
func (c *AgentConfig) Interval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// Timeout returns the per-call fetch timeout as a duration.
func (c *AgentConfig) Timeout() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// NewAgentConfig parses args (without the program name) and applies env overrides.
// Environment variables win over flags.
func NewAgentConfig(args []string) (*AgentConfig, error) {
	config := &AgentConfig{}

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.StringVar(&config.ConfigPath, "c", DefaultConfigPath, "path to the accounts file (json or yaml)")
	fs.IntVar(&config.PollInterval, "p", DefaultPollInterval, "poll interval in seconds")
	fs.IntVar(&config.Workers, "l", DefaultWorkers, "max parallel queue fetches per account")
	fs.IntVar(&config.FetchTimeout, "t", DefaultFetchTimeout, "timeout in seconds for each remote call")
	fs.StringVar(&config.Address, "a", "", "metrics backend endpoint")
	fs.StringVar(&config.LicenseKey, "license", "", "license key sent to the metrics backend")
	fs.StringVar(&config.Key, "k", "", "key for hash")
	fs.StringVar(&config.DatabaseDSN, "d", "", "database dsn for the latest value sink")
	fs.StringVar(&config.StatusAddress, "s", "", "listen address of the status api")
	fs.StringVar(&config.AuditFile, "audit-file", "", "file to append cycle reports to")
	fs.StringVar(&config.AuditURL, "audit-url", "", "url to post cycle reports to")
	fs.StringVar(&config.GUIDPrefix, "guid-prefix", DefaultGUIDPrefix, "prefix of the component guids")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	envIntVars := map[string]*int{
		"POLL_INTERVAL": &config.PollInterval,
		"RATE_LIMIT":    &config.Workers,
		"FETCH_TIMEOUT": &config.FetchTimeout,
	}

	envStrVars := map[string]*string{
		"CONFIG":         &config.ConfigPath,
		"ADDRESS":        &config.Address,
		"LICENSE_KEY":    &config.LicenseKey,
		"KEY":            &config.Key,
		"DATABASE_DSN":   &config.DatabaseDSN,
		"STATUS_ADDRESS": &config.StatusAddress,
		"AUDIT_FILE":     &config.AuditFile,
		"AUDIT_URL":      &config.AuditURL,
		"GUID_PREFIX":    &config.GUIDPrefix,
	}

	for envVar, flag := range envIntVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			value, err := strconv.Atoi(envValue)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q: %w", envVar, envValue, err)
			}
			*flag = value
		}
	}

	for envVar, flag := range envStrVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %d", config.PollInterval)
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", config.Workers)
	}
	if config.FetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch timeout must be positive, got %d", config.FetchTimeout)
	}

	return config, nil
}
