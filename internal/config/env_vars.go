package config

import (
	"strings"
	"time"
)

const (
	keyPort                 = "port"
	keyAppName              = "app.name"
	keyBaseURL              = "base.url"
	keyEnv                  = "env"
	keyLogLevel             = "log.level"
	keyLogFormat            = "log.format"
	keyHousekeepingInterval = "housekeeping.interval"
)

func (c *mainConfig) GetPort() string {
	port := c.v.GetString(keyPort)
	if port != "" && port[0] != ':' {
		port = ":" + port
	}
	return port
}

func (c *mainConfig) GetAppName() string {
	return c.v.GetString(keyAppName)
}

// GetBaseURL returns the public URL of this service (e.g. "https://rp.example.com"),
// without a trailing slash.
func (c *mainConfig) GetBaseURL() string {
	return strings.TrimRight(c.v.GetString(keyBaseURL), "/")
}

func (c *mainConfig) GetEnv() string {
	return c.v.GetString(keyEnv)
}

func (c *mainConfig) GetLogLevel() string {
	return c.v.GetString(keyLogLevel)
}

// GetLogFormat is "json" or "console".
func (c *mainConfig) GetLogFormat() string {
	return c.v.GetString(keyLogFormat)
}

// GetHousekeepingInterval is how often expired auth states are purged.
func (c *mainConfig) GetHousekeepingInterval() time.Duration {
	return c.v.GetDuration(keyHousekeepingInterval)
}
