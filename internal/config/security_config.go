package config

import "time"

const (
	keyStateTTL          = "state.ttl"
	keySessionMaxAge     = "session.maxage"
	keySessionCookieName = "session.cookiename"
	keySecureCookies     = "session.securecookies"
)

type SecurityConfig interface {
	GetStateTTL() time.Duration
	GetMaxSessionAge() time.Duration
	GetSessionCookieName() string
	GetSecureCookies() bool
}

// GetStateTTL is how long an issued state/nonce pair stays redeemable.
func (c *mainConfig) GetStateTTL() time.Duration {
	return c.v.GetDuration(keyStateTTL)
}

func (c *mainConfig) GetMaxSessionAge() time.Duration {
	return c.v.GetDuration(keySessionMaxAge)
}

func (c *mainConfig) GetSessionCookieName() string {
	return c.v.GetString(keySessionCookieName)
}

// GetSecureCookies forces the Secure flag on session cookies even when the
// request did not arrive over TLS (e.g. behind a terminating proxy).
func (c *mainConfig) GetSecureCookies() bool {
	return c.v.GetBool(keySecureCookies)
}
