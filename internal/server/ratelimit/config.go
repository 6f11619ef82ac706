// Defines the write rate limit tier and which routes it covers.

package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeActor uses the authenticated actor's id, falling back to the
	// client IP for anonymous callers.
	ScopeActor
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds the rate limit tiers. A nil *Config limits nothing.
type Config struct {
	Write *Tier
}

// NewConfig limits writes to perMinute requests per caller with the given
// burst. perMinute <= 0 disables limiting.
func NewConfig(perMinute, burst int) *Config {
	if perMinute <= 0 {
		return &Config{}
	}
	if burst <= 0 {
		burst = max(perMinute/6, 1)
	}
	return &Config{
		Write: &Tier{
			Name:    "write",
			Limiter: NewLimiter(perMinute, time.Minute, burst),
			Scope:   ScopeActor,
		},
	}
}

// Match returns the tier for a request, or nil when it is not limited.
func (c *Config) Match(method, path string) *Tier {
	if c == nil || c.Write == nil || method != http.MethodPost {
		return nil
	}
	for _, p := range []string{"/-/insert/", "/-/upsert/", "/-/update/"} {
		if strings.HasPrefix(path, p) {
			return c.Write
		}
	}
	return nil
}

// Close stops every limiter.
func (c *Config) Close() {
	if c != nil && c.Write != nil {
		c.Write.Limiter.Close()
	}
}
