package config

import "time"

// CacheConfig tunes the Redis response cache in front of the public
// slot listing.  The listing is advisory (any action re-checks inside
// a transaction), so a few seconds of staleness is acceptable.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads the cache settings from the environment.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 5*time.Second),
		Prefix:  envStr("CACHE_PREFIX", "cache"),
	}
}
