package browserpool

import (
	"fmt"
	"time"
)

// Config holds the pool and instance configuration.
type Config struct {
	// Concurrency is the pool size; spec §4.5 sets it equal to the crawl's
	// global concurrency so every in-flight render has its own context.
	Concurrency int

	WarmupURL       string
	WarmupTimeout   time.Duration
	ShutdownTimeout time.Duration

	RestartAfterCount int
	RestartAfterTime  time.Duration

	// PersistSession enables per-origin-persistent contexts (spec §4.5):
	// a dedicated long-lived context per origin, seeded from and flushed
	// back to StorageStateDir, instead of a plain ephemeral-context pool.
	PersistSession  bool
	StorageStateDir string

	// Stealth hides common automation fingerprints (navigator.webdriver,
	// the "Headless" UA token) when set.
	Stealth bool
}

// DefaultConfig returns sane defaults, used directly in tests.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:       4,
		WarmupURL:         "about:blank",
		WarmupTimeout:     10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		RestartAfterCount: 100,
		RestartAfterTime:  60 * time.Minute,
	}
}

func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("browserpool: concurrency must be positive")
	}
	if c.RestartAfterCount <= 0 {
		return fmt.Errorf("browserpool: restart after count must be positive")
	}
	if c.RestartAfterTime <= 0 {
		return fmt.Errorf("browserpool: restart after time must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("browserpool: shutdown timeout must be positive")
	}
	if c.PersistSession && c.StorageStateDir == "" {
		return fmt.Errorf("browserpool: storage state dir required when session persistence is enabled")
	}
	return nil
}
