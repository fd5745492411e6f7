package resilience

import "time"

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// WaitAfterFinalAttempt keeps the backoff pause after the last failed
	// attempt so a failing endpoint is not hammered by the next batch.
	WaitAfterFinalAttempt bool

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig backs off 1s, 2s, 4s across three attempts.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:      3,
		RetryInitialBackoff:   time.Second,
		RetryMaxBackoff:       8 * time.Second,
		RetryMultiplier:       2.0,
		WaitAfterFinalAttempt: true,

		BreakerEnabled:          false,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.8,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}

// Backoff returns the pause that follows the given zero-based failed attempt.
func (c Config) Backoff(attempt int) time.Duration {
	cfg := c.normalize()
	wait := cfg.RetryInitialBackoff
	for i := 0; i < attempt; i++ {
		wait = time.Duration(float64(wait) * cfg.RetryMultiplier)
		if wait >= cfg.RetryMaxBackoff {
			return cfg.RetryMaxBackoff
		}
	}
	if wait > cfg.RetryMaxBackoff {
		return cfg.RetryMaxBackoff
	}
	return wait
}
