package orchestrator

import (
	"os"
	"strconv"
	"time"
)

// Saga defaults. PIPLITE_ROLLBACK_TIMEOUT, PIPLITE_STEP_RETRY_COUNT and
// PIPLITE_STEP_RETRY_DELAY override them; InstallConfig overrides the retry
// settings per orchestrator.
var (
	// RollbackTimeout bounds the compensation of a failed saga
	RollbackTimeout = durationFromEnv("PIPLITE_ROLLBACK_TIMEOUT", 5*time.Minute)
	// DefaultRetryCount is the number of retries for retryable steps
	DefaultRetryCount = countFromEnv("PIPLITE_STEP_RETRY_COUNT", 3)
	// DefaultRetryDelay is the initial delay for exponential backoff
	DefaultRetryDelay = durationFromEnv("PIPLITE_STEP_RETRY_DELAY", 500*time.Millisecond)
)

var timeNow = time.Now

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func countFromEnv(key string, fallback uint64) uint64 {
	if n, err := strconv.ParseUint(os.Getenv(key), 10, 64); err == nil {
		return n
	}
	return fallback
}
