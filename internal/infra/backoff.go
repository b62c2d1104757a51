package infra

import "time"

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given retry attempt:
// exponential from one second, capped at one minute.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := backoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}
	return delay
}
