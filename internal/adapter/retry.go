package adapter

import (
	"context"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	remoteAttempts = 2
	remoteDelay    = 3 * time.Second
)

// DoRemote runs fn with at most one retry after a short pause. Hosted
// indexer instances routinely time out while cold-starting, so a
// second attempt a few seconds later often succeeds. Localhost
// instances have no cold start and fail fast instead.
func DoRemote(ctx context.Context, baseURL string, fn func() error) error {
	attempts := uint(remoteAttempts)
	if IsLocalhost(baseURL) {
		attempts = 1
	}
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(remoteDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// IsLocalhost reports whether the URL points at the local machine.
func IsLocalhost(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	return false
}
