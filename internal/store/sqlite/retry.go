package sqlite

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// transientPatterns are substrings of modernc.org/sqlite errors that clear up
// on retry under WAL contention.
var transientPatterns = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
	"(5)",
	"(6)",
	"(522)",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// retryOnContention runs fn, retrying transient SQLite errors with jittered
// exponential backoff (50ms doubling, capped at 500ms, 3 retries).
func retryOnContention(fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithMaxRetries(bo, 3))
}
