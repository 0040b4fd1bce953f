package blob

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type RetryConfig struct {
	Attempts int           // total tries, including the first
	Timeout  time.Duration // per attempt
	Backoff  Backoff
}

// RetryingStore retries storage failures with exponential backoff. Client
// errors (type, size, missing file) are returned on the first attempt.
type RetryingStore struct {
	inner Store
	cfg   RetryConfig
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryingStore(inner Store, cfg RetryConfig, log *slog.Logger) *RetryingStore {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if log == nil {
		log = slog.Default()
	}

	return &RetryingStore{inner: inner, cfg: cfg, log: log, sleep: sleepCtx}
}

func (s *RetryingStore) Put(ctx context.Context, u Upload) (Stored, error) {
	var lastErr error

	for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.cfg.Backoff.Delay(attempt-1)); err != nil {
				return Stored{}, storageErr(err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		stored, err := s.inner.Put(attemptCtx, u)
		cancel()

		if err == nil {
			return stored, nil
		}

		var ue *UploadError
		if !errors.As(err, &ue) {
			ue = storageErr(err)
		}
		if !ue.Temporary() {
			return Stored{}, ue
		}

		lastErr = ue
		s.log.WarnContext(ctx, "receipt upload attempt failed",
			"attempt", attempt+1,
			"max_attempts", s.cfg.Attempts,
			"err", err,
		)
	}

	return Stored{}, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
