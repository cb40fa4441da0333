package retry

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/mqtt2influxdb/errors"
)

// Config controls Do. Zero delays and multiplier fall back to the
// DefaultConfig values.
type Config struct {
	MaxAttempts  int // first attempt included; <= 0 means one attempt
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool // up to 25% extra on every wait

	// OnRetry is called after a failed attempt that will be retried
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig is three quick attempts
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		AddJitter:    true,
	}
}

// Persistent waits about four minutes in total, long enough for a broker or
// database started alongside us
func Persistent() Config {
	return Config{
		MaxAttempts:  30,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		AddJitter:    true,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that Do gives up on it at once
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether Do would stop on err without retrying: errors
// marked Permanent and errors classified invalid or fatal.
func IsPermanent(err error) bool {
	var pe *permanentError
	if stderrors.As(err, &pe) {
		return true
	}
	var ce *errors.ClassifiedError
	return stderrors.As(err, &ce) && ce.Class != errors.ErrorTransient
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	b, err := newBackoff(cfg)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		wait := b.next()
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled waiting for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", max(cfg.MaxAttempts, 1), lastErr)
}

type backoff struct {
	delay      time.Duration
	max        time.Duration
	multiplier float64
	jitter     bool
}

func newBackoff(cfg Config) (*backoff, error) {
	def := DefaultConfig()
	switch {
	case cfg.InitialDelay < 0, cfg.MaxDelay < 0, cfg.Multiplier < 0:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "negative delay or multiplier")
	}

	b := &backoff{
		delay:      cmp.Or(cfg.InitialDelay, def.InitialDelay),
		max:        cmp.Or(cfg.MaxDelay, def.MaxDelay),
		multiplier: min(cmp.Or(cfg.Multiplier, def.Multiplier), 1000),
		jitter:     cfg.AddJitter,
	}
	if b.max < b.delay {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "MaxDelay below InitialDelay")
	}
	return b, nil
}

// next returns the wait before the following attempt and grows the delay
func (b *backoff) next() time.Duration {
	wait := b.delay
	if quarter := int64(wait / 4); b.jitter && quarter > 0 {
		wait += time.Duration(rand.Int64N(quarter))
	}
	b.delay = min(time.Duration(float64(b.delay)*b.multiplier), b.max)
	return wait
}
