package launcher

import (
	"context"
	"errors"
	"time"
)

// Policy is a fixed-interval retry budget. MaxAttempts zero means unbounded.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

var (
	ConnectPolicy  = Policy{MaxAttempts: 0, Interval: 5 * time.Second}
	AuthPolicy     = Policy{MaxAttempts: 20, Interval: 10 * time.Second}
	ExitPollPolicy = Policy{MaxAttempts: 10, Interval: 100 * time.Millisecond}
)

type stopError struct {
	err error
}

func (e *stopError) Error() string {
	return e.err.Error()
}

func (e *stopError) Unwrap() error {
	return e.err
}

// Stop marks an error as final: Do returns it without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Do calls fn until it succeeds, returns a Stop error, the budget is spent or
// ctx is done. The last error of fn is returned.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	var err error
	for attempt := 1; p.MaxAttempts <= 0 || attempt <= p.MaxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}

		if p.MaxAttempts > 0 && attempt == p.MaxAttempts {
			break
		}
		if sleepErr := sleep(ctx, p.Interval); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
