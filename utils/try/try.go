// Package try provides a set of functions to retry a function with a delay.
//
// nolint: ireturn
package try

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
)

// DoWithContext tries a function with a delay, stopping early when the context ends.
func DoWithContext(
	ctx context.Context,
	tries int,
	delay time.Duration,
	fn func(ctx context.Context) error,
) (err error) {
	_, err = DoExponentialBackoffWithContextAndResult(
		ctx,
		tries,
		delay,
		1,
		delay,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		},
	)
	return err
}

// DoExponentialBackoffWithContextAndResult performs an exponential backoff and return a result.
//
// The backoff sleep is interrupted when the context is done.
func DoExponentialBackoffWithContextAndResult[T any](
	ctx context.Context,
	tries int,
	delay time.Duration,
	multiplier int,
	maxBackoff time.Duration,
	fn func(ctx context.Context) (T, error),
) (result T, err error) {
	if tries <= 0 {
		log.Panic().Int("tries", tries).Msg("tries is 0 or negative")
	}
	for try := 0; try < tries; try++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		log.Warn().
			Str("parentCaller", getCaller()).
			Int("try", try).
			Int("maxTries", tries).
			Stringer("backoff", delay).
			Err(err).Msg(
			"try failed",
		)
		if try == tries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
		delay = delay * time.Duration(multiplier)
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	log.Warn().Err(err).Msg("failed all tries")
	return result, err
}

func getCaller() string {
	// Skip 3 frames to get the caller of the exported function
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
