// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Backoff controls how embedding calls are paced and retried.
// The zero value makes a single unthrottled attempt.
type Backoff struct {
	Attempts  int           // calls before giving up; values below 1 mean 1
	BaseDelay time.Duration // wait after the first failure, doubled after each further one
	MaxDelay  time.Duration // cap on a single wait; zero means uncapped
	Limiter   *rate.Limiter // waited on before every call, retries included; nil is unlimited
}

func (b Backoff) attempts() int {
	if b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

// Delay returns the wait that follows failed attempt n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	d := b.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

// Do calls op until it succeeds, the attempts run out or ctx ends.
// It reports how many calls were made. Context errors from op stop the
// loop at once; otherwise the last op error is returned.
func (b Backoff) Do(ctx context.Context, logger *slog.Logger, op func(context.Context) error) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	limit := b.attempts()

	var err error
	for n := 1; n <= limit; n++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n - 1, ctxErr
		}
		if b.Limiter != nil {
			if werr := b.Limiter.Wait(ctx); werr != nil {
				return n - 1, werr
			}
		}

		err = op(ctx)
		if err == nil {
			if n > 1 {
				logger.Debug("embedding call recovered", "attempt", n)
			}
			return n, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, err
		}
		if n == limit {
			return n, err
		}

		wait := b.Delay(n)
		logger.Debug("embedding call failed, backing off", "attempt", n, "max_attempts", limit, "wait", wait, "err", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, ctx.Err()
		case <-timer.C:
		}
	}
	return limit, err
}
