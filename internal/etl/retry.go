// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package etl

import (
	"context"
	"time"

	"github.com/cardinalhq/streamlake/internal/logctx"
)

// withRetry runs fn up to attempts times with a fixed backoff between
// tries. Exhausting the budget wraps the last error as a TransientIOError;
// context cancellation stops retrying immediately.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, op string, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i < attempts-1 {
			logctx.FromContext(ctx).Warn("retrying after transient failure",
				"op", op, "attempt", i+1, "error", lastErr.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return &TransientIOError{Op: op, Err: lastErr}
}
