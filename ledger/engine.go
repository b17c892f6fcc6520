/*
engine.go - Engine construction and shared machinery

PURPOSE:
  The Engine is the single entry point for every ledger mutation and read.
  It owns the transaction boundaries: each mutating operation runs inside
  one TxStore.WithTx call, so either every step of an operation commits or
  none does.

RETRY POLICY:
  Grant mutations can conflict under concurrent sessions (two teachers
  checking in students funded by the same grant). Conflicts surface from
  the store as ErrConcurrencyConflict and are retried a bounded number of
  times before propagating.
*/
package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studyhall/credit-engine/metrics"
)

// maxConflictRetries bounds internal retries of a conflicting transaction.
const maxConflictRetries = 3

// Engine implements purchase settlement, the credit ledger, the attendance
// state machine and the eligibility read side over a transactional store.
type Engine struct {
	store TxStore
	log   *zap.Logger
	now   func() time.Time
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(store TxStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// withConflictRetry runs fn, retrying on ErrConcurrencyConflict up to
// maxConflictRetries times. Any other outcome propagates immediately.
func (e *Engine) withConflictRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) || attempt >= maxConflictRetries {
			return err
		}
		metrics.DebitRetries.Inc()
		e.log.Warn("retrying after concurrency conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt+1))
		if ctx.Err() != nil {
			return err
		}
	}
}
