package speech

import (
	"log/slog"
	"time"
)

// Interrupt stops speech immediately and discards everything queued.
//
// The ordering is fixed: the active flag is cleared first, so the consumer
// abandons the in-flight job at its next chunk boundary; then the queue is
// emptied atomically; then the cooldown elapses; only after all of that is
// the engine reactivated. A job enqueued during the cooldown therefore either
// plays in full after reactivation or was already cleared by the drain —
// it is never started half-way.
//
// Interrupt is idempotent and safe to call concurrently with the consumer,
// with Enqueue, and with itself. While idle it is a harmless no-op apart from
// the cooldown pause.
func (e *Engine) Interrupt() {
	e.active.Store(false)

	e.mu.Lock()
	dropped := len(e.queue)
	e.queue = nil
	if e.metrics != nil && dropped > 0 {
		e.metrics.QueueDepth.Add(e.jobCtx, -int64(dropped))
	}
	// Wake DrainAndWait callers: the queue is now empty and the in-flight
	// job, if any, is about to abandon itself.
	e.cond.Broadcast()
	e.mu.Unlock()

	if dropped > 0 {
		slog.Debug("speech: interrupt dropped queued jobs", "count", dropped)
	}
	if e.metrics != nil {
		e.metrics.Interrupts.Add(e.jobCtx, 1)
	}

	time.Sleep(e.cooldown)

	e.active.Store(true)
	// Reactivation can make queued work runnable again (jobs enqueued
	// during the cooldown); wake the consumer.
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}
