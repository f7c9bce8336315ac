package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	maxWriteAttempts = 10
	writeQueueSize   = 4096
	retryInterval    = 2 * time.Second
	perWriteTimeout  = 5 * time.Second
)

type pendingWrite struct {
	name     string
	attempts int
	fn       func(ctx context.Context) error
}

// DurableWriter decouples session lifecycle from persistence health.
// Writes go through a circuit breaker and are requeued on failure, so
// a storage outage degrades durability but never terminates a session
// or leaks a port.
type DurableWriter struct {
	logger  *logrus.Logger
	breaker *gobreaker.CircuitBreaker
	queue   chan pendingWrite
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewDurableWriter(logger *logrus.Logger) *DurableWriter {
	w := &DurableWriter{
		logger: logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "persistence",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		queue: make(chan pendingWrite, writeQueueSize),
		done:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.drain()

	return w
}

// Submit enqueues a write. It never blocks the caller: when the queue
// is saturated the write is dropped with an error log.
func (w *DurableWriter) Submit(name string, fn func(ctx context.Context) error) {
	select {
	case w.queue <- pendingWrite{name: name, fn: fn}:
	default:
		w.logger.WithField("write", name).Error("persistence queue saturated, dropping write")
	}
}

func (w *DurableWriter) drain() {
	defer w.wg.Done()

	for {
		select {
		case pw := <-w.queue:
			w.execute(pw)
		case <-w.done:
			for {
				select {
				case pw := <-w.queue:
					w.execute(pw)
				default:
					return
				}
			}
		}
	}
}

func (w *DurableWriter) execute(pw pendingWrite) {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), perWriteTimeout)
		defer cancel()
		return nil, pw.fn(ctx)
	})
	if err == nil {
		return
	}

	pw.attempts++
	if pw.attempts >= maxWriteAttempts {
		w.logger.WithError(err).WithField("write", pw.name).Error("dropping write after repeated failures")
		return
	}

	w.logger.WithError(err).WithFields(logrus.Fields{
		"write":    pw.name,
		"attempts": pw.attempts,
	}).Warn("persistence write failed, requeueing")

	go func() {
		time.Sleep(retryInterval)
		select {
		case w.queue <- pw:
		case <-w.done:
		}
	}()
}

func (w *DurableWriter) Close() {
	close(w.done)
	w.wg.Wait()
}
