package messaging

import (
	"context"
	"errors"
	"sync"

	charmLog "github.com/charmbracelet/log"
)

var (
	ErrQueueFull         = errors.New("event queue full")
	ErrDispatcherStopped = errors.New("event dispatcher stopped")
)

// Dispatcher decouples request handling from broker latency: Publish enqueues and
// returns, a worker delivers to the next publisher. Stop drains what is queued.
type Dispatcher struct {
	next   Publisher
	queue  chan ReportEvent
	logger *charmLog.Logger
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	// mu orders enqueues against Stop so nothing lands in the queue after the final drain.
	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(next Publisher, size int, logger *charmLog.Logger) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	return &Dispatcher{
		next:   next,
		queue:  make(chan ReportEvent, size),
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
	d.logger.Info("event dispatcher started", "capacity", cap(d.queue))
}

func (d *Dispatcher) Publish(_ context.Context, event ReportEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			d.drain()
			return
		case event := <-d.queue:
			d.deliver(event)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event ReportEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*publishTimeout)
	defer cancel()

	if err := d.next.Publish(ctx, event); err != nil {
		d.logger.Error("event delivery failed", "type", event.Type, "report_id", event.ReportID, "err", err)
	}
}

// Stop blocks until queued events are delivered or dropped after their timeout.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.done)
		d.mu.Unlock()

		d.wg.Wait()
		d.logger.Info("event dispatcher stopped")
	})
}
