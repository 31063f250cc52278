package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/huddlechat/gatekit/internal/metrics"
)

// Dispatcher delivers events to a sink from a bounded queue with a small
// pool of worker goroutines. Publish never blocks: when the queue is full
// the event is dropped and counted, keeping the gating path insulated from
// analytics backpressure.
type Dispatcher struct {
	sink    Sink
	queue   chan Event
	workers int
	logger  *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// DispatcherConfig holds queue sizing for the dispatcher.
type DispatcherConfig struct {
	// QueueSize is the number of events buffered before drops begin.
	// Default: 256
	QueueSize int

	// Workers is the number of delivery goroutines. Default: 1
	Workers int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
}

// NewDispatcher creates a stopped dispatcher; call Start before publishing.
func NewDispatcher(sink Sink, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, cfg.QueueSize),
		workers: cfg.Workers,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
	})
}

// Publish enqueues an event without blocking. Dropped events are counted
// and logged at debug; gating correctness never depends on delivery.
func (d *Dispatcher) Publish(e Event) {
	select {
	case d.queue <- e:
	default:
		metrics.TelemetryDropped.Inc()
		d.logger.Debug("telemetry queue full, event dropped",
			"feature", string(e.Feature), "stage", string(e.Stage))
	}
}

// Stop drains queued events and waits for the workers, bounded by timeout.
func (d *Dispatcher) Stop(timeout time.Duration) {
	d.stopOnce.Do(func() {
		close(d.stopCh)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			d.logger.Warn("telemetry dispatcher shutdown timeout exceeded")
		}
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.stopCh:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

// deliver shields the gate from sink misbehavior: a panicking sink loses
// one event and a log line, nothing more.
func (d *Dispatcher) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("telemetry sink panic", "panic", r)
		}
	}()
	d.sink.Record(e)
}
