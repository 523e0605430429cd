// Package publish implements the tracer's background work queue: the
// single-producer/single-consumer handoff from the tracer goroutine (the
// producer, one already-serialized payload per changed snapshot) to every
// registered transport sink (the consumers).
package publish

import "github.com/sirupsen/logrus"

// Sink receives every published payload. A Sink must not block: it owns
// whatever per-subscriber fan-out and drop policy it needs internally, so a
// single slow consumer never stalls the publisher or, transitively, the
// tracer thread.
type Sink interface {
	Publish(payload string)
}

// Publisher drains Enqueue calls on its own goroutine and fans each payload
// out to every sink, in the order received.
type Publisher struct {
	queue chan string
	sinks []Sink
	log   logrus.FieldLogger
	done  chan struct{}
}

// New returns a Publisher with the given input buffer depth and sinks. A
// depth of 0 is legal; it simply means Enqueue drops under any contention at
// all, trading more best-effort loss for a guarantee of never blocking.
func New(bufferDepth int, log logrus.FieldLogger, sinks ...Sink) *Publisher {
	return &Publisher{
		queue: make(chan string, bufferDepth),
		sinks: sinks,
		log:   log,
		done:  make(chan struct{}),
	}
}

// Enqueue hands payload to the publisher without blocking. If the input
// buffer is full the payload is dropped and logged: a missed update is
// corrected by the next hit, per the tracer's no-retry policy.
func (p *Publisher) Enqueue(payload string) {
	select {
	case p.queue <- payload:
	default:
		p.log.Warn("publisher queue full, dropping snapshot")
	}
}

// Run drains the queue until Close is called, fanning each payload out to
// every sink, then closes the done channel. Call it in its own goroutine.
func (p *Publisher) Run() {
	defer close(p.done)
	for payload := range p.queue {
		for _, sink := range p.sinks {
			sink.Publish(payload)
		}
	}
}

// Close signals Run to drain remaining queued payloads and return.
func (p *Publisher) Close() {
	close(p.queue)
}

// Wait blocks until Run has returned.
func (p *Publisher) Wait() {
	<-p.done
}
