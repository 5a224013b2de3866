package engine

import (
	"sync"
	"time"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// Sink receives lifecycle notifications. Sink failures are caught and
// logged at the engine boundary, never propagated into engine state.
type Sink interface {
	Notify(ev models.LifecycleEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev models.LifecycleEvent) error

func (f SinkFunc) Notify(ev models.LifecycleEvent) error {
	return f(ev)
}

// NopSink discards all notifications.
var NopSink = SinkFunc(func(models.LifecycleEvent) error { return nil })

// emitter is the outbound notification boundary shared by both engines.
// Emission is fire-and-forget: a panicking or failing sink is logged and
// the engine carries on.
type emitter struct {
	sink   Sink
	logger Logger
}

func (em emitter) emit(name, executionID string, payload map[string]any) {
	if em.sink == nil {
		return
	}
	ev := models.LifecycleEvent{
		Name:        name,
		ExecutionID: executionID,
		Payload:     payload,
		EmittedAt:   time.Now(),
	}
	defer func() {
		if r := recover(); r != nil {
			em.logger.Errorf("Notification sink panicked on %s for %s: %v", name, executionID, r)
		}
	}()
	if err := em.sink.Notify(ev); err != nil {
		em.logger.Warnf("Notification sink rejected %s for %s: %v", name, executionID, err)
	}
}

// AsyncSink decorates a Sink with a buffered dispatch queue so a slow or
// unavailable subscriber can never stall the engines. Events are dropped
// with a warning once the buffer is full.
type AsyncSink struct {
	next   Sink
	logger Logger
	ch     chan models.LifecycleEvent
	wg     sync.WaitGroup
	once   sync.Once
}

// NewAsyncSink starts the dispatch worker. buffer <= 0 defaults to 256.
func NewAsyncSink(next Sink, buffer int, logger Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		next:   next,
		logger: logger,
		ch:     make(chan models.LifecycleEvent, buffer),
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

func (s *AsyncSink) dispatch() {
	defer s.wg.Done()
	for ev := range s.ch {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Errorf("Notification sink panicked on %s for %s: %v", ev.Name, ev.ExecutionID, r)
				}
			}()
			if err := s.next.Notify(ev); err != nil {
				s.logger.Warnf("Notification sink rejected %s for %s: %v", ev.Name, ev.ExecutionID, err)
			}
		}()
	}
}

// Notify enqueues the event without blocking.
func (s *AsyncSink) Notify(ev models.LifecycleEvent) error {
	select {
	case s.ch <- ev:
	default:
		s.logger.Warnf("Notification buffer full, dropping %s for %s", ev.Name, ev.ExecutionID)
	}
	return nil
}

// Close drains the queue and stops the worker.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		close(s.ch)
		s.wg.Wait()
	})
}
