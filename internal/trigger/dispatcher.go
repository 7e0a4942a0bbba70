package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher routes classified events to the handler. Sources that need the
// handler's verdict (kafka commit, HTTP status) call Dispatch directly; the
// watcher enqueues and lets the worker pool drain.
type Dispatcher struct {
	routes  Routes
	handler Handler
	workers int
	queue   chan ObjectEvent
	logger  zerolog.Logger
}

func NewDispatcher(routes Routes, h Handler, workers int, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 4
	}
	return &Dispatcher{
		routes:  routes,
		handler: h,
		workers: workers,
		queue:   make(chan ObjectEvent, workers*4),
		logger:  logger,
	}
}

// Dispatch classifies ev and runs the matching handler inline. Ignored
// events return nil. A handler panic is recovered and returned as an error
// so one poisoned event cannot take the process down.
func (d *Dispatcher) Dispatch(ctx context.Context, ev ObjectEvent) error {
	kind := d.routes.Classify(ev)
	logger := d.logger.With().Str("key", ev.Key).Str("source", ev.Source).Logger()
	switch kind {
	case KindAudio:
		logger.Info().Msg("dispatching audio event")
		return d.invoke(ctx, ev, d.handler.HandleAudio)
	case KindResult:
		logger.Info().Msg("dispatching result event")
		return d.invoke(ctx, ev, d.handler.HandleResult)
	default:
		logger.Debug().Msg("event ignored")
		return nil
	}
}

func (d *Dispatcher) invoke(ctx context.Context, ev ObjectEvent, h func(context.Context, ObjectEvent) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger: handler panic on %s: %v", ev.Key, r)
		}
	}()
	return h(ctx, ev)
}

// Enqueue hands ev to the worker pool, blocking until there is room or ctx
// ends.
func (d *Dispatcher) Enqueue(ctx context.Context, ev ObjectEvent) error {
	select {
	case d.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue until ctx ends. Handler errors are logged here;
// queued events have no caller left to report to.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-d.queue:
					if err := d.Dispatch(ctx, ev); err != nil {
						d.logger.Error().Err(err).Str("key", ev.Key).Msg("event handling failed")
					}
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}
