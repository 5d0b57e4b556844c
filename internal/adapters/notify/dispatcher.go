package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/ports"
)

// Handler consume los eventos que reparte el Dispatcher.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev domain.Event) error
}

// DefaultBuffer es la capacidad de la cola de eventos.
const DefaultBuffer = 1024

// drainTimeout acota el vaciado de la cola al apagar.
const drainTimeout = 2 * time.Second

// Dispatcher implements ports.EventSink. Publish never blocks: when the
// queue is full the event is dropped and counted.
//
// Each handler has its own queue and goroutine, so a slow handler (a Kafka
// broker that is down) only drops its own events and never delays the rest.
type Dispatcher struct {
	ch      chan domain.Event
	lanes   []*lane
	dropped atomic.Int64
}

// lane es la cola de un handler.
type lane struct {
	h       Handler
	ch      chan domain.Event
	dropped atomic.Int64
}

var _ ports.EventSink = (*Dispatcher)(nil)

// NewDispatcher crea un dispatcher con colas de buffer eventos.
func NewDispatcher(buffer int, handlers ...Handler) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	lanes := make([]*lane, 0, len(handlers))
	for _, h := range handlers {
		lanes = append(lanes, &lane{h: h, ch: make(chan domain.Event, buffer)})
	}
	return &Dispatcher{
		ch:    make(chan domain.Event, buffer),
		lanes: lanes,
	}
}

// Publish encola ev o lo descarta si la cola está llena.
func (d *Dispatcher) Publish(ev domain.Event) {
	select {
	case d.ch <- ev:
	default:
		if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("event queue full, dropping events", "dropped", n, "kind", ev.Kind)
		}
	}
}

// Dropped devuelve cuántos eventos se descartaron, en la cola común o en la de algún handler.
func (d *Dispatcher) Dropped() int64 {
	n := d.dropped.Load()
	for _, l := range d.lanes {
		n += l.dropped.Load()
	}
	return n
}

// Run reparte eventos a los handlers hasta que ctx se cancela. Al cancelar
// vacía lo que queda en las colas; los handlers tienen drainTimeout para
// terminar antes de que se cancele su contexto.
func (d *Dispatcher) Run(ctx context.Context) error {
	names := make([]string, 0, len(d.lanes))
	for _, l := range d.lanes {
		names = append(names, l.h.Name())
	}
	slog.Info("event dispatcher starting", "handlers", names)

	hctx, hcancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hcancel()

	var wg sync.WaitGroup
	for _, l := range d.lanes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.run(hctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			d.shutdown(&wg, hcancel)
			slog.Info("event dispatcher stopped", "dropped", d.Dropped())
			return nil
		case ev := <-d.ch:
			d.fanOut(ev)
		}
	}
}

// shutdown pasa lo pendiente a las colas de los handlers, las cierra y
// espera a que se vacíen como mucho drainTimeout.
func (d *Dispatcher) shutdown(wg *sync.WaitGroup, hcancel context.CancelFunc) {
	for pending := true; pending; {
		select {
		case ev := <-d.ch:
			d.fanOut(ev)
		default:
			pending = false
		}
	}
	for _, l := range d.lanes {
		close(l.ch)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		slog.Warn("event handlers slow to drain, cancelling", "timeout", drainTimeout)
		hcancel()
		<-done
	}
}

// fanOut copia ev a la cola de cada handler sin bloquear.
func (d *Dispatcher) fanOut(ev domain.Event) {
	for _, l := range d.lanes {
		select {
		case l.ch <- ev:
		default:
			if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
				slog.Warn("handler queue full, dropping events", "handler", l.h.Name(), "dropped", n, "kind", ev.Kind)
			}
		}
	}
}

// run entrega los eventos al handler hasta que se cierra su cola.
// Un handler que falla solo se loguea.
func (l *lane) run(ctx context.Context) {
	for ev := range l.ch {
		if err := l.h.Handle(ctx, ev); err != nil {
			slog.Warn("event handler failed", "handler", l.h.Name(), "kind", ev.Kind, "err", err)
		}
	}
}
