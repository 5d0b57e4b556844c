package ports

import "github.com/airhao3/jmm-trade/internal/domain"

// EventSink recibe eventos del pipeline. Publish no debe bloquear al llamador.
type EventSink interface {
	Publish(ev domain.Event)
}
