package agrisage

import "github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"

// WithEventBus sets the bus that receives request lifecycle events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(a *AgriSage) {
		a.eventBus = bus
	}
}
