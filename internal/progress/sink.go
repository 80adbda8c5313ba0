package progress

import "context"

// Sink consumes batches of events. Consume may be called many times and must
// honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. Hub implements it; the Registry only
// depends on this.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) { f(evt) }
