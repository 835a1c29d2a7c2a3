package extraction

import (
	"context"
	"errors"
)

// Sink receives each completed document exactly once. Persistence and event
// publishing live behind it. Skipped and failed documents are delivered too.
type Sink interface {
	Handle(ctx context.Context, result DocumentResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, result DocumentResult) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, result DocumentResult) error {
	return f(ctx, result)
}

// MultiSink fans a result out to several sinks. Every sink is called even
// when an earlier one fails; the errors are joined.
type MultiSink []Sink

// Handle delivers the result to each sink in order.
func (m MultiSink) Handle(ctx context.Context, result DocumentResult) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Handle(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
