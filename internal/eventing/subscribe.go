package eventing

import "context"

// Handler consumes a decoded event.
type Handler func(ctx context.Context, event any) error

// ProcessedStore provides idempotency checks.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// WrapHandler enforces idempotency per consumer. Without a store the
// handler is returned unchanged.
func WrapHandler(consumerName string, handler Handler, store ProcessedStore) Handler {
	if store == nil {
		return handler
	}
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
