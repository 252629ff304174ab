package eventing

import (
	"context"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Relay runs the dispatcher on a cron schedule.
type Relay struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	schedule   string
	batchSize  int
	logger     *log.Logger
	mu         sync.Mutex
}

// NewRelay constructs a relay. Panics inside a run are recovered and logged.
func NewRelay(dispatcher *Dispatcher, schedule string, batchSize int, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(logger)),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	return &Relay{cron: c, dispatcher: dispatcher, schedule: schedule, batchSize: batchSize, logger: logger}
}

// Start registers the relay job and starts the scheduler.
func (r *Relay) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(ctx) }); err != nil {
		return err
	}
	r.logger.Printf("outbox relay scheduled: schedule=%q batch=%d", r.schedule, r.batchSize)
	r.cron.Start()
	return nil
}

// RunOnce relays one batch.
func (r *Relay) RunOnce(ctx context.Context) DispatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, err := r.dispatcher.Dispatch(ctx, r.batchSize)
	if err != nil {
		r.logger.Printf("outbox relay failed: err=%v", err)
	}
	if result.Claimed > 0 {
		r.logger.Printf("outbox relay: claimed=%d sent=%d failed=%d dlq=%d", result.Claimed, result.Sent, result.Failed, result.DLQ)
	}
	return result
}

// Stop stops the scheduler and waits for a running job.
func (r *Relay) Stop() context.Context {
	return r.cron.Stop()
}
