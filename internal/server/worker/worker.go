// Package worker runs the background side of tooltool: verification of
// pending uploads, driven by notifications and a periodic sweep, and
// periodic replication.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/notify"
	"golang.org/x/sync/errgroup"
)

// Checker verifies pending uploads.
type Checker interface {
	CheckFile(ctx context.Context, digest string) error
	CheckAll(ctx context.Context) error
}

// Replicator brings files to every configured region.
type Replicator interface {
	Run(ctx context.Context) error
}

type Options struct {
	VerifyInterval    time.Duration
	ReplicateInterval time.Duration
}

// request asks the loop to check one digest, or every grant when digest is empty.
type request struct {
	digest string
	done   chan error
}

type Worker struct {
	checker    Checker
	replicator Replicator
	consumer   notify.Consumer
	opts       Options
	log        logging.Logger
	requests   chan request
}

// New builds a Worker. consumer and replicator may be nil to disable
// notification-driven checks and replication.
func New(checker Checker, replicator Replicator, consumer notify.Consumer, opts Options, log logging.Logger) *Worker {
	return &Worker{
		checker:    checker,
		replicator: replicator,
		consumer:   consumer,
		opts:       opts,
		log:        log.With("module", "worker"),
		requests:   make(chan request),
	}
}

// Run blocks until ctx is canceled or a component fails.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.loop(ctx) })

	if w.consumer != nil {
		g.Go(func() error { return w.consumer.Run(ctx, w.handle) })
	}

	if w.opts.VerifyInterval > 0 {
		g.Go(func() error {
			return every(ctx, w.opts.VerifyInterval, true, func() {
				if err := w.submit(ctx, ""); err != nil && ctx.Err() == nil {
					w.log.Error(ctx, "pending upload sweep failed", "error", err)
				}
			})
		})
	}

	if w.replicator != nil && w.opts.ReplicateInterval > 0 {
		g.Go(func() error {
			return every(ctx, w.opts.ReplicateInterval, false, func() {
				if err := w.replicator.Run(ctx); err != nil && ctx.Err() == nil {
					w.log.Error(ctx, "replication failed", "error", err)
				}
			})
		})
	}

	w.log.Info(ctx, "worker started",
		"verify_interval", w.opts.VerifyInterval,
		"replicate_interval", w.opts.ReplicateInterval,
		"notifications", w.consumer != nil)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop is the only goroutine running checks.
func (w *Worker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-w.requests:
			var err error
			if req.digest == "" {
				err = w.checker.CheckAll(ctx)
			} else {
				err = w.checker.CheckFile(ctx, req.digest)
			}
			req.done <- err
		}
	}
}

// submit hands a request to the loop and waits for its result.
func (w *Worker) submit(ctx context.Context, d string) error {
	req := request{digest: d, done: make(chan error, 1)}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle processes a check notification. An error leaves the message
// unacknowledged for redelivery.
func (w *Worker) handle(ctx context.Context, msg *notify.Message) error {
	var payload notify.CheckFile
	if err := msg.Decode(&payload); err != nil {
		w.log.Warn(ctx, "dropping undecodable check notification", "error", err)
		return nil
	}
	if err := digest.Validate(payload.Digest); err != nil {
		w.log.Warn(ctx, "dropping check notification with bad digest", "sha512", payload.Digest)
		return nil
	}
	w.log.Info(ctx, "checking pending uploads", "sha512", payload.Digest)
	return w.submit(ctx, payload.Digest)
}

func every(ctx context.Context, interval time.Duration, immediately bool, fn func()) error {
	if immediately {
		fn()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn()
		}
	}
}
