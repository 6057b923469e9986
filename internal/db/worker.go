package db

import (
	"context"
	"database/sql"
)

// TxFn runs inside a write transaction owned by the Worker.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// Worker funnels every write transaction through one goroutine. SQLite
// allows a single writer at a time, so queueing writes here turns
// concurrent device sessions and admin requests into an ordered stream of
// atomic transactions; the enrollment approval commit depends on that.
type Worker struct {
	db    *sql.DB
	queue chan txRequest
	done  chan struct{}
}

type txRequest struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:    db,
		queue: make(chan txRequest, 256),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Close stops accepting work and waits for the queue to drain. Queued
// transactions still run to completion.
func (w *Worker) Close() {
	close(w.queue)
	<-w.done
}

// Do submits fn and waits for its result. If ctx expires while the job is
// queued or running, the caller unblocks with ctx.Err(); the transaction
// itself still finishes and its result is discarded via the buffered
// result channel.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	req := txRequest{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case w.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)

	for req := range w.queue {
		req.result <- w.runTx(req.ctx, req.fn)
	}
}

func (w *Worker) runTx(ctx context.Context, fn TxFn) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
