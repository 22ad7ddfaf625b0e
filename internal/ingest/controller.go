// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest drives repository ingestion for a conversation.
//
// The controller owns a small state machine (not_started, in_progress,
// completed, failed) and a sequential status poller. Polling is strictly
// one-request-at-a-time: the next poll is scheduled only after the previous
// response has been handled, so a slow backend never sees overlapping
// status requests from one client.
package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/repochat-tui/internal/api"
	"github.com/jeranaias/repochat-tui/internal/model"
)

// Backend is the slice of the API client the controller needs.
type Backend interface {
	BeginIngest(ctx context.Context, conversationID string) (model.IngestState, error)
	GetIngestStatus(ctx context.Context, conversationID string) (api.IngestStatus, error)
}

// Snapshot is a point-in-time view of the controller for rendering.
type Snapshot struct {
	State model.IngestState
	// Progress is in [0, 100] and never moves backward within one run.
	Progress float64
	// Err is the failure cause when State is failed, nil otherwise.
	Err error
}

// Controller runs ingestion for a single conversation.
type Controller struct {
	mu sync.Mutex

	backend        Backend
	conversationID string
	pollInterval   time.Duration
	// maxPolls forces failure after this many polls; 0 means unlimited.
	maxPolls int

	state    model.IngestState
	progress float64
	err      error

	poll *pollHandle

	// onChange fires after every observable state or progress change.
	onChange func(Snapshot)
	// onComplete fires exactly once per run when ingestion completes.
	onComplete   func()
	completeOnce *sync.Once
}

// pollHandle owns one polling goroutine. Stopping is idempotent.
type pollHandle struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (h *pollHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxPolls limits the number of status polls per run (0 = unlimited).
func WithMaxPolls(n int) Option {
	return func(c *Controller) { c.maxPolls = n }
}

// NewController creates an ingestion controller for a conversation.
func NewController(backend Backend, conversationID string, pollInterval time.Duration, opts ...Option) *Controller {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	c := &Controller{
		backend:        backend,
		conversationID: conversationID,
		pollInterval:   pollInterval,
		state:          model.IngestNotStarted,
		completeOnce:   &sync.Once{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOnChange registers the change notifier. Consumers should re-read the
// snapshot after registering; changes before that are not replayed.
func (c *Controller) SetOnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// SetOnComplete registers the completion hook. Must be called before Start.
// It fires at most once per run, even if later polls repeat the completed
// status.
func (c *Controller) SetOnComplete(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// Snapshot returns the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Progress: c.progress, Err: c.err}
}

// State returns the current ingestion state.
func (c *Controller) State() model.IngestState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins ingestion. The state flips to in_progress before the network
// request goes out, so the UI reflects the attempt immediately. Errors are
// absorbed into the failed state; Start never returns an error to the caller.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if !c.state.CanTransition(model.IngestInProgress) {
		c.mu.Unlock()
		return
	}
	notify, snap := c.setStateLocked(model.IngestInProgress, nil)
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	go c.begin(ctx)
}

// Retry restarts ingestion after a failure. Only the failed state accepts a
// retry; in any other state this is a no-op.
func (c *Controller) Retry(ctx context.Context) {
	c.mu.Lock()
	if c.state != model.IngestFailed {
		c.mu.Unlock()
		return
	}
	c.completeOnce = &sync.Once{}
	c.progress = 0
	notify, snap := c.setStateLocked(model.IngestInProgress, nil)
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	go c.begin(ctx)
}

// Stop cancels any scheduled poll and waits for the poll goroutine to exit.
// Safe to call from any state, any number of times.
func (c *Controller) Stop() {
	c.mu.Lock()
	handle := c.poll
	c.poll = nil
	c.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

// begin issues the ingestion request and decides whether to poll.
func (c *Controller) begin(ctx context.Context) {
	state, err := c.backend.BeginIngest(ctx, c.conversationID)
	if err != nil {
		log.Printf("ingest: begin failed for %s: %v", c.conversationID, err)
		c.fail(err)
		return
	}

	switch state {
	case model.IngestCompleted:
		// Already indexed; nothing to poll.
		c.complete()
	case model.IngestInProgress:
		c.startPolling(ctx)
	default:
		c.fail(fmt.Errorf("unexpected ingestion status: %s", state))
	}
}

// startPolling launches the sequential poll loop. A previous handle, if any,
// is stopped first so at most one loop runs.
func (c *Controller) startPolling(ctx context.Context) {
	c.mu.Lock()
	prev := c.poll
	handle := &pollHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	c.poll = handle
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	go c.pollLoop(ctx, handle)
}

// pollLoop polls the status endpoint until a terminal state, an error, the
// poll budget, or cancellation. The delay timer is armed only after each
// response has been handled.
func (c *Controller) pollLoop(ctx context.Context, handle *pollHandle) {
	defer close(handle.done)

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	polls := 0
	for {
		select {
		case <-handle.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		status, err := c.backend.GetIngestStatus(ctx, c.conversationID)
		if err != nil {
			log.Printf("ingest: status poll failed for %s: %v", c.conversationID, err)
			c.fail(err)
			return
		}

		switch status.State {
		case model.IngestCompleted:
			c.complete()
			return
		case model.IngestFailed:
			c.fail(nil)
			return
		case model.IngestInProgress:
			if status.Progress != nil {
				c.advanceProgress(*status.Progress)
			}
		}

		polls++
		if c.maxPolls > 0 && polls >= c.maxPolls {
			log.Printf("ingest: giving up on %s after %d polls", c.conversationID, polls)
			c.fail(context.DeadlineExceeded)
			return
		}

		timer.Reset(c.pollInterval)
	}
}

// advanceProgress applies a reported percentage, clamped and monotonic.
func (c *Controller) advanceProgress(p float64) {
	c.mu.Lock()
	p = model.ClampProgress(p)
	if p <= c.progress || c.state != model.IngestInProgress {
		c.mu.Unlock()
		return
	}
	c.progress = p
	notify := c.onChange
	snap := Snapshot{State: c.state, Progress: c.progress, Err: c.err}
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

func (c *Controller) complete() {
	c.mu.Lock()
	if !c.state.CanTransition(model.IngestCompleted) {
		c.mu.Unlock()
		return
	}
	c.progress = 100
	notify, snap := c.setStateLocked(model.IngestCompleted, nil)
	once := c.completeOnce
	hook := c.onComplete
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
	if hook != nil {
		once.Do(hook)
	}
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	if !c.state.CanTransition(model.IngestFailed) {
		c.mu.Unlock()
		return
	}
	notify, snap := c.setStateLocked(model.IngestFailed, err)
	c.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

// setStateLocked updates state and returns the notifier plus a snapshot for
// the caller to fire after releasing the mutex.
func (c *Controller) setStateLocked(next model.IngestState, err error) (func(Snapshot), Snapshot) {
	c.state = next
	c.err = err
	return c.onChange, Snapshot{State: c.state, Progress: c.progress, Err: c.err}
}
