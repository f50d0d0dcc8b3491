package main

import (
	"context"
	"sync"
	"sync/atomic"
)

// Shutdown is the process-wide cooperative stop signal.
//
// It only ever goes from "running" to "stopping". Workers poll Requested at
// their iteration boundaries; servers that block in Accept or Serve watch
// Context instead.
type Shutdown struct {
	requested atomic.Bool
	once      sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// NewShutdown creates a Shutdown whose context derives from parent.
func NewShutdown(parent context.Context) *Shutdown {
	ctx, cancel := context.WithCancel(parent)
	s := &Shutdown{ctx: ctx, cancel: cancel}
	context.AfterFunc(parent, s.Trigger)
	return s
}

// Trigger requests shutdown. Calling it more than once has no further effect.
func (s *Shutdown) Trigger() {
	s.once.Do(func() {
		s.requested.Store(true)
		s.cancel()
	})
}

// Requested reports whether Trigger has been called.
func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// Done is closed once shutdown has been requested.
func (s *Shutdown) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is canceled once shutdown has been requested.
func (s *Shutdown) Context() context.Context {
	return s.ctx
}
