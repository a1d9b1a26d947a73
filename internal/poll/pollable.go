// Package poll implements the long-poll primitive shared by every entity
// clients wait on: a last-modified stamp plus a registry of waiters. A waiter
// is resolved exactly once, by a touch, by its timeout, or by destruction of
// the entity.
package poll

import (
	"context"
	"sync"
	"time"
)

// Result is what a waiter receives.
type Result struct {
	// Modified is the entity's last-modified stamp (unix ms) at resolution.
	Modified int64 `json:"modified"`
	// TimedOut is set when the waiter's timeout elapsed with no new data.
	TimedOut bool `json:"timed_out,omitempty"`
	// Destroyed is set when the entity went away; distinct from a timeout.
	Destroyed bool `json:"destroyed,omitempty"`
	// TimerPending records, for touch-resolved waiters, that the waiter's
	// timeout had not fired yet. Diagnostics only.
	TimerPending bool `json:"-"`
}

type waiter struct {
	ch chan<- Result
}

type Pollable struct {
	mu        sync.Mutex
	modified  int64
	waiters   map[*waiter]struct{}
	destroyed bool
}

func New() *Pollable {
	return &Pollable{
		modified: time.Now().UnixMilli(),
		waiters:  map[*waiter]struct{}{},
	}
}

// Modified returns the current last-modified stamp.
func (p *Pollable) Modified() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modified
}

// Touch advances the last-modified stamp and resolves every pending waiter
// with it. The waiter set is swapped out before any waiter is resolved, so
// touching from within a waiter's own resolution cannot deadlock or
// double-deliver. The stamp is strictly increasing even when the wall clock
// does not advance between touches.
func (p *Pollable) Touch() int64 {
	p.mu.Lock()
	if p.destroyed {
		m := p.modified
		p.mu.Unlock()
		return m
	}
	now := time.Now().UnixMilli()
	if now <= p.modified {
		now = p.modified + 1
	}
	p.modified = now
	resolved := p.waiters
	p.waiters = map[*waiter]struct{}{}
	p.mu.Unlock()

	for w := range resolved {
		w.ch <- Result{Modified: now, TimerPending: true}
	}
	return now
}

// Poll returns immediately when the caller is behind (lastKnown < modified),
// otherwise suspends until a touch, the timeout, or ctx cancellation.
// Exactly one of {touch, timeout, destroy} wins.
func (p *Pollable) Poll(ctx context.Context, lastKnown int64, timeout time.Duration) Result {
	ch := make(chan Result, 1)
	immediate, cancel := p.Subscribe(lastKnown, ch)
	if immediate != nil {
		return *immediate
	}
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res
	case <-timer.C:
	case <-ctx.Done():
	}
	if res, ok := p.withdraw(ch); ok {
		// Touch or destroy won the race while the timer was firing.
		return res
	}
	return Result{Modified: lastKnown, TimedOut: true}
}

// Subscribe registers ch as a waiter for the next touch. When the caller is
// already behind (or the entity is destroyed) it returns a non-nil immediate
// result and registers nothing. ch must have capacity for one Result per
// Subscribe call sharing it; sends never block within that budget.
// The returned cancel withdraws the waiter; it is safe to call after
// resolution, and mandatory when abandoning the wait.
func (p *Pollable) Subscribe(lastKnown int64, ch chan<- Result) (*Result, func()) {
	p.mu.Lock()
	if p.destroyed {
		res := Result{Modified: p.modified, Destroyed: true}
		p.mu.Unlock()
		return &res, func() {}
	}
	if lastKnown < p.modified {
		res := Result{Modified: p.modified}
		p.mu.Unlock()
		return &res, func() {}
	}
	w := &waiter{ch: ch}
	p.waiters[w] = struct{}{}
	p.mu.Unlock()

	return nil, func() {
		p.mu.Lock()
		delete(p.waiters, w)
		p.mu.Unlock()
	}
}

// Destroy resolves every pending waiter with a Destroyed result and clears
// the waiter set. Touch and Poll on a destroyed Pollable are no-ops that
// report the final stamp.
func (p *Pollable) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	resolved := p.waiters
	p.waiters = nil
	m := p.modified
	p.mu.Unlock()

	for w := range resolved {
		w.ch <- Result{Modified: m, Destroyed: true}
	}
}

// withdraw drains a result that raced in after the caller stopped waiting.
func (p *Pollable) withdraw(ch chan Result) (Result, bool) {
	select {
	case res := <-ch:
		res.TimerPending = false
		return res, true
	default:
		return Result{}, false
	}
}
