package client

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"devtools-rpc/message"
)

// outcome is what a waiter is completed with: a response envelope or an error.
type outcome struct {
	resp *message.Response
	err  error
}

// waiter is the single-resolution slot of one outstanding request.
type waiter struct {
	done chan outcome // Buffered(1); written at most once
}

// pendingTable correlates request ids with their waiters.
//
// Every completion path (Resolve, Reject, Cancel, FailAll) starts with
// LoadAndDelete, so whichever path removes the entry first owns the waiter and
// the others see a missing id and do nothing.
type pendingTable struct {
	seal    sync.RWMutex // Register holds it shared, FailAll exclusive
	sealed  error        // Non-nil after FailAll; later registrations fail with it
	waiters *xsync.MapOf[int64, *waiter]
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		waiters: xsync.NewMapOf[int64, *waiter](),
	}
}

// Register adds a waiter for id.
func (p *pendingTable) Register(id int64) (*waiter, error) {
	p.seal.RLock()
	defer p.seal.RUnlock()

	if p.sealed != nil {
		return nil, p.sealed
	}

	w := &waiter{done: make(chan outcome, 1)}
	if _, loaded := p.waiters.LoadOrStore(id, w); loaded {
		return nil, fmt.Errorf("client: request id %d already pending", id)
	}
	return w, nil
}

// Resolve completes id with resp. It reports whether a waiter existed.
func (p *pendingTable) Resolve(id int64, resp *message.Response) bool {
	return p.complete(id, outcome{resp: resp})
}

// Reject completes id with err.
func (p *pendingTable) Reject(id int64, err error) bool {
	return p.complete(id, outcome{err: err})
}

// Cancel detaches id without completing it. It reports whether the caller won
// the race; false means a completion is already in the waiter's channel.
func (p *pendingTable) Cancel(id int64) bool {
	_, ok := p.waiters.LoadAndDelete(id)
	return ok
}

// FailAll seals the table and rejects every waiter with err. It returns the
// number of waiters it failed. Only the first seal error is kept.
func (p *pendingTable) FailAll(err error) int {
	p.seal.Lock()
	if p.sealed == nil {
		p.sealed = err
	}
	p.seal.Unlock()

	// No Register can add entries past this point.
	failed := 0
	p.waiters.Range(func(id int64, _ *waiter) bool {
		if p.Reject(id, err) {
			failed++
		}
		return true
	})
	return failed
}

// Len returns the number of outstanding requests.
func (p *pendingTable) Len() int {
	return p.waiters.Size()
}

func (p *pendingTable) complete(id int64, o outcome) bool {
	w, ok := p.waiters.LoadAndDelete(id)
	if !ok {
		return false
	}
	w.done <- o
	return true
}
