package storetest

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// Raw driver-shaped errors for fault injection. They go through
// store.Classify like real backend errors do.
var (
	ErrBusy     = stderrors.New("database is locked (5) (SQLITE_BUSY)")
	ErrRejected = stderrors.New("CHECK constraint failed: quota")
	ErrLostAck  = stderrors.New("connection reset by peer")
)

type fault struct {
	err   error
	times int // remaining; negative means forever
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

type plan struct {
	mu         sync.Mutex
	faults     map[string]*fault
	gates      map[string]*gate
	calls      map[string]int
	lostCommit int
	delay      time.Duration
}

// Faulty wraps a Store and fails chosen operations on demand. Faults also
// apply to the transaction handed to Atomic callbacks.
type Faulty struct {
	inner store.Store
	p     *plan
}

var _ store.Store = (*Faulty)(nil)

// NewFaulty wraps s with no faults armed.
func NewFaulty(s store.Store) *Faulty {
	return &Faulty{inner: s, p: &plan{
		faults: make(map[string]*fault),
		gates:  make(map[string]*gate),
		calls:  make(map[string]int),
	}}
}

// Fail makes the next times calls of op return err. times < 0 fails forever.
func (f *Faulty) Fail(op string, err error, times int) {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	f.p.faults[op] = &fault{err: err, times: times}
}

// LoseCommit makes the next times Atomic calls commit their work and then
// report an ambiguous commit failure.
func (f *Faulty) LoseCommit(times int) {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	f.p.lostCommit = times
}

// Delay makes every call sleep for d first, which keeps writes in flight.
func (f *Faulty) Delay(d time.Duration) {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	f.p.delay = d
}

// Hold parks the next call of op until release is called. started is
// closed once that call is parked. release is safe to call more than once.
func (f *Faulty) Hold(op string) (started <-chan struct{}, release func()) {
	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	f.p.mu.Lock()
	f.p.gates[op] = g
	f.p.mu.Unlock()
	var once sync.Once
	return g.started, func() { once.Do(func() { close(g.release) }) }
}

// Reset disarms all faults and clears call counts.
func (f *Faulty) Reset() {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	f.p.faults = make(map[string]*fault)
	f.p.gates = make(map[string]*gate)
	f.p.calls = make(map[string]int)
	f.p.lostCommit = 0
	f.p.delay = 0
}

// Calls returns how many times op was invoked.
func (f *Faulty) Calls(op string) int {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	return f.p.calls[op]
}

func (f *Faulty) take(op string) error {
	f.p.mu.Lock()
	f.p.calls[op]++
	delay := f.p.delay
	var err error
	if ft, ok := f.p.faults[op]; ok && ft.times != 0 {
		err = ft.err
		if ft.times > 0 {
			ft.times--
		}
	}
	g := f.p.gates[op]
	delete(f.p.gates, op)
	f.p.mu.Unlock()

	if g != nil {
		close(g.started)
		<-g.release
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *Faulty) CreateEntry(ctx context.Context, e *content.Entry) error {
	if err := f.take(store.OpCreateEntry); err != nil {
		return err
	}
	return f.inner.CreateEntry(ctx, e)
}

func (f *Faulty) GetEntry(ctx context.Context, id string) (*content.Entry, error) {
	if err := f.take(store.OpGetEntry); err != nil {
		return nil, err
	}
	return f.inner.GetEntry(ctx, id)
}

func (f *Faulty) ListEntries(ctx context.Context, spaceID string, kind content.Kind) ([]content.Entry, error) {
	if err := f.take(store.OpListEntries); err != nil {
		return nil, err
	}
	return f.inner.ListEntries(ctx, spaceID, kind)
}

func (f *Faulty) UpdateEntry(ctx context.Context, e *content.Entry) error {
	if err := f.take(store.OpUpdateEntry); err != nil {
		return err
	}
	return f.inner.UpdateEntry(ctx, e)
}

func (f *Faulty) SetCounters(ctx context.Context, id string, counters content.Counters, at time.Time) error {
	if err := f.take(store.OpSetCounters); err != nil {
		return err
	}
	return f.inner.SetCounters(ctx, id, counters, at)
}

func (f *Faulty) DeleteEntry(ctx context.Context, id string) error {
	if err := f.take(store.OpDeleteEntry); err != nil {
		return err
	}
	return f.inner.DeleteEntry(ctx, id)
}

func (f *Faulty) CreateChild(ctx context.Context, c *content.Child) error {
	if err := f.take(store.OpCreateChild); err != nil {
		return err
	}
	return f.inner.CreateChild(ctx, c)
}

func (f *Faulty) GetChild(ctx context.Context, id string) (*content.Child, error) {
	if err := f.take(store.OpGetChild); err != nil {
		return nil, err
	}
	return f.inner.GetChild(ctx, id)
}

func (f *Faulty) ListChildren(ctx context.Context, parentID string) ([]content.Child, error) {
	if err := f.take(store.OpListChildren); err != nil {
		return nil, err
	}
	return f.inner.ListChildren(ctx, parentID)
}

func (f *Faulty) UpdateChild(ctx context.Context, c *content.Child) error {
	if err := f.take(store.OpUpdateChild); err != nil {
		return err
	}
	return f.inner.UpdateChild(ctx, c)
}

func (f *Faulty) DeleteChild(ctx context.Context, id string) error {
	if err := f.take(store.OpDeleteChild); err != nil {
		return err
	}
	return f.inner.DeleteChild(ctx, id)
}

func (f *Faulty) ReassignOrder(ctx context.Context, scope content.Scope, assignments []sequence.Assignment) error {
	if err := f.take(store.OpReassignOrder); err != nil {
		return err
	}
	return f.inner.ReassignOrder(ctx, scope, assignments)
}

func (f *Faulty) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if err := f.take(store.OpAtomic); err != nil {
		return err
	}
	err := f.inner.Atomic(ctx, func(tx store.Store) error {
		return fn(&Faulty{inner: tx, p: f.p})
	})
	if err != nil {
		return err
	}

	f.p.mu.Lock()
	lost := f.p.lostCommit > 0
	if lost {
		f.p.lostCommit--
	}
	f.p.mu.Unlock()
	if lost {
		return store.ClassifyCommit(store.OpAtomic, ErrLostAck)
	}
	return nil
}

func (f *Faulty) ListSpaces(ctx context.Context) ([]string, error) {
	if err := f.take(store.OpListSpaces); err != nil {
		return nil, err
	}
	return f.inner.ListSpaces(ctx)
}

func (f *Faulty) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := f.take(store.OpPurge); err != nil {
		return 0, err
	}
	return f.inner.Purge(ctx, olderThan)
}
